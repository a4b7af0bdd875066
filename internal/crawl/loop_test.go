package crawl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/fetch"
	"github.com/galleryguard/galleryguard/internal/metrics"
	"github.com/galleryguard/galleryguard/internal/moderation"
	"github.com/galleryguard/galleryguard/internal/scratch"
)

func init() {
	metrics.Init()
}

type fakeGallery struct {
	mu        sync.Mutex
	pages     map[int][]moderation.Post
	seenPages []int
	err       error
}

func (g *fakeGallery) Post(context.Context, string) (moderation.Post, error) {
	return moderation.Post{}, errors.New("not used")
}

func (g *fakeGallery) FeedPage(_ context.Context, page int) ([]moderation.Post, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seenPages = append(g.seenPages, page)
	if g.err != nil {
		return nil, g.err
	}
	return g.pages[page], nil
}

type fakeCrawlStore struct {
	mu       sync.Mutex
	counters moderation.BacklogCounters
	posts    []moderation.Post
	images   []moderation.ImageRecord
}

func (s *fakeCrawlStore) InsertPosts(_ context.Context, posts []moderation.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, posts...)
	return nil
}

func (s *fakeCrawlStore) InsertImages(_ context.Context, images []moderation.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, images...)
	return nil
}

func (s *fakeCrawlStore) Backlog(context.Context) (moderation.BacklogCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters, nil
}

func (s *fakeCrawlStore) IncrementBacklog(_ context.Context, delta moderation.BacklogCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.ViewedPosts += delta.ViewedPosts
	s.counters.RemainingPosts += delta.RemainingPosts
	s.counters.ToStore += delta.ToStore
	return nil
}

type fakeFingerprinter struct{}

func (fakeFingerprinter) Fingerprint([]byte) (string, error) {
	return "p:1111111111111111", nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLoopFixture(t *testing.T, upstream *fakeGallery, store *fakeCrawlStore, clk *fakeClock) *Loop {
	t.Helper()
	scratchMgr, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	fetcher := fetch.NewExecutor(nil, fetch.Policy{MaxAttempts: 2, Delay: time.Millisecond}, zap.NewNop())
	return New(upstream, store, fetcher, scratchMgr, fakeFingerprinter{}, clk, Config{
		Interval:       time.Minute,
		LowWater:       50,
		PageResetAfter: 12 * time.Hour,
		MaxConcurrent:  4,
	}, zap.NewNop())
}

func TestRunOnceSkipsWhenBacklogHigh(t *testing.T) {
	t.Parallel()
	upstream := &fakeGallery{}
	store := &fakeCrawlStore{counters: moderation.BacklogCounters{RemainingPosts: 120, ToStore: 10}}
	loop := newLoopFixture(t, upstream, store, &fakeClock{now: time.Now()})

	require.NoError(t, loop.runOnce(context.Background()))
	require.Empty(t, upstream.seenPages, "no page fetch while backlog is above the low-water mark")
}

func TestRunOnceProcessesPageAndIncrementsCounters(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("image bytes"))
	}))
	t.Cleanup(srv.Close)

	upstream := &fakeGallery{pages: map[int][]moderation.Post{
		1: {
			{ID: "single", Link: srv.URL + "/single.jpg"},
			{ID: "album", IsAlbum: true, Images: []moderation.ImageRef{
				{ID: "a1", Link: srv.URL + "/a1.png"},
				{ID: "a2", Link: srv.URL + "/a2.png"},
			}},
		},
	}}
	store := &fakeCrawlStore{}
	loop := newLoopFixture(t, upstream, store, &fakeClock{now: time.Now()})

	require.NoError(t, loop.runOnce(context.Background()))

	require.Equal(t, []int{1}, upstream.seenPages)
	require.Len(t, store.posts, 2)
	require.Len(t, store.images, 3, "one item per album image plus one for the single post")
	require.Equal(t, int64(2), store.counters.ViewedPosts)
	require.Equal(t, int64(2), store.counters.RemainingPosts)
	for _, img := range store.images {
		require.Equal(t, "p:1111111111111111", img.Fingerprint)
	}
}

func TestRunOnceDropsPermanentlyFailedImages(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.png" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("image bytes"))
	}))
	t.Cleanup(srv.Close)

	upstream := &fakeGallery{pages: map[int][]moderation.Post{
		1: {
			{ID: "album", IsAlbum: true, Images: []moderation.ImageRef{
				{ID: "ok", Link: srv.URL + "/ok.png"},
				{ID: "broken", Link: srv.URL + "/broken.png"},
			}},
		},
	}}
	store := &fakeCrawlStore{}
	loop := newLoopFixture(t, upstream, store, &fakeClock{now: time.Now()})

	require.NoError(t, loop.runOnce(context.Background()))
	require.Len(t, store.images, 1)
	require.Equal(t, "ok", store.images[0].ID)
}

func TestPageCounterAdvancesAndResets(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	upstream := &fakeGallery{pages: map[int][]moderation.Post{}}
	store := &fakeCrawlStore{}
	loop := newLoopFixture(t, upstream, store, clk)

	require.NoError(t, loop.runOnce(context.Background()))
	require.NoError(t, loop.runOnce(context.Background()))
	require.Equal(t, []int{1, 2}, upstream.seenPages)

	clk.advance(13 * time.Hour)
	require.NoError(t, loop.runOnce(context.Background()))
	require.Equal(t, []int{1, 2, 1}, upstream.seenPages, "page counter resets after the wall-clock window")
}

func TestRunOnceSurfacesFeedError(t *testing.T) {
	t.Parallel()
	upstream := &fakeGallery{err: errors.New("feed down")}
	store := &fakeCrawlStore{}
	loop := newLoopFixture(t, upstream, store, &fakeClock{now: time.Now()})

	require.Error(t, loop.runOnce(context.Background()))
	require.Empty(t, store.posts)
}
