// Package crawl implements the continuous feed-polling mode.
package crawl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/fetch"
	"github.com/galleryguard/galleryguard/internal/metrics"
	"github.com/galleryguard/galleryguard/internal/moderation"
	"github.com/galleryguard/galleryguard/internal/schedule"
	"github.com/galleryguard/galleryguard/internal/scratch"
)

// Config tunes the crawl loop.
type Config struct {
	// Interval is the sleep between iterations.
	Interval time.Duration
	// LowWater gates page fetching: a new page is pulled only while
	// remaining - toStore is below it.
	LowWater int64
	// PageResetAfter resets the feed page counter back to 1 once this much
	// wall-clock time has passed since the last reset.
	PageResetAfter time.Duration
	MaxConcurrent  int
}

// Loop pages through the upstream feed, downloads and fingerprints every
// image, and bulk-persists the results. It is single-threaded at the control
// level and runs until process shutdown; individual page failures are logged
// and skipped, never fatal.
type Loop struct {
	gallery       moderation.Gallery
	store         moderation.CrawlStore
	fetcher       *fetch.Executor
	scratch       *scratch.Manager
	fingerprinter moderation.Fingerprinter
	clock         moderation.Clock
	cfg           Config
	logger        *zap.Logger

	page      int
	lastReset time.Time
}

// New constructs a Loop.
func New(
	gallery moderation.Gallery,
	store moderation.CrawlStore,
	fetcher *fetch.Executor,
	scratchMgr *scratch.Manager,
	fingerprinter moderation.Fingerprinter,
	clock moderation.Clock,
	cfg Config,
	logger *zap.Logger,
) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.LowWater <= 0 {
		cfg.LowWater = 50
	}
	if cfg.PageResetAfter <= 0 {
		cfg.PageResetAfter = 12 * time.Hour
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		gallery:       gallery,
		store:         store,
		fetcher:       fetcher,
		scratch:       scratchMgr,
		fingerprinter: fingerprinter,
		clock:         clock,
		cfg:           cfg,
		logger:        logger,
		lastReset:     clock.Now(),
	}
}

// Run iterates until the context finishes.
func (l *Loop) Run(ctx context.Context) {
	for {
		if err := l.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("crawl iteration failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.cfg.Interval):
		}
	}
}

// runOnce performs a single pacing check and, when the backlog is low, pulls
// and processes one feed page.
func (l *Loop) runOnce(ctx context.Context) error {
	counters, err := l.store.Backlog(ctx)
	if err != nil {
		return err
	}
	if counters.RemainingPosts-counters.ToStore >= l.cfg.LowWater {
		l.logger.Debug("backlog above low-water mark, skipping page",
			zap.Int64("remaining", counters.RemainingPosts),
			zap.Int64("to_store", counters.ToStore),
		)
		return nil
	}

	page := l.nextPage()
	posts, err := l.gallery.FeedPage(ctx, page)
	if err != nil {
		return err
	}
	l.logger.Info("feed page fetched", zap.Int("page", page), zap.Int("posts", len(posts)))

	items := flatten(posts, l.clock.Now())
	records := l.downloadAll(ctx, items)

	if len(records) > 0 {
		if err := l.store.InsertImages(ctx, records); err != nil {
			return err
		}
	}
	if len(posts) > 0 {
		if err := l.store.InsertPosts(ctx, posts); err != nil {
			return err
		}
		delta := moderation.BacklogCounters{
			ViewedPosts:    int64(len(posts)),
			RemainingPosts: int64(len(posts)),
		}
		if err := l.store.IncrementBacklog(ctx, delta); err != nil {
			return err
		}
	}

	l.cleanup(posts)
	metrics.ObserveCrawlPage()
	return nil
}

// nextPage advances the feed page counter, resetting to 1 once the reset
// window has elapsed.
func (l *Loop) nextPage() int {
	now := l.clock.Now()
	if now.Sub(l.lastReset) >= l.cfg.PageResetAfter {
		l.page = 1
		l.lastReset = now
		return l.page
	}
	l.page++
	return l.page
}

// flatten converts a page of posts into image work items: one per image for
// albums, one per post otherwise.
func flatten(posts []moderation.Post, queuedAt time.Time) []moderation.ImageWorkItem {
	var items []moderation.ImageWorkItem
	for _, post := range posts {
		if post.IsAlbum {
			for _, ref := range post.Images {
				items = append(items, moderation.NewWorkItem(post.ID, ref, queuedAt))
			}
			continue
		}
		items = append(items, moderation.NewWorkItem(post.ID, moderation.ImageRef{
			ID:          post.ID,
			Title:       post.Title,
			Description: post.Description,
			Link:        post.Link,
		}, queuedAt))
	}
	return items
}

// downloadAll fetches and fingerprints every work item under the concurrency
// cap. Permanently failed downloads are dropped from the batch.
func (l *Loop) downloadAll(ctx context.Context, items []moderation.ImageWorkItem) []moderation.ImageRecord {
	tasks := make([]schedule.Task[*moderation.ImageRecord], len(items))
	for i := range items {
		item := &items[i]
		tasks[i] = func(taskCtx context.Context) *moderation.ImageRecord {
			return l.downloadOne(taskCtx, item)
		}
	}
	results, err := schedule.RunBatched(ctx, tasks, l.cfg.MaxConcurrent)
	if err != nil {
		l.logger.Warn("batch interrupted", zap.Error(err))
	}
	records := make([]moderation.ImageRecord, 0, len(results))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records
}

func (l *Loop) downloadOne(ctx context.Context, item *moderation.ImageWorkItem) *moderation.ImageRecord {
	item.State = moderation.ItemFetching
	data, err := l.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		item.State = moderation.ItemFetchFailed
		item.TerminalErr = err
		metrics.ObserveImage(metrics.OutcomeFetchFailed)
		l.logger.Warn("image download dropped",
			zap.String("post_id", item.ParentPostID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		return nil
	}
	item.State = moderation.ItemFetched
	item.DownloadedAt = l.clock.Now()

	if name, err := scratch.FilenameFromURL(item.URL); err == nil {
		if path, saveErr := l.scratch.Save(item.ParentPostID, name, data); saveErr == nil {
			item.LocalPath = path
		} else {
			l.logger.Warn("scratch save failed", zap.String("url", item.URL), zap.Error(saveErr))
		}
	}

	if l.fingerprinter != nil {
		if fp, err := l.fingerprinter.Fingerprint(data); err != nil {
			l.logger.Debug("fingerprint failed", zap.String("url", item.URL), zap.Error(err))
		} else {
			item.Fingerprint = fp
		}
	}
	metrics.ObserveImage(metrics.OutcomeDownloaded)
	return &moderation.ImageRecord{
		ID:           item.ID,
		PostID:       item.ParentPostID,
		URL:          item.URL,
		Fingerprint:  item.Fingerprint,
		DownloadedAt: item.DownloadedAt,
	}
}

// cleanup removes scratch directories for every post on the page. Failures
// are advisory.
func (l *Loop) cleanup(posts []moderation.Post) {
	for _, post := range posts {
		if err := l.scratch.Remove(post.ID); err != nil {
			metrics.ObserveScratchCleanupFailure()
			l.logger.Warn("scratch cleanup failed", zap.String("post_id", post.ID), zap.Error(err))
		}
	}
}
