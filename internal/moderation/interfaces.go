package moderation

import (
	"context"
	"time"
)

// VerdictStore persists and looks up post-level moderation verdicts.
type VerdictStore interface {
	// InsertVerdict writes a verdict document.
	InsertVerdict(ctx context.Context, v Verdict) error
	// GetVerdict returns the stored verdict for a post id, or
	// ErrVerdictNotFound when no document exists.
	GetVerdict(ctx context.Context, postID string) (Verdict, error)
}

// CrawlStore persists crawl-mode records and the shared backlog counters.
type CrawlStore interface {
	InsertPosts(ctx context.Context, posts []Post) error
	InsertImages(ctx context.Context, images []ImageRecord) error
	Backlog(ctx context.Context) (BacklogCounters, error)
	// IncrementBacklog applies delta atomically at the store level.
	IncrementBacklog(ctx context.Context, delta BacklogCounters) error
}

// Gallery is the upstream feed API at its interface boundary.
type Gallery interface {
	// Post looks up a post by id, falling back to a single-image lookup
	// when the album lookup returns 404.
	Post(ctx context.Context, id string) (Post, error)
	// FeedPage returns one page of the hot/viral/day feed.
	FeedPage(ctx context.Context, page int) ([]Post, error)
}

// TextExtractor runs OCR over a persisted image file.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Fingerprinter computes a perceptual hash of image bytes.
type Fingerprinter interface {
	Fingerprint(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
