// Package moderation defines the core domain types and interfaces for the
// gallery moderation pipeline.
package moderation

import (
	"strings"
	"time"
)

// ImageRef is one image entry inside an upstream gallery post.
type ImageRef struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

// Post is one upstream gallery item as returned by the gallery API.
// It is immutable once fetched.
type Post struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Datetime    int64      `json:"datetime"`
	AccountURL  string     `json:"account_url"`
	Views       int        `json:"views"`
	Link        string     `json:"link"`
	IsAlbum     bool       `json:"is_album"`
	NSFW        *bool      `json:"nsfw"`
	ImagesCount int        `json:"images_count"`
	IsAd        bool       `json:"is_ad"`
	Images      []ImageRef `json:"images"`
}

// ItemState tracks an ImageWorkItem through its lifecycle.
type ItemState string

const (
	ItemQueued      ItemState = "queued"
	ItemFetching    ItemState = "fetching"
	ItemFetched     ItemState = "fetched"
	ItemFetchFailed ItemState = "fetch_failed"
	ItemAnalyzing   ItemState = "analyzing"
	ItemClassified  ItemState = "classified"
)

// ImageWorkItem is the per-image unit of work derived from an ImageRef.
// Each item is owned by exactly one processor invocation and never shared
// across concurrent workers. The parent post is carried as plain data, not a
// back-reference.
type ImageWorkItem struct {
	ID           string
	ParentPostID string
	URL          string
	Description  string
	Extension    string
	State        ItemState
	QueuedAt     time.Time

	DownloadedAt  time.Time
	LocalPath     string
	Fingerprint   string
	ExtractedText string
	Unsafe        bool
	Attempts      int
	TerminalErr   error
}

// ImageVerdict is the persisted per-image classification. Field names mirror
// the stored document schema.
type ImageVerdict struct {
	ID          string `json:"id" bson:"id"`
	Description string `json:"description" bson:"description"`
	URL         string `json:"url" bson:"url"`
	Unsafe      bool   `json:"unsafe" bson:"unsafe"`
	OCRText     string `json:"image_ocr_text" bson:"image_ocr_text"`
}

// Verdict is the persisted moderation result for a whole post. It is created
// once and never mutated; reprocessing is prevented by the idempotency gate.
type Verdict struct {
	ID          string         `json:"id" bson:"id"`
	Images      []ImageVerdict `json:"images" bson:"images"`
	PostURL     string         `json:"post_url" bson:"post_url"`
	Datetime    string         `json:"datetime" bson:"datetime"`
	Unsafe      bool           `json:"unsafe" bson:"unsafe"`
	Description string         `json:"description" bson:"description"`
	Title       string         `json:"title" bson:"title"`
}

// ImageRecord is the crawl-mode persistence record for a downloaded image.
type ImageRecord struct {
	ID           string    `json:"id" bson:"id"`
	PostID       string    `json:"post_id" bson:"post_id"`
	URL          string    `json:"url" bson:"url"`
	Fingerprint  string    `json:"fingerprint" bson:"fingerprint"`
	DownloadedAt time.Time `json:"downloaded_at" bson:"downloaded_at"`
}

// BacklogCounters is the shared crawl-pacing record. It is mutated only via
// the store's atomic increment, never read-modified-written in process.
type BacklogCounters struct {
	ViewedPosts    int64 `bson:"viewed_posts"`
	RemainingPosts int64 `bson:"remaining_posts"`
	ToStore        int64 `bson:"to_store"`
}

// nonStillExtensions are file types skipped by OCR and excluded from the
// unsafe-ratio denominator.
var nonStillExtensions = map[string]struct{}{
	"mp4":  {},
	"gif":  {},
	"gifv": {},
}

// ExtensionOf returns the suffix after the final dot of a URL, lowercased.
// A URL with no dot yields the empty string.
func ExtensionOf(rawURL string) string {
	idx := strings.LastIndex(rawURL, ".")
	if idx < 0 || idx == len(rawURL)-1 {
		return ""
	}
	return strings.ToLower(rawURL[idx+1:])
}

// IsStillImage reports whether the extension denotes a still image eligible
// for OCR and the ratio denominator.
func IsStillImage(extension string) bool {
	_, skip := nonStillExtensions[strings.ToLower(extension)]
	return !skip
}

// NewWorkItem derives an ImageWorkItem from an ImageRef.
func NewWorkItem(postID string, ref ImageRef, queuedAt time.Time) ImageWorkItem {
	return ImageWorkItem{
		ID:           ref.ID,
		ParentPostID: postID,
		URL:          ref.Link,
		Description:  ref.Description,
		Extension:    ExtensionOf(ref.Link),
		State:        ItemQueued,
		QueuedAt:     queuedAt,
	}
}
