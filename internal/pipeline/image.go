// Package pipeline orchestrates per-image processing, post-level aggregation,
// and the idempotency gate in front of the store.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/fetch"
	"github.com/galleryguard/galleryguard/internal/filter"
	"github.com/galleryguard/galleryguard/internal/metrics"
	"github.com/galleryguard/galleryguard/internal/moderation"
	"github.com/galleryguard/galleryguard/internal/scratch"
)

// ImageProcessor is the per-image unit of work: fetch bytes, persist to
// scratch, extract text, fingerprint, classify. Every step is independently
// fallible; failures collapse into an empty outcome so one bad image never
// aborts its post.
type ImageProcessor struct {
	fetcher       *fetch.Executor
	scratch       *scratch.Manager
	extractor     moderation.TextExtractor
	fingerprinter moderation.Fingerprinter
	filter        *filter.Filter
	clock         moderation.Clock
	logger        *zap.Logger
}

// NewImageProcessor constructs an ImageProcessor.
func NewImageProcessor(
	fetcher *fetch.Executor,
	scratchMgr *scratch.Manager,
	extractor moderation.TextExtractor,
	fingerprinter moderation.Fingerprinter,
	contentFilter *filter.Filter,
	clock moderation.Clock,
	logger *zap.Logger,
) *ImageProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageProcessor{
		fetcher:       fetcher,
		scratch:       scratchMgr,
		extractor:     extractor,
		fingerprinter: fingerprinter,
		filter:        contentFilter,
		clock:         clock,
		logger:        logger,
	}
}

// Process runs one work item to a terminal state and returns its verdict.
// Scratch files are released at the post level once all sibling items finish,
// not here.
func (p *ImageProcessor) Process(ctx context.Context, item *moderation.ImageWorkItem) moderation.ImageVerdict {
	verdict := moderation.ImageVerdict{
		ID:          item.ID,
		Description: item.Description,
		URL:         item.URL,
	}

	// Videos and animations are never fetched or scanned. They stay in the
	// image list but are excluded from the eligible denominator.
	if !moderation.IsStillImage(item.Extension) {
		item.State = moderation.ItemClassified
		metrics.ObserveImage(metrics.OutcomeSkippedVideo)
		return verdict
	}

	text := p.download(ctx, item)
	item.State = moderation.ItemAnalyzing
	item.ExtractedText = text

	verdict.OCRText = text
	verdict.Unsafe = p.filter.IsUnsafe(item.Description) || p.filter.IsUnsafe(text)
	if verdict.Unsafe {
		item.Unsafe = true
	}
	item.State = moderation.ItemClassified
	metrics.ObserveImage(metrics.OutcomeClassified)
	return verdict
}

// download fetches, persists, fingerprints, and scans one image, returning
// the extracted text. Any failure degrades to empty text.
func (p *ImageProcessor) download(ctx context.Context, item *moderation.ImageWorkItem) string {
	item.State = moderation.ItemFetching
	data, err := p.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		item.State = moderation.ItemFetchFailed
		item.TerminalErr = err
		metrics.ObserveImage(metrics.OutcomeFetchFailed)
		p.logger.Warn("image fetch failed",
			zap.String("post_id", item.ParentPostID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		return ""
	}
	item.State = moderation.ItemFetched
	item.DownloadedAt = p.clock.Now()

	name, err := scratch.FilenameFromURL(item.URL)
	if err != nil {
		p.logger.Warn("derive scratch filename failed", zap.String("url", item.URL), zap.Error(err))
		return ""
	}
	path, err := p.scratch.Save(item.ParentPostID, name, data)
	if err != nil {
		p.logger.Warn("persist image failed",
			zap.String("post_id", item.ParentPostID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		return ""
	}
	item.LocalPath = path

	if p.fingerprinter != nil {
		fp, err := p.fingerprinter.Fingerprint(data)
		if err != nil {
			p.logger.Debug("fingerprint failed", zap.String("url", item.URL), zap.Error(err))
		} else {
			item.Fingerprint = fp
		}
	}

	text, err := p.extractor.ExtractText(ctx, path)
	if err != nil {
		metrics.ObserveOCRFailure()
		p.logger.Warn("text extraction failed",
			zap.String("post_id", item.ParentPostID),
			zap.String("path", path),
			zap.Error(err),
		)
		return ""
	}
	return text
}
