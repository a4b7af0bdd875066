package pipeline

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/filter"
	"github.com/galleryguard/galleryguard/internal/metrics"
	"github.com/galleryguard/galleryguard/internal/moderation"
	"github.com/galleryguard/galleryguard/internal/schedule"
	"github.com/galleryguard/galleryguard/internal/scratch"
)

// DefaultUnsafeThreshold is the unsafe-image ratio above which a whole post
// is marked unsafe. The comparison is inclusive.
const DefaultUnsafeThreshold = 0.2

// Config tunes a PostPipeline.
type Config struct {
	MaxConcurrent   int
	UnsafeThreshold float64
}

// PostPipeline runs the full moderation flow for one post: title/description
// short-circuit, batched image processing, the threshold rule, and the store
// write.
type PostPipeline struct {
	processor *ImageProcessor
	filter    *filter.Filter
	store     moderation.VerdictStore
	scratch   *scratch.Manager
	clock     moderation.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewPostPipeline constructs a PostPipeline.
func NewPostPipeline(
	processor *ImageProcessor,
	contentFilter *filter.Filter,
	store moderation.VerdictStore,
	scratchMgr *scratch.Manager,
	clock moderation.Clock,
	cfg Config,
	logger *zap.Logger,
) *PostPipeline {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 10
	}
	if cfg.UnsafeThreshold <= 0 {
		cfg.UnsafeThreshold = DefaultUnsafeThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostPipeline{
		processor: processor,
		filter:    contentFilter,
		store:     store,
		scratch:   scratchMgr,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Moderate classifies a post and persists the verdict. A persistence failure
// is logged and the in-memory verdict is still returned; any other error is
// fatal for the post.
func (p *PostPipeline) Moderate(ctx context.Context, post moderation.Post) (moderation.Verdict, error) {
	verdict := moderation.Verdict{
		ID:          post.ID,
		Images:      []moderation.ImageVerdict{},
		PostURL:     post.Link,
		Datetime:    strconv.FormatInt(p.clock.Now().UnixMilli(), 10),
		Title:       post.Title,
		Description: post.Description,
	}

	if p.filter.IsUnsafe(post.Title) || p.filter.IsUnsafe(post.Description) {
		// Nothing is downloaded for a short-circuited post.
		verdict.Unsafe = true
		p.logger.Info("post short-circuited by title/description filter",
			zap.String("post_id", post.ID))
		p.persist(ctx, verdict)
		return verdict, nil
	}

	items := make([]moderation.ImageWorkItem, len(post.Images))
	tasks := make([]schedule.Task[moderation.ImageVerdict], len(post.Images))
	queuedAt := p.clock.Now()
	for i, ref := range post.Images {
		items[i] = moderation.NewWorkItem(post.ID, ref, queuedAt)
		item := &items[i]
		tasks[i] = func(taskCtx context.Context) moderation.ImageVerdict {
			return p.processor.Process(taskCtx, item)
		}
	}

	imageVerdicts, err := schedule.RunBatched(ctx, tasks, p.cfg.MaxConcurrent)
	p.cleanupScratch(post.ID)
	if err != nil {
		return moderation.Verdict{}, err
	}
	if len(imageVerdicts) != len(post.Images) {
		return moderation.Verdict{}, &moderation.ConsistencyError{
			Want: len(post.Images),
			Got:  len(imageVerdicts),
		}
	}

	verdict.Images = imageVerdicts
	verdict.Unsafe = p.aggregate(imageVerdicts)

	p.persist(ctx, verdict)
	return verdict, nil
}

// aggregate applies the threshold rule. Videos and animations are excluded
// from the denominator; a post with zero eligible images is safe by vacuous
// truth.
func (p *PostPipeline) aggregate(verdicts []moderation.ImageVerdict) bool {
	unsafeCount := 0
	eligibleCount := 0
	for _, v := range verdicts {
		if v.Unsafe {
			unsafeCount++
		}
		if moderation.IsStillImage(moderation.ExtensionOf(v.URL)) {
			eligibleCount++
		}
	}
	if eligibleCount == 0 {
		return false
	}
	return float64(unsafeCount)/float64(eligibleCount) >= p.cfg.UnsafeThreshold
}

func (p *PostPipeline) persist(ctx context.Context, verdict moderation.Verdict) {
	metrics.ObservePost(verdict.Unsafe)
	if err := p.store.InsertVerdict(ctx, verdict); err != nil {
		// Degraded, not fatal: the caller still gets the in-memory verdict.
		p.logger.Warn("verdict persistence failed",
			zap.String("post_id", verdict.ID),
			zap.Error(err),
		)
	}
}

// cleanupScratch removes the post's scratch directory once every sibling item
// has reached a terminal state. Failure is advisory only.
func (p *PostPipeline) cleanupScratch(postID string) {
	if err := p.scratch.Remove(postID); err != nil {
		metrics.ObserveScratchCleanupFailure()
		p.logger.Warn("scratch cleanup failed", zap.String("post_id", postID), zap.Error(err))
	}
}
