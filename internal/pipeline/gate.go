package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/moderation"
)

// Gate deduplicates moderation by post id against the store. A stored verdict
// is returned unchanged; only a definite "no such document" lookup triggers
// the compute path. There is no TTL or invalidation.
type Gate struct {
	store  moderation.VerdictStore
	logger *zap.Logger
}

// NewGate constructs a Gate.
func NewGate(store moderation.VerdictStore, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, logger: logger}
}

// GetOrCompute returns the stored verdict for postID, or runs compute when no
// verdict exists. Lookup failures other than not-found are fatal and tagged
// with FailureLookup.
func (g *Gate) GetOrCompute(
	ctx context.Context,
	postID string,
	compute func(ctx context.Context) (moderation.Verdict, error),
) (moderation.Verdict, error) {
	stored, err := g.store.GetVerdict(ctx, postID)
	switch {
	case err == nil:
		g.logger.Debug("verdict served from store", zap.String("post_id", postID))
		return stored, nil
	case errors.Is(err, moderation.ErrVerdictNotFound):
		return compute(ctx)
	default:
		return moderation.Verdict{}, &moderation.StageError{Stage: moderation.FailureLookup, Err: err}
	}
}
