package pipeline

import (
	"context"

	"github.com/galleryguard/galleryguard/internal/moderation"
)

// Service composes the idempotency gate, the upstream gallery lookup, and the
// post pipeline into the check-post operation served over HTTP.
type Service struct {
	gate     *Gate
	gallery  moderation.Gallery
	pipeline *PostPipeline
}

// NewService constructs a Service.
func NewService(gate *Gate, gallery moderation.Gallery, pipeline *PostPipeline) *Service {
	return &Service{gate: gate, gallery: gallery, pipeline: pipeline}
}

// CheckPost returns the verdict for a post id, computing and persisting it on
// first sight. Errors carry a moderation.StageError identifying the failed
// stage for the HTTP boundary.
func (s *Service) CheckPost(ctx context.Context, postID string) (moderation.Verdict, error) {
	return s.gate.GetOrCompute(ctx, postID, func(ctx context.Context) (moderation.Verdict, error) {
		post, err := s.gallery.Post(ctx, postID)
		if err != nil {
			return moderation.Verdict{}, &moderation.StageError{Stage: moderation.FailureUpstream, Err: err}
		}
		verdict, err := s.pipeline.Moderate(ctx, post)
		if err != nil {
			return moderation.Verdict{}, &moderation.StageError{Stage: moderation.FailurePipeline, Err: err}
		}
		return verdict, nil
	})
}
