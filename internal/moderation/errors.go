package moderation

import (
	"errors"
	"fmt"
)

// ErrVerdictNotFound is returned by VerdictStore.GetVerdict when no document
// exists for the post id. It drives the compute branch of the idempotency
// gate and is not treated as a failure.
var ErrVerdictNotFound = errors.New("verdict not found")

// ErrAttemptsExhausted marks a fetch that failed every allowed attempt.
var ErrAttemptsExhausted = errors.New("fetch attempts exhausted")

// FailureStage identifies which stage of the check-post flow failed. The
// numeric values are the codes reported in the HTTP error body.
type FailureStage int

const (
	FailureUpstream FailureStage = 2
	FailurePipeline FailureStage = 3
	FailureLookup   FailureStage = 4
)

// StageError tags an error with the pipeline stage it came from so the HTTP
// boundary can report a distinguishing code.
type StageError struct {
	Stage FailureStage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ConsistencyError reports a verdict-count mismatch between scheduled work
// items and returned verdicts. It indicates a scheduler bug and is fatal for
// the post.
type ConsistencyError struct {
	Want int
	Got  int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("verdict count mismatch: got %d, want %d", e.Got, e.Want)
}
