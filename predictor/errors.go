package predictor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoArtifact means no trained model exists yet. The service answers
	// from the fallback heuristic in that state.
	ErrNoArtifact = errors.New("no model artifact available")

	// ErrRetrainInProgress is returned when a retrain is requested while
	// another one is still running.
	ErrRetrainInProgress = errors.New("retrain already in progress")

	// ErrInvalidAttribute marks malformed appointment attributes.
	ErrInvalidAttribute = errors.New("invalid appointment attribute")

	// ErrArtifactMismatch means the two blobs of an artifact were written
	// by different training runs.
	ErrArtifactMismatch = errors.New("model and encoders blobs belong to different versions")
)

// DataInsufficientError aborts a training run.
type DataInsufficientError struct {
	Rows     int
	Required int
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf("insufficient training data: %d usable rows, need at least %d", e.Rows, e.Required)
}

// InferenceFailure wraps anything that went wrong while building the feature
// vector or evaluating the model. It is never returned to API callers; the
// prediction degrades to the safe default instead.
type InferenceFailure struct {
	Cause error
}

func (e *InferenceFailure) Error() string {
	return "inference failed: " + e.Cause.Error()
}

func (e *InferenceFailure) Unwrap() error {
	return e.Cause
}

// IsDataInsufficient reports whether err aborted training for lack of rows.
func IsDataInsufficient(err error) bool {
	var target *DataInsufficientError
	return errors.As(err, &target)
}
