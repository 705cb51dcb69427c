package harness

import (
	"context"
	"errors"
	"fmt"

	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
)

var (
	// ErrInvalidTurn is returned when an append would break the single leading system turn.
	ErrInvalidTurn = errors.New("invalid turn")
	// ErrNoArtifactToModify is returned by Modify before any artifact exists.
	ErrNoArtifactToModify = errors.New("no artifact to modify")
	// ErrGenerationFailed matches every *GenerationError.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrPersistenceFailed matches every *PersistenceError.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrExtractionDegraded is a warning: the artifact is the raw completion.
	ErrExtractionDegraded = errors.New("extraction degraded to raw completion")
	// ErrEmptyInput is returned for blank instructions.
	ErrEmptyInput = errors.New("input is empty")
)

// FailureCause classifies why the completion collaborator produced no usable output.
type FailureCause string

const (
	CauseTimeout   FailureCause = "timeout"
	CauseTransport FailureCause = "transport_error"
	CauseRejected  FailureCause = "collaborator_rejected"
)

// GenerationError reports a failed collaborator call. The turn was rolled back.
type GenerationError struct {
	Cause        FailureCause
	Collaborator string
	Err          error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s, %s): %v", e.Cause, e.Collaborator, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }

// Retryable is always true: nothing was committed.
func (e *GenerationError) Retryable() bool { return true }

// PersistenceError reports a failed durable write. The turn was rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistenceFailed }

func (e *PersistenceError) Retryable() bool { return true }

// ClassifyProviderError maps a provider failure onto a GenerationError.
func ClassifyProviderError(collaborator string, err error) *GenerationError {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}

	cause := CauseTransport

	var timeout interface{ Timeout() bool }
	var provErr *ports.ProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		cause = CauseTimeout
	case errors.As(err, &timeout) && timeout.Timeout():
		cause = CauseTimeout
	case errors.Is(err, ports.ErrEmptyCompletion):
		cause = CauseRejected
	case errors.As(err, &provErr) && provErr.Rejected():
		cause = CauseRejected
	}

	if errors.As(err, &provErr) && provErr.Collaborator != "" {
		collaborator = provErr.Collaborator
	}

	return &GenerationError{Cause: cause, Collaborator: collaborator, Err: err}
}
