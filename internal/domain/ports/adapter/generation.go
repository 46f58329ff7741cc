package adapter

import (
	"context"
	"errors"

	"asset-studio/internal/domain/model"
)

// GenerateRequest is a plain text-to-image request.
type GenerateRequest struct {
	Prompt string
	Width  int
	Height int
	Seed   string
}

// TransformRequest re-renders an existing result toward a target facing.
type TransformRequest struct {
	Source    model.Asset
	Direction model.Direction
	Width     int
	Height    int
}

// GenerationError is the normalized failure shape every adapter returns.
// Network errors, non-2xx responses and malformed payloads all surface as a
// GenerationError before reaching the scheduler.
type GenerationError struct {
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// NewGenerationError wraps cause with a human-readable message.
func NewGenerationError(message string, cause error) *GenerationError {
	return &GenerationError{Message: message, Cause: cause}
}

// AsGenerationError coerces any error into the normalized shape.
func AsGenerationError(err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	return &GenerationError{Message: "generation failed", Cause: err}
}

// GenerationClient is the port to the external generation backend. One call,
// one outcome: no retries, no queuing. The context aborts the outbound call.
type GenerationClient interface {
	// Provider identifies the backend for logging and metric labels.
	Provider() string

	Generate(ctx context.Context, req GenerateRequest) (*model.Asset, error)
	Transform(ctx context.Context, req TransformRequest) (*model.Asset, error)
}
