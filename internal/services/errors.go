package services

import (
	"errors"
	"fmt"
)

// Error kinds surfaced at the boundary of a user action.
// Match them with errors.Is; the concrete value is always a *PipelineError.
var (
	ErrLoad                   = errors.New("document could not be loaded")
	ErrConfig                 = errors.New("configuration error")
	ErrEmbeddingUnavailable   = errors.New("embedding provider unavailable")
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	ErrGenerationFailure      = errors.New("generation failed")
	ErrNoActivePipeline       = errors.New("no document has been processed yet")
	ErrSessionNotFound        = errors.New("session not found")
)

// PipelineError records which operation failed, the kind of failure, and the cause
type PipelineError struct {
	Kind    error
	Op      string
	Err     error
	Message string
}

func (e *PipelineError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewPipelineError creates a new pipeline error of the given kind
func NewPipelineError(kind error, op string, err error, message string) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Op:      op,
		Err:     err,
		Message: message,
	}
}

// Common error constructors
func loadError(op string, err error) error {
	return NewPipelineError(ErrLoad, op, err, "")
}

func configError(op string, err error) error {
	return NewPipelineError(ErrConfig, op, err, "")
}

func embeddingError(op string, err error) error {
	return NewPipelineError(ErrEmbeddingUnavailable, op, err, "")
}

func vectorStoreError(op string, err error) error {
	return NewPipelineError(ErrVectorStoreUnavailable, op, err, "")
}

func generationError(op string, err error) error {
	return NewPipelineError(ErrGenerationFailure, op, err, "")
}

// withKind wraps err in a PipelineError of kind unless it already carries that kind
func withKind(kind error, op string, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return NewPipelineError(kind, op, err, "")
}

// NoActivePipelineError is returned when a question arrives before any document was ingested
func NoActivePipelineError() error {
	return NewPipelineError(ErrNoActivePipeline, "answer", nil, "Please upload a document first.")
}

// SessionNotFoundError is returned when a session ID is unknown
func SessionNotFoundError(id string) error {
	return NewPipelineError(ErrSessionNotFound, "get_session", nil, "session not found: "+id)
}

// ErrorKind returns a short machine-readable name for err's kind, or "internal"
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrLoad):
		return "load_error"
	case errors.Is(err, ErrConfig):
		return "config_error"
	case errors.Is(err, ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, ErrVectorStoreUnavailable):
		return "vector_store_unavailable"
	case errors.Is(err, ErrGenerationFailure):
		return "generation_failure"
	case errors.Is(err, ErrNoActivePipeline):
		return "no_active_pipeline"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	default:
		return "internal"
	}
}
