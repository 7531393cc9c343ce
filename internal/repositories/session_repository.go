package repositories

import (
	"context"
	"errors"
	"time"

	"simple-bot/internal/models"
)

// SessionRepository persists the per-session state that must outlive a
// single request: the transcript and the document bound to the session.
type SessionRepository interface {
	Create(ctx context.Context, sessionID string, createdAt time.Time) error
	Exists(ctx context.Context, sessionID string) (bool, error)
	CreatedAt(ctx context.Context, sessionID string) (time.Time, error)

	// AppendTurn adds a turn at the end of the transcript
	AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error
	// ListTurns returns the transcript in insertion order
	ListTurns(ctx context.Context, sessionID string) ([]models.Turn, error)

	// SetActiveDocument records the document whose collection answers questions; nil clears it
	SetActiveDocument(ctx context.Context, sessionID string, doc *models.DocumentDTO) error
	// GetActiveDocument returns nil without error when no document is bound
	GetActiveDocument(ctx context.Context, sessionID string) (*models.DocumentDTO, error)

	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
	Close() error
}

// ErrSessionNotFound is returned for operations on an unknown session ID
var ErrSessionNotFound = errors.New("session not found")

// SessionRepositoryError represents errors from the session repository
type SessionRepositoryError struct {
	Operation string
	SessionID string
	Err       error
}

func (e *SessionRepositoryError) Error() string {
	if e.Err != nil {
		return e.Operation + " " + e.SessionID + ": " + e.Err.Error()
	}
	return e.Operation + " " + e.SessionID + ": unknown error"
}

func (e *SessionRepositoryError) Unwrap() error {
	return e.Err
}

// NewSessionRepositoryError creates a new session repository error
func NewSessionRepositoryError(operation, sessionID string, err error) *SessionRepositoryError {
	return &SessionRepositoryError{
		Operation: operation,
		SessionID: sessionID,
		Err:       err,
	}
}

func sessionNotFound(op, sessionID string) error {
	return NewSessionRepositoryError(op, sessionID, ErrSessionNotFound)
}
