package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"simple-bot/internal/models"
	"simple-bot/internal/repositories"

	"go.uber.org/zap"
)

// SessionController owns one session's pipeline handle and transcript.
// Every action holds the session mutex until it completes, so a question
// never observes a half-replaced handle.
type SessionController struct {
	mu sync.Mutex

	id          string
	createdAt   time.Time
	handle      *PipelineHandle
	ingestor    DocumentIngestor
	repo        repositories.SessionRepository
	dropOnClose bool
	logger      *zap.SugaredLogger
	now         func() time.Time

	// expired is set once the repository no longer knows the session
	expired   bool
	onExpired func(*SessionController)
}

func newSessionController(id string, createdAt time.Time, handle *PipelineHandle, ingestor DocumentIngestor, repo repositories.SessionRepository, dropOnClose bool, logger *zap.SugaredLogger) *SessionController {
	return &SessionController{
		id:          id,
		createdAt:   createdAt,
		handle:      handle,
		ingestor:    ingestor,
		repo:        repo,
		dropOnClose: dropOnClose,
		logger:      logger,
		now:         time.Now,
	}
}

// ID returns the session ID
func (s *SessionController) ID() string { return s.id }

// Handle returns the active pipeline handle, or nil before the first successful upload
func (s *SessionController) Handle() *PipelineHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// OnUpload ingests a new document. On success the new handle replaces the
// old one and the old collection is dropped; on failure nothing changes.
func (s *SessionController) OnUpload(ctx context.Context, filename string, data []byte) (*PipelineHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Processing %s (%d bytes)", filename, len(data))

	handle, err := s.ingestor.Ingest(ctx, s.id, filename, data)
	if err != nil {
		s.logger.Warnf("Upload of %s failed: %v", filename, err)
		return nil, err
	}

	if err := s.repo.SetActiveDocument(ctx, s.id, handle.DTO()); err != nil {
		if dErr := s.ingestor.Discard(context.WithoutCancel(ctx), handle.Collection); dErr != nil {
			s.logger.Warnf("Failed to remove collection %s: %v", handle.Collection, dErr)
		}
		return nil, s.repoError(ctx, "upload", err)
	}

	previous := s.handle
	s.handle = handle

	if previous != nil && previous.Collection != handle.Collection {
		if err := s.ingestor.Discard(context.WithoutCancel(ctx), previous.Collection); err != nil {
			s.logger.Warnf("Failed to drop replaced collection %s: %v", previous.Collection, err)
		}
	}

	return handle, nil
}

// OnQuestion records the question, answers it with the active pipeline and
// records the answer. Failed answers leave only the user turn behind.
func (s *SessionController) OnQuestion(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &models.ValidationError{Field: "message", Message: "message is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.AppendTurn(ctx, s.id, models.Turn{Role: models.RoleUser, Content: text, CreatedAt: s.now().UTC()}); err != nil {
		return "", s.repoError(ctx, "question", err)
	}

	var pipeline *AnswerPipeline
	if s.handle != nil {
		pipeline = s.handle.Pipeline
	}

	answer, err := pipeline.Answer(ctx, text)
	if err != nil {
		s.logger.Warnf("Question not answered: %v", err)
		return "", err
	}

	if err := s.repo.AppendTurn(ctx, s.id, models.Turn{Role: models.RoleAssistant, Content: answer, CreatedAt: s.now().UTC()}); err != nil {
		return "", s.repoError(ctx, "question", err)
	}
	return answer, nil
}

// Transcript returns the turns recorded so far, oldest first
func (s *SessionController) Transcript(ctx context.Context) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, err := s.repo.ListTurns(ctx, s.id)
	if err != nil {
		return nil, s.repoError(ctx, "transcript", err)
	}
	return turns, nil
}

// Info summarises the session for the API
func (s *SessionController) Info(ctx context.Context) (*models.SessionResponse, error) {
	turns, err := s.Transcript(ctx)
	if err != nil {
		return nil, err
	}

	return &models.SessionResponse{
		SessionID: s.id,
		Document:  s.Handle().DTO(),
		TurnCount: len(turns),
		CreatedAt: s.createdAt.UTC().Format(time.RFC3339),
	}, nil
}

// Close tears the session down: the transcript is destroyed and, when
// configured, the active collection is dropped.
func (s *SessionController) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropOnClose && s.handle != nil {
		if err := s.ingestor.Discard(ctx, s.handle.Collection); err != nil {
			s.logger.Warnf("Failed to drop collection %s: %v", s.handle.Collection, err)
		}
	}
	s.handle = nil

	if err := s.repo.Delete(ctx, s.id); err != nil {
		return s.repoError(ctx, "close", err)
	}
	return nil
}

// evictIfGone expires the session when the repository has dropped it, for
// example after its TTL ran out. It reports whether the session expired.
// A session busy with another action is skipped; that action sees the
// missing entry itself.
func (s *SessionController) evictIfGone(ctx context.Context) (bool, error) {
	if !s.mu.TryLock() {
		return false, nil
	}
	defer s.mu.Unlock()

	if s.expired {
		return false, nil
	}
	exists, err := s.repo.Exists(ctx, s.id)
	if err != nil {
		return false, err
	}
	if !exists {
		s.expire(ctx)
	}
	return !exists, nil
}

// expire releases the collection of a session the repository no longer
// holds; nothing can reach it again. Caller holds s.mu.
func (s *SessionController) expire(ctx context.Context) {
	if s.expired {
		return
	}
	s.expired = true

	if s.handle != nil {
		if err := s.ingestor.Discard(context.WithoutCancel(ctx), s.handle.Collection); err != nil {
			s.logger.Warnf("Failed to drop collection %s of expired session: %v", s.handle.Collection, err)
		}
		s.handle = nil
	}
	s.logger.Infof("Session %s expired", s.id)

	if s.onExpired != nil {
		s.onExpired(s)
	}
}

func (s *SessionController) repoError(ctx context.Context, op string, err error) error {
	if errors.Is(err, repositories.ErrSessionNotFound) {
		s.expire(ctx)
		return SessionNotFoundError(s.id)
	}
	return fmt.Errorf("session %s %s: %w", s.id, op, err)
}
