package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"simple-bot/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionManager creates, finds and tears down sessions. Controllers are
// cached in memory; a session known only to the repository (for example
// after a restart) is re-bound to its stored collection on first use.
// A cached controller whose repository entry has expired is evicted the next
// time it touches the repository or when Sweep visits it.
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[string]*SessionController
	lastSweep time.Time

	ingestor    DocumentIngestor
	repo        repositories.SessionRepository
	dropOnClose bool
	sweepEvery  time.Duration
	logger      *zap.SugaredLogger
}

// defaultSweepInterval bounds how often Create walks the cache for expired sessions
const defaultSweepInterval = time.Minute

// NewSessionManager creates a new session manager
func NewSessionManager(ingestor DocumentIngestor, repo repositories.SessionRepository, dropOnClose bool, logger *zap.SugaredLogger) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*SessionController),
		ingestor:    ingestor,
		repo:        repo,
		dropOnClose: dropOnClose,
		sweepEvery:  defaultSweepInterval,
		logger:      logger,
	}
}

func (m *SessionManager) newController(id string, createdAt time.Time, handle *PipelineHandle) *SessionController {
	s := newSessionController(id, createdAt, handle, m.ingestor, m.repo, m.dropOnClose, m.logger.With("session", id))
	s.onExpired = m.forget
	return s
}

// forget drops s from the cache unless the ID has been re-bound to another controller
func (m *SessionManager) forget(s *SessionController) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}
}

// Create starts a new, empty session
func (m *SessionManager) Create(ctx context.Context) (*SessionController, error) {
	m.sweepIfDue(ctx)

	id := uuid.New().String()
	createdAt := time.Now().UTC()

	if err := m.repo.Create(ctx, id, createdAt); err != nil {
		return nil, err
	}

	s := m.newController(id, createdAt, nil)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Infof("Created session %s", id)
	return s, nil
}

// Get returns the controller for id, restoring it from the repository if needed
func (m *SessionManager) Get(ctx context.Context, id string) (*SessionController, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have restored it while we waited for the lock.
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	exists, err := m.repo.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, SessionNotFoundError(id)
	}

	createdAt, err := m.repo.CreatedAt(ctx, id)
	if err != nil {
		return nil, err
	}

	doc, err := m.repo.GetActiveDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	handle, err := m.ingestor.Restore(ctx, doc)
	if err != nil {
		m.logger.Warnf("Session %s: stored collection could not be re-bound: %v", id, err)
		handle = nil
	}

	s = m.newController(id, createdAt, handle)
	m.sessions[id] = s

	m.logger.Infof("Restored session %s (document bound: %t)", id, handle != nil)
	return s, nil
}

// Close tears down the session and forgets it. The repository entry goes
// first so a concurrent Get cannot restore the session being closed.
func (m *SessionManager) Close(ctx context.Context, id string) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.Close(ctx); err != nil {
		return err
	}
	m.forget(s)

	m.logger.Infof("Closed session %s", id)
	return nil
}

// Sweep evicts every cached session whose repository entry has expired and
// returns how many were evicted.
func (m *SessionManager) Sweep(ctx context.Context) (int, error) {
	m.mu.RLock()
	cached := make([]*SessionController, 0, len(m.sessions))
	for _, s := range m.sessions {
		cached = append(cached, s)
	}
	m.mu.RUnlock()

	var (
		evicted int
		errs    []error
	)
	for _, s := range cached {
		gone, err := s.evictIfGone(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if gone {
			evicted++
		}
	}

	if evicted > 0 {
		m.logger.Infof("Evicted %d expired sessions", evicted)
	}
	return evicted, errors.Join(errs...)
}

func (m *SessionManager) sweepIfDue(ctx context.Context) {
	if m.sweepEvery <= 0 {
		return
	}

	now := time.Now()
	m.mu.Lock()
	due := now.Sub(m.lastSweep) >= m.sweepEvery
	if due {
		m.lastSweep = now
	}
	m.mu.Unlock()

	if due {
		if _, err := m.Sweep(ctx); err != nil {
			m.logger.Warnf("Session sweep incomplete: %v", err)
		}
	}
}

// Count returns the number of sessions held in memory
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
