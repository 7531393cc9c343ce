package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"simple-bot/internal/models"
)

type memorySession struct {
	createdAt   time.Time
	lastTouched time.Time
	turns       []models.Turn
	document    *models.DocumentDTO
}

// MemorySessionRepository keeps sessions in process memory. Like the Redis
// repository, a session that has not been written for ttl is gone; expired
// entries are dropped lazily on the next lookup.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessionRepository creates an empty in-memory session repository.
// A ttl <= 0 keeps sessions until they are deleted.
func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// lookup returns a live session, removing it if it has expired. Caller holds r.mu.
func (r *MemorySessionRepository) lookup(sessionID string) (*memorySession, bool) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if r.ttl > 0 && r.now().Sub(s.lastTouched) >= r.ttl {
		delete(r.sessions, sessionID)
		return nil, false
	}
	return s, true
}

func (r *MemorySessionRepository) Create(ctx context.Context, sessionID string, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(sessionID)
	if !ok {
		s = &memorySession{createdAt: createdAt}
		r.sessions[sessionID] = s
	}
	s.lastTouched = r.now()
	return nil
}

func (r *MemorySessionRepository) Exists(ctx context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.lookup(sessionID)
	return ok, nil
}

func (r *MemorySessionRepository) CreatedAt(ctx context.Context, sessionID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(sessionID)
	if !ok {
		return time.Time{}, sessionNotFound("created_at", sessionID)
	}
	return s.createdAt, nil
}

func (r *MemorySessionRepository) AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	if !turn.Role.IsValid() {
		return NewSessionRepositoryError("append_turn", sessionID, fmt.Errorf("invalid role %q", turn.Role))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(sessionID)
	if !ok {
		return sessionNotFound("append_turn", sessionID)
	}
	s.turns = append(s.turns, turn)
	s.lastTouched = r.now()
	return nil
}

func (r *MemorySessionRepository) ListTurns(ctx context.Context, sessionID string) ([]models.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(sessionID)
	if !ok {
		return nil, sessionNotFound("list_turns", sessionID)
	}
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

func (r *MemorySessionRepository) SetActiveDocument(ctx context.Context, sessionID string, doc *models.DocumentDTO) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(sessionID)
	if !ok {
		return sessionNotFound("set_active_document", sessionID)
	}
	s.document = copyDocument(doc)
	s.lastTouched = r.now()
	return nil
}

func (r *MemorySessionRepository) GetActiveDocument(ctx context.Context, sessionID string) (*models.DocumentDTO, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(sessionID)
	if !ok {
		return nil, sessionNotFound("get_active_document", sessionID)
	}
	return copyDocument(s.document), nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
	return nil
}

func (r *MemorySessionRepository) Ping(ctx context.Context) error { return nil }

func (r *MemorySessionRepository) Close() error { return nil }

func copyDocument(doc *models.DocumentDTO) *models.DocumentDTO {
	if doc == nil {
		return nil
	}
	cp := *doc
	if doc.Keywords != nil {
		cp.Keywords = append([]string(nil), doc.Keywords...)
	}
	return &cp
}
