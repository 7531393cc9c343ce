package services

import (
	"context"
	"testing"
	"time"

	"simple-bot/internal/logger"
	"simple-bot/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_CreateAndGet(t *testing.T) {
	env := newTestEnv(t, 50, 10)
	m := env.manager(false)
	ctx := context.Background()

	a, err := m.Create(ctx)
	require.NoError(t, err)
	b, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.Count())

	got, err := m.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = m.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, "session_not_found", ErrorKind(err))
}

func TestSessionManager_SessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t, 100, 10)
	m := env.manager(false)
	ctx := context.Background()

	a, err := m.Create(ctx)
	require.NoError(t, err)
	b, err := m.Create(ctx)
	require.NoError(t, err)

	_, err = a.OnUpload(ctx, "a.pdf", []byte("volcanoes erupt lava"))
	require.NoError(t, err)

	_, err = b.OnQuestion(ctx, "volcanoes?")
	assert.ErrorIs(t, err, ErrNoActivePipeline, "a document uploaded to one session is invisible to another")

	_, err = b.OnUpload(ctx, "b.pdf", []byte("glaciers move slowly"))
	require.NoError(t, err)
	answer, err := b.OnQuestion(ctx, "volcanoes?")
	require.NoError(t, err)
	assert.NotContains(t, answer, "lava")

	turnsA, err := a.Transcript(ctx)
	require.NoError(t, err)
	assert.Empty(t, turnsA)
}

func TestSessionManager_RestoresFromRepository(t *testing.T) {
	env := newTestEnv(t, 50, 10)
	ctx := context.Background()

	first := env.manager(false)
	s, err := first.Create(ctx)
	require.NoError(t, err)
	handle, err := s.OnUpload(ctx, "a.pdf", []byte("persistent knowledge"))
	require.NoError(t, err)
	_, err = s.OnQuestion(ctx, "what persists?")
	require.NoError(t, err)

	// A second manager over the same stores behaves like a restarted process.
	restarted := env.manager(false)
	restored, err := restarted.Get(ctx, s.ID())
	require.NoError(t, err)
	require.NotNil(t, restored.Handle())
	assert.Equal(t, handle.Collection, restored.Handle().Collection)
	assert.Equal(t, handle.ChunkCount, restored.Handle().ChunkCount)

	turns, err := restored.Transcript(ctx)
	require.NoError(t, err)
	assert.Len(t, turns, 2)

	answer, err := restored.OnQuestion(ctx, "knowledge?")
	require.NoError(t, err)
	assert.Contains(t, answer, "persistent knowledge")
}

func TestSessionManager_RestoreWithMissingCollection(t *testing.T) {
	env := newTestEnv(t, 50, 10)
	ctx := context.Background()

	s, err := env.manager(false).Create(ctx)
	require.NoError(t, err)
	handle, err := s.OnUpload(ctx, "a.pdf", []byte("soon gone"))
	require.NoError(t, err)
	require.NoError(t, env.store.DeleteCollection(ctx, handle.Collection))

	restored, err := env.manager(false).Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Nil(t, restored.Handle())

	_, err = restored.OnQuestion(ctx, "anything?")
	assert.ErrorIs(t, err, ErrNoActivePipeline)
}

func TestSessionManager_Close(t *testing.T) {
	env := newTestEnv(t, 50, 10)
	m := env.manager(false)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	handle, err := s.OnUpload(ctx, "a.pdf", []byte("kept collection"))
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx, s.ID()))
	assert.Equal(t, 0, m.Count())
	assert.True(t, env.store.exists(handle.Collection), "collections are kept unless drop_collection_on_close is set")

	_, err = m.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, m.Close(ctx, s.ID()), ErrSessionNotFound)
}

func TestSessionManager_SweepEvictsExpiredSessions(t *testing.T) {
	env := newTestEnv(t, 50, 10)
	m := env.manager(false)
	ctx := context.Background()

	var collections []string
	var sessions []*SessionController
	for i := 0; i < 20; i++ {
		s, err := m.Create(ctx)
		require.NoError(t, err)
		handle, err := s.OnUpload(ctx, "doc.pdf", []byte("short lived content"))
		require.NoError(t, err)
		sessions = append(sessions, s)
		collections = append(collections, handle.Collection)
	}
	require.Equal(t, 20, m.Count())

	// The store forgets every session but the last, as a TTL would.
	for _, s := range sessions[:19] {
		require.NoError(t, env.repo.Delete(ctx, s.ID()))
	}

	evicted, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 19, evicted)
	assert.Equal(t, 1, m.Count())

	for i, c := range collections {
		assert.Equal(t, i == 19, env.store.exists(c), c)
	}

	_, err = m.Get(ctx, sessions[0].ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	live, err := m.Get(ctx, sessions[19].ID())
	require.NoError(t, err)
	assert.Same(t, sessions[19], live)
}

func TestSessionManager_ExpiredSessionEvictedOnUse(t *testing.T) {
	env := newTestEnv(t, 50, 10)
	m := env.manager(false)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	handle, err := s.OnUpload(ctx, "doc.pdf", []byte("forgotten content"))
	require.NoError(t, err)
	require.NoError(t, env.repo.Delete(ctx, s.ID()))

	cached, err := m.Get(ctx, s.ID())
	require.NoError(t, err)
	_, err = cached.OnQuestion(ctx, "still there?")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, 0, m.Count())
	assert.Nil(t, s.Handle())
	assert.False(t, env.store.exists(handle.Collection), "collection of an expired session is dropped")

	_, err = m.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_MemoryStoreTTL(t *testing.T) {
	env := newTestEnv(t, 50, 10)
	ctx := context.Background()
	m := NewSessionManager(env.ingestor, repositories.NewMemorySessionRepository(20*time.Millisecond), false, logger.Nop())

	s, err := m.Create(ctx)
	require.NoError(t, err)
	handle, err := s.OnUpload(ctx, "doc.pdf", []byte("idle content"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	evicted, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 0, m.Count())
	assert.False(t, env.store.exists(handle.Collection))
}

func TestSessionManager_CreateSweepsWhenDue(t *testing.T) {
	env := newTestEnv(t, 50, 10)
	m := env.manager(false)
	m.sweepEvery = time.Nanosecond
	ctx := context.Background()

	stale, err := m.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, env.repo.Delete(ctx, stale.ID()))

	time.Sleep(time.Millisecond)
	_, err = m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count(), "the stale session was evicted by the next Create")
}

// deleteHookRepo runs beforeDelete while the repository entry still exists
type deleteHookRepo struct {
	*repositories.MemorySessionRepository
	beforeDelete func()
}

func (r *deleteHookRepo) Delete(ctx context.Context, sessionID string) error {
	if r.beforeDelete != nil {
		r.beforeDelete()
	}
	return r.MemorySessionRepository.Delete(ctx, sessionID)
}

func TestSessionManager_CloseRacingGet(t *testing.T) {
	env := newTestEnv(t, 50, 10)
	ctx := context.Background()
	repo := &deleteHookRepo{MemorySessionRepository: repositories.NewMemorySessionRepository(0)}
	m := NewSessionManager(env.ingestor, repo, false, logger.Nop())

	s, err := m.Create(ctx)
	require.NoError(t, err)

	var during *SessionController
	repo.beforeDelete = func() {
		during, err = m.Get(ctx, s.ID())
	}

	require.NoError(t, m.Close(ctx, s.ID()))
	require.NoError(t, err)
	assert.Same(t, s, during, "a Get during Close sees the closing controller, not a restored copy")
	assert.Equal(t, 0, m.Count())

	_, err = m.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
