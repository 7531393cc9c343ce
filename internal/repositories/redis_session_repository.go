package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"simple-bot/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes
	sessionKeyPrefix = "session:"
	turnsKeySuffix   = ":turns"

	fieldCreatedAt = "created_at"
	fieldDocument  = "document"
)

// RedisSessionRepository implements SessionRepository using Redis.
// A session is a hash (created_at, document) plus a list of JSON turns;
// every write refreshes the TTL of both keys.
type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionRepository creates a Redis-backed session repository; ttl <= 0 disables expiry
func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func turnsKey(id string) string { return sessionKeyPrefix + id + turnsKeySuffix }

func (r *RedisSessionRepository) touch(ctx context.Context, pipe redis.Pipeliner, id string) {
	if r.ttl > 0 {
		pipe.Expire(ctx, sessionKey(id), r.ttl)
		pipe.Expire(ctx, turnsKey(id), r.ttl)
	}
}

func (r *RedisSessionRepository) requireSession(ctx context.Context, op, id string) error {
	n, err := r.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return NewSessionRepositoryError(op, id, err)
	}
	if n == 0 {
		return sessionNotFound(op, id)
	}
	return nil
}

func (r *RedisSessionRepository) Create(ctx context.Context, sessionID string, createdAt time.Time) error {
	pipe := r.client.TxPipeline()
	pipe.HSetNX(ctx, sessionKey(sessionID), fieldCreatedAt, createdAt.UTC().Format(time.RFC3339Nano))
	r.touch(ctx, pipe, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewSessionRepositoryError("create", sessionID, err)
	}
	return nil
}

func (r *RedisSessionRepository) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, NewSessionRepositoryError("exists", sessionID, err)
	}
	return n > 0, nil
}

func (r *RedisSessionRepository) CreatedAt(ctx context.Context, sessionID string) (time.Time, error) {
	val, err := r.client.HGet(ctx, sessionKey(sessionID), fieldCreatedAt).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, sessionNotFound("created_at", sessionID)
	}
	if err != nil {
		return time.Time{}, NewSessionRepositoryError("created_at", sessionID, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, NewSessionRepositoryError("created_at", sessionID, err)
	}
	return ts, nil
}

func (r *RedisSessionRepository) AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	if !turn.Role.IsValid() {
		return NewSessionRepositoryError("append_turn", sessionID, fmt.Errorf("invalid role %q", turn.Role))
	}
	if err := r.requireSession(ctx, "append_turn", sessionID); err != nil {
		return err
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return NewSessionRepositoryError("append_turn", sessionID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, turnsKey(sessionID), data)
	r.touch(ctx, pipe, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return NewSessionRepositoryError("append_turn", sessionID, err)
	}
	return nil
}

func (r *RedisSessionRepository) ListTurns(ctx context.Context, sessionID string) ([]models.Turn, error) {
	if err := r.requireSession(ctx, "list_turns", sessionID); err != nil {
		return nil, err
	}

	items, err := r.client.LRange(ctx, turnsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, NewSessionRepositoryError("list_turns", sessionID, err)
	}

	turns := make([]models.Turn, 0, len(items))
	for _, item := range items {
		var turn models.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, NewSessionRepositoryError("list_turns", sessionID, fmt.Errorf("corrupt turn: %w", err))
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (r *RedisSessionRepository) SetActiveDocument(ctx context.Context, sessionID string, doc *models.DocumentDTO) error {
	if err := r.requireSession(ctx, "set_active_document", sessionID); err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	if doc == nil {
		pipe.HDel(ctx, sessionKey(sessionID), fieldDocument)
	} else {
		data, err := json.Marshal(doc)
		if err != nil {
			return NewSessionRepositoryError("set_active_document", sessionID, err)
		}
		pipe.HSet(ctx, sessionKey(sessionID), fieldDocument, data)
	}
	r.touch(ctx, pipe, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewSessionRepositoryError("set_active_document", sessionID, err)
	}
	return nil
}

func (r *RedisSessionRepository) GetActiveDocument(ctx context.Context, sessionID string) (*models.DocumentDTO, error) {
	if err := r.requireSession(ctx, "get_active_document", sessionID); err != nil {
		return nil, err
	}

	val, err := r.client.HGet(ctx, sessionKey(sessionID), fieldDocument).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, NewSessionRepositoryError("get_active_document", sessionID, err)
	}

	var doc models.DocumentDTO
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return nil, NewSessionRepositoryError("get_active_document", sessionID, fmt.Errorf("corrupt document: %w", err))
	}
	return &doc, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID), turnsKey(sessionID)).Err(); err != nil {
		return NewSessionRepositoryError("delete", sessionID, err)
	}
	return nil
}

func (r *RedisSessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisSessionRepository) Close() error {
	return r.client.Close()
}
