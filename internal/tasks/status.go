package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"
)

type memoryEntry struct {
	state     TaskState
	expiresAt time.Time
}

// MemoryStatusStore keeps task states in process memory.
type MemoryStatusStore struct {
	entries *xsync.Map[string, memoryEntry]
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStatusStore creates an in-memory status store. States expire ttl
// after their last update (0 = never).
func NewMemoryStatusStore(ttl time.Duration) *MemoryStatusStore {
	return &MemoryStatusStore{
		entries: xsync.NewMap[string, memoryEntry](),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStatusStore) Put(_ context.Context, state TaskState) error {
	e := memoryEntry{state: state}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.entries.Store(state.ID, e)
	return nil
}

func (s *MemoryStatusStore) Get(_ context.Context, id string) (TaskState, error) {
	e, ok := s.entries.Load(id)
	if !ok {
		return TaskState{}, ErrTaskNotFound
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		s.entries.Delete(id)
		return TaskState{}, ErrTaskNotFound
	}
	return e.state, nil
}

func (s *MemoryStatusStore) Delete(_ context.Context, id string) error {
	s.entries.Delete(id)
	return nil
}

const taskKeyPrefix = "weather:task:"

// RedisStatusStore keeps task states as JSON values in Redis so several
// API instances can answer status queries for the same tasks.
type RedisStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatusStore creates a Redis-backed status store. The client
// lifecycle is managed by the caller.
func NewRedisStatusStore(client *redis.Client, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{client: client, ttl: ttl}
}

func (s *RedisStatusStore) Put(ctx context.Context, state TaskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", state.ID, err)
	}
	return s.client.Set(ctx, taskKeyPrefix+state.ID, data, s.ttl).Err()
}

func (s *RedisStatusStore) Get(ctx context.Context, id string) (TaskState, error) {
	data, err := s.client.Get(ctx, taskKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return TaskState{}, ErrTaskNotFound
	}
	if err != nil {
		return TaskState{}, fmt.Errorf("load task %s: %w", id, err)
	}
	var state TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return TaskState{}, fmt.Errorf("decode task %s: %w", id, err)
	}
	return state, nil
}

func (s *RedisStatusStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, taskKeyPrefix+id).Err()
}
