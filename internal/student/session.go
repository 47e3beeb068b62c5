package student

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session is the cached verification state behind an X-Student-Token.
type Session struct {
	StudentID int64  `json:"student_id"`
	Name      string `json:"student_name"`
	BranchID  int64  `json:"branch_id"`
}

// SessionStore keeps verification sessions with a TTL.
type SessionStore interface {
	Put(ctx context.Context, tok string, sess Session, ttl time.Duration) error
	Get(ctx context.Context, tok string) (Session, bool, error)
	Delete(ctx context.Context, tok string) error
}

// RedisSessionStore backs sessions with redis.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore creates a redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "student_session:"}
}

// Put stores sess under tok for ttl.
func (s *RedisSessionStore) Put(ctx context.Context, tok string, sess Session, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+tok, raw, ttl).Err()
}

// Get returns the session for tok, if still live.
func (s *RedisSessionStore) Get(ctx context.Context, tok string) (Session, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+tok).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// Delete forgets the session for tok.
func (s *RedisSessionStore) Delete(ctx context.Context, tok string) error {
	return s.client.Del(ctx, s.prefix+tok).Err()
}

type sessionEntry struct {
	sess     Session
	deadline time.Time
}

// MemorySessionStore is a mutex-guarded map for dev and tests.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{entries: make(map[string]sessionEntry)}
}

// Put stores sess under tok for ttl.
func (s *MemorySessionStore) Put(_ context.Context, tok string, sess Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tok] = sessionEntry{sess: sess, deadline: time.Now().Add(ttl)}
	return nil
}

// Get returns the session for tok, if still live.
func (s *MemorySessionStore) Get(_ context.Context, tok string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tok]
	if !ok || time.Now().After(e.deadline) {
		delete(s.entries, tok)
		return Session{}, false, nil
	}
	return e.sess, true, nil
}

// Delete forgets the session for tok.
func (s *MemorySessionStore) Delete(_ context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, tok)
	return nil
}
