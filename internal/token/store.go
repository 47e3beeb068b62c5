package token

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Identity is the denormalized student reference captured at issuance so the
// check-in path needs no extra lookup after validation.
type Identity struct {
	StudentID int64  `json:"student_id"`
	Name      string `json:"student_name"`
	BranchID  int64  `json:"branch_id"`
}

// Record is the payload stored per live token.
type Record struct {
	Identity
	Slot int64  `json:"time_slot"`
	Kind string `json:"type"`
}

// Store keeps live token records with per-key TTL. Take must be atomic:
// of any number of concurrent callers for the same key, exactly one may
// receive the record.
type Store interface {
	Put(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Take(ctx context.Context, key string) (Record, bool, error)
}

// RedisStore backs the token store with redis. GETDEL gives the atomic
// delete-on-read the redemption contract requires.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a redis-backed token store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "qr_token:"}
}

// Put registers a record under key for ttl.
func (s *RedisStore) Put(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, raw, ttl).Err()
}

// Take removes and returns the record for key in one round trip.
func (s *RedisStore) Take(ctx context.Context, key string) (Record, bool, error) {
	raw, err := s.client.GetDel(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

type memoryEntry struct {
	rec      Record
	deadline time.Time
}

// MemoryStore is a mutex-guarded map for dev and tests. Expired entries are
// ignored on read; correctness never depends on a background sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Put registers a record under key for ttl.
func (s *MemoryStore) Put(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{rec: rec, deadline: s.now().Add(ttl)}
	return nil
}

// Take removes and returns the record for key while holding the lock.
func (s *MemoryStore) Take(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Record{}, false, nil
	}
	delete(s.entries, key)
	if s.now().After(e.deadline) {
		return Record{}, false, nil
	}
	return e.rec, true, nil
}
