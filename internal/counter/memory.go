package counter

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const shardCount = 32

type entry struct {
	value     int64
	expiresAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// MemoryStore is a single-process Store. Keys are spread over mutex-guarded
// shards so unrelated keys do not contend.
type MemoryStore struct {
	clock  clockwork.Clock
	shards [shardCount]*shard
}

// NewMemoryStore creates an empty in-memory store driven by clock.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	s := &MemoryStore{clock: clock}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int64, time.Time, error) {
	sh := s.shardFor(key)
	now := s.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		return 0, time.Time{}, nil
	}
	return e.value, e.expiresAt, nil
}

func (s *MemoryStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration, limit int64) (int64, time.Time, error) {
	sh := s.shardFor(key)
	now := s.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		e = entry{value: 1, expiresAt: now.Add(ttl)}
	} else if limit <= 0 || e.value < limit {
		e.value++
	}
	sh.entries[key] = e

	return e.value, e.expiresAt, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	sh := s.shardFor(key)
	now := s.clock.Now()

	sh.mu.Lock()
	sh.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	sh := s.shardFor(key)

	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
	return nil
}

// DeleteExpired drops every expired entry and returns how many were removed.
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	var removed int64

	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !now.Before(e.expiresAt) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}
