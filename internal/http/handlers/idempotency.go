package handlers

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"
)

const idempotencyTTL = 24 * time.Hour

type idempotencyEntry struct {
	PayloadHash uint64
	JobID       string
	Cost        int64
	CreatedAt   time.Time
}

// idempotencyStore remembers Idempotency-Key headers per owner so a retried
// POST does not debit twice. It is per process.
type idempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	now     func() time.Time
}

func newIdempotencyStore() *idempotencyStore {
	return &idempotencyStore{
		entries: make(map[string]idempotencyEntry),
		now:     time.Now,
	}
}

func (s *idempotencyStore) Get(ownerID, key string) (idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ownerID+"\x00"+key]
	if ok && s.now().Sub(entry.CreatedAt) > idempotencyTTL {
		delete(s.entries, ownerID+"\x00"+key)
		return idempotencyEntry{}, false
	}
	return entry, ok
}

func (s *idempotencyStore) Put(ownerID, key string, payloadHash uint64, jobID string, cost int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if now.Sub(e.CreatedAt) > idempotencyTTL {
			delete(s.entries, k)
		}
	}
	s.entries[ownerID+"\x00"+key] = idempotencyEntry{
		PayloadHash: payloadHash,
		JobID:       jobID,
		Cost:        cost,
		CreatedAt:   now,
	}
}

func hashPayload(value any) uint64 {
	payload, _ := json.Marshal(value)
	hasher := fnv.New64a()
	_, _ = hasher.Write(payload)
	return hasher.Sum64()
}
