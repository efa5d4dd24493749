package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/fulfillment/internal/idempotency"
)

type recordKey struct {
	key  string
	kind idempotency.Kind
}

// Store retains idempotency records in memory for replaying duplicate requests.
type Store struct {
	mu    sync.RWMutex
	items map[recordKey]idempotency.Record
}

// NewStore creates a new in-memory idempotency ledger.
func NewStore() *Store {
	return &Store{items: make(map[recordKey]idempotency.Record)}
}

// Find returns the live record for (key, kind) if present. Expired records are
// treated as absent.
func (s *Store) Find(_ context.Context, key string, kind idempotency.Kind) (*idempotency.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.items[recordKey{key: key, kind: kind}]
	if !ok || record.Expired(time.Now().UTC()) {
		return nil, nil
	}
	copy := record
	return &copy, nil
}

// Save stores the record unless a live record already exists for (key, kind).
func (s *Store) Save(_ context.Context, record idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey{key: record.Key, kind: record.Kind}
	if existing, ok := s.items[k]; ok && !existing.Expired(time.Now().UTC()) {
		return nil
	}
	s.items[k] = record
	return nil
}
