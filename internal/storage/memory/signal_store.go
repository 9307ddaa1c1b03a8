package memory

import (
	"context"
	"sync"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/domain"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu      sync.RWMutex
	records []domain.SignalRecord
	keys    map[string]struct{} // (timestamp, signature) identities
	closed  bool
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		keys: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// Append adds a record. Returns ErrDuplicateKey if its identity exists.
func (s *SignalStore) Append(_ context.Context, r *domain.SignalRecord) error {
	if err := storage.ValidateRecord(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	key := storage.IdentityKey(r)
	if _, exists := s.keys[key]; exists {
		return storage.ErrDuplicateKey
	}

	rec := *r
	rec.Timestamp = rec.Timestamp.UTC()
	s.records = append(s.records, rec)
	s.keys[key] = struct{}{}
	return nil
}

// ReadAll returns a copy of all records in append order.
func (s *SignalStore) ReadAll(_ context.Context) ([]domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	out := make([]domain.SignalRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Close marks the store closed.
func (s *SignalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
