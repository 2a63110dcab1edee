package autonomy

import (
	"context"
	"errors"
	"sync"
)

// ErrFingerprintNotFound is returned by stores for unknown fingerprints.
var ErrFingerprintNotFound = errors.New("autonomy: fingerprint not found")

// Store persists fingerprint records. Implementations do not enforce the
// mutation contract themselves; the Tracker is the only caller that writes.
type Store interface {
	Get(ctx context.Context, id string) (*Fingerprint, error)
	Save(ctx context.Context, fp *Fingerprint) error
	List(ctx context.Context) ([]*Fingerprint, error)
}

// MemoryStore is an in-process store for tests and single-run tooling.
type MemoryStore struct {
	mu  sync.RWMutex
	fps map[string]*Fingerprint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fps: make(map[string]*Fingerprint)}
}

// Get returns a copy of the stored fingerprint.
func (s *MemoryStore) Get(_ context.Context, id string) (*Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.fps[id]
	if !ok {
		return nil, ErrFingerprintNotFound
	}
	cp := *fp
	cp.History = append([]OutcomeEvent(nil), fp.History...)
	return &cp, nil
}

// Save stores a copy of fp.
func (s *MemoryStore) Save(_ context.Context, fp *Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fp
	cp.History = append([]OutcomeEvent(nil), fp.History...)
	s.fps[fp.ID] = &cp
	return nil
}

// List returns all stored fingerprints.
func (s *MemoryStore) List(_ context.Context) ([]*Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Fingerprint, 0, len(s.fps))
	for _, fp := range s.fps {
		cp := *fp
		out = append(out, &cp)
	}
	return out, nil
}
