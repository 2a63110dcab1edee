// Package approval manages approval records: the proof that an operator
// authorized a specific plan, bound to that plan's content hash.
//
// A record is created exactly once per execution, before any
// approval-scoped step runs, and is never mutated afterwards.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAlreadyApproved is returned when a second approval is attempted for
	// the same execution.
	ErrAlreadyApproved = errors.New("approval: record already exists for execution")
	// ErrNotFound is returned when no approval record exists.
	ErrNotFound = errors.New("approval: record not found")
	// ErrPlanHashMismatch is returned when an approval does not bind the
	// plan currently being executed.
	ErrPlanHashMismatch = errors.New("approval: plan hash does not match approved plan")
)

// Record binds an operator's approval to one plan's content hash. The plan
// document itself is embedded so it can be exported later even though plans
// for non-approved runs are never persisted.
type Record struct {
	ExecutionID          string                 `json:"execution_id"`
	PlanHash             string                 `json:"plan_hash"`
	ApprovedBy           string                 `json:"approved_by"`
	ApprovedAt           time.Time              `json:"approved_at"`
	Token                string                 `json:"token,omitempty"`
	PrestateSnapshotRefs []string               `json:"prestate_snapshot_refs,omitempty"`
	Plan                 map[string]interface{} `json:"plan,omitempty"`
	PrestateSnapshots    map[string]map[string]interface{} `json:"prestate_snapshots,omitempty"`
}

// Store persists approval records, append-only.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, executionID string) (*Record, error)
}

// Matches reports whether a record approves the given plan hash.
func (r *Record) Matches(planHash string) bool {
	return r.PlanHash == planHash
}

// MemoryStore is an in-process store for tests and single-run tooling.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Create stores a record, rejecting duplicates for the same execution.
func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	if rec.ExecutionID == "" || rec.PlanHash == "" {
		return fmt.Errorf("approval: record requires execution_id and plan_hash")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ExecutionID]; ok {
		return ErrAlreadyApproved
	}
	cp := *rec
	s.records[rec.ExecutionID] = &cp
	return nil
}

// Get retrieves the record for an execution.
func (s *MemoryStore) Get(_ context.Context, executionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}
