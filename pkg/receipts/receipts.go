// Package receipts maintains the append-only execution log: one entry per
// execution, written regardless of outcome. Receipts are never updated or
// deleted; a failed run is as much evidence as a successful one.
package receipts

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Status summarizes how an execution ended.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusDenied         Status = "denied"
	StatusThrottled      Status = "throttled"
	StatusGuardViolation Status = "guard_violation"
	StatusFailed         Status = "failed"
	StatusRolledBack     Status = "rolled_back"
)

// Receipt is the per-execution log entry.
type Receipt struct {
	ExecutionID string    `json:"execution_id"`
	PlanHash    string    `json:"plan_hash"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Status      Status    `json:"status"`
	PolicyCode  string    `json:"policy_code"`
}

var (
	// ErrReceiptNotFound is returned for unknown execution IDs.
	ErrReceiptNotFound = errors.New("receipts: not found")
	// ErrDuplicateReceipt is returned on a second append for the same
	// execution; the log is strictly one entry per execution.
	ErrDuplicateReceipt = errors.New("receipts: execution already has a receipt")
)

// Log is the append-only receipt store.
type Log interface {
	Append(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, executionID string) (*Receipt, error)
	List(ctx context.Context, limit int) ([]*Receipt, error)
}

// MemoryLog is an in-process Log for tests and single-run tooling.
type MemoryLog struct {
	mu       sync.RWMutex
	byID     map[string]*Receipt
	ordered  []*Receipt
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{byID: make(map[string]*Receipt)}
}

// Append adds a receipt, rejecting duplicates.
func (l *MemoryLog) Append(_ context.Context, r *Receipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[r.ExecutionID]; ok {
		return ErrDuplicateReceipt
	}
	cp := *r
	l.byID[r.ExecutionID] = &cp
	l.ordered = append(l.ordered, &cp)
	return nil
}

// Get returns the receipt for an execution.
func (l *MemoryLog) Get(_ context.Context, executionID string) (*Receipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.byID[executionID]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	cp := *r
	return &cp, nil
}

// List returns the most recent receipts, newest first.
func (l *MemoryLog) List(_ context.Context, limit int) ([]*Receipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.ordered)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Receipt, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *l.ordered[i]
		out = append(out, &cp)
	}
	return out, nil
}
