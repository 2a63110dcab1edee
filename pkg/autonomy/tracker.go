// Package autonomy tracks how much an acting fingerprint has earned the
// right to perform writes unsupervised.
//
// All mutation flows through Tracker.RecordOutcome and Tracker.Requalify;
// nothing else writes fingerprint state. Updates are serialized per
// fingerprint, so concurrent executions for different fingerprints never
// contend.
package autonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the lifecycle position of a fingerprint.
type State string

const (
	StateEligible  State = "ELIGIBLE"
	StateProbation State = "PROBATION"
	StateReadOnly  State = "READ_ONLY"
	StateBlocked   State = "BLOCKED"
)

// Outcome categorizes what happened to an execution.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePolicyDeny     Outcome = "policy_deny"
	OutcomeGuardViolation Outcome = "guard_violation"
	OutcomeRollback       Outcome = "rollback"
)

// OutcomeEvent is one append-only entry in a fingerprint's history.
type OutcomeEvent struct {
	ExecutionID  string    `json:"execution_id"`
	StepID       string    `json:"step_id,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	WriteCapable bool      `json:"write_capable"`
	Approved     bool      `json:"approved"`
	Detail       string    `json:"detail,omitempty"`
	At           time.Time `json:"at"`
}

// Fingerprint is the persistent autonomy record of an acting principal.
type Fingerprint struct {
	ID         string         `json:"id"`
	Confidence float64        `json:"confidence"`
	State      State          `json:"state"`
	CleanRuns  int            `json:"clean_runs"`
	Violations int            `json:"violations"`
	History    []OutcomeEvent `json:"history,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Params are the confidence-delta and threshold knobs. They are policy
// configuration, not hard-coded constants; Defaults documents the versioned
// defaults used when no profile overrides them.
type Params struct {
	DeltaSuccess      float64 `yaml:"delta_success" json:"delta_success"`
	DeltaViolation    float64 `yaml:"delta_violation" json:"delta_violation"`
	DeltaRollback     float64 `yaml:"delta_rollback" json:"delta_rollback"`
	EnforceThreshold  float64 `yaml:"enforce_threshold" json:"enforce_threshold"`
	InitialConfidence float64 `yaml:"initial_confidence" json:"initial_confidence"`
	CleanRunsRequired int     `yaml:"clean_runs_required" json:"clean_runs_required"`
	ReadOnlyAfter     int     `yaml:"read_only_after" json:"read_only_after"`
	BlockedAfter      int     `yaml:"blocked_after" json:"blocked_after"`
}

// Defaults returns the documented default parameters (profile v1).
// Violation and rollback deltas are deliberately larger than the success
// delta: trust is lost faster than it is earned.
func Defaults() Params {
	return Params{
		DeltaSuccess:      0.05,
		DeltaViolation:    0.25,
		DeltaRollback:     0.15,
		EnforceThreshold:  0.5,
		InitialConfidence: 0.6,
		CleanRunsRequired: 5,
		ReadOnlyAfter:     3,
		BlockedAfter:      5,
	}
}

// Validate rejects parameter sets that break the trust asymmetry contract.
func (p Params) Validate() error {
	if p.DeltaViolation <= p.DeltaSuccess || p.DeltaRollback <= p.DeltaSuccess {
		return errors.New("autonomy: violation and rollback deltas must exceed the success delta")
	}
	if p.EnforceThreshold < 0 || p.EnforceThreshold > 1 {
		return errors.New("autonomy: enforce_threshold must be within [0,1]")
	}
	if p.CleanRunsRequired < 1 {
		return errors.New("autonomy: clean_runs_required must be at least 1")
	}
	return nil
}

var (
	// ErrNotEligibleForRequalification is returned when an operator attempts
	// to requalify a fingerprint that has not met the probation contract.
	ErrNotEligibleForRequalification = errors.New("autonomy: fingerprint has not met the requalification contract")
	// ErrBlocked is returned for operations on a blocked fingerprint.
	ErrBlocked = errors.New("autonomy: fingerprint is blocked")
)

// Tracker is the single mutation path for fingerprint state.
type Tracker struct {
	store  Store
	params Params
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a tracker over the given store. A nil logger disables
// logging.
func NewTracker(store Store, params Params, logger *slog.Logger) (*Tracker, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		store:  store,
		params: params,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Params returns the active parameter set.
func (t *Tracker) Params() Params { return t.params }

// lockFor returns the per-fingerprint mutex, creating it on first use.
func (t *Tracker) lockFor(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// Get returns the current fingerprint record, creating a fresh ELIGIBLE one
// on first sight.
func (t *Tracker) Get(ctx context.Context, id string) (*Fingerprint, error) {
	fp, err := t.store.Get(ctx, id)
	if errors.Is(err, ErrFingerprintNotFound) {
		return &Fingerprint{
			ID:         id,
			Confidence: t.params.InitialConfidence,
			State:      StateEligible,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return fp, nil
}

// RecordOutcome is the only entrypoint that mutates confidence and state.
// It applies the configured delta, clamps to [0,1], advances the state
// machine, and appends the event to the fingerprint's history.
func (t *Tracker) RecordOutcome(ctx context.Context, id string, event OutcomeEvent) (*Fingerprint, error) {
	lock := t.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	fp, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	switch event.Outcome {
	case OutcomeSuccess:
		fp.Confidence = clamp01(fp.Confidence + t.params.DeltaSuccess)
		if fp.State == StateProbation && event.WriteCapable {
			fp.CleanRuns++
		}
	case OutcomePolicyDeny:
		// Confidence untouched; a deny during an approved write still
		// demotes, because approval implied the write was expected to land.
		if event.Approved && event.WriteCapable {
			t.demote(fp, "policy deny during approved write")
		}
	case OutcomeGuardViolation:
		fp.Confidence = clamp01(fp.Confidence - t.params.DeltaViolation)
		fp.Violations++
		t.demote(fp, "guard violation")
		t.escalate(fp)
	case OutcomeRollback:
		fp.Confidence = clamp01(fp.Confidence - t.params.DeltaRollback)
		fp.Violations++
		t.demote(fp, "rollback")
		t.escalate(fp)
	default:
		return nil, fmt.Errorf("autonomy: unknown outcome %q", event.Outcome)
	}

	fp.History = append(fp.History, event)
	fp.UpdatedAt = event.At

	if err := t.store.Save(ctx, fp); err != nil {
		return nil, fmt.Errorf("autonomy: persist fingerprint %s: %w", id, err)
	}
	t.logger.Info("outcome recorded",
		"fingerprint", id,
		"outcome", string(event.Outcome),
		"confidence", fp.Confidence,
		"state", string(fp.State),
	)
	return fp, nil
}

// Requalify moves a probationary fingerprint back to ELIGIBLE. It is always
// operator-issued; the tracker never requalifies automatically.
func (t *Tracker) Requalify(ctx context.Context, id, operator string) (*Fingerprint, error) {
	lock := t.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	// Unlike Get, a never-seen fingerprint is an error here: there is
	// nothing on record to requalify.
	fp, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if fp.State == StateBlocked {
		return nil, ErrBlocked
	}
	if fp.State != StateProbation || fp.CleanRuns < t.params.CleanRunsRequired {
		return nil, fmt.Errorf("%w: state=%s clean_runs=%d required=%d",
			ErrNotEligibleForRequalification, fp.State, fp.CleanRuns, t.params.CleanRunsRequired)
	}

	fp.State = StateEligible
	fp.CleanRuns = 0
	now := time.Now().UTC()
	fp.History = append(fp.History, OutcomeEvent{
		Outcome: OutcomeSuccess,
		Detail:  "requalified by operator " + operator,
		At:      now,
	})
	fp.UpdatedAt = now

	if err := t.store.Save(ctx, fp); err != nil {
		return nil, fmt.Errorf("autonomy: persist fingerprint %s: %w", id, err)
	}
	t.logger.Info("fingerprint requalified", "fingerprint", id, "operator", operator)
	return fp, nil
}

// demote forces probation and resets the clean-run counter. Fingerprints
// already in READ_ONLY or BLOCKED never improve through demotion.
func (t *Tracker) demote(fp *Fingerprint, reason string) {
	if fp.State == StateReadOnly || fp.State == StateBlocked {
		return
	}
	fp.State = StateProbation
	fp.CleanRuns = 0
	t.logger.Warn("fingerprint demoted to probation", "fingerprint", fp.ID, "reason", reason)
}

// escalate applies the repeated-severe-violation ladder.
func (t *Tracker) escalate(fp *Fingerprint) {
	if fp.Violations >= t.params.BlockedAfter {
		fp.State = StateBlocked
	} else if fp.Violations >= t.params.ReadOnlyAfter {
		fp.State = StateReadOnly
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
