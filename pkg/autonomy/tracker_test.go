package autonomy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdbot/sentinel/pkg/autonomy"
)

func newTracker(t *testing.T) (*autonomy.Tracker, *autonomy.MemoryStore) {
	t.Helper()
	store := autonomy.NewMemoryStore()
	tracker, err := autonomy.NewTracker(store, autonomy.Defaults(), nil)
	require.NoError(t, err)
	return tracker, store
}

func record(t *testing.T, tracker *autonomy.Tracker, id string, outcome autonomy.Outcome, write, approved bool) *autonomy.Fingerprint {
	t.Helper()
	fp, err := tracker.RecordOutcome(context.Background(), id, autonomy.OutcomeEvent{
		ExecutionID:  "exec-1",
		Outcome:      outcome,
		WriteCapable: write,
		Approved:     approved,
	})
	require.NoError(t, err)
	return fp
}

func TestGet_UnknownFingerprintStartsEligible(t *testing.T) {
	tracker, _ := newTracker(t)

	fp, err := tracker.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, autonomy.StateEligible, fp.State)
	assert.Equal(t, autonomy.Defaults().InitialConfidence, fp.Confidence)
	assert.Empty(t, fp.History)
}

func TestRecordOutcome_SuccessRaisesConfidence(t *testing.T) {
	tracker, _ := newTracker(t)

	fp := record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)
	assert.InDelta(t, 0.65, fp.Confidence, 1e-9)
	assert.Equal(t, autonomy.StateEligible, fp.State)
	assert.Len(t, fp.History, 1)
}

func TestRecordOutcome_ConfidenceClampedToOne(t *testing.T) {
	tracker, _ := newTracker(t)

	var fp *autonomy.Fingerprint
	for i := 0; i < 20; i++ {
		fp = record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)
	}
	assert.Equal(t, 1.0, fp.Confidence)
}

func TestRecordOutcome_GuardViolationDemotes(t *testing.T) {
	tracker, _ := newTracker(t)

	fp := record(t, tracker, "a", autonomy.OutcomeGuardViolation, true, true)
	assert.InDelta(t, 0.35, fp.Confidence, 1e-9)
	assert.Equal(t, autonomy.StateProbation, fp.State)
	assert.Equal(t, 0, fp.CleanRuns)
	assert.Equal(t, 1, fp.Violations)
}

func TestRecordOutcome_RollbackDemotes(t *testing.T) {
	tracker, _ := newTracker(t)

	fp := record(t, tracker, "a", autonomy.OutcomeRollback, true, true)
	assert.InDelta(t, 0.45, fp.Confidence, 1e-9)
	assert.Equal(t, autonomy.StateProbation, fp.State)
}

func TestRecordOutcome_PolicyDenyKeepsConfidence(t *testing.T) {
	tracker, _ := newTracker(t)

	// An unapproved deny is the engine doing its job; nothing changes.
	fp := record(t, tracker, "a", autonomy.OutcomePolicyDeny, true, false)
	assert.InDelta(t, 0.6, fp.Confidence, 1e-9)
	assert.Equal(t, autonomy.StateEligible, fp.State)

	// A deny during an approved write demotes without touching confidence.
	fp = record(t, tracker, "a", autonomy.OutcomePolicyDeny, true, true)
	assert.InDelta(t, 0.6, fp.Confidence, 1e-9)
	assert.Equal(t, autonomy.StateProbation, fp.State)
}

func TestRecordOutcome_ViolationLadder(t *testing.T) {
	tracker, _ := newTracker(t)

	var fp *autonomy.Fingerprint
	for i := 0; i < autonomy.Defaults().ReadOnlyAfter; i++ {
		fp = record(t, tracker, "a", autonomy.OutcomeGuardViolation, true, true)
	}
	assert.Equal(t, autonomy.StateReadOnly, fp.State)

	for i := autonomy.Defaults().ReadOnlyAfter; i < autonomy.Defaults().BlockedAfter; i++ {
		fp = record(t, tracker, "a", autonomy.OutcomeGuardViolation, true, true)
	}
	assert.Equal(t, autonomy.StateBlocked, fp.State)

	// READ_ONLY and BLOCKED never improve through further outcomes.
	fp = record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)
	assert.Equal(t, autonomy.StateBlocked, fp.State)
}

func TestCleanRuns_OnlyCountInProbationOnWrites(t *testing.T) {
	tracker, _ := newTracker(t)

	// Eligible successes do not accrue clean runs.
	fp := record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)
	assert.Equal(t, 0, fp.CleanRuns)

	record(t, tracker, "a", autonomy.OutcomeGuardViolation, true, true)

	fp = record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)
	assert.Equal(t, 1, fp.CleanRuns)

	// Read-only successes in probation do not count.
	fp = record(t, tracker, "a", autonomy.OutcomeSuccess, false, false)
	assert.Equal(t, 1, fp.CleanRuns)
}

func TestRequalify_Contract(t *testing.T) {
	tracker, _ := newTracker(t)
	ctx := context.Background()

	record(t, tracker, "a", autonomy.OutcomeGuardViolation, true, true)

	// Not enough clean runs yet.
	_, err := tracker.Requalify(ctx, "a", "ops@example.com")
	require.ErrorIs(t, err, autonomy.ErrNotEligibleForRequalification)

	for i := 0; i < autonomy.Defaults().CleanRunsRequired; i++ {
		record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)
	}

	fp, err := tracker.Requalify(ctx, "a", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, autonomy.StateEligible, fp.State)
	assert.Equal(t, 0, fp.CleanRuns)
}

func TestRequalify_NeverAutomatic(t *testing.T) {
	tracker, _ := newTracker(t)

	record(t, tracker, "a", autonomy.OutcomeGuardViolation, true, true)

	// Clean runs alone never flip the state; only the operator call does.
	var fp *autonomy.Fingerprint
	for i := 0; i < autonomy.Defaults().CleanRunsRequired+3; i++ {
		fp = record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)
	}
	assert.Equal(t, autonomy.StateProbation, fp.State)
}

func TestRequalify_BlockedRefused(t *testing.T) {
	tracker, _ := newTracker(t)

	for i := 0; i < autonomy.Defaults().BlockedAfter; i++ {
		record(t, tracker, "a", autonomy.OutcomeGuardViolation, true, true)
	}

	_, err := tracker.Requalify(context.Background(), "a", "ops@example.com")
	require.ErrorIs(t, err, autonomy.ErrBlocked)
}

func TestRequalify_UnknownFingerprint(t *testing.T) {
	tracker, _ := newTracker(t)

	_, err := tracker.Requalify(context.Background(), "never-seen", "ops@example.com")
	require.ErrorIs(t, err, autonomy.ErrFingerprintNotFound)
}

func TestRequalify_EligibleRefused(t *testing.T) {
	tracker, _ := newTracker(t)

	record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)

	_, err := tracker.Requalify(context.Background(), "a", "ops@example.com")
	require.ErrorIs(t, err, autonomy.ErrNotEligibleForRequalification)
}

func TestParams_ValidateRejectsWeakDeltas(t *testing.T) {
	p := autonomy.Defaults()
	p.DeltaViolation = p.DeltaSuccess // violations must outweigh successes
	_, err := autonomy.NewTracker(autonomy.NewMemoryStore(), p, nil)
	require.Error(t, err)
}

func TestHistory_AppendOnly(t *testing.T) {
	tracker, _ := newTracker(t)
	ctx := context.Background()

	record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)
	record(t, tracker, "a", autonomy.OutcomeGuardViolation, true, true)
	fp := record(t, tracker, "a", autonomy.OutcomeSuccess, true, false)

	require.Len(t, fp.History, 3)
	assert.Equal(t, autonomy.OutcomeSuccess, fp.History[0].Outcome)
	assert.Equal(t, autonomy.OutcomeGuardViolation, fp.History[1].Outcome)
	assert.Equal(t, autonomy.OutcomeSuccess, fp.History[2].Outcome)

	stored, err := tracker.Get(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, stored.History, 3)
}
