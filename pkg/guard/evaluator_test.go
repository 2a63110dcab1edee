package guard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdbot/sentinel/pkg/autonomy"
	"github.com/clawdbot/sentinel/pkg/guard"
	"github.com/clawdbot/sentinel/pkg/plan"
)

type stubFetcher struct {
	state map[string]interface{}
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, _ plan.Step) (map[string]interface{}, error) {
	return s.state, s.err
}

func guardedStep(guards ...plan.Guard) plan.Step {
	return plan.Step{
		StepID:  "s1",
		Adapter: plan.AdapterWebhook,
		Method:  "POST",
		Target:  "sandbox:orders",
		Guards:  guards,
	}
}

func newTracker(t *testing.T) *autonomy.Tracker {
	t.Helper()
	tracker, err := autonomy.NewTracker(autonomy.NewMemoryStore(), autonomy.Defaults(), nil)
	require.NoError(t, err)
	return tracker
}

func TestEvaluate_AllGuardsHold(t *testing.T) {
	fetcher := &stubFetcher{state: map[string]interface{}{
		"status": "open",
		"total":  float64(10),
	}}
	ev := guard.NewEvaluator(fetcher, nil, nil)

	res, err := ev.Evaluate(context.Background(), "exec-1", "fp-1", guardedStep(
		plan.Guard{Path: "status", Op: plan.OpEq, Value: "open"},
		plan.Guard{Path: "total", Op: plan.OpLt, Value: float64(100)},
	), nil)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Failures)
	assert.NotNil(t, res.ExecutionSnapshot)
}

func TestEvaluate_DriftedValueFails(t *testing.T) {
	fetcher := &stubFetcher{state: map[string]interface{}{"status": "closed"}}
	ev := guard.NewEvaluator(fetcher, nil, nil)

	res, err := ev.Evaluate(context.Background(), "exec-1", "fp-1", guardedStep(
		plan.Guard{Path: "status", Op: plan.OpEq, Value: "open"},
	), map[string]interface{}{"status": "open"})
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "status", res.Failures[0].Guard.Path)
	assert.Equal(t, "closed", res.Failures[0].Observed)
	// Both snapshots survive for the audit trail.
	assert.Equal(t, "open", res.ApprovalSnapshot["status"])
	assert.Equal(t, "closed", res.ExecutionSnapshot["status"])
}

// A prestate fetch failure is a violation, not an allow: the write must not
// run on unknown state.
func TestEvaluate_FetchFailureFailsClosed(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("connection refused")}
	ev := guard.NewEvaluator(fetcher, nil, nil)

	res, err := ev.Evaluate(context.Background(), "exec-1", "fp-1", guardedStep(
		plan.Guard{Path: "status", Op: plan.OpEq, Value: "open"},
	), nil)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Reason, "prestate fetch failed")
}

func TestEvaluate_MissingPathFailsClosed(t *testing.T) {
	fetcher := &stubFetcher{state: map[string]interface{}{"other": 1}}
	ev := guard.NewEvaluator(fetcher, nil, nil)

	res, err := ev.Evaluate(context.Background(), "exec-1", "fp-1", guardedStep(
		plan.Guard{Path: "status", Op: plan.OpEq, Value: "open"},
	), nil)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Failures[0].Reason, "path not present")
}

func TestEvaluate_TypeMismatchFailsClosed(t *testing.T) {
	fetcher := &stubFetcher{state: map[string]interface{}{"total": "not-a-number"}}
	ev := guard.NewEvaluator(fetcher, nil, nil)

	res, err := ev.Evaluate(context.Background(), "exec-1", "fp-1", guardedStep(
		plan.Guard{Path: "total", Op: plan.OpGt, Value: float64(5)},
	), nil)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Failures[0].Reason, "numeric operands")
}

// A violation with multiple failed guards still records exactly one
// guard_violation outcome event.
func TestEvaluate_SingleOutcomeEventPerViolation(t *testing.T) {
	tracker := newTracker(t)
	fetcher := &stubFetcher{state: map[string]interface{}{
		"status": "closed",
		"total":  float64(500),
	}}
	ev := guard.NewEvaluator(fetcher, tracker, nil)

	res, err := ev.Evaluate(context.Background(), "exec-1", "fp-1", guardedStep(
		plan.Guard{Path: "status", Op: plan.OpEq, Value: "open"},
		plan.Guard{Path: "total", Op: plan.OpLt, Value: float64(100)},
	), nil)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Len(t, res.Failures, 2)

	fp, err := tracker.Get(context.Background(), "fp-1")
	require.NoError(t, err)
	require.Len(t, fp.History, 1)
	assert.Equal(t, autonomy.OutcomeGuardViolation, fp.History[0].Outcome)
	assert.Equal(t, autonomy.StateProbation, fp.State)
}

func TestEvaluate_PassRecordsNothing(t *testing.T) {
	tracker := newTracker(t)
	fetcher := &stubFetcher{state: map[string]interface{}{"status": "open"}}
	ev := guard.NewEvaluator(fetcher, tracker, nil)

	res, err := ev.Evaluate(context.Background(), "exec-1", "fp-1", guardedStep(
		plan.Guard{Path: "status", Op: plan.OpEq, Value: "open"},
	), nil)
	require.NoError(t, err)
	assert.True(t, res.Passed)

	fp, err := tracker.Get(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.Empty(t, fp.History)
}

func TestEvaluate_Operators(t *testing.T) {
	fetcher := &stubFetcher{state: map[string]interface{}{"n": float64(10)}}
	ev := guard.NewEvaluator(fetcher, nil, nil)

	tests := []struct {
		op     plan.GuardOp
		value  interface{}
		passes bool
	}{
		{plan.OpEq, float64(10), true},
		{plan.OpEq, float64(11), false},
		{plan.OpNeq, float64(11), true},
		{plan.OpNeq, float64(10), false},
		{plan.OpGt, float64(9), true},
		{plan.OpGt, float64(10), false},
		{plan.OpGte, float64(10), true},
		{plan.OpLt, float64(11), true},
		{plan.OpLte, float64(10), true},
		{plan.OpLte, float64(9), false},
	}

	for _, tt := range tests {
		res, err := ev.Evaluate(context.Background(), "exec-1", "fp-1", guardedStep(
			plan.Guard{Path: "n", Op: tt.op, Value: tt.value},
		), nil)
		require.NoError(t, err)
		assert.Equal(t, tt.passes, res.Passed, "%s %v", tt.op, tt.value)
	}
}

// Integer guard values from typed callers compare equal to JSON numbers.
func TestEvaluate_NumericCoercion(t *testing.T) {
	fetcher := &stubFetcher{state: map[string]interface{}{"qty": float64(3)}}
	ev := guard.NewEvaluator(fetcher, nil, nil)

	res, err := ev.Evaluate(context.Background(), "exec-1", "fp-1", guardedStep(
		plan.Guard{Path: "qty", Op: plan.OpEq, Value: 3},
	), nil)
	require.NoError(t, err)
	assert.True(t, res.Passed)
}
