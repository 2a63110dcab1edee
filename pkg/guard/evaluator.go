package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawdbot/sentinel/pkg/autonomy"
	"github.com/clawdbot/sentinel/pkg/plan"
)

// PrestateFetcher performs the read-only fetch of current external state for
// a step's target, addressed identically to how the approval-time snapshot
// was taken. It is the only blocking external call in decision-making.
type PrestateFetcher interface {
	Fetch(ctx context.Context, step plan.Step) (map[string]interface{}, error)
}

// Failure describes one guard predicate that did not hold.
type Failure struct {
	Guard    plan.Guard  `json:"guard"`
	Observed interface{} `json:"observed,omitempty"`
	Reason   string      `json:"reason"`
}

// Result carries both snapshots so audit can show exactly what drifted
// between approval and execution.
type Result struct {
	Passed            bool                   `json:"passed"`
	Failures          []Failure              `json:"failures,omitempty"`
	ApprovalSnapshot  map[string]interface{} `json:"approval_snapshot,omitempty"`
	ExecutionSnapshot map[string]interface{} `json:"execution_snapshot,omitempty"`
	EvaluatedAt       time.Time              `json:"evaluated_at"`
}

// Evaluator re-checks guard predicates immediately before an approved write.
type Evaluator struct {
	fetcher PrestateFetcher
	tracker *autonomy.Tracker
	logger  *slog.Logger
}

// NewEvaluator creates an evaluator. tracker may be nil when violation
// recording is handled elsewhere (e.g. offline tooling).
func NewEvaluator(fetcher PrestateFetcher, tracker *autonomy.Tracker, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{fetcher: fetcher, tracker: tracker, logger: logger}
}

// Evaluate fetches the current prestate and checks every guard on the step.
// It fails closed: a failed fetch, a missing path, or a type mismatch all
// count as violations; the write must not execute on uncertain state.
// On violation the fingerprint is demoted through the tracker's single
// outcome-recording entrypoint.
func (e *Evaluator) Evaluate(ctx context.Context, executionID, fingerprintID string, step plan.Step, approvalSnapshot map[string]interface{}) (*Result, error) {
	res := &Result{
		Passed:           true,
		ApprovalSnapshot: approvalSnapshot,
		EvaluatedAt:      time.Now().UTC(),
	}

	current, err := e.fetcher.Fetch(ctx, step)
	if err != nil {
		res.Passed = false
		res.Failures = append(res.Failures, Failure{
			Reason: fmt.Sprintf("prestate fetch failed: %v", err),
		})
		return e.finish(ctx, executionID, fingerprintID, step, res)
	}
	res.ExecutionSnapshot = current

	for _, g := range step.Guards {
		observed, ok := Resolve(asDocument(current), g.Path)
		if !ok {
			res.Passed = false
			res.Failures = append(res.Failures, Failure{
				Guard:  g,
				Reason: "path not present in prestate",
			})
			continue
		}
		if holds, reason := compare(g.Op, observed, g.Value); !holds {
			res.Passed = false
			res.Failures = append(res.Failures, Failure{
				Guard:    g,
				Observed: observed,
				Reason:   reason,
			})
		}
	}

	return e.finish(ctx, executionID, fingerprintID, step, res)
}

func (e *Evaluator) finish(ctx context.Context, executionID, fingerprintID string, step plan.Step, res *Result) (*Result, error) {
	if res.Passed {
		return res, nil
	}

	e.logger.Warn("guard violation",
		"execution", executionID,
		"step", step.StepID,
		"fingerprint", fingerprintID,
		"failures", len(res.Failures),
	)

	if e.tracker != nil && fingerprintID != "" {
		_, err := e.tracker.RecordOutcome(ctx, fingerprintID, autonomy.OutcomeEvent{
			ExecutionID:  executionID,
			StepID:       step.StepID,
			Outcome:      autonomy.OutcomeGuardViolation,
			WriteCapable: step.WriteCapable(),
			Approved:     step.ApprovalScoped,
			Detail:       res.Failures[0].Reason,
		})
		if err != nil {
			return res, fmt.Errorf("guard: record violation: %w", err)
		}
	}
	return res, nil
}

// asDocument normalizes a snapshot for path resolution. Snapshots arrive as
// map[string]interface{} from JSON decoding already; round-tripping through
// json guards against typed values handed in by tests.
func asDocument(snapshot map[string]interface{}) interface{} {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return snapshot
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return snapshot
	}
	return doc
}

// compare applies a guard operator. Numeric comparisons coerce both sides to
// float64; anything incomparable fails closed with a reason.
func compare(op plan.GuardOp, observed, expected interface{}) (bool, string) {
	switch op {
	case plan.OpEq, plan.OpNeq:
		eq := jsonEqual(observed, expected)
		if op == plan.OpEq && !eq {
			return false, fmt.Sprintf("expected %v, observed %v", expected, observed)
		}
		if op == plan.OpNeq && eq {
			return false, fmt.Sprintf("expected anything but %v", expected)
		}
		return true, ""
	case plan.OpGt, plan.OpGte, plan.OpLt, plan.OpLte:
		a, okA := toFloat(observed)
		b, okB := toFloat(expected)
		if !okA || !okB {
			return false, fmt.Sprintf("operator %s requires numeric operands", op)
		}
		switch op {
		case plan.OpGt:
			if a > b {
				return true, ""
			}
		case plan.OpGte:
			if a >= b {
				return true, ""
			}
		case plan.OpLt:
			if a < b {
				return true, ""
			}
		case plan.OpLte:
			if a <= b {
				return true, ""
			}
		}
		return false, fmt.Sprintf("%v %s %v does not hold", a, op, b)
	default:
		return false, fmt.Sprintf("unknown operator %q", op)
	}
}

func jsonEqual(a, b interface{}) bool {
	// Numbers compare as values regardless of source type.
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ra) == string(rb)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
