package policy

import (
	"context"
	"strings"

	"github.com/clawdbot/sentinel/pkg/autonomy"
	"github.com/clawdbot/sentinel/pkg/plan"
)

// Decision is the result of evaluating one step. Remediation always comes
// from the code registry, never invented at the call site.
type Decision struct {
	Code        Code     `json:"code"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Meaning     string   `json:"meaning"`
	Remediation []string `json:"remediation"`
}

// Allowed reports whether the step may proceed to execution.
func (d Decision) Allowed() bool { return d.Severity == SeverityAllow }

// Input bundles everything the engine needs for one step. The engine is a
// pure function of this input; it performs no I/O of its own apart from the
// optional limiter consultation.
type Input struct {
	Step        plan.Step
	Environment plan.Environment
	Fingerprint *autonomy.Fingerprint
	// ApprovalExists is true when an approval record matching the hash of
	// the plan currently being executed is on file.
	ApprovalExists bool
}

// Engine classifies steps into allow / require-approval / throttle / deny
// with a fixed rule precedence. First match wins; denial rules outrank
// approval rules by construction.
type Engine struct {
	threshold float64
	limiter   LimiterStore
}

// NewEngine creates an engine enforcing the given confidence threshold.
// limiter may be nil, which disables the throttle rule.
func NewEngine(threshold float64, limiter LimiterStore) *Engine {
	return &Engine{threshold: threshold, limiter: limiter}
}

// Decide evaluates one step. Order is part of the contract:
//
//  1. live target effect-class mismatch        -> deny
//  2. unconfirmed production write             -> deny
//  3. confidence at/below threshold on a write -> deny
//  4. probation without explicit read_only     -> deny
//  5. write budget exhausted                   -> throttle
//  6. approval-scoped without approval on file -> require_approval
//  7. otherwise                                -> allow
func (e *Engine) Decide(ctx context.Context, in Input) Decision {
	step := in.Step

	// Rule 1: on a live target the declared effect class must agree with the
	// method's classification. A read-classified method must be declared
	// read_only, and a read_only step must use a side-effect-free method.
	// Hard deny regardless of approval.
	if isLiveTarget(step.Target) && step.ReadOnly != isReadMethod(step.Method) {
		return decisionFor(CodeLiveRequiresReadOnly)
	}

	// Rule 2: production writes require explicit confirmation on the run.
	if in.Environment.IsProduction && step.WriteCapable() && !in.Environment.ConfirmProd {
		return decisionFor(CodeProdWriteConfirmRequired)
	}

	// Rule 3: the fingerprint must have earned the write.
	if step.WriteCapable() && in.Fingerprint != nil && in.Fingerprint.Confidence <= e.threshold {
		return decisionFor(CodeConfidenceTooLow)
	}

	// Rule 4: probation forces explicitly declared read-only execution.
	if in.Fingerprint != nil && in.Fingerprint.State == autonomy.StateProbation && !step.ReadOnly {
		return decisionFor(CodeProbationReadOnly)
	}

	// Rule 5: sustained write budget.
	if step.WriteCapable() && e.limiter != nil && in.Fingerprint != nil {
		allowed, err := e.limiter.Allow(ctx, in.Fingerprint.ID, 1)
		if err != nil || !allowed {
			// Limiter failure throttles rather than denies: the caller may
			// retry, and a broken limiter must not mint write capacity.
			return decisionFor(CodeWriteRateThrottled)
		}
	}

	// Rule 6: approval-scoped steps wait for a matching approval record.
	if step.ApprovalScoped && !in.ApprovalExists {
		return decisionFor(CodeApprovalRequired)
	}

	return decisionFor(CodeAllow)
}

func decisionFor(code Code) Decision {
	entry := Lookup(code)
	return Decision{
		Code:        entry.Code,
		Severity:    entry.Severity,
		Title:       entry.Title,
		Meaning:     entry.Meaning,
		Remediation: entry.Remediation,
	}
}

// isLiveTarget reports whether the target addresses a live external system
// rather than a sandbox or fixture.
func isLiveTarget(target string) bool {
	return strings.HasPrefix(target, "live:")
}

// readMethods are side-effect-free by contract. Anything else is treated as
// write-capable.
var readMethods = map[string]bool{
	"GET":      true,
	"HEAD":     true,
	"OPTIONS":  true,
	"read":     true,
	"list":     true,
	"get":      true,
	"describe": true,
	"status":   true,
	"capture":  true,
}

func isReadMethod(method string) bool {
	return readMethods[method]
}
