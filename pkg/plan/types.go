// Package plan defines the execution plan model consumed by the policy core.
//
// Plans are produced by an external planner; sentinel treats them as opaque
// beyond the fields declared here. A plan is immutable once hashed; its
// identity is the SHA-256 of its RFC 8785 canonical JSON form.
package plan

import (
	"github.com/clawdbot/sentinel/pkg/canonicalize"
	"github.com/clawdbot/sentinel/pkg/hashio"
)

// Adapter identifies the external executor kind a step targets.
type Adapter string

const (
	AdapterWebhook        Adapter = "webhook"
	AdapterWorkspaceRead  Adapter = "workspace_read"
	AdapterWorkspaceWrite Adapter = "workspace_write"
	AdapterShell          Adapter = "shell"
	AdapterBrowser        Adapter = "browser"
)

// GuardOp is a comparison operator applied to a prestate field.
type GuardOp string

const (
	OpEq  GuardOp = "eq"
	OpNeq GuardOp = "neq"
	OpGt  GuardOp = "gt"
	OpGte GuardOp = "gte"
	OpLt  GuardOp = "lt"
	OpLte GuardOp = "lte"
)

// Guard is a predicate checked against freshly fetched prestate immediately
// before a previously approved write executes.
type Guard struct {
	Path  string      `json:"path"`
	Op    GuardOp     `json:"op"`
	Value interface{} `json:"value"`
}

// Expectation asserts on the adapter result after a step executes.
type Expectation struct {
	Status int    `json:"status,omitempty"`
	Shape  string `json:"shape,omitempty"`
}

// Step is one externally-visible action of a plan.
type Step struct {
	StepID         string                 `json:"step_id"`
	Adapter        Adapter                `json:"adapter"`
	Method         string                 `json:"method"`
	Target         string                 `json:"target"`
	ReadOnly       bool                   `json:"read_only"`
	ApprovalScoped bool                   `json:"approval_scoped"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	Guards         []Guard                `json:"guards,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	Expects        *Expectation           `json:"expects,omitempty"`
}

// Phase groups steps with declared inputs and outputs.
type Phase struct {
	Name       string   `json:"name"`
	Requires   []string `json:"requires,omitempty"`
	Steps      []Step   `json:"steps"`
	OutputKeys []string `json:"output_keys,omitempty"`
}

// Environment carries the plan-level environment flags consulted by the
// policy engine.
type Environment struct {
	IsProduction bool `json:"is_production"`
	ConfirmProd  bool `json:"confirm_prod"`
}

// ExecutionPlan is the unit of governed execution. Steps may be flat or
// grouped into phases; AllSteps flattens either form.
type ExecutionPlan struct {
	ExecutionID     string      `json:"execution_id"`
	Goal            string      `json:"goal"`
	DryRun          bool        `json:"dry_run"`
	Assumptions     []string    `json:"assumptions,omitempty"`
	RequiredSecrets []string    `json:"required_secrets,omitempty"`
	Environment     Environment `json:"environment"`
	Steps           []Step      `json:"steps,omitempty"`
	Phases          []Phase     `json:"phases,omitempty"`
}

// AllSteps returns the plan's steps in execution order, flattening phases.
func (p *ExecutionPlan) AllSteps() []Step {
	if len(p.Phases) == 0 {
		return p.Steps
	}
	var steps []Step
	for _, ph := range p.Phases {
		steps = append(steps, ph.Steps...)
	}
	return steps
}

// Hash returns the plan's content-addressed identity: "sha256:" plus the hex
// SHA-256 of the plan's canonical JSON form.
func (p *ExecutionPlan) Hash() (string, error) {
	canonical, err := canonicalize.JCS(p)
	if err != nil {
		return "", err
	}
	return hashio.HashPrefix + canonicalize.HashBytes(canonical), nil
}

// WriteCapable reports whether the step can mutate external state. A step is
// write-capable unless explicitly declared read-only.
func (s *Step) WriteCapable() bool {
	return !s.ReadOnly
}
