// Package executor runs execution plans through the trust layer: every step
// passes the policy engine, approved writes are re-guarded against fresh
// prestate, outcomes feed the autonomy tracker, and exactly one receipt is
// appended per execution no matter how the run ends.
package executor

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clawdbot/sentinel/pkg/approval"
	"github.com/clawdbot/sentinel/pkg/autonomy"
	"github.com/clawdbot/sentinel/pkg/guard"
	"github.com/clawdbot/sentinel/pkg/observability"
	"github.com/clawdbot/sentinel/pkg/plan"
	"github.com/clawdbot/sentinel/pkg/policy"
	"github.com/clawdbot/sentinel/pkg/receipts"
)

// StepOutcome records how one step fared within a run.
type StepOutcome struct {
	StepID   string          `json:"step_id"`
	Decision policy.Decision `json:"decision"`
	Guard    *guard.Result   `json:"guard,omitempty"`
	Result   *StepResult     `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Run is the full trace of one execution attempt.
type Run struct {
	ExecutionID string            `json:"execution_id"`
	PlanHash    string            `json:"plan_hash"`
	Fingerprint string            `json:"fingerprint"`
	Status      receipts.Status   `json:"status"`
	PolicyCode  string            `json:"policy_code,omitempty"`
	Steps       []StepOutcome     `json:"steps"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Pipeline wires the trust layer components around adapter execution.
type Pipeline struct {
	engine      *policy.Engine
	tracker     *autonomy.Tracker
	approvals   approval.Store
	guards      *guard.Evaluator
	log         receipts.Log
	adapters    *Registry
	obs         *observability.Provider
	logger      *slog.Logger
	approvalKey ed25519.PublicKey
}

// NewPipeline assembles a pipeline. obs may be nil; guards may be nil when
// no step in the deployment carries guard predicates.
func NewPipeline(engine *policy.Engine, tracker *autonomy.Tracker, approvals approval.Store, guards *guard.Evaluator, log receipts.Log, adapters *Registry, obs *observability.Provider, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		engine:    engine,
		tracker:   tracker,
		approvals: approvals,
		guards:    guards,
		log:       log,
		adapters:  adapters,
		obs:       obs,
		logger:    logger,
	}
}

// VerifyApprovalTokens makes approval spending require a valid EdDSA token
// signed with the key behind pub. Without a key configured, approvals are
// trusted on the plan-hash binding alone.
func (p *Pipeline) VerifyApprovalTokens(pub ed25519.PublicKey) {
	p.approvalKey = pub
}

// Execute runs a plan on behalf of the given fingerprint. The first
// non-allow decision or failed guard ends the run; the receipt reflects how
// far it got. The returned error covers infrastructure faults only, never
// policy outcomes.
func (p *Pipeline) Execute(ctx context.Context, ep *plan.ExecutionPlan, fingerprintID string) (*Run, error) {
	planHash, err := ep.Hash()
	if err != nil {
		return nil, fmt.Errorf("executor: hash plan: %w", err)
	}

	executionID := ep.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	run := &Run{
		ExecutionID: executionID,
		PlanHash:    planHash,
		Fingerprint: fingerprintID,
		StartedAt:   time.Now().UTC(),
	}

	rec, err := p.approvals.Get(ctx, executionID)
	if err != nil && err != approval.ErrNotFound {
		return nil, fmt.Errorf("executor: load approval: %w", err)
	}
	approvalExists := rec != nil && rec.Matches(planHash)
	if rec != nil && !approvalExists {
		// An approval for a different plan hash is worse than no approval:
		// the plan changed after sign-off.
		p.logger.Warn("approval plan hash mismatch",
			"execution", executionID,
			"approved", rec.PlanHash,
			"actual", planHash,
		)
	}
	if approvalExists && p.approvalKey != nil {
		// The token is what gets spent: signature, expiry, and the
		// plan-hash claim are all checked before the approval counts.
		if _, err := approval.VerifyToken(p.approvalKey, rec.Token, executionID, planHash); err != nil {
			approvalExists = false
			p.logger.Warn("approval token rejected",
				"execution", executionID,
				"error", err,
			)
		}
	}

	writeCapable := false
	for _, step := range ep.AllSteps() {
		if step.WriteCapable() {
			writeCapable = true
			break
		}
	}

	for _, step := range ep.AllSteps() {
		fp, err := p.tracker.Get(ctx, fingerprintID)
		if err != nil {
			return nil, fmt.Errorf("executor: load fingerprint: %w", err)
		}

		dec := p.engine.Decide(ctx, policy.Input{
			Step:           step,
			Environment:    ep.Environment,
			Fingerprint:    fp,
			ApprovalExists: approvalExists,
		})
		if p.obs != nil {
			p.obs.RecordDecision(ctx, string(dec.Code), dec.Allowed())
		}
		outcome := StepOutcome{StepID: step.StepID, Decision: dec}

		switch dec.Severity {
		case policy.SeverityDeny:
			run.Steps = append(run.Steps, outcome)
			if _, err := p.tracker.RecordOutcome(ctx, fingerprintID, autonomy.OutcomeEvent{
				ExecutionID:  executionID,
				StepID:       step.StepID,
				Outcome:      autonomy.OutcomePolicyDeny,
				WriteCapable: step.WriteCapable(),
				Approved:     approvalExists,
				Detail:       string(dec.Code),
			}); err != nil {
				return nil, fmt.Errorf("executor: record denial: %w", err)
			}
			return p.finish(ctx, run, receipts.StatusDenied, string(dec.Code))

		case policy.SeverityThrottle:
			run.Steps = append(run.Steps, outcome)
			return p.finish(ctx, run, receipts.StatusThrottled, string(dec.Code))

		case policy.SeverityRequireApproval:
			run.Steps = append(run.Steps, outcome)
			return p.finish(ctx, run, receipts.StatusDenied, string(dec.Code))
		}

		// Approved writes with guards get a fresh prestate check; the
		// approval-time snapshot rides along for the audit trail.
		if len(step.Guards) > 0 && p.guards != nil {
			var snapshot map[string]interface{}
			if rec != nil {
				snapshot = rec.PrestateSnapshots[step.StepID]
			}
			gr, err := p.guards.Evaluate(ctx, executionID, fingerprintID, step, snapshot)
			if err != nil {
				return nil, fmt.Errorf("executor: evaluate guards: %w", err)
			}
			outcome.Guard = gr
			if !gr.Passed {
				if p.obs != nil {
					p.obs.RecordGuardViolation(ctx, fingerprintID)
				}
				run.Steps = append(run.Steps, outcome)
				return p.finish(ctx, run, receipts.StatusGuardViolation, "")
			}
		}

		if !ep.DryRun {
			adapter, err := p.adapters.Lookup(step.Adapter)
			if err != nil {
				outcome.Error = err.Error()
				run.Steps = append(run.Steps, outcome)
				return p.finish(ctx, run, receipts.StatusFailed, "")
			}
			result, err := adapter.Execute(ctx, step)
			if err != nil {
				outcome.Error = err.Error()
				run.Steps = append(run.Steps, outcome)
				return p.finish(ctx, run, receipts.StatusFailed, "")
			}
			outcome.Result = result

			if step.Expects != nil && step.Expects.Status != 0 && result != nil && result.Status != step.Expects.Status {
				outcome.Error = fmt.Sprintf("expected status %d, got %d", step.Expects.Status, result.Status)
				run.Steps = append(run.Steps, outcome)
				return p.finish(ctx, run, receipts.StatusFailed, "")
			}
		}

		run.Steps = append(run.Steps, outcome)
	}

	if _, err := p.tracker.RecordOutcome(ctx, fingerprintID, autonomy.OutcomeEvent{
		ExecutionID:  executionID,
		Outcome:      autonomy.OutcomeSuccess,
		WriteCapable: writeCapable,
		Approved:     approvalExists,
	}); err != nil {
		return nil, fmt.Errorf("executor: record success: %w", err)
	}
	return p.finish(ctx, run, receipts.StatusCompleted, string(policy.CodeAllow))
}

// ReportRollback records that a previously completed execution was rolled
// back. The original receipt stands; only the fingerprint pays.
func (p *Pipeline) ReportRollback(ctx context.Context, executionID, fingerprintID, detail string) error {
	_, err := p.tracker.RecordOutcome(ctx, fingerprintID, autonomy.OutcomeEvent{
		ExecutionID: executionID,
		Outcome:     autonomy.OutcomeRollback,
		Detail:      detail,
	})
	if err != nil {
		return fmt.Errorf("executor: record rollback: %w", err)
	}
	return nil
}

func (p *Pipeline) finish(ctx context.Context, run *Run, status receipts.Status, code string) (*Run, error) {
	run.Status = status
	run.PolicyCode = code
	run.FinishedAt = time.Now().UTC()

	err := p.log.Append(ctx, &receipts.Receipt{
		ExecutionID: run.ExecutionID,
		PlanHash:    run.PlanHash,
		Fingerprint: run.Fingerprint,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		Status:      status,
		PolicyCode:  code,
	})
	if err != nil {
		return nil, fmt.Errorf("executor: append receipt: %w", err)
	}

	p.logger.Info("execution finished",
		"execution", run.ExecutionID,
		"status", status,
		"code", code,
		"steps", len(run.Steps),
	)
	return run, nil
}
