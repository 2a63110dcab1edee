// Package policy implements the decision engine and its closed code
// registry.
//
// Codes are permanent identifiers: once shipped, a code is never renumbered
// or reused for a different meaning, and its severity and title are
// immutable. Evolution is strictly additive.
package policy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Severity classifies the enforcement outcome of a decision.
type Severity string

const (
	SeverityDeny            Severity = "deny"
	SeverityRequireApproval Severity = "require_approval"
	SeverityThrottle        Severity = "throttle"
	SeverityAllow           Severity = "allow"
)

// Code is a stable, versioned identifier for a policy decision's reason.
type Code string

const (
	CodeLiveRequiresReadOnly     Code = "LIVE_REQUIRES_READ_ONLY"
	CodeProdWriteConfirmRequired Code = "PROD_WRITE_CONFIRMATION_REQUIRED"
	CodeConfidenceTooLow         Code = "CONFIDENCE_TOO_LOW"
	CodeProbationReadOnly        Code = "PROBATION_READ_ONLY_ENFORCED"
	CodeWriteRateThrottled       Code = "WRITE_RATE_THROTTLED"
	CodeApprovalRequired         Code = "APPROVAL_REQUIRED"
	CodeAllow                    Code = "POLICY_ALLOW"
)

// CodeEntry is one row of the registry: severity, human meaning, and the
// remediation steps surfaced with every decision carrying this code.
type CodeEntry struct {
	Code        Code     `json:"code"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Meaning     string   `json:"meaning"`
	Remediation []string `json:"remediation"`
}

// RegistryVersion is bumped on every additive change to the code table.
var RegistryVersion = semver.MustParse("1.1.0")

var registry = map[Code]CodeEntry{
	CodeLiveRequiresReadOnly: {
		Code:     CodeLiveRequiresReadOnly,
		Severity: SeverityDeny,
		Title:    "Live target requires read-only declaration",
		Meaning:  "The step addresses a live external system with a read-classified method but is not declared read_only, so its effect class cannot be trusted.",
		Remediation: []string{
			"Mark the step read_only: true if it only observes state.",
			"Use a write-classified method and request approval if the step mutates state.",
		},
	},
	CodeProdWriteConfirmRequired: {
		Code:     CodeProdWriteConfirmRequired,
		Severity: SeverityDeny,
		Title:    "Production write without explicit confirmation",
		Meaning:  "Write-capable steps in a production environment require the run to be explicitly confirmed.",
		Remediation: []string{
			"Re-run with confirm_prod set on the plan environment.",
			"Target a non-production environment for unconfirmed runs.",
		},
	},
	CodeConfidenceTooLow: {
		Code:     CodeConfidenceTooLow,
		Severity: SeverityDeny,
		Title:    "Autonomy confidence below enforcement threshold",
		Meaning:  "The acting fingerprint has not earned the right to perform unsupervised writes.",
		Remediation: []string{
			"Accrue clean read-only executions to rebuild confidence.",
			"Route the write through an operator approval.",
		},
	},
	CodeProbationReadOnly: {
		Code:     CodeProbationReadOnly,
		Severity: SeverityDeny,
		Title:    "Probation enforces read-only execution",
		Meaning:  "The fingerprint is on probation after a violation; only steps explicitly declared read_only may run.",
		Remediation: []string{
			"Complete the required consecutive clean runs.",
			"Ask an operator to issue a requalification once the clean-run requirement is met.",
		},
	},
	CodeWriteRateThrottled: {
		Code:     CodeWriteRateThrottled,
		Severity: SeverityThrottle,
		Title:    "Write rate limit exhausted",
		Meaning:  "The fingerprint has exceeded its sustained write budget; the step may be retried after backoff.",
		Remediation: []string{
			"Retry after the limiter refills.",
			"Request a higher write budget for this fingerprint if the workload is legitimate.",
		},
	},
	CodeApprovalRequired: {
		Code:     CodeApprovalRequired,
		Severity: SeverityRequireApproval,
		Title:    "Approval required before execution",
		Meaning:  "The step is approval-scoped and no approval record matches the current plan hash.",
		Remediation: []string{
			"Obtain an approval for this exact plan hash and retry.",
		},
	},
	CodeAllow: {
		Code:        CodeAllow,
		Severity:    SeverityAllow,
		Title:       "Allowed within policy limits",
		Meaning:     "No policy rule matched; the step may proceed.",
		Remediation: []string{},
	},
}

// emittableCodes is the closed set of codes the engine can emit. Registry
// completeness over this set is enforced at package init, not at runtime.
var emittableCodes = []Code{
	CodeLiveRequiresReadOnly,
	CodeProdWriteConfirmRequired,
	CodeConfidenceTooLow,
	CodeProbationReadOnly,
	CodeWriteRateThrottled,
	CodeApprovalRequired,
	CodeAllow,
}

func init() {
	for _, c := range emittableCodes {
		if _, ok := registry[c]; !ok {
			panic(fmt.Sprintf("policy: code %s emitted by the engine is missing from the registry", c))
		}
	}
}

// Lookup resolves a code to its registry entry. A missing code is a fatal
// configuration defect: the engine can only emit codes the registry knows.
func Lookup(code Code) CodeEntry {
	entry, ok := registry[code]
	if !ok {
		panic(fmt.Sprintf("policy: unknown code %s (registry v%s)", code, RegistryVersion))
	}
	return entry
}

// Codes returns every registered code entry, for documentation surfaces.
func Codes() []CodeEntry {
	out := make([]CodeEntry, 0, len(emittableCodes))
	for _, c := range emittableCodes {
		out = append(out, registry[c])
	}
	return out
}
