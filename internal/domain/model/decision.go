package model

import "strings"

// Decision is the engine's verdict on a dependency-update PR. Exactly three
// values are valid; anything else coming back from the reasoning provider is
// coerced to RequireApproval as the fail-safe default.
type Decision string

const (
	DecisionAutoMerge       Decision = "AUTO_MERGE"
	DecisionRequireApproval Decision = "REQUIRE_APPROVAL"
	DecisionDoNotMerge      Decision = "DO_NOT_MERGE"
)

// ParseDecision maps a raw decision string (case-insensitive, common
// synonyms included) onto a Decision. The second return value reports
// whether the input was recognized; unrecognized input still yields
// RequireApproval so callers can use the value directly.
func ParseDecision(raw string) (Decision, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "AUTO_MERGE", "AUTOMERGE", "MERGE", "APPROVE", "APPROVED":
		return DecisionAutoMerge, true
	case "REQUIRE_APPROVAL", "REQUIRES_APPROVAL", "REVIEW", "MANUAL_REVIEW", "HUMAN_REVIEW":
		return DecisionRequireApproval, true
	case "DO_NOT_MERGE", "DONT_MERGE", "BLOCK", "REJECT", "REJECTED":
		return DecisionDoNotMerge, true
	default:
		return DecisionRequireApproval, false
	}
}

// RiskLevel is an ordered risk scale used for display and audit only; the
// Decision alone drives which action is taken.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the upper-case label used in audit comments.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "MEDIUM"
	}
}

// ParseRiskLevel maps a raw risk string onto a RiskLevel, defaulting to
// Medium for unrecognized input.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LOW":
		return RiskLow, true
	case "MEDIUM", "MODERATE":
		return RiskMedium, true
	case "HIGH":
		return RiskHigh, true
	case "CRITICAL":
		return RiskCritical, true
	default:
		return RiskMedium, false
	}
}

// Verdict bundles the engine's full output: the decision, its risk
// assessment, the natural-language rationale, and the audit trail of tools
// used while reasoning. FallbackCause is non-empty when the deterministic
// fallback policy produced the verdict instead of the reasoning provider.
type Verdict struct {
	Decision      Decision
	Risk          RiskLevel
	Rationale     string
	KeyFactors    []string
	ToolsUsed     []string
	FallbackCause string
}
