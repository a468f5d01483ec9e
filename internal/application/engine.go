package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
	"github.com/ericfisherdev/depsentry/internal/domain/port/driven"
)

// jsonObjectPattern extracts the JSON object from a terminal response that
// may wrap it in prose or a code fence.
var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// ciOverrideNote prefixes the rationale whenever the hard CI-failure
// override replaced the reasoned decision.
const ciOverrideNote = "Safety override applied: CI checks are failing, so the merge is blocked regardless of the analysis below."

// Engine converts a PRContext into a Verdict by running a bounded
// tool-augmented reasoning loop, with a deterministic rule-based fallback
// when reasoning fails. It never returns an error: every invocation ends
// with exactly one of the three decisions.
type Engine struct {
	reasoner driven.Reasoner
	tools    *ToolRegistry
	policy   Policy
}

// NewEngine creates an Engine bound to an immutable policy.
func NewEngine(reasoner driven.Reasoner, tools *ToolRegistry, policy Policy) *Engine {
	return &Engine{reasoner: reasoner, tools: tools, policy: policy}
}

// terminalDecision is the strict schema a terminal response must satisfy.
// Any deviation is treated as a reasoning failure, never as partial field
// extraction: ambiguity here risks a wrong merge.
type terminalDecision struct {
	Decision   string   `json:"decision"`
	RiskLevel  string   `json:"risk_level"`
	Reasoning  string   `json:"reasoning"`
	KeyFactors []string `json:"key_factors"`
}

// Decide runs the reasoning loop for one PR. The transcript is seeded with
// the policy system prompt and the serialized context; each round trip may
// request tool invocations, which are executed synchronously and injected
// in request order. At most policy.MaxIterations tool round trips are
// performed (so at most MaxIterations+1 provider calls) before the
// deterministic fallback forces termination.
func (e *Engine) Decide(ctx context.Context, prCtx *model.PRContext) model.Verdict {
	transcript := model.Transcript{}.Append(model.Turn{
		Kind: model.TurnUser,
		Text: serializeContext(prCtx, e.policy),
	})

	var toolsUsed []string

	for iteration := 0; iteration <= e.policy.MaxIterations; iteration++ {
		turn, err := e.reasoner.Converse(ctx, driven.ConverseRequest{
			SystemPrompt: e.policy.SystemPrompt,
			Transcript:   transcript,
			Tools:        e.tools.Schemas(),
		})
		if err != nil {
			slog.Warn("reasoning call failed", "pr", prCtx.Number, "iteration", iteration, "error", err)
			return e.fallback(prCtx, toolsUsed, fmt.Sprintf("reasoning call failed: %v", err))
		}

		if len(turn.ToolRequests) == 0 {
			return e.parseTerminal(prCtx, turn.Text, toolsUsed)
		}

		if iteration == e.policy.MaxIterations {
			// Bound reached with the model still asking for tools.
			return e.fallback(prCtx, toolsUsed, "iteration limit reached without a terminal response")
		}

		transcript = transcript.Append(model.Turn{
			Kind:         model.TurnAssistant,
			Text:         turn.Text,
			ToolRequests: turn.ToolRequests,
		})

		results := make([]model.ToolResult, 0, len(turn.ToolRequests))
		for _, req := range turn.ToolRequests {
			slog.Info("executing tool", "pr", prCtx.Number, "tool", req.Name)
			results = append(results, e.tools.Execute(ctx, req))
			toolsUsed = append(toolsUsed, req.Name)
		}

		transcript = transcript.Append(model.Turn{
			Kind:        model.TurnToolResults,
			ToolResults: results,
		})
	}

	// Unreachable: the loop always returns from within.
	return e.fallback(prCtx, toolsUsed, "reasoning loop exited without a decision")
}

// parseTerminal interprets a terminal response as a strict decision record.
// Malformed or incomplete structure triggers the deterministic fallback
// without retrying the reasoning call. A parseable record with an
// unrecognized decision tag coerces to REQUIRE_APPROVAL.
func (e *Engine) parseTerminal(prCtx *model.PRContext, text string, toolsUsed []string) model.Verdict {
	raw := jsonObjectPattern.FindString(text)
	if raw == "" {
		return e.fallback(prCtx, toolsUsed, "terminal response contained no JSON decision record")
	}

	var record terminalDecision
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return e.fallback(prCtx, toolsUsed, fmt.Sprintf("terminal response was not valid JSON: %v", err))
	}
	if record.Decision == "" || record.RiskLevel == "" || record.Reasoning == "" {
		return e.fallback(prCtx, toolsUsed, "terminal response was missing required decision fields")
	}

	decision, recognized := model.ParseDecision(record.Decision)
	if !recognized {
		slog.Warn("unrecognized decision tag, coercing to REQUIRE_APPROVAL", "pr", prCtx.Number, "decision", record.Decision)
	}
	risk, _ := model.ParseRiskLevel(record.RiskLevel)

	verdict := model.Verdict{
		Decision:   decision,
		Risk:       risk,
		Rationale:  record.Reasoning,
		KeyFactors: record.KeyFactors,
		ToolsUsed:  toolsUsed,
	}

	return applyCIOverride(prCtx, verdict)
}

// fallback is the deterministic rule-based decision used when the reasoning
// provider errors, exceeds its iteration budget, or returns an unparseable
// terminal response. The cause is surfaced in the rationale for the audit
// trail.
func (e *Engine) fallback(prCtx *model.PRContext, toolsUsed []string, cause string) model.Verdict {
	verdict := model.Verdict{
		ToolsUsed:     toolsUsed,
		FallbackCause: cause,
	}

	switch {
	case prCtx.CIStatus == model.CIStatusFailure:
		verdict.Decision = model.DecisionDoNotMerge
		verdict.Risk = model.RiskCritical
		verdict.Rationale = "CI checks are failing, so the update cannot be merged."
	case prCtx.UpdateType == model.UpdatePatch && prCtx.CIStatus == model.CIStatusSuccess:
		verdict.Decision = model.DecisionAutoMerge
		verdict.Risk = model.RiskLow
		verdict.Rationale = "Patch-level update with passing CI."
	case prCtx.IsSecurityUpdate && prCtx.CIStatus == model.CIStatusSuccess:
		verdict.Decision = model.DecisionAutoMerge
		verdict.Risk = model.RiskLow
		verdict.Rationale = "Security update with passing CI."
	default:
		verdict.Decision = model.DecisionRequireApproval
		verdict.Risk = model.RiskMedium
		verdict.Rationale = "The update could not be confidently classified as safe, so human review is required."
	}

	verdict.Rationale = fmt.Sprintf("Fallback applied: %s.\n\n%s", cause, verdict.Rationale)

	return applyCIOverride(prCtx, verdict)
}

// applyCIOverride enforces the non-negotiable invariant: no merge may ever
// be attempted against failing CI, irrespective of model output.
func applyCIOverride(prCtx *model.PRContext, verdict model.Verdict) model.Verdict {
	if prCtx.CIStatus != model.CIStatusFailure {
		return verdict
	}
	if verdict.Decision == model.DecisionDoNotMerge && verdict.Risk == model.RiskCritical && strings.HasPrefix(verdict.Rationale, ciOverrideNote) {
		return verdict
	}

	verdict.Decision = model.DecisionDoNotMerge
	verdict.Risk = model.RiskCritical
	verdict.Rationale = ciOverrideNote + "\n\n" + verdict.Rationale
	return verdict
}

// serializeContext renders the PRContext as the first user turn of the
// conversation, including the critical-dependency flag and the required
// response schema.
func serializeContext(prCtx *model.PRContext, policy Policy) string {
	labels := "none"
	if len(prCtx.Labels) > 0 {
		labels = strings.Join(prCtx.Labels, ", ")
	}

	files := "none"
	if len(prCtx.FilesChanged) > 0 {
		limit := min(len(prCtx.FilesChanged), 5)
		files = strings.Join(prCtx.FilesChanged[:limit], ", ")
	}

	body := "(empty)"
	if prCtx.Body != "" {
		body = truncate(prCtx.Body, 800)
	}

	ciConclusion := prCtx.CIConclusion
	if ciConclusion == "" {
		ciConclusion = "none"
	}

	var sb strings.Builder
	sb.WriteString("Analyze this dependency update PR and decide if it should be merged:\n\n")
	sb.WriteString("**PR Information:**\n")
	fmt.Fprintf(&sb, "- Title: %s\n", prCtx.Title)
	fmt.Fprintf(&sb, "- Dependency: %s\n", prCtx.DependencyName)
	fmt.Fprintf(&sb, "- Update: %s -> %s\n", prCtx.OldVersion, prCtx.NewVersion)
	fmt.Fprintf(&sb, "- Update Type: %s\n", prCtx.UpdateType)
	fmt.Fprintf(&sb, "- Security Update: %t\n", prCtx.IsSecurityUpdate)
	fmt.Fprintf(&sb, "- CI Status: %s\n", prCtx.CIStatus)
	fmt.Fprintf(&sb, "- CI Conclusion: %s\n", ciConclusion)
	fmt.Fprintf(&sb, "- Mergeable: %t (%s)\n", prCtx.Mergeable, prCtx.MergeableState)
	fmt.Fprintf(&sb, "- Draft: %t\n", prCtx.IsDraft)
	fmt.Fprintf(&sb, "- Labels: %s\n", labels)
	fmt.Fprintf(&sb, "- Critical Dependency: %t\n", policy.IsCriticalDependency(prCtx.DependencyName))
	fmt.Fprintf(&sb, "- Files Changed: %s\n", files)
	fmt.Fprintf(&sb, "\n**PR Body:**\n%s\n", body)
	sb.WriteString(`
Based on this information:
1. Assess the risk level (LOW, MEDIUM, HIGH, or CRITICAL)
2. Make a merge decision (AUTO_MERGE, REQUIRE_APPROVAL, or DO_NOT_MERGE)
3. Explain your reasoning in detail

Use the available tools to gather additional information if needed.

Respond in JSON format:
{
    "decision": "AUTO_MERGE|REQUIRE_APPROVAL|DO_NOT_MERGE",
    "risk_level": "LOW|MEDIUM|HIGH|CRITICAL",
    "reasoning": "Detailed explanation of your decision",
    "key_factors": ["factor 1", "factor 2"]
}`)

	return sb.String()
}
