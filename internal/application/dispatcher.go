package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
	"github.com/ericfisherdev/depsentry/internal/domain/port/driven"
)

// reviewLabels are attached when a PR is flagged for human review.
var reviewLabels = []string{"needs-review", "depsentry-flagged"}

// Dispatcher maps a verdict to exactly one external effect and posts the
// audit comment that makes the decision durable and user-visible. Effects
// fire once per invocation; there is no outcome polling and no retry.
type Dispatcher struct {
	gh               driven.GitHubClient
	strategy         model.MergeStrategy
	autoMergeEnabled bool
}

// NewDispatcher creates a Dispatcher with a static per-invocation merge
// strategy and auto-merge toggle; neither is decided by the engine.
func NewDispatcher(gh driven.GitHubClient, strategy model.MergeStrategy, autoMergeEnabled bool) *Dispatcher {
	return &Dispatcher{gh: gh, strategy: strategy, autoMergeEnabled: autoMergeEnabled}
}

// Dispatch posts the audit comment and performs the side effect the
// decision calls for. Comment and merge failures are returned to the caller
// as hard errors: by this point the decision is committed, so a silent
// inconsistency between stated decision and actual outcome must not be
// absorbed. Label attachment is best-effort.
func (d *Dispatcher) Dispatch(ctx context.Context, prCtx *model.PRContext, verdict model.Verdict) error {
	switch verdict.Decision {
	case model.DecisionAutoMerge:
		return d.autoMerge(ctx, prCtx, verdict)
	case model.DecisionRequireApproval:
		return d.requestReview(ctx, prCtx, verdict)
	case model.DecisionDoNotMerge:
		return d.block(ctx, prCtx, verdict)
	default:
		// The Decision type is closed; treat anything else as review.
		return d.requestReview(ctx, prCtx, verdict)
	}
}

func (d *Dispatcher) autoMerge(ctx context.Context, prCtx *model.PRContext, verdict model.Verdict) error {
	if !d.autoMergeEnabled {
		slog.Info("auto-merge disabled, flagging for review instead", "pr", prCtx.Number)
		body := buildAuditComment(prCtx, verdict, "✅ Auto-merge approved (auto-merge is disabled, flagging for review instead)")
		if err := d.gh.CreateIssueComment(ctx, prCtx.Number, body); err != nil {
			return fmt.Errorf("posting audit comment: %w", err)
		}
		d.addReviewLabels(ctx, prCtx.Number)
		return nil
	}

	body := buildAuditComment(prCtx, verdict, "✅ Auto-merge approved")
	if err := d.gh.CreateIssueComment(ctx, prCtx.Number, body); err != nil {
		return fmt.Errorf("posting audit comment: %w", err)
	}

	commitTitle := prCtx.Title
	commitMessage := fmt.Sprintf("Auto-merged by depsentry\n\nRisk: %s\n\n%s", verdict.Risk, truncate(verdict.Rationale, 500))

	slog.Info("merging pull request", "pr", prCtx.Number, "strategy", d.strategy)
	if err := d.gh.MergePullRequest(ctx, prCtx.Number, d.strategy, commitTitle, commitMessage); err != nil {
		// No second attempt: the PR state may have changed between
		// decision and action, and that inconsistency must surface.
		return fmt.Errorf("merge failed after decision was committed: %w", err)
	}

	slog.Info("pull request merged", "pr", prCtx.Number)
	return nil
}

func (d *Dispatcher) requestReview(ctx context.Context, prCtx *model.PRContext, verdict model.Verdict) error {
	body := buildAuditComment(prCtx, verdict, "👤 Human review required")
	if err := d.gh.CreateIssueComment(ctx, prCtx.Number, body); err != nil {
		return fmt.Errorf("posting audit comment: %w", err)
	}

	d.addReviewLabels(ctx, prCtx.Number)

	slog.Info("review requested", "pr", prCtx.Number)
	return nil
}

func (d *Dispatcher) block(ctx context.Context, prCtx *model.PRContext, verdict model.Verdict) error {
	body := buildAuditComment(prCtx, verdict, "❌ Cannot merge")
	if err := d.gh.CreateIssueComment(ctx, prCtx.Number, body); err != nil {
		return fmt.Errorf("posting audit comment: %w", err)
	}

	slog.Info("pull request blocked", "pr", prCtx.Number)
	return nil
}

// addReviewLabels attaches the review labels best-effort. The token often
// lacks label permission on forks; that must not fail the dispatch.
func (d *Dispatcher) addReviewLabels(ctx context.Context, prNumber int) {
	if err := d.gh.AddLabels(ctx, prNumber, reviewLabels); err != nil {
		slog.Warn("could not add review labels", "pr", prNumber, "error", err)
	}
}

// buildAuditComment renders the durable audit record for a decision. It is
// reproducible from the context, verdict, and headline alone.
func buildAuditComment(prCtx *model.PRContext, verdict model.Verdict, headline string) string {
	var sb strings.Builder

	sb.WriteString("🤖 **depsentry**\n\n")
	fmt.Fprintf(&sb, "**Decision**: %s\n", headline)
	fmt.Fprintf(&sb, "**Risk Level**: %s\n\n", verdict.Risk)
	fmt.Fprintf(&sb, "**Analysis**:\n%s\n\n", verdict.Rationale)

	if len(verdict.KeyFactors) > 0 {
		sb.WriteString("**Key Factors**:\n")
		for _, factor := range verdict.KeyFactors {
			fmt.Fprintf(&sb, "- %s\n", factor)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("**Context**:\n")
	fmt.Fprintf(&sb, "- Dependency: `%s`\n", prCtx.DependencyName)
	fmt.Fprintf(&sb, "- Update: `%s` → `%s` (%s)\n", prCtx.OldVersion, prCtx.NewVersion, prCtx.UpdateType)
	fmt.Fprintf(&sb, "- CI Status: %s\n", prCtx.CIStatus)

	if verdict.Decision == model.DecisionDoNotMerge {
		fmt.Fprintf(&sb, "- Mergeable: %t\n", prCtx.Mergeable)
	}

	if len(verdict.ToolsUsed) > 0 {
		fmt.Fprintf(&sb, "\n**Tools consulted**: %s\n", strings.Join(dedupe(verdict.ToolsUsed), ", "))
	}

	return sb.String()
}

// dedupe removes duplicate tool names while preserving first-seen order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
