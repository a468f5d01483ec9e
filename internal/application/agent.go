package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
	"github.com/ericfisherdev/depsentry/internal/domain/port/driven"
)

// knownBotAuthors are the dependency-update bots whose PRs the agent will
// process without the skip-author-check escape hatch.
var knownBotAuthors = []string{"dependabot[bot]", "dependabot", "renovate[bot]", "renovate"}

// Agent is the perceive -> decide -> act pipeline for one pull request.
// It is stateless across invocations: every Run builds its own context and
// transcript and discards them on completion.
type Agent struct {
	gh              driven.GitHubClient
	builder         *ContextBuilder
	engine          *Engine
	dispatcher      *Dispatcher
	skipAuthorCheck bool
}

// NewAgent wires the pipeline components together.
func NewAgent(gh driven.GitHubClient, builder *ContextBuilder, engine *Engine, dispatcher *Dispatcher, skipAuthorCheck bool) *Agent {
	return &Agent{
		gh:              gh,
		builder:         builder,
		engine:          engine,
		dispatcher:      dispatcher,
		skipAuthorCheck: skipAuthorCheck,
	}
}

// Run processes exactly one PR start to finish. A PR that does not look
// like a dependency update is skipped without error. Context-build and
// reasoning failures are absorbed into conservative decisions; only a
// failure of the final action step propagates, because by then the decision
// has been committed to the audit trail.
func (a *Agent) Run(ctx context.Context, prNumber int) error {
	raw, err := a.gh.FetchPullRequest(ctx, prNumber)
	if err != nil {
		return fmt.Errorf("gathering PR metadata: %w", err)
	}

	if !a.isDependencyPR(raw) {
		slog.Info("not a dependency update PR, skipping", "pr", prNumber, "author", raw.Author)
		return nil
	}

	prCtx, err := a.builder.BuildFromRaw(ctx, raw)
	if err != nil && !errors.Is(err, ErrNoUpdateSignal) {
		return fmt.Errorf("building PR context: %w", err)
	}

	var verdict model.Verdict
	if errors.Is(err, ErrNoUpdateSignal) {
		// Conservative default: the title could not be parsed, so require
		// a human rather than guessing.
		slog.Warn("context build failed, requiring approval", "pr", prNumber, "error", err)
		verdict = model.Verdict{
			Decision:      model.DecisionRequireApproval,
			Risk:          model.RiskMedium,
			Rationale:     "The PR title could not be parsed as a dependency update, so no automated decision was made. Please review manually.",
			FallbackCause: err.Error(),
		}
	} else {
		slog.Info("context built",
			"pr", prCtx.Number,
			"dependency", prCtx.DependencyName,
			"update", fmt.Sprintf("%s -> %s", prCtx.OldVersion, prCtx.NewVersion),
			"type", prCtx.UpdateType,
			"ci", prCtx.CIStatus,
			"security", prCtx.IsSecurityUpdate,
		)
		verdict = a.engine.Decide(ctx, prCtx)
	}

	slog.Info("decision reached",
		"pr", prNumber,
		"decision", verdict.Decision,
		"risk", verdict.Risk,
		"tools_used", len(verdict.ToolsUsed),
		"fallback", verdict.FallbackCause != "",
	)

	return a.dispatcher.Dispatch(ctx, prCtx, verdict)
}

// isDependencyPR reports whether the PR looks like a dependency update:
// authored by a known bot (unless the check is skipped) and carrying a
// dependency label or a bump/update title.
func (a *Agent) isDependencyPR(raw *driven.RawPullRequest) bool {
	if !a.skipAuthorCheck {
		known := false
		for _, bot := range knownBotAuthors {
			if raw.Author == bot {
				known = true
				break
			}
		}
		if !known {
			return false
		}
	}

	for _, label := range raw.Labels {
		if strings.Contains(strings.ToLower(label), "dep") {
			return true
		}
	}

	title := strings.ToLower(raw.Title)
	return strings.Contains(title, "bump") || strings.Contains(title, "update")
}
