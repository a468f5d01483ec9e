package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
	"github.com/ericfisherdev/depsentry/internal/domain/port/driven"
)

// --- Stub reasoner ---

// stubReasoner answers each Converse call via the respond function, which
// receives the 1-based call number and the request.
type stubReasoner struct {
	calls    int
	requests []driven.ConverseRequest
	respond  func(call int, req driven.ConverseRequest) (*driven.AssistantTurn, error)
}

func (s *stubReasoner) Converse(_ context.Context, req driven.ConverseRequest) (*driven.AssistantTurn, error) {
	s.calls++
	s.requests = append(s.requests, req)
	return s.respond(s.calls, req)
}

// --- Mock GitHub client for engine/tool tests ---

type mockGitHubForEngine struct {
	diff     string
	diffErr  error
	notes    string
	notesErr error
	findings []driven.VulnerabilityFinding
	vulnErr  error
}

func (m *mockGitHubForEngine) FetchPullRequest(_ context.Context, _ int) (*driven.RawPullRequest, error) {
	return nil, errors.New("not implemented")
}

func (m *mockGitHubForEngine) FetchCIStatus(_ context.Context, _ string) (string, string, error) {
	return "", "", errors.New("not implemented")
}

func (m *mockGitHubForEngine) FetchFilesChanged(_ context.Context, _ int, _ int) ([]string, error) {
	return nil, nil
}

func (m *mockGitHubForEngine) FetchDiff(_ context.Context, _ int) (string, error) {
	return m.diff, m.diffErr
}

func (m *mockGitHubForEngine) FetchReleaseNotes(_ context.Context, _, _ string) (string, error) {
	return m.notes, m.notesErr
}

func (m *mockGitHubForEngine) FetchVulnerabilities(_ context.Context, _, _ string) ([]driven.VulnerabilityFinding, error) {
	return m.findings, m.vulnErr
}

func (m *mockGitHubForEngine) CreateIssueComment(_ context.Context, _ int, _ string) error {
	return nil
}

func (m *mockGitHubForEngine) AddLabels(_ context.Context, _ int, _ []string) error {
	return nil
}

func (m *mockGitHubForEngine) MergePullRequest(_ context.Context, _ int, _ model.MergeStrategy, _, _ string) error {
	return nil
}

// --- Helpers ---

func newTestEngine(reasoner driven.Reasoner, maxIterations int) *Engine {
	policy := DefaultPolicy()
	policy.MaxIterations = maxIterations
	tools := NewToolRegistry(&mockGitHubForEngine{diff: "diff --git a/package.json"}, policy.DiffTruncateLimit)
	return NewEngine(reasoner, tools, policy)
}

func patchContext(ci model.CIStatus) *model.PRContext {
	return &model.PRContext{
		Number:         7,
		Title:          "Bump axios from 1.6.0 to 1.6.1",
		DependencyName: "axios",
		OldVersion:     "1.6.0",
		NewVersion:     "1.6.1",
		UpdateType:     model.UpdatePatch,
		CIStatus:       ci,
		Mergeable:      true,
	}
}

func terminalTurn(decision, risk, reasoning string) *driven.AssistantTurn {
	record := map[string]any{
		"decision":    decision,
		"risk_level":  risk,
		"reasoning":   reasoning,
		"key_factors": []string{"factor"},
	}
	raw, _ := json.Marshal(record)
	return &driven.AssistantTurn{Text: "Here is my decision:\n" + string(raw)}
}

func toolTurn(name string, input string) *driven.AssistantTurn {
	return &driven.AssistantTurn{
		Text: "Let me check.",
		ToolRequests: []model.ToolRequest{
			{ID: "toolu_01", Name: name, Input: json.RawMessage(input)},
		},
	}
}

// --- Tests ---

func TestDecide_TerminalOnFirstTurn(t *testing.T) {
	reasoner := &stubReasoner{
		respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
			return terminalTurn("AUTO_MERGE", "LOW", "Patch update, CI green."), nil
		},
	}
	engine := newTestEngine(reasoner, 5)

	verdict := engine.Decide(context.Background(), patchContext(model.CIStatusSuccess))

	assert.Equal(t, model.DecisionAutoMerge, verdict.Decision)
	assert.Equal(t, model.RiskLow, verdict.Risk)
	assert.Equal(t, "Patch update, CI green.", verdict.Rationale)
	assert.Equal(t, []string{"factor"}, verdict.KeyFactors)
	assert.Empty(t, verdict.FallbackCause)
	assert.Equal(t, 1, reasoner.calls)
}

func TestDecide_SeedTranscript(t *testing.T) {
	reasoner := &stubReasoner{
		respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
			return terminalTurn("AUTO_MERGE", "LOW", "ok"), nil
		},
	}
	engine := newTestEngine(reasoner, 5)

	engine.Decide(context.Background(), patchContext(model.CIStatusSuccess))

	require.Len(t, reasoner.requests, 1)
	req := reasoner.requests[0]
	assert.Equal(t, DefaultSystemPrompt, req.SystemPrompt)
	require.Len(t, req.Transcript, 1)
	assert.Equal(t, model.TurnUser, req.Transcript[0].Kind)
	assert.Contains(t, req.Transcript[0].Text, "Bump axios from 1.6.0 to 1.6.1")
	assert.Contains(t, req.Transcript[0].Text, "Update Type: patch")
	assert.Len(t, req.Tools, 3)
}

func TestDecide_ToolRoundTrip(t *testing.T) {
	reasoner := &stubReasoner{
		respond: func(call int, req driven.ConverseRequest) (*driven.AssistantTurn, error) {
			if call == 1 {
				return toolTurn(ToolFetchDiff, `{"pr_number": 7}`), nil
			}
			// The second call must carry the assistant turn and its result.
			require.Len(t, req.Transcript, 3)
			assert.Equal(t, model.TurnAssistant, req.Transcript[1].Kind)
			assert.Equal(t, model.TurnToolResults, req.Transcript[2].Kind)
			require.Len(t, req.Transcript[2].ToolResults, 1)
			assert.Equal(t, "toolu_01", req.Transcript[2].ToolResults[0].ID)
			assert.Contains(t, req.Transcript[2].ToolResults[0].Content, "diff --git")
			return terminalTurn("AUTO_MERGE", "LOW", "Lockfile-only change."), nil
		},
	}
	engine := newTestEngine(reasoner, 5)

	verdict := engine.Decide(context.Background(), patchContext(model.CIStatusSuccess))

	assert.Equal(t, 2, reasoner.calls)
	assert.Equal(t, model.DecisionAutoMerge, verdict.Decision)
	assert.Equal(t, []string{ToolFetchDiff}, verdict.ToolsUsed)
}

func TestDecide_UnknownToolBecomesErrorResult(t *testing.T) {
	reasoner := &stubReasoner{
		respond: func(call int, req driven.ConverseRequest) (*driven.AssistantTurn, error) {
			if call == 1 {
				return toolTurn("search_the_web", `{}`), nil
			}
			require.Len(t, req.Transcript, 3)
			result := req.Transcript[2].ToolResults[0]
			assert.True(t, result.IsError)
			assert.Contains(t, result.Content, "unknown tool: search_the_web")
			return terminalTurn("REQUIRE_APPROVAL", "MEDIUM", "Could not gather evidence."), nil
		},
	}
	engine := newTestEngine(reasoner, 5)

	verdict := engine.Decide(context.Background(), patchContext(model.CIStatusSuccess))

	assert.Equal(t, 2, reasoner.calls)
	assert.Equal(t, model.DecisionRequireApproval, verdict.Decision)
}

func TestDecide_IterationBoundForcesFallback(t *testing.T) {
	const bound = 3

	reasoner := &stubReasoner{
		respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
			// Never terminates: every turn requests another tool.
			return toolTurn(ToolFetchDiff, `{"pr_number": 7}`), nil
		},
	}
	engine := newTestEngine(reasoner, bound)

	verdict := engine.Decide(context.Background(), patchContext(model.CIStatusSuccess))

	// Exactly bound+1 provider invocations: bound tool round trips plus the
	// final call that still asked for tools.
	assert.Equal(t, bound+1, reasoner.calls)
	assert.Contains(t, verdict.FallbackCause, "iteration limit")
	// Patch + passing CI: deterministic fallback auto-merges.
	assert.Equal(t, model.DecisionAutoMerge, verdict.Decision)
	assert.Equal(t, model.RiskLow, verdict.Risk)
}

func TestDecide_FreeTextTerminalFallsBack(t *testing.T) {
	reasoner := &stubReasoner{
		respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
			return &driven.AssistantTurn{Text: "Looks fine to me, go ahead and merge it."}, nil
		},
	}
	engine := newTestEngine(reasoner, 5)

	verdict := engine.Decide(context.Background(), patchContext(model.CIStatusSuccess))

	assert.Equal(t, 1, reasoner.calls)
	assert.Contains(t, verdict.FallbackCause, "no JSON decision record")
	assert.Equal(t, model.DecisionAutoMerge, verdict.Decision)
	assert.Contains(t, verdict.Rationale, "Fallback applied")
}

func TestDecide_MissingDecisionFieldFallsBack(t *testing.T) {
	reasoner := &stubReasoner{
		respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
			return &driven.AssistantTurn{Text: `{"risk_level": "LOW", "reasoning": "fine"}`}, nil
		},
	}
	engine := newTestEngine(reasoner, 5)

	verdict := engine.Decide(context.Background(), patchContext(model.CIStatusSuccess))

	assert.Contains(t, verdict.FallbackCause, "missing required decision fields")
	assert.Equal(t, model.DecisionAutoMerge, verdict.Decision)
}

func TestDecide_ReasonerErrorFallsBack(t *testing.T) {
	reasoner := &stubReasoner{
		respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
			return nil, errors.New("connection timed out")
		},
	}
	engine := newTestEngine(reasoner, 5)

	verdict := engine.Decide(context.Background(), patchContext(model.CIStatusSuccess))

	assert.Equal(t, 1, reasoner.calls)
	assert.Contains(t, verdict.FallbackCause, "reasoning call failed")
	assert.Contains(t, verdict.Rationale, "connection timed out")
	assert.Equal(t, model.DecisionAutoMerge, verdict.Decision)
}

func TestDecide_UnrecognizedDecisionCoercesToRequireApproval(t *testing.T) {
	reasoner := &stubReasoner{
		respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
			return terminalTurn("ESCALATE", "HIGH", "Not sure."), nil
		},
	}
	engine := newTestEngine(reasoner, 5)

	verdict := engine.Decide(context.Background(), patchContext(model.CIStatusSuccess))

	// Parseable record with an unknown tag is coerced, not a fallback.
	assert.Empty(t, verdict.FallbackCause)
	assert.Equal(t, model.DecisionRequireApproval, verdict.Decision)
	assert.Equal(t, model.RiskHigh, verdict.Risk)
}

func TestDecide_CIFailureOverridesModelOutput(t *testing.T) {
	reasoner := &stubReasoner{
		respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
			return terminalTurn("AUTO_MERGE", "LOW", "Model insists it is safe."), nil
		},
	}
	engine := newTestEngine(reasoner, 5)

	verdict := engine.Decide(context.Background(), patchContext(model.CIStatusFailure))

	assert.Equal(t, model.DecisionDoNotMerge, verdict.Decision)
	assert.Equal(t, model.RiskCritical, verdict.Risk)
	assert.Contains(t, verdict.Rationale, "Safety override applied")
	assert.Contains(t, verdict.Rationale, "Model insists it is safe.")
}

func TestDecide_CIFailureOverridesEveryContextShape(t *testing.T) {
	// The override holds regardless of any other context field combination.
	contexts := []*model.PRContext{
		{CIStatus: model.CIStatusFailure, UpdateType: model.UpdatePatch, IsSecurityUpdate: true, Mergeable: true},
		{CIStatus: model.CIStatusFailure, UpdateType: model.UpdateMajor},
		{CIStatus: model.CIStatusFailure, UpdateType: model.UpdateUnknown, IsDraft: true},
		{CIStatus: model.CIStatusFailure, IsSecurityUpdate: true, Labels: []string{"security"}},
	}

	for _, prCtx := range contexts {
		reasoner := &stubReasoner{
			respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
				return terminalTurn("AUTO_MERGE", "LOW", "safe"), nil
			},
		}
		engine := newTestEngine(reasoner, 5)

		verdict := engine.Decide(context.Background(), prCtx)

		assert.Equal(t, model.DecisionDoNotMerge, verdict.Decision)
		assert.Equal(t, model.RiskCritical, verdict.Risk)
	}
}

// --- Deterministic fallback table (reasoner unavailable) ---

func TestFallbackPolicy(t *testing.T) {
	tests := []struct {
		name         string
		prCtx        *model.PRContext
		wantDecision model.Decision
		wantRisk     model.RiskLevel
	}{
		{
			name:         "patch with passing CI auto-merges",
			prCtx:        patchContext(model.CIStatusSuccess),
			wantDecision: model.DecisionAutoMerge,
			wantRisk:     model.RiskLow,
		},
		{
			name: "major with passing CI requires approval",
			prCtx: &model.PRContext{
				UpdateType: model.UpdateMajor,
				CIStatus:   model.CIStatusSuccess,
			},
			wantDecision: model.DecisionRequireApproval,
			wantRisk:     model.RiskMedium,
		},
		{
			name: "security update with passing CI auto-merges",
			prCtx: &model.PRContext{
				UpdateType:       model.UpdateMinor,
				CIStatus:         model.CIStatusSuccess,
				IsSecurityUpdate: true,
			},
			wantDecision: model.DecisionAutoMerge,
			wantRisk:     model.RiskLow,
		},
		{
			name: "failing CI blocks even a security patch",
			prCtx: &model.PRContext{
				UpdateType:       model.UpdatePatch,
				CIStatus:         model.CIStatusFailure,
				IsSecurityUpdate: true,
			},
			wantDecision: model.DecisionDoNotMerge,
			wantRisk:     model.RiskCritical,
		},
		{
			name: "pending CI requires approval",
			prCtx: &model.PRContext{
				UpdateType: model.UpdatePatch,
				CIStatus:   model.CIStatusPending,
			},
			wantDecision: model.DecisionRequireApproval,
			wantRisk:     model.RiskMedium,
		},
		{
			name: "unknown classification requires approval",
			prCtx: &model.PRContext{
				UpdateType: model.UpdateUnknown,
				CIStatus:   model.CIStatusSuccess,
			},
			wantDecision: model.DecisionRequireApproval,
			wantRisk:     model.RiskMedium,
		},
		{
			name: "unknown CI status requires approval",
			prCtx: &model.PRContext{
				UpdateType: model.UpdatePatch,
				CIStatus:   model.CIStatusUnknown,
			},
			wantDecision: model.DecisionRequireApproval,
			wantRisk:     model.RiskMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoner := &stubReasoner{
				respond: func(_ int, _ driven.ConverseRequest) (*driven.AssistantTurn, error) {
					return nil, errors.New("model unavailable")
				},
			}
			engine := newTestEngine(reasoner, 5)

			verdict := engine.Decide(context.Background(), tt.prCtx)

			assert.Equal(t, tt.wantDecision, verdict.Decision)
			assert.Equal(t, tt.wantRisk, verdict.Risk)
			assert.NotEmpty(t, verdict.FallbackCause)
		})
	}
}

func TestSerializeContext_CriticalDependencyFlag(t *testing.T) {
	policy := DefaultPolicy()

	reactCtx := &model.PRContext{DependencyName: "react", UpdateType: model.UpdateMajor}
	leftpadCtx := &model.PRContext{DependencyName: "left-pad", UpdateType: model.UpdatePatch}

	assert.Contains(t, serializeContext(reactCtx, policy), "Critical Dependency: true")
	assert.Contains(t, serializeContext(leftpadCtx, policy), "Critical Dependency: false")
}
