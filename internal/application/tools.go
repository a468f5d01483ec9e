package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
	"github.com/ericfisherdev/depsentry/internal/domain/port/driven"
)

// Names of the closed tool registry. Dispatch is an exhaustive switch over
// these; an unrecognized name is a textual error result, never a panic.
const (
	ToolFetchReleaseNotes = "fetch_release_notes"
	ToolCheckVulnDB       = "check_vulnerability_database"
	ToolFetchDiff         = "fetch_diff"
)

// diffTruncationMarker is appended whenever tool output was cut, so the
// model knows information is missing.
const diffTruncationMarker = "\n... (truncated)"

// ToolRegistry executes the fixed set of evidence-gathering tools the
// reasoning provider may invoke. Every execution is synchronous and every
// failure mode is a textual result.
type ToolRegistry struct {
	gh        driven.GitHubClient
	diffLimit int
}

// NewToolRegistry creates a ToolRegistry. diffLimit bounds the characters
// of diff returned by fetch_diff.
func NewToolRegistry(gh driven.GitHubClient, diffLimit int) *ToolRegistry {
	return &ToolRegistry{gh: gh, diffLimit: diffLimit}
}

// Schemas declares the registry's tools for the reasoning provider.
func (r *ToolRegistry) Schemas() []driven.ToolSchema {
	return []driven.ToolSchema{
		{
			Name:        ToolFetchReleaseNotes,
			Description: "Fetch release notes for a specific version of a dependency to check for breaking changes, new features, or important updates",
			Properties: map[string]driven.ToolProperty{
				"dependency": {Type: "string", Description: "Name of the dependency"},
				"version":    {Type: "string", Description: "Version number"},
			},
			Required: []string{"dependency", "version"},
		},
		{
			Name:        ToolCheckVulnDB,
			Description: "Check if a dependency version has known security vulnerabilities (CVEs)",
			Properties: map[string]driven.ToolProperty{
				"dependency": {Type: "string", Description: "Name of the dependency"},
				"version":    {Type: "string", Description: "Version number"},
			},
			Required: []string{"dependency", "version"},
		},
		{
			Name:        ToolFetchDiff,
			Description: "Get the actual code changes in the PR to understand what files are being modified",
			Properties: map[string]driven.ToolProperty{
				"pr_number": {Type: "integer", Description: "Pull request number"},
			},
			Required: []string{"pr_number"},
		},
	}
}

type dependencyVersionInput struct {
	Dependency string `json:"dependency"`
	Version    string `json:"version"`
}

type prNumberInput struct {
	PRNumber int `json:"pr_number"`
}

// Execute runs one requested tool call and returns its result. Underlying
// call failures come back as error-flagged textual results that are fed
// into the transcript so the model can adapt; the loop always continues.
func (r *ToolRegistry) Execute(ctx context.Context, req model.ToolRequest) model.ToolResult {
	result := model.ToolResult{ID: req.ID, Name: req.Name}

	switch req.Name {
	case ToolFetchReleaseNotes:
		var input dependencyVersionInput
		if err := json.Unmarshal(req.Input, &input); err != nil {
			return errorResult(result, fmt.Sprintf("invalid input for %s: %v", req.Name, err))
		}
		result.Content = r.fetchReleaseNotes(ctx, input.Dependency, input.Version)

	case ToolCheckVulnDB:
		var input dependencyVersionInput
		if err := json.Unmarshal(req.Input, &input); err != nil {
			return errorResult(result, fmt.Sprintf("invalid input for %s: %v", req.Name, err))
		}
		result.Content = r.checkVulnerabilities(ctx, input.Dependency, input.Version)

	case ToolFetchDiff:
		var input prNumberInput
		if err := json.Unmarshal(req.Input, &input); err != nil {
			return errorResult(result, fmt.Sprintf("invalid input for %s: %v", req.Name, err))
		}
		result.Content = r.fetchDiff(ctx, input.PRNumber)

	default:
		return errorResult(result, fmt.Sprintf("unknown tool: %s", req.Name))
	}

	return result
}

func errorResult(result model.ToolResult, message string) model.ToolResult {
	result.Content = message
	result.IsError = true
	return result
}

func (r *ToolRegistry) fetchReleaseNotes(ctx context.Context, dependency, version string) string {
	notes, err := r.gh.FetchReleaseNotes(ctx, dependency, version)
	if err != nil {
		return fmt.Sprintf("could not fetch release notes for %s %s: %v", dependency, version, err)
	}
	if notes == "" {
		return fmt.Sprintf("not found: no published release notes for %s %s", dependency, version)
	}
	return truncate(notes, r.diffLimit)
}

func (r *ToolRegistry) checkVulnerabilities(ctx context.Context, dependency, version string) string {
	findings, err := r.gh.FetchVulnerabilities(ctx, dependency, version)
	if err != nil {
		return fmt.Sprintf("could not query vulnerability database for %s %s: %v", dependency, version, err)
	}
	if len(findings) == 0 {
		return fmt.Sprintf("no known vulnerabilities for %s %s", dependency, version)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d known vulnerabilities for %s %s:\n", len(findings), dependency, version)
	for _, f := range findings {
		fmt.Fprintf(&sb, "- %s (severity: %s): %s\n", f.ID, f.Severity, f.Summary)
	}
	return sb.String()
}

func (r *ToolRegistry) fetchDiff(ctx context.Context, prNumber int) string {
	diff, err := r.gh.FetchDiff(ctx, prNumber)
	if err != nil {
		return fmt.Sprintf("could not fetch diff for PR #%d: %v", prNumber, err)
	}
	return truncate(diff, r.diffLimit)
}

// truncate cuts s at limit characters and appends an explicit marker so the
// caller knows information was cut. A non-positive limit disables cutting.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + diffTruncationMarker
}
