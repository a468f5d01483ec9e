// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
)

// Sentinel errors returned by GitHubClient merge operations.
var (
	// ErrMergeConflict indicates the PR could not be merged because its
	// state changed between decision and action (conflict, already merged,
	// or branch protection rejected the merge).
	ErrMergeConflict = errors.New("pull request is not mergeable")
)

// RawPullRequest is the unprocessed PR metadata as the provider reports it.
// The context builder, not the adapter, derives update classification and
// security flags from it.
type RawPullRequest struct {
	Number         int
	Title          string
	Body           string
	Labels         []string
	Author         string
	IsDraft        bool
	Mergeable      bool
	MergeableState string
	TargetBranch   string
	HeadSHA        string
}

// VulnerabilityFinding is one advisory affecting a dependency version.
type VulnerabilityFinding struct {
	ID       string // GHSA or CVE identifier.
	Severity string
	Summary  string
}

// GitHubClient defines the driven port for the source-control provider.
// Read methods gather PR facts and reasoning evidence; write methods carry
// out the dispatched action.
type GitHubClient interface {
	// Read methods

	FetchPullRequest(ctx context.Context, prNumber int) (*RawPullRequest, error)
	// FetchCIStatus aggregates the check runs for the given ref into a raw
	// status string ("success", "failure", "pending") and an optional
	// conclusion. No check runs at all reports "pending".
	FetchCIStatus(ctx context.Context, ref string) (status, conclusion string, err error)
	// FetchFilesChanged returns up to limit changed file paths for the PR.
	FetchFilesChanged(ctx context.Context, prNumber int, limit int) ([]string, error)
	// FetchDiff returns the full unified diff of the PR.
	FetchDiff(ctx context.Context, prNumber int) (string, error)
	// FetchReleaseNotes returns the release body for the given dependency
	// version, trying both "vX.Y.Z" and "X.Y.Z" tags. Returns ("", nil)
	// when no matching release exists.
	FetchReleaseNotes(ctx context.Context, dependency, version string) (string, error)
	// FetchVulnerabilities queries the global security advisory database
	// for advisories affecting dependency@version.
	FetchVulnerabilities(ctx context.Context, dependency, version string) ([]VulnerabilityFinding, error)

	// Write methods

	CreateIssueComment(ctx context.Context, prNumber int, body string) error
	AddLabels(ctx context.Context, prNumber int, labels []string) error
	// MergePullRequest merges the PR with the given strategy and commit
	// title. Returns ErrMergeConflict when the provider rejects the merge
	// because of PR state.
	MergePullRequest(ctx context.Context, prNumber int, strategy model.MergeStrategy, commitTitle, commitMessage string) error
}
