// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/depsentry/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

// filesChangedDefaultLimit caps changed-file listings when the caller
// passes a non-positive limit.
const filesChangedDefaultLimit = 10

// Client implements the driven.GitHubClient port using the go-github library.
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
}

// NewClient creates a new GitHub API client for the given "owner/repo" with
// the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token, repoFullName string) (*Client, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:    client,
		owner: owner,
		repo:  repo,
	}, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, repoFullName string) (*Client, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:    client,
		owner: owner,
		repo:  repo,
	}, nil
}

// FetchPullRequest retrieves the raw metadata for a single pull request and
// maps it to the port type. It uses GetXxx() helper methods exclusively to
// avoid nil pointer panics.
func (c *Client) FetchPullRequest(ctx context.Context, prNumber int) (*driven.RawPullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, prNumber)
	if err != nil {
		return nil, fmt.Errorf("fetching PR %s/%s#%d: %w", c.owner, c.repo, prNumber, err)
	}

	logRateLimit(resp, "pulls/get", 0, 1)

	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return &driven.RawPullRequest{
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		Body:           pr.GetBody(),
		Labels:         labels,
		Author:         pr.GetUser().GetLogin(),
		IsDraft:        pr.GetDraft(),
		Mergeable:      pr.GetMergeable(),
		MergeableState: pr.GetMergeableState(),
		TargetBranch:   pr.GetBase().GetRef(),
		HeadSHA:        pr.GetHead().GetSHA(),
	}, nil
}

// FetchCIStatus aggregates all check runs for the given ref into a single
// raw status. No check runs reports pending; any incomplete run reports
// pending; all-success reports success; any failure, cancelled, or
// timed_out conclusion reports failure.
func (c *Client) FetchCIStatus(ctx context.Context, ref string) (string, string, error) {
	opts := &gh.ListCheckRunsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var allRuns []*gh.CheckRun

	for {
		result, resp, err := c.gh.Checks.ListCheckRunsForRef(ctx, c.owner, c.repo, ref, opts)
		if err != nil {
			return "", "", fmt.Errorf("listing check runs for %s/%s@%s (page %d): %w", c.owner, c.repo, ref, opts.Page, err)
		}

		logRateLimit(resp, "check-runs", opts.Page, len(result.CheckRuns))

		allRuns = append(allRuns, result.CheckRuns...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return aggregateCheckRuns(allRuns)
}

// aggregateCheckRuns collapses a set of check runs into (status, conclusion).
func aggregateCheckRuns(runs []*gh.CheckRun) (string, string, error) {
	if len(runs) == 0 {
		return "pending", "", nil
	}

	allSuccess := true
	for _, run := range runs {
		if run.GetStatus() != "completed" {
			return "pending", "", nil
		}
		switch run.GetConclusion() {
		case "failure", "cancelled", "timed_out":
			return "failure", "failure", nil
		case "success":
		default:
			// neutral, skipped, action_required: not a pass, not a hard fail.
			allSuccess = false
		}
	}

	if allSuccess {
		return "success", "success", nil
	}
	return "pending", "", nil
}

// FetchFilesChanged returns up to limit changed file paths for the PR.
func (c *Client) FetchFilesChanged(ctx context.Context, prNumber int, limit int) ([]string, error) {
	if limit <= 0 {
		limit = filesChangedDefaultLimit
	}

	opts := &gh.ListOptions{PerPage: 100}
	var paths []string

	for {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, c.owner, c.repo, prNumber, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files for %s/%s#%d (page %d): %w", c.owner, c.repo, prNumber, opts.Page, err)
		}

		for _, f := range files {
			paths = append(paths, f.GetFilename())
			if len(paths) >= limit {
				return paths, nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return paths, nil
}

// FetchDiff returns the full unified diff of the PR.
func (c *Client) FetchDiff(ctx context.Context, prNumber int) (string, error) {
	diff, resp, err := c.gh.PullRequests.GetRaw(ctx, c.owner, c.repo, prNumber, gh.RawOptions{Type: gh.Diff})
	if err != nil {
		return "", fmt.Errorf("fetching diff for %s/%s#%d: %w", c.owner, c.repo, prNumber, err)
	}

	logRateLimit(resp, "pulls/diff", 0, 1)

	return diff, nil
}

// FetchReleaseNotes looks up the published release body for the given
// dependency version. The dependency lives in its own repository, so the
// lookup targets "owner/name" when the name is already qualified and
// "<dependency>/<dependency>" when it is bare. Both "vX.Y.Z" and "X.Y.Z"
// tags are tried. Returns ("", nil) when no release matches.
func (c *Client) FetchReleaseNotes(ctx context.Context, dependency, version string) (string, error) {
	owner, repo := dependencyRepo(dependency)

	for _, tag := range []string{"v" + version, version} {
		release, resp, err := c.gh.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				continue
			}
			return "", fmt.Errorf("fetching release %s for %s/%s: %w", tag, owner, repo, err)
		}
		return release.GetBody(), nil
	}

	return "", nil
}

// dependencyRepo derives an owner/name pair from a dependency name. A bare
// package name is assumed to live under an org of the same name; this is a
// best-effort heuristic for registry-less lookup.
func dependencyRepo(dependency string) (string, string) {
	dependency = strings.TrimPrefix(dependency, "@")
	if owner, repo, ok := strings.Cut(dependency, "/"); ok && owner != "" && repo != "" {
		return owner, repo
	}
	return dependency, dependency
}

// FetchVulnerabilities queries GitHub's global security advisory database
// for advisories affecting dependency@version.
func (c *Client) FetchVulnerabilities(ctx context.Context, dependency, version string) ([]driven.VulnerabilityFinding, error) {
	opts := &gh.ListGlobalSecurityAdvisoriesOptions{
		Affects: gh.Ptr(fmt.Sprintf("%s@%s", dependency, version)),
	}

	advisories, resp, err := c.gh.SecurityAdvisories.ListGlobalSecurityAdvisories(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing advisories for %s@%s: %w", dependency, version, err)
	}

	logRateLimit(resp, "advisories", 0, len(advisories))

	findings := make([]driven.VulnerabilityFinding, 0, len(advisories))
	for _, adv := range advisories {
		id := adv.GetCVEID()
		if id == "" {
			id = adv.GetGHSAID()
		}
		findings = append(findings, driven.VulnerabilityFinding{
			ID:       id,
			Severity: adv.GetSeverity(),
			Summary:  adv.GetSummary(),
		})
	}

	return findings, nil
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
