package github

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
	"github.com/ericfisherdev/depsentry/internal/domain/port/driven"
)

// CreateIssueComment adds a PR-level comment (via the Issues API).
func (c *Client) CreateIssueComment(ctx context.Context, prNumber int, body string) error {
	comment := &gh.IssueComment{Body: gh.Ptr(body)}

	_, resp, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, prNumber, comment)
	if err != nil {
		return fmt.Errorf("creating comment on %s/%s#%d: %w", c.owner, c.repo, prNumber, err)
	}

	logRateLimit(resp, "issues/comment", 0, 1)

	return nil
}

// AddLabels attaches the given labels to the PR, creating them in the
// repository if they do not exist (GitHub does this implicitly).
func (c *Client) AddLabels(ctx context.Context, prNumber int, labels []string) error {
	_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, prNumber, labels)
	if err != nil {
		return fmt.Errorf("adding labels to %s/%s#%d: %w", c.owner, c.repo, prNumber, err)
	}

	logRateLimit(resp, "issues/labels", 0, len(labels))

	return nil
}

// MergePullRequest merges the PR using the given strategy. A 405 or 409
// from GitHub means the PR state changed between decision and action
// (conflict, already merged, branch protection); that is reported as
// driven.ErrMergeConflict so the dispatcher can surface it without retrying.
func (c *Client) MergePullRequest(ctx context.Context, prNumber int, strategy model.MergeStrategy, commitTitle, commitMessage string) error {
	opts := &gh.PullRequestOptions{
		CommitTitle: commitTitle,
		MergeMethod: string(strategy),
	}

	result, resp, err := c.gh.PullRequests.Merge(ctx, c.owner, c.repo, prNumber, commitMessage, opts)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusConflict) {
			return fmt.Errorf("merging %s/%s#%d: %w", c.owner, c.repo, prNumber, driven.ErrMergeConflict)
		}
		return fmt.Errorf("merging %s/%s#%d: %w", c.owner, c.repo, prNumber, err)
	}

	logRateLimit(resp, "pulls/merge", 0, 1)

	if !result.GetMerged() {
		return fmt.Errorf("merging %s/%s#%d: %s: %w", c.owner, c.repo, prNumber, result.GetMessage(), driven.ErrMergeConflict)
	}

	return nil
}
