package application

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
	"github.com/ericfisherdev/depsentry/internal/domain/port/driven"
)

// ErrNoUpdateSignal is returned by the context builder when the PR title
// carries no recognizable dependency or version signal. The caller recovers
// by falling back to the conservative REQUIRE_APPROVAL decision; the
// pipeline never crashes on it.
var ErrNoUpdateSignal = errors.New("pull request title carries no dependency update signal")

// Title patterns for the two common dependency-bot phrasings.
// Dependency-name extraction is positional and best-effort: the name is
// whatever sits between the verb and the version expression. Do not assume
// it uniquely identifies the dependency.
var (
	bumpPattern     = regexp.MustCompile(`(?i)bump (.+?) from`)
	updateToPattern = regexp.MustCompile(`(?i)update (.+?) to`)
	fromToPattern   = regexp.MustCompile(`from ([\d.]+(?:-[\w.]+)?) to ([\d.]+(?:-[\w.]+)?)`)
	toOnlyPattern   = regexp.MustCompile(`(?i)to v?([\d.]+(?:-[\w.]+)?)\s*$`)
	cvePattern      = regexp.MustCompile(`(?i)CVE-\d+`)
)

// ContextBuilder normalizes raw PR and CI data into an immutable PRContext.
// It depends only on the GitHubClient port.
type ContextBuilder struct {
	gh     driven.GitHubClient
	policy Policy
}

// NewContextBuilder creates a ContextBuilder with the given dependencies.
func NewContextBuilder(gh driven.GitHubClient, policy Policy) *ContextBuilder {
	return &ContextBuilder{gh: gh, policy: policy}
}

// Build fetches the PR metadata and delegates to BuildFromRaw.
func (b *ContextBuilder) Build(ctx context.Context, prNumber int) (*model.PRContext, error) {
	raw, err := b.gh.FetchPullRequest(ctx, prNumber)
	if err != nil {
		return nil, err
	}
	return b.BuildFromRaw(ctx, raw)
}

// BuildFromRaw assembles a PRContext from already-fetched PR metadata. CI
// and changed-file lookups are soft failures: an unreachable checks API
// yields CIStatusUnknown and an empty file list rather than an error.
//
// When the title carries no dependency signal at all, BuildFromRaw returns
// the partially built context together with ErrNoUpdateSignal so the caller
// can still post an explanatory comment.
func (b *ContextBuilder) BuildFromRaw(ctx context.Context, raw *driven.RawPullRequest) (*model.PRContext, error) {
	ciStatus := model.CIStatusUnknown
	ciConclusion := ""
	if status, conclusion, err := b.gh.FetchCIStatus(ctx, raw.HeadSHA); err != nil {
		slog.Warn("could not fetch CI status", "pr", raw.Number, "error", err)
	} else {
		ciStatus = model.NormalizeCIStatus(status)
		ciConclusion = conclusion
	}

	files, err := b.gh.FetchFilesChanged(ctx, raw.Number, b.policy.FilesChangedLimit)
	if err != nil {
		slog.Warn("could not fetch changed files", "pr", raw.Number, "error", err)
		files = nil
	}

	dependency, oldVersion, newVersion, updateType := parseDependencyInfo(raw.Title)

	prCtx := &model.PRContext{
		Number:           raw.Number,
		Title:            raw.Title,
		Body:             raw.Body,
		Labels:           raw.Labels,
		Author:           raw.Author,
		IsDraft:          raw.IsDraft,
		Mergeable:        raw.Mergeable,
		MergeableState:   raw.MergeableState,
		CIStatus:         ciStatus,
		CIConclusion:     ciConclusion,
		UpdateType:       updateType,
		OldVersion:       oldVersion,
		NewVersion:       newVersion,
		DependencyName:   dependency,
		IsSecurityUpdate: isSecurityUpdate(raw.Labels, raw.Body),
		TargetBranch:     raw.TargetBranch,
		FilesChanged:     files,
	}

	if dependency == "" && oldVersion == "" && newVersion == "" {
		prCtx.DependencyName = "unknown"
		return prCtx, ErrNoUpdateSignal
	}
	if dependency == "" {
		prCtx.DependencyName = "unknown"
	}

	return prCtx, nil
}

// parseDependencyInfo extracts the dependency name, version delta, and
// update classification from a PR title. Supports the Dependabot phrasing
// ("Bump X from A to B") and the Renovate phrasing ("Update X to B").
func parseDependencyInfo(title string) (dependency, oldVersion, newVersion string, updateType model.UpdateType) {
	updateType = model.UpdateUnknown

	if m := bumpPattern.FindStringSubmatch(title); m != nil {
		dependency = strings.TrimSpace(m[1])
	} else if m := updateToPattern.FindStringSubmatch(title); m != nil {
		dependency = strings.TrimSpace(m[1])
	}

	if m := fromToPattern.FindStringSubmatch(title); m != nil {
		oldVersion = m[1]
		newVersion = m[2]
	} else if m := toOnlyPattern.FindStringSubmatch(title); m != nil {
		newVersion = m[1]
	}

	if newVersion != "" {
		updateType = model.ClassifyUpdate(parseVersionTriple(oldVersion), parseVersionTriple(newVersion))
	}

	return dependency, oldVersion, newVersion, updateType
}

// parseVersionTriple splits a version string into a (major, minor, patch)
// triple. Pre-release suffixes are stripped and unparseable segments
// default to 0, so "latest" compares as 0.0.0.
func parseVersionTriple(version string) model.VersionTriple {
	version, _, _ = strings.Cut(version, "-")
	parts := strings.Split(version, ".")

	segment := func(i int) int {
		if i >= len(parts) {
			return 0
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0
		}
		return n
	}

	return model.VersionTriple{
		Major: segment(0),
		Minor: segment(1),
		Patch: segment(2),
	}
}

// isSecurityUpdate applies the best-effort security heuristic: a label
// containing "security", a CVE identifier in the body, or the literal word
// "vulnerability". This is not a vulnerability-database query; that is a
// tool invoked by the decision engine.
func isSecurityUpdate(labels []string, body string) bool {
	for _, label := range labels {
		if strings.Contains(strings.ToLower(label), "security") {
			return true
		}
	}
	if cvePattern.MatchString(body) {
		return true
	}
	return strings.Contains(strings.ToLower(body), "vulnerability")
}
