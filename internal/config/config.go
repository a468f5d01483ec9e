// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
)

// Config holds the application configuration loaded from environment variables.
// Policy knobs (strategy, toggles, limits) are static per invocation and are
// never decided by the engine.
type Config struct {
	GitHubToken     string
	Repository      string // "owner/name"
	PRNumber        int    // 0 when not set; the CLI flag may supply it.
	AnthropicAPIKey string

	MergeStrategy   model.MergeStrategy
	AutoMerge       bool
	CriticalDeps    []string // Empty means use the built-in default list.
	MaxIterations   int
	DiffLimit       int
	Model           string
	SkipAuthorCheck bool
}

// Load reads configuration from environment variables and returns a validated
// Config. Required: GITHUB_TOKEN, GITHUB_REPOSITORY, ANTHROPIC_API_KEY.
// PR_NUMBER is optional here because the CLI flag can supply it.
// Optional variables with defaults: DEPSENTRY_MERGE_STRATEGY (squash),
// DEPSENTRY_AUTO_MERGE (true), DEPSENTRY_CRITICAL_DEPS (built-in list),
// DEPSENTRY_MAX_ITERATIONS (5), DEPSENTRY_DIFF_LIMIT (2000),
// DEPSENTRY_MODEL (claude-sonnet-4-5), DEPSENTRY_SKIP_AUTHOR_CHECK (false).
func Load() (*Config, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN is required")
	}

	repository := os.Getenv("GITHUB_REPOSITORY")
	if repository == "" {
		return nil, fmt.Errorf("GITHUB_REPOSITORY is required (owner/name)")
	}

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	prNumber := 0
	if v, ok := os.LookupEnv("PR_NUMBER"); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PR_NUMBER has invalid value %q: %w", v, err)
		}
		prNumber = parsed
	}

	strategy, ok := model.ParseMergeStrategy(os.Getenv("DEPSENTRY_MERGE_STRATEGY"))
	if !ok {
		return nil, fmt.Errorf("DEPSENTRY_MERGE_STRATEGY has invalid value %q: expected squash, merge, or rebase", os.Getenv("DEPSENTRY_MERGE_STRATEGY"))
	}

	// Optional variables treat empty the same as unset: CI workflows often
	// export blanks for inputs the user never filled in.
	autoMerge := true
	if v, ok := os.LookupEnv("DEPSENTRY_AUTO_MERGE"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DEPSENTRY_AUTO_MERGE has invalid value %q: %w", v, err)
		}
		autoMerge = parsed
	}

	maxIterations := 5
	if v, ok := os.LookupEnv("DEPSENTRY_MAX_ITERATIONS"); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("DEPSENTRY_MAX_ITERATIONS has invalid value %q: expected a positive integer", v)
		}
		maxIterations = parsed
	}

	diffLimit := 2000
	if v, ok := os.LookupEnv("DEPSENTRY_DIFF_LIMIT"); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("DEPSENTRY_DIFF_LIMIT has invalid value %q: expected a positive integer", v)
		}
		diffLimit = parsed
	}

	modelName := "claude-sonnet-4-5"
	if v, ok := os.LookupEnv("DEPSENTRY_MODEL"); ok && v != "" {
		modelName = v
	}

	skipAuthorCheck := false
	if v, ok := os.LookupEnv("DEPSENTRY_SKIP_AUTHOR_CHECK"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DEPSENTRY_SKIP_AUTHOR_CHECK has invalid value %q: %w", v, err)
		}
		skipAuthorCheck = parsed
	}

	var criticalDeps []string
	if v, ok := os.LookupEnv("DEPSENTRY_CRITICAL_DEPS"); ok && v != "" {
		for _, dep := range strings.Split(v, ",") {
			dep = strings.TrimSpace(dep)
			if dep != "" {
				criticalDeps = append(criticalDeps, dep)
			}
		}
	}

	return &Config{
		GitHubToken:     token,
		Repository:      repository,
		PRNumber:        prNumber,
		AnthropicAPIKey: anthropicKey,
		MergeStrategy:   strategy,
		AutoMerge:       autoMerge,
		CriticalDeps:    criticalDeps,
		MaxIterations:   maxIterations,
		DiffLimit:       diffLimit,
		Model:           modelName,
		SkipAuthorCheck: skipAuthorCheck,
	}, nil
}
