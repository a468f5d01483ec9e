// Command depsentry analyzes one dependency-update pull request and merges,
// flags, or blocks it based on a tool-augmented reasoning loop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	anthropicadapter "github.com/ericfisherdev/depsentry/internal/adapter/driven/anthropic"
	githubadapter "github.com/ericfisherdev/depsentry/internal/adapter/driven/github"
	"github.com/ericfisherdev/depsentry/internal/application"
	"github.com/ericfisherdev/depsentry/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var prNumber int

	cmd := &cobra.Command{
		Use:   "depsentry",
		Short: "Decide whether a dependency-update PR should be merged, reviewed, or blocked",
		Long: `depsentry inspects a single dependency-update pull request, gathers
evidence (CI status, release notes, vulnerability advisories, the diff)
through a bounded reasoning loop, and executes exactly one action:
auto-merge, flag for human review, or block. Every decision is recorded
as an audit comment on the PR.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), prNumber)
		},
	}

	cmd.Flags().IntVar(&prNumber, "pr", 0, "pull request number (defaults to PR_NUMBER)")

	return cmd
}

func run(ctx context.Context, prFlag int) error {
	// .env is optional; real deployments (Actions workflows) set env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	prNumber := cfg.PRNumber
	if prFlag > 0 {
		prNumber = prFlag
	}
	if prNumber <= 0 {
		return fmt.Errorf("no pull request number: pass --pr or set PR_NUMBER")
	}

	slog.Info("config loaded",
		"repository", cfg.Repository,
		"pr", prNumber,
		"merge_strategy", cfg.MergeStrategy,
		"auto_merge", cfg.AutoMerge,
		"max_iterations", cfg.MaxIterations,
		"model", cfg.Model,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ghClient, err := githubadapter.NewClient(cfg.GitHubToken, cfg.Repository)
	if err != nil {
		return err
	}

	reasoner := anthropicadapter.NewClient(cfg.AnthropicAPIKey, cfg.Model)

	policy := application.DefaultPolicy()
	policy.MaxIterations = cfg.MaxIterations
	policy.DiffTruncateLimit = cfg.DiffLimit
	if len(cfg.CriticalDeps) > 0 {
		policy.CriticalDependencies = cfg.CriticalDeps
	}

	builder := application.NewContextBuilder(ghClient, policy)
	tools := application.NewToolRegistry(ghClient, policy.DiffTruncateLimit)
	engine := application.NewEngine(reasoner, tools, policy)
	dispatcher := application.NewDispatcher(ghClient, cfg.MergeStrategy, cfg.AutoMerge)
	agent := application.NewAgent(ghClient, builder, engine, dispatcher, cfg.SkipAuthorCheck)

	if err := agent.Run(ctx, prNumber); err != nil {
		return err
	}

	slog.Info("depsentry completed", "pr", prNumber)
	return nil
}
