package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/patchsmith/patchsmith/pkg/agent"
	"github.com/patchsmith/patchsmith/pkg/chunk"
	"github.com/patchsmith/patchsmith/pkg/config"
	"github.com/patchsmith/patchsmith/pkg/github"
	"github.com/patchsmith/patchsmith/pkg/indexer"
	"github.com/patchsmith/patchsmith/pkg/llm/openai"
	"github.com/patchsmith/patchsmith/pkg/merkle"
	"github.com/patchsmith/patchsmith/pkg/publish"
	"github.com/patchsmith/patchsmith/pkg/sandbox"
	"github.com/patchsmith/patchsmith/pkg/store"
	"github.com/patchsmith/patchsmith/pkg/vector"
	"github.com/patchsmith/patchsmith/pkg/workflow"
)

const version = "0.1.0"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "patchsmith",
		Short:         "Agent service that turns tasks into pull requests",
		Long:          "Patchsmith indexes a repository, retrieves relevant code, plans, edits, and opens a pull request for a natural-language task.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(newRunCmd(&configPath))
	cmd.AddCommand(newResumeCmd(&configPath))
	cmd.AddCommand(newIndexCmd(&configPath))
	return cmd
}

// app holds the wired pipeline components for one CLI invocation.
type app struct {
	cfg     *config.Config
	store   *store.Store
	indexer *indexer.Indexer
	service *workflow.Service
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close store: %v\n", err)
	}
}

// buildApp wires the full pipeline from configuration: metadata store,
// vector index, model providers, indexer, agents, publisher, sandboxes,
// and the orchestrator on top.
func buildApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	qdrantOpts := []vector.QdrantOption{vector.WithDimension(cfg.Embedding.Dimension)}
	if cfg.Vector.APIKey != "" {
		qdrantOpts = append(qdrantOpts, vector.WithAPIKey(cfg.Vector.APIKey))
	}
	idx := vector.NewQdrant(cfg.Vector.URL, cfg.Vector.Collection, qdrantOpts...)

	planLLM, err := openai.NewProvider(cfg.LLM.APIKey,
		openai.WithModel(cfg.LLM.PlanModel),
		openai.WithEmbeddingModel(cfg.Embedding.Model),
		openai.WithBaseURL(cfg.LLM.BaseURL))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create planning provider: %w", err)
	}
	editLLM, err := openai.NewProvider(cfg.LLM.APIKey,
		openai.WithModel(cfg.LLM.EditModel),
		openai.WithEmbeddingModel(cfg.Embedding.Model),
		openai.WithBaseURL(cfg.LLM.BaseURL))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create editing provider: %w", err)
	}

	hasher := merkle.NewHasher(
		merkle.WithMaxFileSize(cfg.Indexing.MaxFileSize),
		merkle.WithIgnoreGlobs(cfg.Indexing.IgnoreGlobs))
	chunker := chunk.New(
		chunk.WithWindow(cfg.Indexing.ChunkLines),
		chunk.WithMaxFileSize(cfg.Indexing.MaxFileSize))
	ix := indexer.New(st, idx, planLLM,
		indexer.WithBatchSize(cfg.Embedding.BatchSize),
		indexer.WithBatchDelay(cfg.Embedding.BatchDelay),
		indexer.WithMaxRetries(cfg.Embedding.MaxRetries),
		indexer.WithWriteBatch(cfg.Indexing.WriteBatch),
		indexer.WithHasher(hasher),
		indexer.WithChunker(chunker))

	planner := agent.NewPlanner(planLLM, idx,
		agent.WithPlanSteps(cfg.Agent.PlanSteps),
		agent.WithTopK(cfg.Agent.TopMatches))
	editor := agent.NewEditor(editLLM,
		agent.WithEditSteps(cfg.Agent.EditSteps))

	gh := github.NewClient(cfg.GitHub.Token, github.WithBaseURL(cfg.GitHub.BaseURL))
	pub := publish.NewPublisher(editLLM, gh,
		publish.WithBranchPrefix(cfg.Git.BranchPrefix),
		publish.WithAuthor(cfg.Git.AuthorName, cfg.Git.AuthorEmail))

	var sandboxOpts []sandbox.LocalOption
	if cfg.Sandbox.WorkDir != "" {
		sandboxOpts = append(sandboxOpts, sandbox.WithWorkRoot(cfg.Sandbox.WorkDir))
	}
	if cfg.Sandbox.ScratchDir != "" {
		sandboxOpts = append(sandboxOpts, sandbox.WithScratchDir(cfg.Sandbox.ScratchDir))
	}
	if cfg.Sandbox.CommandTimeout > 0 {
		sandboxOpts = append(sandboxOpts, sandbox.WithCommandTimeout(cfg.Sandbox.CommandTimeout))
	}
	sandboxes := sandbox.NewLocalProvider(sandboxOpts...)

	orchOpts := []workflow.Option{
		workflow.WithToken(cfg.GitHub.Token),
		workflow.WithEventBuffer(cfg.Agent.EventBuffer),
		workflow.WithRunTimeout(cfg.Sandbox.Timeout),
		workflow.WithKeepCheckouts(cfg.Indexing.KeepCheckouts),
	}
	if cfg.Indexing.CheckoutsDir != "" {
		orchOpts = append(orchOpts, workflow.WithWorkRoot(cfg.Indexing.CheckoutsDir))
	}
	orch := workflow.NewOrchestrator(st, sandboxes, ix, planner, editor, pub, orchOpts...)

	return &app{
		cfg:     cfg,
		store:   st,
		indexer: ix,
		service: workflow.NewService(orch, st),
	}, nil
}
