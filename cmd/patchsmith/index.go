package main

import (
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/patchsmith/patchsmith/pkg/config"
	"github.com/patchsmith/patchsmith/pkg/sandbox"
	"github.com/patchsmith/patchsmith/pkg/types"
)

func newIndexCmd(configPath *string) *cobra.Command {
	var repoURL, baseBranch string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a repository into the vector store without running a task",
		Long:  "Clones the repository, hashes it, and embeds only what changed since the last index. A repository that has not changed is skipped without any embedding calls.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			name := strings.TrimSuffix(path.Base(strings.TrimSuffix(repoURL, "/")), ".git")
			repo, err := a.store.UpsertRepository(ctx, types.Repository{
				ID:         uuid.NewString(),
				URL:        repoURL,
				Name:       name,
				BaseBranch: baseBranch,
			})
			if err != nil {
				return err
			}

			dir, err := os.MkdirTemp(cfg.Indexing.CheckoutsDir, "patchsmith-index-")
			if err != nil {
				return fmt.Errorf("failed to create checkout dir: %w", err)
			}
			if cfg.Indexing.KeepCheckouts {
				fmt.Fprintf(cmd.OutOrStdout(), "Keeping checkout at %s\n", dir)
			} else {
				defer os.RemoveAll(dir) //nolint:errcheck
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cloning %s (%s)...\n", repoURL, baseBranch)
			if err := sandbox.CloneShallow(ctx, repoURL, baseBranch, dir, cfg.GitHub.Token); err != nil {
				return err
			}

			res, err := a.indexer.IndexCheckout(ctx, repo, dir, "")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Skipped {
				fmt.Fprintf(out, "Index is up to date (root %s), nothing to embed\n", res.MerkleRoot)
				return nil
			}
			fmt.Fprintf(out, "Indexed %s\n", repoURL)
			fmt.Fprintf(out, "  root:    %s\n", res.MerkleRoot)
			fmt.Fprintf(out, "  changed: %d files\n", len(res.ChangedFiles))
			fmt.Fprintf(out, "  deleted: %d files\n", len(res.DeletedFiles))
			fmt.Fprintf(out, "  chunks:  %d\n", res.ChunkCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&repoURL, "repo", "r", "", "repository URL to index (required)")
	cmd.Flags().StringVarP(&baseBranch, "branch", "b", "main", "branch to index")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}
