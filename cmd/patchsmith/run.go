package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/patchsmith/patchsmith/pkg/config"
	"github.com/patchsmith/patchsmith/pkg/types"
	"github.com/patchsmith/patchsmith/pkg/workflow"
)

func newRunCmd(configPath *string) *cobra.Command {
	var repoURL, baseBranch string

	cmd := &cobra.Command{
		Use:   "run \"task description\"",
		Short: "Run a task end to end and open a pull request",
		Args:  cobra.ExactArgs(1),
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

			run, err := a.service.CreateTask(ctx, workflow.TaskRequest{
				Task:       args[0],
				RepoURL:    repoURL,
				BaseBranch: baseBranch,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s started\n", run.ID)

			return followRun(ctx, cmd.OutOrStdout(), a.service, run.ID)
		},
	}

	cmd.Flags().StringVarP(&repoURL, "repo", "r", "", "repository URL to work on (required)")
	cmd.Flags().StringVarP(&baseBranch, "branch", "b", "main", "base branch to index and target")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func newResumeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume a checkpointed run from its last completed stage",
		Args:  cobra.ExactArgs(1),
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

			run, err := a.service.Resume(ctx, args[0])
			if err != nil {
				return err
			}
			if run.CurrentStep.Terminal() {
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s already finished with %s\n", run.ID, run.CurrentStep)
				printSummary(cmd.OutOrStdout(), run)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s resumed at %s\n", run.ID, run.CurrentStep)

			return followRun(ctx, cmd.OutOrStdout(), a.service, run.ID)
		},
	}
}

// followRun streams events until the run reaches a terminal step, prints
// a summary, and returns an error for anything other than a created PR.
// An interrupt requests a stop; the run then cancels at the next stage
// boundary.
func followRun(ctx context.Context, out io.Writer, svc *workflow.Service, runID string) error {
	go func() {
		<-ctx.Done()
		_ = svc.Stop(runID)
	}()

	for ev := range svc.Events() {
		if ev.RunID != runID {
			continue
		}
		switch ev.Type {
		case types.EventStepStart:
			fmt.Fprintf(out, "  -> %s\n", ev.Message)
		case types.EventStepComplete:
			fmt.Fprintf(out, "  <- %s\n", ev.Step)
		case types.EventRunError:
			fmt.Fprintf(out, "  !! %s\n", ev.Message)
		case types.EventRunTerminal:
			fmt.Fprintf(out, "Run finished: %s\n", ev.Step)
		}
		if ev.Type == types.EventRunTerminal {
			break
		}
	}
	svc.Wait()

	final, err := svc.GetRun(context.Background(), runID)
	if err != nil {
		return err
	}
	printSummary(out, final)

	if final.Status != types.StatusCompleted {
		return fmt.Errorf("run %s finished with status %s", final.ID, final.Status)
	}
	return nil
}

func printSummary(out io.Writer, run *types.RunState) {
	fmt.Fprintf(out, "\nStatus:  %s\n", run.Status)
	if run.BranchName != "" {
		fmt.Fprintf(out, "Branch:  %s\n", run.BranchName)
	}
	if run.CommitHash != "" {
		fmt.Fprintf(out, "Commit:  %s\n", run.CommitHash)
	}
	if run.PRURL != "" {
		fmt.Fprintf(out, "PR:      %s\n", run.PRURL)
	}
	if len(run.EditedFiles) > 0 {
		files := make([]string, 0, len(run.EditedFiles))
		for _, f := range run.EditedFiles {
			files = append(files, f.FilePath)
		}
		fmt.Fprintf(out, "Edited:  %s\n", strings.Join(files, ", "))
	}
	for _, msg := range run.Errors {
		fmt.Fprintf(out, "Error:   %s\n", msg)
	}
}
