package publish

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/patchsmith/patchsmith/pkg/llm/tokenizer"
)

// runGit executes one git command in dir and returns trimmed stdout.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w, stderr: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// hasWorkingTreeChanges reports whether the checkout has any uncommitted
// changes, staged or not.
func hasWorkingTreeChanges(ctx context.Context, dir string) (bool, error) {
	out, err := runGit(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// createBranch creates and checks out a new branch.
func createBranch(ctx context.Context, dir, name string) error {
	_, err := runGit(ctx, dir, "checkout", "-b", name)
	return err
}

// stageAll stages every change in the working tree, including deletions.
func stageAll(ctx context.Context, dir string) error {
	_, err := runGit(ctx, dir, "add", "-A")
	return err
}

// commit records the staged changes under the given identity and returns
// the new commit hash. Sandbox checkouts have no git identity configured,
// so the author is set per-invocation.
func commit(ctx context.Context, dir, name, email, message string) (string, error) {
	_, err := runGit(ctx, dir,
		"-c", "user.name="+name,
		"-c", "user.email="+email,
		"commit", "-m", message)
	if err != nil {
		return "", err
	}
	return runGit(ctx, dir, "rev-parse", "HEAD")
}

// push sends the current HEAD to the remote under the given branch name.
// remote may be a URL or a configured remote name.
func push(ctx context.Context, dir, remote, branch string) error {
	_, err := runGit(ctx, dir, "push", remote, "HEAD:refs/heads/"+branch)
	return err
}

// diffTokenBudget bounds how much of the staged diff is fed to message
// generation.
const diffTokenBudget = 1500

// diffSummary returns a stat summary plus a truncated diff of the staged
// changes, for feeding to message generation.
func diffSummary(ctx context.Context, dir, model string) string {
	stat, err := runGit(ctx, dir, "diff", "--cached", "--stat")
	if err != nil {
		return ""
	}

	diff, err := runGit(ctx, dir, "diff", "--cached")
	if err != nil {
		return stat
	}
	return stat + "\n\n" + truncateDiff(diff, model, diffTokenBudget)
}

// truncateDiff cuts the diff to roughly maxTokens under the model's
// encoding. When the encoder is unavailable it falls back to a byte
// budget of four bytes per token.
func truncateDiff(diff, model string, maxTokens int) string {
	count, err := tokenizer.CountTokens(model, diff)
	if err != nil {
		maxBytes := 4 * maxTokens
		if len(diff) <= maxBytes {
			return diff
		}
		return cutAtRune(diff, maxBytes) + "\n... (diff truncated)"
	}
	if count <= maxTokens {
		return diff
	}
	return cutAtRune(diff, len(diff)*maxTokens/count) + "\n... (diff truncated)"
}

// cutAtRune truncates s to at most n bytes, backing up so the cut never
// splits a multi-byte rune.
func cutAtRune(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
