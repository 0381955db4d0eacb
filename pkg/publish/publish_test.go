package publish

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchsmith/patchsmith/pkg/github"
	"github.com/patchsmith/patchsmith/pkg/types"
)

// textProvider is an llm.Provider that only answers CompleteText.
type textProvider struct {
	textFn func(system, user string) (string, error)
}

func (p *textProvider) Complete(context.Context, []*types.Message) (*types.Message, error) {
	return nil, fmt.Errorf("not scripted")
}

func (p *textProvider) CompleteText(_ context.Context, system, user string) (string, error) {
	if p.textFn == nil {
		return "", fmt.Errorf("not scripted")
	}
	return p.textFn(system, user)
}

func (p *textProvider) Embed(context.Context, []string) ([][]float64, error) {
	return nil, fmt.Errorf("not scripted")
}

func (p *textProvider) GetModelInfo() *types.ModelInfo { return &types.ModelInfo{Name: "text"} }
func (p *textProvider) GetModel() string               { return "text" }
func (p *textProvider) GetBaseURL() string             { return "" }

type stubPRCreator struct {
	input github.PullRequestInput
	pr    *github.PullRequest
	err   error
	calls int
}

func (s *stubPRCreator) CreatePullRequest(_ context.Context, input github.PullRequestInput) (*github.PullRequest, error) {
	s.calls++
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return s.pr, nil
}

func gitEnv() []string {
	return append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
}

func runGitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = gitEnv()
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

// initWorkTree creates a bare "remote" and a clone of it with one commit.
func initWorkTree(t *testing.T) (bare, clone string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	bare = t.TempDir()
	runGitCmd(t, bare, "init", "--bare", "-b", "main")

	seed := t.TempDir()
	runGitCmd(t, seed, "init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(seed, "main.go"), []byte("package main\n"), 0o644))
	runGitCmd(t, seed, "add", ".")
	runGitCmd(t, seed, "commit", "-m", "initial")
	runGitCmd(t, seed, "push", bare, "main")

	clone = filepath.Join(t.TempDir(), "checkout")
	runGitCmd(t, t.TempDir(), "clone", bare, clone)
	return bare, clone
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Unix(1700000000, 0) }
}

func TestPublishHappyPath(t *testing.T) {
	bare, clone := initWorkTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(clone, "main.go"), []byte("package main // edited\n"), 0o644))

	provider := &textProvider{textFn: func(system, user string) (string, error) {
		if strings.Contains(system, "commit message") {
			return "fix(main): adjust package comment", nil
		}
		return `{"title": "Adjust package comment", "description": "## Summary\n\nEdits main.go"}`, nil
	}}

	prs := &stubPRCreator{pr: &github.PullRequest{Number: 12, HTMLURL: "https://github.com/acme/widgets/pull/12"}}
	publisher := NewPublisher(provider, prs, WithClock(fixedClock()))

	result, err := publisher.Publish(context.Background(), Request{
		WorkDir:    clone,
		RepoURL:    "https://github.com/acme/widgets.git",
		BaseBranch: "main",
		Task:       "Fix the package comment",
		Edits:      []types.EditedFile{{FilePath: "main.go", NewContent: "package main // edited\n"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "patchsmith/fix-the-package-comment-1700000000", result.BranchName)
	assert.NotEmpty(t, result.CommitHash)
	assert.Equal(t, "https://github.com/acme/widgets/pull/12", result.PRURL)
	assert.Equal(t, 12, result.PRNumber)

	// The PR targets the run's base branch from the new branch.
	assert.Equal(t, "acme", prs.input.Owner)
	assert.Equal(t, "widgets", prs.input.Repo)
	assert.Equal(t, result.BranchName, prs.input.Head)
	assert.Equal(t, "main", prs.input.Base)
	assert.Equal(t, "Adjust package comment", prs.input.Title)

	// The branch actually landed on the remote with the commit.
	remoteHash := runGitCmd(t, bare, "rev-parse", "refs/heads/"+result.BranchName)
	assert.Equal(t, result.CommitHash, remoteHash)

	subject := runGitCmd(t, clone, "log", "-1", "--format=%s")
	assert.Equal(t, "fix(main): adjust package comment", subject)
}

func TestPublishNoRecordedEdits(t *testing.T) {
	_, clone := initWorkTree(t)

	publisher := NewPublisher(&textProvider{}, &stubPRCreator{})
	_, err := publisher.Publish(context.Background(), Request{
		WorkDir:    clone,
		RepoURL:    "https://github.com/acme/widgets.git",
		BaseBranch: "main",
		Task:       "task",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no changes detected")
}

func TestPublishCleanTreeCreatesNoBranch(t *testing.T) {
	_, clone := initWorkTree(t)

	// An edit was recorded but the working tree has no diff.
	prs := &stubPRCreator{}
	publisher := NewPublisher(&textProvider{}, prs)
	_, err := publisher.Publish(context.Background(), Request{
		WorkDir:    clone,
		RepoURL:    "https://github.com/acme/widgets.git",
		BaseBranch: "main",
		Task:       "task",
		Edits:      []types.EditedFile{{FilePath: "main.go"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no changes detected")
	assert.Zero(t, prs.calls)

	// Still on the base branch, nothing was created.
	branch := runGitCmd(t, clone, "rev-parse", "--abbrev-ref", "HEAD")
	assert.Equal(t, "main", branch)
	branches := runGitCmd(t, clone, "branch", "--list")
	assert.NotContains(t, branches, "patchsmith/")
}

func TestPublishFallbackMessagesOnModelFailure(t *testing.T) {
	_, clone := initWorkTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(clone, "main.go"), []byte("package main // v2\n"), 0o644))

	provider := &textProvider{textFn: func(string, string) (string, error) {
		return "", fmt.Errorf("model down")
	}}
	prs := &stubPRCreator{pr: &github.PullRequest{Number: 1, HTMLURL: "https://example.com/pr/1"}}

	publisher := NewPublisher(provider, prs, WithClock(fixedClock()))
	result, err := publisher.Publish(context.Background(), Request{
		WorkDir:    clone,
		RepoURL:    "https://github.com/acme/widgets.git",
		BaseBranch: "main",
		Task:       "Update the main package\nwith more detail below",
		Edits:      []types.EditedFile{{FilePath: "main.go"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.PRURL)

	// Deterministic fallbacks: first task line as commit subject and title.
	subject := runGitCmd(t, clone, "log", "-1", "--format=%s")
	assert.Equal(t, "Update the main package", subject)
	assert.Equal(t, "Update the main package", prs.input.Title)
	assert.Contains(t, prs.input.Body, "## Summary")
}

func TestPublishPRCreationFailure(t *testing.T) {
	_, clone := initWorkTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(clone, "extra.go"), []byte("package main\n"), 0o644))

	prs := &stubPRCreator{err: fmt.Errorf("403 forbidden")}
	publisher := NewPublisher(&textProvider{}, prs, WithClock(fixedClock()))

	_, err := publisher.Publish(context.Background(), Request{
		WorkDir:    clone,
		RepoURL:    "https://github.com/acme/widgets.git",
		BaseBranch: "main",
		Task:       "add file",
		Edits:      []types.EditedFile{{FilePath: "extra.go"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pull request")
}

func TestPublishBadRepoURL(t *testing.T) {
	_, clone := initWorkTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(clone, "extra.go"), []byte("package main\n"), 0o644))

	publisher := NewPublisher(&textProvider{}, &stubPRCreator{})
	_, err := publisher.Publish(context.Background(), Request{
		WorkDir:    clone,
		RepoURL:    "https://github.com/acme",
		BaseBranch: "main",
		Task:       "task",
		Edits:      []types.EditedFile{{FilePath: "extra.go"}},
	})
	assert.Error(t, err)
}

func TestTruncateDiffKeepsRuneBoundaries(t *testing.T) {
	// Three-byte runes guarantee the byte budget lands mid-rune; the
	// token-count path computes its own cut point and gets the same
	// boundary treatment.
	diff := strings.Repeat("世", 2000)

	got := truncateDiff(diff, "no-such-model", 10)
	assert.NotEqual(t, diff, got)
	assert.True(t, strings.HasSuffix(got, "... (diff truncated)"))
	assert.True(t, utf8.ValidString(got))

	// Short input passes through untouched.
	assert.Equal(t, "short diff", truncateDiff("short diff", "no-such-model", 1500))
}

func TestCutAtRune(t *testing.T) {
	s := "a世b"
	assert.Equal(t, "a", cutAtRune(s, 2)) // byte 2 is mid-rune
	assert.Equal(t, "a世", cutAtRune(s, 4))
	assert.Equal(t, s, cutAtRune(s, 100))
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Fix the login bug", "fix-the-login-bug"},
		{"Add OAuth2 support!!!", "add-oauth2-support"},
		{"   ", "task"},
		{"multi\nline task", "multi"},
		{strings.Repeat("long ", 20), "long-long-long-long-long-long-long-long"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, slugify(tc.in), tc.in)
	}
}
