// Package publish turns staged edits into a commit, a pushed branch, and a
// pull request. Publishing is the only stage with external side effects, so
// it is guarded twice: it requires at least one recorded edit AND a dirty
// working tree before any branch is created.
package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patchsmith/patchsmith/pkg/github"
	"github.com/patchsmith/patchsmith/pkg/llm"
	"github.com/patchsmith/patchsmith/pkg/logging"
	"github.com/patchsmith/patchsmith/pkg/sandbox"
	"github.com/patchsmith/patchsmith/pkg/types"
)

var publishLog *logging.Logger

func init() {
	var err error
	publishLog, err = logging.NewLogger("publish")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		publishLog.Warnf("Failed to initialize publish logger, using stderr fallback: %v", err)
	}
}

const (
	defaultBranchPrefix = "patchsmith"
	defaultAuthorName   = "patchsmith"
	defaultAuthorEmail  = "patchsmith@localhost"
)

// PRCreator opens pull requests. *github.Client satisfies it.
type PRCreator interface {
	CreatePullRequest(ctx context.Context, input github.PullRequestInput) (*github.PullRequest, error)
}

// Publisher commits, pushes, and opens pull requests for completed runs.
type Publisher struct {
	provider     llm.Provider
	prs          PRCreator
	branchPrefix string
	authorName   string
	authorEmail  string
	now          func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithBranchPrefix overrides the branch name prefix.
func WithBranchPrefix(prefix string) PublisherOption {
	return func(p *Publisher) {
		if prefix != "" {
			p.branchPrefix = prefix
		}
	}
}

// WithAuthor overrides the git identity commits are recorded under.
func WithAuthor(name, email string) PublisherOption {
	return func(p *Publisher) {
		if name != "" {
			p.authorName = name
		}
		if email != "" {
			p.authorEmail = email
		}
	}
}

// WithClock overrides the time source used in branch names.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a Publisher.
func NewPublisher(provider llm.Provider, prs PRCreator, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		provider:     provider,
		prs:          prs,
		branchPrefix: defaultBranchPrefix,
		authorName:   defaultAuthorName,
		authorEmail:  defaultAuthorEmail,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request carries everything the publish stage needs.
type Request struct {
	WorkDir    string
	RepoURL    string
	BaseBranch string
	Task       string
	Edits      []types.EditedFile

	// Token authenticates the push and the PR creation. When empty the
	// push goes to the checkout's configured origin remote.
	Token string
}

// Result records what was published.
type Result struct {
	BranchName string
	CommitHash string
	PRURL      string
	PRNumber   int
}

// Publish validates preconditions, commits the working tree to a fresh
// branch, pushes it, and opens a pull request. No branch is created unless
// both preconditions hold.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	if len(req.Edits) == 0 {
		return nil, fmt.Errorf("no changes detected: no edits were recorded")
	}

	dirty, err := hasWorkingTreeChanges(ctx, req.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect working tree: %w", err)
	}
	if !dirty {
		return nil, fmt.Errorf("no changes detected: working tree is clean")
	}

	owner, repo, err := github.ParseRepoURL(req.RepoURL)
	if err != nil {
		return nil, err
	}

	branch := p.branchName(req.Task)
	if err := createBranch(ctx, req.WorkDir, branch); err != nil {
		return nil, fmt.Errorf("failed to create branch: %w", err)
	}

	if err := stageAll(ctx, req.WorkDir); err != nil {
		return nil, fmt.Errorf("failed to stage changes: %w", err)
	}

	diff := diffSummary(ctx, req.WorkDir, p.provider.GetModel())
	message := generateCommitMessage(ctx, p.provider, req.Task, req.Edits, diff)

	hash, err := commit(ctx, req.WorkDir, p.authorName, p.authorEmail, message)
	if err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	publishLog.Infof("Committed %s on %s", hash, branch)

	remote := "origin"
	if req.Token != "" {
		remote, err = sandbox.AuthenticatedURL(req.RepoURL, req.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to build push URL: %w", err)
		}
	}
	if err := push(ctx, req.WorkDir, remote, branch); err != nil {
		return nil, fmt.Errorf("failed to push branch: %w", err)
	}

	content := generatePRContent(ctx, p.provider, req.Task, message, diff)
	pr, err := p.prs.CreatePullRequest(ctx, github.PullRequestInput{
		Owner: owner,
		Repo:  repo,
		Title: content.Title,
		Body:  content.Description,
		Head:  branch,
		Base:  req.BaseBranch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pull request: %w", err)
	}

	publishLog.Infof("Opened PR #%d: %s", pr.Number, pr.HTMLURL)
	return &Result{
		BranchName: branch,
		CommitHash: hash,
		PRURL:      pr.HTMLURL,
		PRNumber:   pr.Number,
	}, nil
}

// branchName derives a branch name from the task: prefix, slug, timestamp.
func (p *Publisher) branchName(task string) string {
	return fmt.Sprintf("%s/%s-%d", p.branchPrefix, slugify(task), p.now().Unix())
}

// slugify reduces a task description to a short branch-safe slug.
func slugify(s string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(firstLine(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		case lastDash:
			// collapse runs of separators
		default:
			sb.WriteByte('-')
			lastDash = true
		}
		if sb.Len() >= 40 {
			break
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if slug == "" {
		return "task"
	}
	return slug
}
