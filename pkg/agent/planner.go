package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/patchsmith/patchsmith/pkg/agent/prompts"
	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/llm"
	"github.com/patchsmith/patchsmith/pkg/sandbox"
	"github.com/patchsmith/patchsmith/pkg/tools/coding"
	"github.com/patchsmith/patchsmith/pkg/types"
	"github.com/patchsmith/patchsmith/pkg/vector"
)

const (
	defaultPlanSteps = 20
	defaultTopK      = 10
)

const plannerRolePrompt = `<role>
You are a senior software engineer planning a code change. You are given a
task description and read-only access to a repository checkout. Explore the
repository with the available tools until you understand which files must
change and how, then call finish_exploration with a prose summary of your
findings: the files involved, what each needs, and in what order.
</role>`

const planSchemaPrompt = `You are converting an exploration summary into a strict change plan.

Respond with ONLY a JSON object of this exact shape:
{
  "items": [
    {"action": "create|modify|delete", "filePath": "path/relative/to/repo/root", "description": "what to do in this file", "priority": 1}
  ],
  "relevantFiles": ["paths", "worth", "reading"]
}

Rules:
- priority is a positive integer; lower numbers are edited first
- action must be exactly one of create, modify, delete
- every filePath is relative to the repository root
- items must be non-empty`

// Planner produces a structured change plan for a task. Plan generation is
// two-phase: a tool-using exploration loop over the sandbox checkout, then
// a constrained call that coerces the exploration summary into a typed
// plan. Generation failures never fail the run: a deterministic fallback
// plan referencing the top semantic match is produced instead.
type Planner struct {
	provider llm.Provider
	index    vector.Index
	maxSteps int
	topK     int
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPlanSteps sets the exploration step budget.
func WithPlanSteps(n int) PlannerOption {
	return func(p *Planner) {
		if n > 0 {
			p.maxSteps = n
		}
	}
}

// WithTopK sets how many semantic matches seed the exploration.
func WithTopK(k int) PlannerOption {
	return func(p *Planner) {
		if k > 0 {
			p.topK = k
		}
	}
}

// NewPlanner creates a Planner. The index may be nil, in which case
// planning proceeds without semantic retrieval.
func NewPlanner(provider llm.Provider, index vector.Index, opts ...PlannerOption) *Planner {
	p := &Planner{
		provider: provider,
		index:    index,
		maxSteps: defaultPlanSteps,
		topK:     defaultTopK,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PlanResult bundles the plan with the retrieval context that produced it,
// so the orchestrator can checkpoint both.
type PlanResult struct {
	Plan    *types.Plan
	Matches []types.SemanticMatch

	// Fallback is true when plan generation failed and the deterministic
	// single-item plan was substituted.
	Fallback bool
}

// BuildPlan generates a plan for the task against the sandbox checkout.
func (p *Planner) BuildPlan(ctx context.Context, repo *types.Repository, sb sandbox.Sandbox, task string) (*PlanResult, error) {
	matches := p.retrieveMatches(ctx, repo, task)

	plan, err := p.generatePlan(ctx, sb, task, matches)
	if err != nil {
		agentLog.Warnf("Plan generation failed, using fallback plan: %v", err)
		return &PlanResult{
			Plan:     fallbackPlan(task, matches),
			Matches:  matches,
			Fallback: true,
		}, nil
	}

	return &PlanResult{Plan: plan, Matches: matches}, nil
}

// retrieveMatches embeds the task and queries the vector index. Retrieval
// is best-effort: any failure degrades to an empty match set.
func (p *Planner) retrieveMatches(ctx context.Context, repo *types.Repository, task string) []types.SemanticMatch {
	if p.index == nil {
		return nil
	}

	vectors, err := p.provider.Embed(ctx, []string{task})
	if err != nil || len(vectors) != 1 {
		agentLog.Warnf("Task embedding failed, planning without retrieval: %v", err)
		return nil
	}

	matches, err := p.index.Search(ctx, vector.Query{
		RepositoryID: repo.ID,
		BaseBranch:   repo.BaseBranch,
		Vector:       vectors[0],
		Limit:        p.topK,
	})
	if err != nil {
		agentLog.Warnf("Vector search failed, planning without retrieval: %v", err)
		return nil
	}
	return matches
}

// generatePlan runs both phases. An exploration step-limit is tolerated;
// every other failure propagates so the caller can fall back.
func (p *Planner) generatePlan(ctx context.Context, sb sandbox.Sandbox, task string, matches []types.SemanticMatch) (*types.Plan, error) {
	guard := sb.Guard()
	toolset := []tools.Tool{
		coding.NewReadFileTool(guard),
		coding.NewListFilesTool(guard),
		coding.NewFindFilesTool(guard),
		coding.NewSearchFilesTool(guard),
		coding.NewRunCommandTool(sb),
		coding.NewGitInfoTool(sb),
		coding.NewCheckDependenciesTool(guard),
		coding.NewCompletionTool("finish_exploration", "Finish exploring and hand off your findings. Call this once you know which files must change."),
	}

	systemPrompt := prompts.NewPromptBuilder().
		WithRole(plannerRolePrompt).
		WithRepositoryContext(formatMatchContext(matches)).
		WithTools(toolset).
		Build()

	runner := NewRunner(p.provider, toolset, WithMaxSteps(p.maxSteps))
	run, err := runner.Run(ctx, systemPrompt, task)
	if err != nil && !errors.Is(err, ErrStepLimit) {
		return nil, fmt.Errorf("exploration failed: %w", err)
	}

	summary := run.Output
	if summary == "" {
		summary = transcriptSummary(run.History)
	}

	userPrompt := fmt.Sprintf("Task:\n%s\n\nExploration findings:\n%s", task, summary)
	raw, err := p.provider.CompleteText(ctx, planSchemaPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("plan coercion failed: %w", err)
	}

	var plan types.Plan
	if err := llm.DecodeStructured(raw, &plan); err != nil {
		return nil, fmt.Errorf("plan decoding failed: %w", err)
	}
	if err := validatePlan(&plan); err != nil {
		return nil, err
	}

	sort.SliceStable(plan.Items, func(i, j int) bool {
		return plan.Items[i].Priority < plan.Items[j].Priority
	})
	return &plan, nil
}

func validatePlan(plan *types.Plan) error {
	if len(plan.Items) == 0 {
		return fmt.Errorf("plan has no items")
	}
	for i, item := range plan.Items {
		switch item.Action {
		case types.ActionCreate, types.ActionModify, types.ActionDelete:
		default:
			return fmt.Errorf("plan item %d has invalid action %q", i, item.Action)
		}
		if strings.TrimSpace(item.FilePath) == "" {
			return fmt.Errorf("plan item %d has empty filePath", i)
		}
	}
	return nil
}

// fallbackPlan builds the deterministic single-item plan used when plan
// generation fails. It references the top semantic match when one exists.
func fallbackPlan(task string, matches []types.SemanticMatch) *types.Plan {
	item := types.PlanItem{
		Action:      types.ActionModify,
		Description: task,
		Priority:    1,
	}
	var relevant []string
	if len(matches) > 0 {
		item.FilePath = matches[0].FilePath
		relevant = []string{matches[0].FilePath}
	}
	return &types.Plan{
		Items:         []types.PlanItem{item},
		RelevantFiles: relevant,
	}
}

// formatMatchContext renders semantic matches as a prompt section.
func formatMatchContext(matches []types.SemanticMatch) string {
	if len(matches) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Code snippets retrieved for this task, most relevant first:\n")
	for _, m := range matches {
		sb.WriteString(fmt.Sprintf("\n--- %s (lines %d-%d, score %.3f) ---\n", m.FilePath, m.LineStart, m.LineEnd, m.Score))
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// transcriptSummary recovers usable findings from an exploration loop that
// hit its step budget before calling finish_exploration.
func transcriptSummary(history []*types.Message) string {
	var sb strings.Builder
	for _, msg := range history {
		if msg.Role != types.RoleAssistant {
			continue
		}
		thinking, _, _, _ := tools.ExtractThinkingAndToolCall(msg.Content)
		if thinking != "" {
			sb.WriteString(thinking)
			sb.WriteString("\n")
		}
	}
	if sb.Len() == 0 {
		return "(no exploration findings)"
	}
	return strings.TrimRight(sb.String(), "\n")
}
