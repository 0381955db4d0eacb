package types

import "time"

// FileAction is the kind of change a plan item requests.
type FileAction string

const (
	ActionCreate FileAction = "create"
	ActionModify FileAction = "modify"
	ActionDelete FileAction = "delete"
)

// PlanItem is one entry in the ordered working list produced by the
// planning stage and consumed by the editing stage.
type PlanItem struct {
	Action      FileAction `json:"action"`
	FilePath    string     `json:"filePath"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
}

// Plan is the structured output of plan generation.
type Plan struct {
	Items         []PlanItem `json:"items"`
	RelevantFiles []string   `json:"relevantFiles"`
}

// EditedFile is the staged result of executing one plan item.
type EditedFile struct {
	FilePath        string `json:"filePath"`
	OriginalContent string `json:"originalContent"`
	NewContent      string `json:"newContent"`
	Deleted         bool   `json:"deleted,omitempty"`
}

// SemanticMatch is a scored retrieval result from the vector index.
// It lives only for the duration of one planning stage invocation.
type SemanticMatch struct {
	Content   string                 `json:"content"`
	FilePath  string                 `json:"filePath"`
	LineStart int                    `json:"lineStart"`
	LineEnd   int                    `json:"lineEnd"`
	Score     float64                `json:"score"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Chunk is a bounded slice of a file's text, the unit of embedding and
// retrieval. Chunks are derived data: they are regenerated whenever the
// source file changes and are never persisted outside the vector index.
type Chunk struct {
	Content   string                 `json:"content"`
	FilePath  string                 `json:"filePath"`
	LineStart int                    `json:"lineStart"` // 1-based, inclusive
	LineEnd   int                    `json:"lineEnd"`   // 1-based, inclusive
	Type      string                 `json:"type"`      // always "module" for the line-window chunker
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// FileHashEntry is one leaf of a merkle tree: the content hash plus the
// metadata recorded for a file at index time.
type FileHashEntry struct {
	FilePath     string    `json:"filePath"`
	FileHash     string    `json:"fileHash"`
	FileSize     int64     `json:"fileSize"`
	LastModified time.Time `json:"lastModified"`
}

// RunState is the accumulated state of one agent run. The orchestrator is
// the only writer; stages receive a copy and return deltas. The full state
// is checkpointed to the metadata store after every stage so a restarted
// orchestrator resumes from the last completed stage.
type RunState struct {
	ID           string `json:"id"`
	RepositoryID string `json:"repositoryId"`

	// Input
	Task       string `json:"task"`
	RepoURL    string `json:"repoUrl"`
	BaseBranch string `json:"baseBranch"`

	// Indexing stage
	MerkleRoot         string   `json:"merkleRoot"`
	PreviousMerkleRoot string   `json:"previousMerkleRoot,omitempty"`
	ChangedFiles       []string `json:"changedFiles"`
	DeletedFiles       []string `json:"deletedFiles"`
	VectorIndexReady   bool     `json:"vectorIndexReady"`

	// Sandbox stage
	SandboxID string `json:"sandboxId"`

	// Planning stage
	RelevantFiles   []string        `json:"relevantFiles"`
	Plan            []PlanItem      `json:"plan"`
	SemanticMatches []SemanticMatch `json:"semanticMatches"`

	// Editing stage
	EditedFiles []EditedFile `json:"editedFiles"`

	// Publishing stage
	BranchName string `json:"branchName"`
	CommitHash string `json:"commitHash"`
	PRURL      string `json:"prUrl"`

	// Control
	CurrentStep Step      `json:"currentStep"`
	Status      RunStatus `json:"status"`
	Errors      []string  `json:"errors"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Repository is the identity record for an indexed (url, branch) pair.
// CurrentMerkleRoot is empty until the first successful index.
type Repository struct {
	ID                string    `json:"id"`
	URL               string    `json:"url"`
	Name              string    `json:"name"`
	BaseBranch        string    `json:"baseBranch"`
	CurrentMerkleRoot string    `json:"currentMerkleRoot,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
