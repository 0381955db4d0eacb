// Package config loads and validates the workflow configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the workflow service.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing" json:"indexing"`
	Vector    VectorConfig    `yaml:"vector" json:"vector"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Sandbox   SandboxConfig   `yaml:"sandbox" json:"sandbox"`
	Agent     AgentConfig     `yaml:"agent" json:"agent"`
	Git       GitConfig       `yaml:"git" json:"git"`
	GitHub    GitHubConfig    `yaml:"github" json:"github"`
}

// LLMConfig configures the chat-completion provider.
type LLMConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	PlanModel string `yaml:"plan_model" json:"plan_model"`
	EditModel string `yaml:"edit_model" json:"edit_model"`
}

// EmbeddingConfig configures the embedding service calls.
type EmbeddingConfig struct {
	Model      string        `yaml:"model" json:"model"`
	Dimension  int           `yaml:"dimension" json:"dimension"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay" json:"batch_delay"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
}

// IndexingConfig bounds the file walk and chunking pass.
type IndexingConfig struct {
	ChunkLines   int      `yaml:"chunk_lines" json:"chunk_lines"`
	MaxFileSize  int64    `yaml:"max_file_size" json:"max_file_size"`
	IgnoreGlobs  []string `yaml:"ignore_globs" json:"ignore_globs"`
	WriteBatch   int      `yaml:"write_batch" json:"write_batch"`
	CheckoutsDir string   `yaml:"checkouts_dir" json:"checkouts_dir"`
	// KeepCheckouts preserves temporary index checkouts for debugging.
	KeepCheckouts bool `yaml:"keep_checkouts" json:"keep_checkouts"`
}

// VectorConfig configures the vector index connection.
type VectorConfig struct {
	URL        string `yaml:"url" json:"url"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	Collection string `yaml:"collection" json:"collection"`
}

// StoreConfig configures the relational metadata store.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SandboxConfig bounds sandbox lifetime and command execution.
type SandboxConfig struct {
	// Timeout bounds the total lifetime of one run, including every model
	// call and sandbox command inside it.
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`
	WorkDir        string        `yaml:"work_dir" json:"work_dir"`
	// ScratchDir, when set, is a shared directory outside the checkout
	// that sandbox tools may read and write.
	ScratchDir string `yaml:"scratch_dir" json:"scratch_dir"`
}

// AgentConfig bounds the tool-calling loops.
type AgentConfig struct {
	PlanSteps   int `yaml:"plan_steps" json:"plan_steps"`
	EditSteps   int `yaml:"edit_steps" json:"edit_steps"`
	TopMatches  int `yaml:"top_matches" json:"top_matches"`
	EventBuffer int `yaml:"event_buffer" json:"event_buffer"`
}

// GitConfig sets the commit identity for published changes.
type GitConfig struct {
	AuthorName   string `yaml:"author_name" json:"author_name"`
	AuthorEmail  string `yaml:"author_email" json:"author_email"`
	BranchPrefix string `yaml:"branch_prefix" json:"branch_prefix"`
}

// GitHubConfig configures the git-hosting API client.
type GitHubConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Token   string `yaml:"token" json:"token"`
}

// Default returns a configuration with every tunable set to its default.
// Values mirror the limits the pipeline was designed around: 100-line
// chunks, 100-item embedding and write batches, 1536-dim vectors, and a
// 30-minute run lifetime.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:   "https://api.openai.com/v1",
			PlanModel: "o4-mini",
			EditModel: "gpt-4.1",
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimension:  1536,
			BatchSize:  100,
			BatchDelay: 100 * time.Millisecond,
			MaxRetries: 2,
		},
		Indexing: IndexingConfig{
			ChunkLines:  100,
			MaxFileSize: 10 * 1024 * 1024,
			WriteBatch:  100,
		},
		Vector: VectorConfig{
			URL:        "http://localhost:6333",
			Collection: "patchsmith_codebase",
		},
		Store: StoreConfig{
			Path: "patchsmith.db",
		},
		Sandbox: SandboxConfig{
			Timeout:        30 * time.Minute,
			CommandTimeout: 2 * time.Minute,
		},
		Agent: AgentConfig{
			PlanSteps:   20,
			EditSteps:   5,
			TopMatches:  10,
			EventBuffer: 64,
		},
		Git: GitConfig{
			AuthorName:   "patchsmith",
			AuthorEmail:  "bot@patchsmith.dev",
			BranchPrefix: "patchsmith",
		},
		GitHub: GitHubConfig{
			BaseURL: "https://api.github.com",
		},
	}
}

// Load reads a YAML config file over the defaults. Environment variables
// OPENAI_API_KEY, GITHUB_TOKEN, and QDRANT_API_KEY fill in credentials the
// file leaves empty so secrets never need to live on disk.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.Vector.APIKey == "" {
		cfg.Vector.APIKey = os.Getenv("QDRANT_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("embedding max retries cannot be negative, got %d", c.Embedding.MaxRetries)
	}
	if c.Indexing.ChunkLines <= 0 {
		return fmt.Errorf("chunk lines must be positive, got %d", c.Indexing.ChunkLines)
	}
	if c.Indexing.WriteBatch <= 0 {
		return fmt.Errorf("write batch must be positive, got %d", c.Indexing.WriteBatch)
	}
	if c.Vector.Collection == "" {
		return fmt.Errorf("vector collection name is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox timeout must be positive")
	}
	if c.Agent.PlanSteps <= 0 || c.Agent.EditSteps <= 0 {
		return fmt.Errorf("agent step budgets must be positive")
	}
	return nil
}
