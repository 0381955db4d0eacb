// Package llm provides abstractions for LLM provider integration.
//
// Providers handle API communication with LLM services and return plain
// messages and embedding vectors. This keeps them focused on transport
// concerns and reusable outside the agent loop (indexing, publishing,
// batch jobs).
package llm

import (
	"context"

	"github.com/patchsmith/patchsmith/pkg/types"
)

// Provider defines the interface for LLM integrations.
//
// Completion and embedding live on one interface because every stage of a
// run uses the same credentials and endpoint family; implementations may
// route them to different models.
type Provider interface {
	// Complete sends messages to the LLM and returns the full assistant
	// response.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// CompleteText is a convenience wrapper that sends a system prompt and
	// a single user message and returns the response text.
	CompleteText(ctx context.Context, system, user string) (string, error)

	// Embed converts the inputs into embedding vectors. The result has
	// exactly one vector per input, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float64, error)

	// GetModelInfo returns information about the completion model in use.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the completion model name.
	GetModel() string

	// GetBaseURL returns the base URL used for API requests.
	GetBaseURL() string
}

// Streamer is an optional interface for providers that support streaming
// completions. Callers read chunks until the channel closes; errors during
// the stream arrive as chunks with Error set.
type Streamer interface {
	StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *StreamChunk, error)
}

// StreamChunk is a single increment of a streamed completion.
type StreamChunk struct {
	Role     string
	Content  string
	Finished bool
	Error    error
}

// IsError reports whether the chunk carries a stream-time error.
func (c *StreamChunk) IsError() bool {
	return c != nil && c.Error != nil
}
