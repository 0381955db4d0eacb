// Package vector stores and retrieves code chunk embeddings.
//
// Every search and delete carries the repository ID and base branch as
// filters. Points for different repositories or branches share one
// collection, so an unfiltered operation would leak context across
// tenants.
package vector

import (
	"context"
	"time"

	"github.com/patchsmith/patchsmith/pkg/types"
)

// Payload is the metadata stored alongside each embedding vector.
type Payload struct {
	Content       string                 `json:"content"`
	FilePath      string                 `json:"filePath"`
	RepositoryID  string                 `json:"repositoryId"`
	RepositoryURL string                 `json:"repositoryUrl"`
	BaseBranch    string                 `json:"baseBranch"`
	LineStart     int                    `json:"lineStart"`
	LineEnd       int                    `json:"lineEnd"`
	Type          string                 `json:"type"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Point is one embedded chunk ready for upsert.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// Query is a tenancy-scoped similarity search.
type Query struct {
	RepositoryID string
	BaseBranch   string
	Vector       []float64
	Limit        int
}

// Index is the vector store contract. Implementations must apply the
// repository and branch filters on every read and delete.
type Index interface {
	// EnsureCollection creates the backing collection if it does not
	// exist. Safe to call on every run.
	EnsureCollection(ctx context.Context) error

	// Upsert writes points, replacing any existing point with the same ID.
	Upsert(ctx context.Context, points []Point) error

	// Search returns the closest matches for the query vector within the
	// query's repository and branch, ordered by descending score.
	Search(ctx context.Context, q Query) ([]types.SemanticMatch, error)

	// DeleteByFiles removes all points for the given file paths within one
	// repository and branch. Called for deleted files before re-indexing.
	DeleteByFiles(ctx context.Context, repositoryID, baseBranch string, filePaths []string) error
}

// NewPoint builds a point from an embedded chunk.
func NewPoint(id string, vec []float64, chunk types.Chunk, repositoryID, repositoryURL, baseBranch string) Point {
	return Point{
		ID:     id,
		Vector: vec,
		Payload: Payload{
			Content:       chunk.Content,
			FilePath:      chunk.FilePath,
			RepositoryID:  repositoryID,
			RepositoryURL: repositoryURL,
			BaseBranch:    baseBranch,
			LineStart:     chunk.LineStart,
			LineEnd:       chunk.LineEnd,
			Type:          chunk.Type,
			Metadata:      chunk.Metadata,
			Timestamp:     time.Now().UTC(),
		},
	}
}
