package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/patchsmith/patchsmith/pkg/types"
)

// Memory is an in-process Index used in tests and single-node setups
// where running a Qdrant server is not worth it. It applies the same
// tenancy filtering rules as the Qdrant implementation.
type Memory struct {
	mu     sync.RWMutex
	points map[string]Point
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{points: make(map[string]Point)}
}

// EnsureCollection is a no-op for the in-memory index.
func (m *Memory) EnsureCollection(ctx context.Context) error {
	return nil
}

// Upsert stores points, replacing any existing point with the same ID.
func (m *Memory) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

// Search returns cosine-similarity matches within the query's repository
// and branch, best first.
func (m *Memory) Search(ctx context.Context, q Query) ([]types.SemanticMatch, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		score   float64
		payload Payload
	}
	var hits []scored
	for _, p := range m.points {
		if p.Payload.RepositoryID != q.RepositoryID || p.Payload.BaseBranch != q.BaseBranch {
			continue
		}
		hits = append(hits, scored{score: cosineSimilarity(q.Vector, p.Vector), payload: p.Payload})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	matches := make([]types.SemanticMatch, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, types.SemanticMatch{
			Content:   h.payload.Content,
			FilePath:  h.payload.FilePath,
			LineStart: h.payload.LineStart,
			LineEnd:   h.payload.LineEnd,
			Score:     h.score,
			Metadata:  h.payload.Metadata,
		})
	}
	return matches, nil
}

// DeleteByFiles removes points for the given file paths within one
// repository and branch.
func (m *Memory) DeleteByFiles(ctx context.Context, repositoryID, baseBranch string, filePaths []string) error {
	paths := make(map[string]bool, len(filePaths))
	for _, p := range filePaths {
		paths[p] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.Payload.RepositoryID == repositoryID && p.Payload.BaseBranch == baseBranch && paths[p.Payload.FilePath] {
			delete(m.points, id)
		}
	}
	return nil
}

// Len reports the number of stored points.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
