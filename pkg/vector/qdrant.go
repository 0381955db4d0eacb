package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/patchsmith/patchsmith/pkg/types"
)

// Qdrant is an Index backed by a Qdrant server over its REST API.
type Qdrant struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	collection string
	dimension  int
}

// QdrantOption configures a Qdrant index.
type QdrantOption func(*Qdrant)

// WithAPIKey sets the api-key header for Qdrant Cloud deployments.
func WithAPIKey(key string) QdrantOption {
	return func(q *Qdrant) {
		q.apiKey = key
	}
}

// WithDimension overrides the vector dimension (default 1536).
func WithDimension(dim int) QdrantOption {
	return func(q *Qdrant) {
		q.dimension = dim
	}
}

// WithQdrantHTTPClient sets a custom HTTP client, mainly for tests.
func WithQdrantHTTPClient(client *http.Client) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = client
	}
}

// NewQdrant creates a Qdrant-backed index for the given collection.
func NewQdrant(baseURL, collection string, opts ...QdrantOption) *Qdrant {
	q := &Qdrant{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		collection: collection,
		dimension:  1536,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnsureCollection creates the collection with cosine distance and keyword
// payload indexes on the tenancy fields. Existing collections are left
// untouched.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	err := q.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", q.collection), nil, &status)
	if err == nil {
		return nil
	}

	create := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collection), create, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}

	for _, field := range []string{"repositoryId", "baseBranch", "filePath"} {
		idx := map[string]interface{}{
			"field_name":   field,
			"field_schema": "keyword",
		}
		if err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/index", q.collection), idx, nil); err != nil {
			return fmt.Errorf("failed to create payload index on %s: %w", field, err)
		}
	}
	return nil
}

// Upsert writes points in a single request, waiting for the write to be
// applied so a subsequent search sees it.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		qdrantPoints = append(qdrantPoints, map[string]interface{}{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}

	body := map[string]interface{}{"points": qdrantPoints}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	if err := q.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search runs a filtered similarity search and maps the hits to semantic
// matches.
func (q *Qdrant) Search(ctx context.Context, query Query) ([]types.SemanticMatch, error) {
	if query.RepositoryID == "" || query.BaseBranch == "" {
		return nil, fmt.Errorf("search requires repository ID and base branch")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}

	body := map[string]interface{}{
		"vector":       query.Vector,
		"limit":        limit,
		"with_payload": true,
		"filter":       tenancyFilter(query.RepositoryID, query.BaseBranch, nil),
	}

	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload Payload `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]types.SemanticMatch, 0, len(resp.Result))
	for _, hit := range resp.Result {
		matches = append(matches, types.SemanticMatch{
			Content:   hit.Payload.Content,
			FilePath:  hit.Payload.FilePath,
			LineStart: hit.Payload.LineStart,
			LineEnd:   hit.Payload.LineEnd,
			Score:     hit.Score,
			Metadata:  hit.Payload.Metadata,
		})
	}
	return matches, nil
}

// DeleteByFiles removes every point whose filePath is in filePaths, scoped
// to one repository and branch.
func (q *Qdrant) DeleteByFiles(ctx context.Context, repositoryID, baseBranch string, filePaths []string) error {
	if len(filePaths) == 0 {
		return nil
	}
	if repositoryID == "" || baseBranch == "" {
		return fmt.Errorf("delete requires repository ID and base branch")
	}

	body := map[string]interface{}{
		"filter": tenancyFilter(repositoryID, baseBranch, filePaths),
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection)
	if err := q.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to delete points for %d files: %w", len(filePaths), err)
	}
	return nil
}

// tenancyFilter builds the mandatory repository and branch filter, with an
// optional filePath match.
func tenancyFilter(repositoryID, baseBranch string, filePaths []string) map[string]interface{} {
	must := []map[string]interface{}{
		{"key": "repositoryId", "match": map[string]interface{}{"value": repositoryID}},
		{"key": "baseBranch", "match": map[string]interface{}{"value": baseBranch}},
	}
	if len(filePaths) > 0 {
		must = append(must, map[string]interface{}{
			"key":   "filePath",
			"match": map[string]interface{}{"any": filePaths},
		})
	}
	return map[string]interface{}{"must": must}
}

// do executes one JSON request against the Qdrant API.
func (q *Qdrant) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
