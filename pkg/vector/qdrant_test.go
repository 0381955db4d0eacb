package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchsmith/patchsmith/pkg/types"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]interface{}
}

func qdrantServer(t *testing.T, existing bool, record *[]recordedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}
		*record = append(*record, recordedRequest{method: r.Method, path: r.URL.Path + queryString(r), body: body})

		if r.Method == http.MethodGet && r.URL.Path == "/collections/code" {
			if !existing {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
			return
		}

		if r.URL.Path == "/collections/code/points/search" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": []map[string]interface{}{
					{
						"score": 0.93,
						"payload": Payload{
							Content:      "func main() {}",
							FilePath:     "cmd/main.go",
							RepositoryID: "repo-a",
							BaseBranch:   "main",
							LineStart:    1,
							LineEnd:      10,
							Type:         "module",
						},
					},
				},
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
	}))
}

func queryString(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return ""
	}
	return "?" + r.URL.RawQuery
}

func TestQdrantEnsureCollectionCreates(t *testing.T) {
	var reqs []recordedRequest
	srv := qdrantServer(t, false, &reqs)
	defer srv.Close()

	q := NewQdrant(srv.URL, "code", WithDimension(4))
	require.NoError(t, q.EnsureCollection(context.Background()))

	// GET check, PUT create, three payload indexes.
	require.Len(t, reqs, 5)
	assert.Equal(t, http.MethodPut, reqs[1].method)
	assert.Equal(t, "/collections/code", reqs[1].path)
	vectors := reqs[1].body["vectors"].(map[string]interface{})
	assert.Equal(t, float64(4), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])

	indexed := []string{}
	for _, r := range reqs[2:] {
		assert.Equal(t, "/collections/code/index", r.path)
		indexed = append(indexed, r.body["field_name"].(string))
	}
	assert.ElementsMatch(t, []string{"repositoryId", "baseBranch", "filePath"}, indexed)
}

func TestQdrantEnsureCollectionExisting(t *testing.T) {
	var reqs []recordedRequest
	srv := qdrantServer(t, true, &reqs)
	defer srv.Close()

	q := NewQdrant(srv.URL, "code")
	require.NoError(t, q.EnsureCollection(context.Background()))
	assert.Len(t, reqs, 1)
}

func TestQdrantUpsert(t *testing.T) {
	var reqs []recordedRequest
	srv := qdrantServer(t, true, &reqs)
	defer srv.Close()

	q := NewQdrant(srv.URL, "code")
	point := NewPoint("p1", []float64{0.5, 0.5}, types.Chunk{
		Content: "x", FilePath: "a.go", LineStart: 1, LineEnd: 2, Type: "module",
	}, "repo-a", "https://github.com/acme/repo-a", "main")

	require.NoError(t, q.Upsert(context.Background(), []Point{point}))

	require.Len(t, reqs, 1)
	assert.Equal(t, "/collections/code/points?wait=true", reqs[0].path)
	points := reqs[0].body["points"].([]interface{})
	require.Len(t, points, 1)
	payload := points[0].(map[string]interface{})["payload"].(map[string]interface{})
	assert.Equal(t, "repo-a", payload["repositoryId"])
	assert.Equal(t, "main", payload["baseBranch"])
}

func TestQdrantUpsertEmpty(t *testing.T) {
	var reqs []recordedRequest
	srv := qdrantServer(t, true, &reqs)
	defer srv.Close()

	q := NewQdrant(srv.URL, "code")
	require.NoError(t, q.Upsert(context.Background(), nil))
	assert.Empty(t, reqs)
}

func TestQdrantSearchSendsTenancyFilter(t *testing.T) {
	var reqs []recordedRequest
	srv := qdrantServer(t, true, &reqs)
	defer srv.Close()

	q := NewQdrant(srv.URL, "code")
	matches, err := q.Search(context.Background(), Query{
		RepositoryID: "repo-a",
		BaseBranch:   "main",
		Vector:       []float64{0.1, 0.2},
		Limit:        5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "cmd/main.go", matches[0].FilePath)
	assert.InDelta(t, 0.93, matches[0].Score, 1e-9)

	require.Len(t, reqs, 1)
	filter := reqs[0].body["filter"].(map[string]interface{})
	must := filter["must"].([]interface{})
	require.Len(t, must, 2)
	assert.Equal(t, float64(5), reqs[0].body["limit"])
}

func TestQdrantSearchRequiresTenancy(t *testing.T) {
	q := NewQdrant("http://unused", "code")

	_, err := q.Search(context.Background(), Query{BaseBranch: "main", Vector: []float64{1}})
	assert.Error(t, err)

	_, err = q.Search(context.Background(), Query{RepositoryID: "repo-a", Vector: []float64{1}})
	assert.Error(t, err)
}

func TestQdrantDeleteByFiles(t *testing.T) {
	var reqs []recordedRequest
	srv := qdrantServer(t, true, &reqs)
	defer srv.Close()

	q := NewQdrant(srv.URL, "code")
	require.NoError(t, q.DeleteByFiles(context.Background(), "repo-a", "main", []string{"gone.go", "also.go"}))

	require.Len(t, reqs, 1)
	assert.Equal(t, "/collections/code/points/delete?wait=true", reqs[0].path)
	filter := reqs[0].body["filter"].(map[string]interface{})
	must := filter["must"].([]interface{})
	require.Len(t, must, 3)
	fileClause := must[2].(map[string]interface{})
	assert.Equal(t, "filePath", fileClause["key"])
}

func TestQdrantDeleteRequiresTenancy(t *testing.T) {
	q := NewQdrant("http://unused", "code")
	err := q.DeleteByFiles(context.Background(), "", "main", []string{"a.go"})
	assert.Error(t, err)
}

func TestQdrantErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := NewQdrant(srv.URL, "code")
	err := q.Upsert(context.Background(), []Point{{ID: "1", Vector: []float64{1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
