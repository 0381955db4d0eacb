package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchsmith/patchsmith/pkg/types"
)

func TestNewProviderRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewProvider("")
	assert.Error(t, err)
}

func TestNewProviderDefaults(t *testing.T) {
	p, err := NewProvider("sk-test")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.GetModel())
	assert.Equal(t, DefaultBaseURL, p.GetBaseURL())
	assert.Equal(t, DefaultEmbeddingModel, p.embeddingModel)
}

func TestNewProviderOptions(t *testing.T) {
	p, err := NewProvider("sk-test",
		WithModel("gpt-4o-mini"),
		WithEmbeddingModel("text-embedding-3-large"),
		WithBaseURL("http://localhost:8080/v1"),
	)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", p.GetModel())
	assert.Equal(t, "http://localhost:8080/v1", p.GetBaseURL())
	assert.Equal(t, "text-embedding-3-large", p.embeddingModel)
}

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
}

func deltaLine(role, content string, finish *string) string {
	payload := map[string]interface{}{
		"choices": []map[string]interface{}{{
			"delta":         map[string]string{"role": role, "content": content},
			"finish_reason": finish,
		}},
	}
	b, _ := json.Marshal(payload)
	return "data: " + string(b)
}

func TestCompleteAccumulatesStream(t *testing.T) {
	stop := "stop"
	srv := sseServer(t, []string{
		deltaLine("assistant", "Hello", nil),
		deltaLine("", " world", nil),
		deltaLine("", "", &stop),
		"data: [DONE]",
	})
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	msg, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, "Hello world", msg.Content)
}

func TestCompleteSkipsSSEComments(t *testing.T) {
	srv := sseServer(t, []string{
		": keep-alive",
		deltaLine("assistant", "ok", nil),
		"data: not-json",
		"data: [DONE]",
	})
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	msg, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "bad key"}`)
	}))
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestCompleteText(t *testing.T) {
	srv := sseServer(t, []string{
		deltaLine("assistant", "answer", nil),
		"data: [DONE]",
	})
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	got, err := p.CompleteText(context.Background(), "be brief", "question")
	require.NoError(t, err)
	assert.Equal(t, "answer", got)
}

func TestEmbedPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultEmbeddingModel, req.Model)

		// Return vectors out of order to exercise index placement.
		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float64{0.2}},
				{"index": 0, "embedding": []float64{0.1}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	vectors, err := p.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.1}, vectors[0])
	assert.Equal(t, []float64{0.2}, vectors[1])
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"index": 0, "embedding": []float64{0.1}}},
		})
	}))
	defer srv.Close()

	p, err := NewProvider("sk-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestEmbedEmptyInput(t *testing.T) {
	p, err := NewProvider("sk-test")
	require.NoError(t, err)

	vectors, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
