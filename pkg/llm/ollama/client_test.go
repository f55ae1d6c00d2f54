package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/llm"
	"github.com/odiumxp/ai-brain/pkg/llm/ollama"
)

func TestClient_GenerateWithMessages(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"joy\":0.7}"}}`))
	}))
	defer srv.Close()

	client, err := ollama.NewClient(&ollama.Config{BaseURL: srv.URL + "/", APIKey: "secret", Model: "tiny", KeepAlive: "5m"})
	require.NoError(t, err)

	out, err := client.GenerateWithMessages(context.Background(), []llm.Message{
		{Role: "system", Content: "analyze"},
		{Role: "user", Content: "I am happy"},
	}, llm.WithJSONMode(), llm.WithTemperature(0.1))
	require.NoError(t, err)
	assert.Equal(t, `{"joy":0.7}`, out)

	assert.Equal(t, "tiny", got["model"])
	assert.Equal(t, "json", got["format"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "5m", got["keep_alive"])
	options := got["options"].(map[string]interface{})
	assert.InDelta(t, 0.1, options["temperature"], 1e-9)
	assert.Len(t, got["messages"], 2)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := ollama.NewClient(&ollama.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	var statusErr *ollama.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "model not found", statusErr.Body)
}

func TestClient_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":""}}`))
	}))
	defer srv.Close()

	client, err := ollama.NewClient(&ollama.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}
