package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/aiorch/llm"
	"github.com/BaSui01/aiorch/types"
)

func TestClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "resp_1",
			"object": "response",
			"model": "gpt-4o-mini",
			"status": "completed",
			"output": [{
				"type": "message",
				"id": "msg_1",
				"role": "assistant",
				"status": "completed",
				"content": [{"type": "output_text", "text": "{\"ok\":true}", "annotations": []}]
			}],
			"usage": {"input_tokens": 9, "output_tokens": 3, "total_tokens": 12}
		}`))
	}))
	defer srv.Close()

	c := New(llm.ProviderConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"}, nil)
	resp, err := c.Complete(context.Background(), llm.Request{
		System:     "json only",
		Prompt:     "analyse",
		Preference: types.ModelFast,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, "openai", resp.Provider)
	assert.EqualValues(t, 9, resp.InputTokens)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, "json only", got["instructions"])
	assert.Equal(t, "analyse", got["input"])
	assert.EqualValues(t, 4096, got["max_output_tokens"])
}

func TestClient_Complete_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   types.ErrorKind
	}{
		{http.StatusTooManyRequests, types.KindTransient},
		{http.StatusServiceUnavailable, types.KindTransient},
		{http.StatusUnprocessableEntity, types.KindPermanent},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
		}))
		c := New(llm.ProviderConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"}, nil)

		_, err := c.Complete(context.Background(), llm.Request{Prompt: "hi"})
		assert.Equal(t, tt.kind, types.KindOf(err), "status %d", tt.status)
		srv.Close()
	}
}

func TestClient_Complete_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(llm.ProviderConfig{APIKey: "sk-test", BaseURL: url + "/"}, nil)
	_, err := c.Complete(context.Background(), llm.Request{Prompt: "hi"})
	assert.Equal(t, types.KindTransient, types.KindOf(err))
}
