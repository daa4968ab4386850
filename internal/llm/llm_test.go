package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/rebalancer/internal/config"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  \n```json\n{\"a\":1}\n```\n ", `{"a":1}`},
		{"inline fence", "```json{\"a\":1}```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestNewProviderSelection(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Equal(t, "none", p.Name())

	_, err = p.Complete(context.Background(), &Request{UserPrompt: "x"})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = NewProvider(config.LLMConfig{Provider: "openai"})
	assert.Error(t, err)

	_, err = NewProvider(config.LLMConfig{Provider: "mystery"})
	assert.Error(t, err)

	p, err = NewProvider(config.LLMConfig{Provider: "anthropic", AnthropicAPIKey: "k", AnthropicModel: "m"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
}

func TestOpenAIProviderComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"ok\":true}"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "gpt-4o", srv.URL)
	resp, err := p.Complete(context.Background(), &Request{
		SystemPrompt: "sys",
		UserPrompt:   "hello",
		JSONMode:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, "openai:gpt-4o", resp.Model)

	assert.Equal(t, "gpt-4o", gotBody["model"])
	format, ok := gotBody["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
	messages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAIProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", "gpt-4o", srv.URL)
	_, err := p.Complete(context.Background(), &Request{UserPrompt: "hello"})
	assert.Error(t, err)
}

func TestAnthropicProviderComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"ok\":true}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-test", srv.URL)
	resp, err := p.Complete(context.Background(), &Request{SystemPrompt: "sys", UserPrompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, "anthropic:claude-test", resp.Model)
}
