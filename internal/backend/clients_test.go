package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona/internal/errors"
)

func TestLocalClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         ollamaMessage{Role: "assistant", Content: `[{"name": "Maya"}]`},
			PromptEvalCount: 120,
			EvalCount:       80,
		})
	}))
	defer server.Close()

	client := NewLocalClient(Config{BaseURL: server.URL, Model: "llama3"})
	result, err := client.Generate(context.Background(), GenerationRequest{
		System: "you generate personas",
		Prompt: "draft 1 persona",
		Count:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"name": "Maya"}]`, result.Raw)
	assert.Equal(t, 120, result.Usage.PromptTokens)
	assert.Equal(t, 80, result.Usage.CompletionTokens)
	assert.Equal(t, 200, result.Usage.TotalTokens)
}

func TestLocalClientServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewLocalClient(Config{BaseURL: server.URL, Model: "llama3"})
	_, err := client.Generate(context.Background(), GenerationRequest{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestFrontierClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"name": "Viktor"}`}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 900, "completion_tokens": 300, "total_tokens": 1200},
		})
	}))
	defer server.Close()

	client := NewFrontierClient(Config{BaseURL: server.URL, APIKey: "sk-test", Model: "gpt-4o"})
	result, err := client.Generate(context.Background(), GenerationRequest{Prompt: "refine this persona"})
	require.NoError(t, err)
	assert.Equal(t, `{"name": "Viktor"}`, result.Raw)
	assert.Equal(t, 1200, result.Usage.TotalTokens)
}

func TestFrontierClientAuthErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewFrontierClient(Config{BaseURL: server.URL, APIKey: "bad", Model: "gpt-4o"})
	_, err := client.Generate(context.Background(), GenerationRequest{Prompt: "p"})
	require.Error(t, err)
	assert.False(t, errors.IsTransient(err))
	assert.True(t, errors.IsPermanent(err))
}

func TestFrontierClientEmptyChoicesIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client := NewFrontierClient(Config{BaseURL: server.URL, Model: "gpt-4o"})
	_, err := client.Generate(context.Background(), GenerationRequest{Prompt: "p"})
	require.Error(t, err)
	assert.False(t, errors.IsTransient(err))
}
