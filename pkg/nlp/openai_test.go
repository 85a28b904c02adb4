package nlp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/robomem/pkg/nlp"
)

func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name        string
		apiKey      string
		config      nlp.Config
		shouldError bool
		errorMsg    string
	}{
		{
			name:   "valid http URL",
			config: nlp.Config{BaseURL: "http://localhost:11434", Model: "llava:13b"},
		},
		{
			name:   "valid https URL",
			apiKey: "test-key",
			config: nlp.Config{BaseURL: "https://api.example.com", Model: "qwen2.5-vl"},
		},
		{
			name:   "URL with existing v1 path",
			config: nlp.Config{BaseURL: "http://localhost:8080/v1/", Model: "test-model"},
		},
		{
			name:   "empty base URL uses OpenAI",
			apiKey: "key",
		},
		{
			name:        "invalid URL format",
			config:      nlp.Config{BaseURL: "not-a-url", Model: "model"},
			shouldError: true,
			errorMsg:    "baseURL must include scheme",
		},
		{
			name:        "URL without http/https scheme",
			config:      nlp.Config{BaseURL: "ftp://localhost:8080", Model: "model"},
			shouldError: true,
			errorMsg:    "baseURL must use http:// or https:// scheme",
		},
		{
			name:        "compatible service without model",
			config:      nlp.Config{BaseURL: "http://localhost:8080"},
			shouldError: true,
			errorMsg:    "model is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := nlp.NewOpenAIClient(tt.apiKey, tt.config)

			if tt.shouldError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, client.Model())
			assert.NoError(t, client.Close())
		})
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type chatRequest struct {
	Model          string `json:"model"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL struct {
		URL    string `json:"url"`
		Detail string `json:"detail"`
	} `json:"image_url"`
}

func TestOpenAIClientSendsImages(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "1", "object": "chat.completion", "model": "llava:13b",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"objects\": []}"}}],
			"usage": {"prompt_tokens": 812, "completion_tokens": 9, "total_tokens": 821}}`))
	}))
	defer srv.Close()

	client, err := nlp.NewOpenAIClient("", nlp.Config{BaseURL: srv.URL, Model: "llava:13b", Detail: "low"})
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), []nlp.Message{
		nlp.NewSystemMessage("You describe robot camera frames."),
		nlp.NewImageMessage("What do you see?", pngHeader),
	}, true)
	require.NoError(t, err)

	assert.Equal(t, `{"objects": []}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.TokensUsed)
	assert.Equal(t, 821, resp.TokensUsed.TotalTokens)

	assert.Equal(t, "llava:13b", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)

	var system string
	require.NoError(t, json.Unmarshal(got.Messages[0].Content, &system))
	assert.Equal(t, "You describe robot camera frames.", system)

	var parts []contentPart
	require.NoError(t, json.Unmarshal(got.Messages[1].Content, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "What do you see?", parts[0].Text)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Contains(t, parts[1].ImageURL.URL, "data:image/png;base64,")
	assert.Equal(t, "low", parts[1].ImageURL.Detail)
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error": {"message": "slow down", "type": "rate_limit_exceeded"}}`,
			target: nlp.ErrRateLimit,
		},
		{
			name:   "refusal",
			status: http.StatusOK,
			body:   `{"choices": [{"index": 0, "message": {"role": "assistant", "content": "", "refusal": "no"}}]}`,
			target: nlp.ErrRefused,
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"choices": []}`,
			target: nlp.ErrEmptyReply,
		},
		{
			name:   "blank content",
			status: http.StatusOK,
			body:   `{"choices": [{"index": 0, "message": {"role": "assistant", "content": "  "}}]}`,
			target: nlp.ErrEmptyReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := nlp.NewOpenAIClient("", nlp.Config{BaseURL: srv.URL + "/v1", Model: "m"})
			require.NoError(t, err)

			_, err = client.Chat(context.Background(), []nlp.Message{nlp.NewUserMessage("hi")}, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}
