// File: internal/llmclient/client_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/bridge"
	"github.com/xkilldash9x/tabpilot/internal/config"
)

func TestFactorySelection(t *testing.T) {
	t.Run("Bridge", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.LLM.Backend = config.BackendBridge
		client, err := New(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &BridgeAdapter{}, client)
	})

	t.Run("Direct", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.LLM.Backend = config.BackendDirect
		cfg.LLM.APIKey = "test-key"
		client, err := New(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &GeminiClient{}, client)
	})

	t.Run("DirectWithoutKeyFails", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.LLM.Backend = config.BackendDirect
		_, err := New(cfg, zap.NewNop())
		require.Error(t, err)
	})

	t.Run("UnknownBackendFails", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.LLM.Backend = "carrier-pigeon"
		_, err := New(cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "carrier-pigeon")
	})
}

func TestBridgeAdapterGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat", r.URL.Path)
		var req bridge.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "be careful", req.Messages[0].Content)
		assert.Equal(t, "snapshot text", req.PageContent)
		assert.Equal(t, "agent-text", req.OperationMode)
		assert.NotEmpty(t, req.Screenshot, "screenshot should be base64 encoded into the request")
		assert.Equal(t, "gemini-2.0-flash", req.Settings.Model)

		_, _ = w.Write([]byte("[ACTION: click, e1]"))
	}))
	defer srv.Close()

	adapter := NewBridgeAdapter(
		bridge.New(config.BridgeConfig{BaseURL: srv.URL, Timeout: time.Second}, zap.NewNop()),
		config.LLMConfig{Model: "gemini-2.0-flash", Temperature: 0.2},
		zap.NewNop(),
	)

	out, err := adapter.Generate(context.Background(), Request{
		System:      "be careful",
		Messages:    []bridge.Message{{Role: "user", Content: "log in"}},
		PageContent: "snapshot text",
		Screenshot:  []byte{1, 2, 3},
		Mode:        "agent-text",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[ACTION: click, e1]", out)
}

func geminiResponse(text string) string {
	return `{"candidates": [{"content": {"parts": [{"text": ` + jsonString(text) + `}], "role": "model"}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5}}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGeminiClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Contains(t, payload, "contents")
		assert.Contains(t, payload, "system_instruction")

		_, _ = w.Write([]byte(geminiResponse("Done. [ACTION: navigate, https://example.com]")))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(config.LLMConfig{
		APIKey:     "test-key",
		Endpoint:   srv.URL,
		Model:      "gemini-2.0-flash",
		APITimeout: 2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	var chunked string
	out, err := client.Generate(context.Background(), Request{
		System:   "you are an agent",
		Messages: []bridge.Message{{Role: "user", Content: "go"}},
	}, func(chunk string) { chunked = chunk })

	require.NoError(t, err)
	assert.Equal(t, "Done. [ACTION: navigate, https://example.com]", out)
	assert.Equal(t, out, chunked)
}

func TestGeminiClientRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(geminiResponse("ok")))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(config.LLMConfig{
		APIKey: "k", Endpoint: srv.URL, APITimeout: 2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiClientPermanentOnBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewGeminiClient(config.LLMConfig{
		APIKey: "k", Endpoint: srv.URL, APITimeout: 2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestGeminiAssistantRoleMapping(t *testing.T) {
	client := &GeminiClient{cfg: config.LLMConfig{}}
	payload := client.buildPayload(Request{
		Messages: []bridge.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})
	require.Len(t, payload.Contents, 2)
	assert.Equal(t, "user", payload.Contents[0].Role)
	assert.Equal(t, "model", payload.Contents[1].Role)
}
