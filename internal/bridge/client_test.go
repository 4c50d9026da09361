// File: internal/bridge/client_test.go
package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(config.BridgeConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, zap.NewNop())
	return c, srv
}

func TestChatStreamsIncrementally(t *testing.T) {
	chunks := []string{"I will click ", "the button. ", "[ACTION: click, e3]"}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat", r.URL.Path)

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "agent-hybrid", req.OperationMode)
		assert.Equal(t, "page text here", req.PageContent)
		require.Len(t, req.Messages, 1)

		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			_, _ = w.Write([]byte(chunk))
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))

	var streamed []string
	full, err := c.Chat(context.Background(), ChatRequest{
		Messages:      []Message{{Role: "user", Content: "do the thing"}},
		PageContent:   "page text here",
		OperationMode: "agent-hybrid",
	}, func(chunk string) { streamed = append(streamed, chunk) })

	require.NoError(t, err)
	assert.Equal(t, "I will click the button. [ACTION: click, e3]", full)
	assert.GreaterOrEqual(t, len(streamed), 2, "response should arrive in more than one chunk")
}

func TestChatErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))

	_, err := c.Chat(context.Background(), ChatRequest{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestChatUnreachable(t *testing.T) {
	c := New(config.BridgeConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zap.NewNop())
	_, err := c.Chat(context.Background(), ChatRequest{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestHealthRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "starting up", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.Health(context.Background()))
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestHealthPermanentOn4xx(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))

	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestModels(t *testing.T) {
	t.Run("ObjectPayload", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"models": ["gemini-2.0-flash", "gemini-1.5-pro"]}`))
		}))
		models, err := c.Models(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"gemini-2.0-flash", "gemini-1.5-pro"}, models)
	})

	t.Run("BareArrayPayload", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`["m1"]`))
		}))
		models, err := c.Models(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, models)
	})

	t.Run("GarbagePayload", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		_, err := c.Models(context.Background())
		require.Error(t, err)
	})
}

func TestProbe(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/models":
			_, _ = w.Write([]byte(`{"models": ["gemini-2.0-flash"]}`))
		default:
			http.NotFound(w, r)
		}
	}))

	models, err := c.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-2.0-flash"}, models)
}

func TestChatRateLimiter(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	// 60 rpm allows roughly one call per second; a cancelled context must
	// interrupt the limiter wait, not hang.
	c.limiter.SetLimit(1.0 / 60.0)
	require.NoError(t, c.limiter.Wait(context.Background())) // consume the burst

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Chat(ctx, ChatRequest{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
