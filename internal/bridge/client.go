// File: internal/bridge/client.go
// Package bridge talks to the local LLM bridge process: a streaming chat
// endpoint plus health and model discovery.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/tabpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const probeRetryWindow = 15 * time.Second

// Message is one turn of the conversation sent to the bridge.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Settings carries per-request generation parameters.
type Settings struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
}

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	Settings    Settings  `json:"settings"`
	Messages    []Message `json:"messages"`
	PageContent string    `json:"pageContent"`
	// Screenshot is a base64 PNG, present only in screenshot-augmented cycles.
	Screenshot    string `json:"screenshot,omitempty"`
	OperationMode string `json:"operationMode"`
}

// Client is the bridge HTTP client. Chat responses stream; health and model
// discovery retry on transient transport errors.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(cfg config.BridgeConfig, logger *zap.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		// No client-level timeout: it would cut streamed chat bodies short.
		// Health and models bound themselves via context deadlines.
		http:    &http.Client{},
		limiter: limiter,
		log:     logger.Named("bridge"),
	}
}

// Chat sends a conversation and consumes the plain-text streamed response.
// onChunk, when non-nil, receives each chunk as it arrives; the full text is
// returned at the end. Stream errors are never retried: a partial response
// must not be silently replayed.
func (c *Client) Chat(ctx context.Context, req ChatRequest, onChunk func(string)) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter interrupted: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("bridge is unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("bridge /chat returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var full strings.Builder
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			full.WriteString(chunk)
			if onChunk != nil {
				onChunk(chunk)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return full.String(), fmt.Errorf("chat stream interrupted after %d bytes: %w", full.Len(), readErr)
		}
	}

	c.log.Debug("Chat stream complete.",
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_bytes", full.Len()))
	return full.String(), nil
}

// Health checks GET /health, retrying transient failures briefly.
func (c *Client) Health(ctx context.Context) error {
	return c.retryGet(ctx, "/health", nil)
}

type modelsPayload struct {
	Models []string `json:"models"`
}

// Models lists the model names the bridge exposes. Both `{"models": [...]}`
// and a bare JSON array are accepted.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var raw []byte
	if err := c.retryGet(ctx, "/models", &raw); err != nil {
		return nil, err
	}
	var payload modelsPayload
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Models != nil {
		return payload.Models, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("unexpected /models payload: %s", strings.TrimSpace(string(raw)))
	}
	return names, nil
}

// Probe checks liveness and model discovery concurrently. It is the startup
// gate: a dead bridge fails fast here instead of mid-loop.
func (c *Client) Probe(ctx context.Context) ([]string, error) {
	var models []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Health(gctx)
	})
	g.Go(func() error {
		var err error
		models, err = c.Models(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.log.Info("Bridge probe succeeded.", zap.Strings("models", models))
	return models, nil
}

// retryGet performs a GET with exponential backoff on transport errors and
// 5xx responses. 4xx responses are permanent.
func (c *Client) retryGet(ctx context.Context, path string, out *[]byte) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = probeRetryWindow

	operation := func() error {
		reqCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug("Bridge request failed, retrying.", zap.String("path", path), zap.Error(err))
			return fmt.Errorf("bridge is unreachable at %s: %w", c.baseURL, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read %s response: %w", path, err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("bridge %s returned status %d", path, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("bridge %s returned status %d: %s",
				path, resp.StatusCode, strings.TrimSpace(string(body))))
		}
		if out != nil {
			*out = body
		}
		return nil
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
