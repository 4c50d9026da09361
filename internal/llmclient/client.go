// File: internal/llmclient/client.go
// Package llmclient routes generation requests to the configured backend:
// the local bridge process or the Gemini API directly.
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/bridge"
	"github.com/xkilldash9x/tabpilot/internal/config"
)

// Request is one generation call from the loop controller.
type Request struct {
	System      string
	Messages    []bridge.Message
	PageContent string
	// Screenshot is a raw PNG, attached only in screenshot-augmented cycles.
	Screenshot []byte
	Mode       string
}

// Client generates an LLM response for a request. Implementations call
// onChunk (when non-nil) as text arrives and return the full response.
type Client interface {
	Generate(ctx context.Context, req Request, onChunk func(string)) (string, error)
}

// New builds the backend selected by llm.backend.
func New(cfg *config.Config, logger *zap.Logger) (Client, error) {
	switch cfg.LLM.Backend {
	case config.BackendBridge:
		return NewBridgeAdapter(bridge.New(cfg.Bridge, logger), cfg.LLM, logger), nil
	case config.BackendDirect:
		return NewGeminiClient(cfg.LLM, logger)
	default:
		return nil, fmt.Errorf("unknown llm backend %q (expected %q or %q)",
			cfg.LLM.Backend, config.BackendBridge, config.BackendDirect)
	}
}
