// File: internal/llmclient/bridge_adapter.go
package llmclient

import (
	"context"
	"encoding/base64"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/bridge"
	"github.com/xkilldash9x/tabpilot/internal/config"
)

// BridgeAdapter satisfies Client on top of the bridge HTTP client.
type BridgeAdapter struct {
	bridge *bridge.Client
	cfg    config.LLMConfig
	log    *zap.Logger
}

var _ Client = (*BridgeAdapter)(nil)

func NewBridgeAdapter(b *bridge.Client, cfg config.LLMConfig, logger *zap.Logger) *BridgeAdapter {
	return &BridgeAdapter{bridge: b, cfg: cfg, log: logger.Named("llmclient.bridge")}
}

func (a *BridgeAdapter) Generate(ctx context.Context, req Request, onChunk func(string)) (string, error) {
	messages := make([]bridge.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, bridge.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	chatReq := bridge.ChatRequest{
		Settings: bridge.Settings{
			Model:       a.cfg.Model,
			Temperature: a.cfg.Temperature,
			MaxTokens:   a.cfg.MaxTokens,
		},
		Messages:      messages,
		PageContent:   req.PageContent,
		OperationMode: req.Mode,
	}
	if len(req.Screenshot) > 0 {
		chatReq.Screenshot = base64.StdEncoding.EncodeToString(req.Screenshot)
	}
	return a.bridge.Chat(ctx, chatReq, onChunk)
}

// Probe forwards the bridge startup check.
func (a *BridgeAdapter) Probe(ctx context.Context) ([]string, error) {
	return a.bridge.Probe(ctx)
}
