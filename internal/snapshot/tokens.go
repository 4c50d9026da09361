// File: internal/snapshot/tokens.go
package snapshot

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// NewTokenCounter returns a tiktoken-backed counter for the given model,
// degrading to a bytes/4 estimate when the encoding cannot be loaded (the
// encoder data may be unavailable offline).
func NewTokenCounter(model string, log *zap.Logger) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		log.Warn("Token encoder unavailable, falling back to byte estimate.",
			zap.String("model", model), zap.Error(err))
		return estimator{}
	}
	return &tiktokenCounter{enc: enc}
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// estimator approximates GPT-family tokenization at four bytes per token.
type estimator struct{}

func (estimator) Count(text string) int {
	return (len(text) + 3) / 4
}
