package ingestion_engine

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts model tokens in a text.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenCounter) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}

// ApproxCounter estimates four characters per token.
type ApproxCounter struct{}

func (ApproxCounter) Count(s string) int { return approxTokens(s) }

// NewTokenCounter loads the cl100k_base encoding. When it cannot be loaded the
// estimate is used instead, so token counts are never fatal.
func NewTokenCounter(logger *slog.Logger) TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, estimating token counts", "error", err)
		return ApproxCounter{}
	}
	return tiktokenCounter{enc: enc}
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
