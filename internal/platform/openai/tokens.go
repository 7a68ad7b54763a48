package openai

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

const encodingName = "cl100k_base"

// TokenCounter counts and trims prompt text with the cl100k_base encoding.
// When the encoding cannot be loaded it falls back to a rune estimate.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	log  *logger.Logger
	load func() (*tiktoken.Tiktoken, error)
}

func NewTokenCounter(log *logger.Logger) *TokenCounter {
	return &TokenCounter{
		log:  log.With("service", "TokenCounter"),
		load: func() (*tiktoken.Tiktoken, error) { return tiktoken.GetEncoding(encodingName) },
	}
}

func (tc *TokenCounter) encoding() *tiktoken.Tiktoken {
	tc.once.Do(func() {
		if tc.load == nil {
			return
		}
		enc, err := tc.load()
		if err != nil {
			tc.log.Warn("tiktoken encoding unavailable, estimating", "encoding", encodingName, "error", err)
			return
		}
		tc.enc = enc
	})
	return tc.enc
}

func (tc *TokenCounter) Count(text string) int {
	if enc := tc.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// Truncate returns text cut to at most maxTokens tokens and whether it cut.
func (tc *TokenCounter) Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}
	if enc := tc.encoding(); enc != nil {
		toks := enc.Encode(text, nil, nil)
		if len(toks) <= maxTokens {
			return text, false
		}
		return enc.Decode(toks[:maxTokens]), true
	}
	if estimateTokens(text) <= maxTokens {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:maxTokens*4]), true
}

// roughly four characters per token for English prose
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
