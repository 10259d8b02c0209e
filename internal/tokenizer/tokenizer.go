// Package tokenizer estimates token counts for prompts before they are sent
// upstream. Estimates feed the rate limiter and cost accounting; actual usage
// reported by the remote API always wins once a response arrives.
package tokenizer

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// fallbackCharsPerToken approximates BPE density for English freight prose.
const fallbackCharsPerToken = 4

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	return codec
}

// Estimate returns the approximate token count of text. It uses a real BPE
// tokenizer when available and a chars/4 heuristic otherwise. The result is
// always at least 1 for non-empty text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	if c := getCodec(); c != nil {
		if ids, _, err := c.Encode(text); err == nil {
			if len(ids) == 0 {
				return 1
			}
			return len(ids)
		}
	}
	n := len(text) / fallbackCharsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateRequest approximates the total token budget a request may consume:
// the prompt plus the configured completion ceiling.
func EstimateRequest(prompt string, maxTokens int) int {
	if maxTokens < 0 {
		maxTokens = 0
	}
	return Estimate(prompt) + maxTokens
}
