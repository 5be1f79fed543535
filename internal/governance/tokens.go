package governance

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const charsPerToken = 4

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens approximates the token count of text for billing when the
// backend does not report exact usage. It uses the cl100k_base encoding and
// falls back to a fixed characters-per-token ratio if the encoding cannot
// be loaded.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})

	if enc == nil {
		return estimateByChars(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func estimateByChars(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}
