// Package tokenizer counts tokens for prompt budget accounting.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

var (
	mu       sync.Mutex
	encoders = make(map[string]*tiktoken.Tiktoken)
)

// CountTokens returns the token count of text under the given model's
// encoding. Unknown models fall back to cl100k_base rather than failing,
// since budget accounting prefers an estimate over an error.
func CountTokens(model, text string) (int, error) {
	enc, err := encoderFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountMessages sums token counts across message contents plus a small
// per-message overhead for role framing.
func CountMessages(model string, contents []string) (int, error) {
	const perMessageOverhead = 4
	total := 0
	for _, c := range contents {
		n, err := CountTokens(model, c)
		if err != nil {
			return 0, err
		}
		total += n + perMessageOverhead
	}
	return total, nil
}

func encoderFor(model string) (*tiktoken.Tiktoken, error) {
	mu.Lock()
	defer mu.Unlock()

	if enc, ok := encoders[model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer encoding: %w", err)
		}
	}
	encoders[model] = enc
	return enc, nil
}
