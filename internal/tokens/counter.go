// Package tokens estimates token counts when an upstream omits usage.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with tiktoken encodings, falling back to a
// character-based estimate when no codec can be loaded.
type Counter struct {
	// CharsPerToken is used by the fallback estimate (default: 4)
	CharsPerToken float64

	codecCache map[tokenizer.Encoding]tokenizer.Codec
	cacheMu    sync.RWMutex
}

// NewCounter creates a new token counter.
func NewCounter() *Counter {
	return &Counter{
		CharsPerToken: 4.0,
		codecCache:    make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// getCodec returns the tokenizer codec for a model's encoding.
func (c *Counter) getCodec(model string) (tokenizer.Codec, error) {
	encoding := modelToEncoding(model)

	c.cacheMu.RLock()
	if cached, ok := c.codecCache[encoding]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()

	return codec, nil
}

// modelToEncoding picks the closest public encoding. Neither DeepSeek nor
// Anthropic publish theirs; cl100k_base is the nearer vocabulary size for
// DeepSeek and o200k_base for recent Claude models.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "deepseek"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "claude-3"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// CountText counts tokens for a plain text string. It never fails: when the
// codec is unavailable the character estimate is returned.
func (c *Counter) CountText(model, text string) int {
	if text == "" {
		return 0
	}

	codec, err := c.getCodec(model)
	if err == nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return c.estimate(text)
}

func (c *Counter) estimate(text string) int {
	per := c.CharsPerToken
	if per <= 0 {
		per = 4.0
	}
	n := int(float64(len([]rune(text))) / per)
	if n == 0 {
		n = 1
	}
	return n
}
