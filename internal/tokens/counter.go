// Package tokens provides approximate token counting for generated text,
// recorded on the attempts log for observability.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with the cl100k BPE, falling back to a bytes/4
// estimate if the codec cannot be loaded.
type Counter struct {
	once  sync.Once
	codec tokenizer.Codec
}

// NewCounter creates a counter. The codec is loaded lazily on first use.
func NewCounter() *Counter {
	return &Counter{}
}

// Count returns the token count of text. Never fails: estimation covers
// codec errors, since the count is advisory.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			c.codec = codec
		}
	})

	if c.codec != nil {
		if ids, _, err := c.codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return estimate(text)
}

// estimate approximates tokens as bytes/4, the usual rule of thumb for
// English prose.
func estimate(text string) int {
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
