// Package tokenizer counts tokens with the encoding matching a target model,
// falling back to a conservative estimate when the model is unknown.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// conservativeCharsPerToken deliberately under-counts characters per token so
// the estimate over-counts tokens. Budget math must never under-estimate.
const conservativeCharsPerToken = 3

// Counter counts tokens for a fixed target model.
type Counter struct {
	model string

	mu  sync.Mutex
	enc *tiktoken.Tiktoken
	// encErr is sticky: once the encoding lookup fails we stay on the
	// estimator instead of retrying per call.
	encErr bool
}

// NewCounter returns a counter for the given model. The encoding is resolved
// lazily on first use.
func NewCounter(model string) *Counter {
	return &Counter{model: model}
}

// Count returns the token count for text. If no encoding is known for the
// model, a conservative over-estimate is returned.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	enc := c.encoding()
	if enc == nil {
		return Estimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *Counter) encoding() *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enc != nil || c.encErr {
		return c.enc
	}

	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	}
	if err != nil {
		c.encErr = true
		return nil
	}
	c.enc = enc
	return enc
}

// Estimate is the model-free conservative token estimate.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + conservativeCharsPerToken - 1) / conservativeCharsPerToken
}
