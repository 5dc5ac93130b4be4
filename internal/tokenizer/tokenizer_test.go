package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("a"))
	assert.Equal(t, 1, Estimate("abc"))
	assert.Equal(t, 2, Estimate("abcd"))
	assert.Equal(t, 100, Estimate(strings.Repeat("x", 300)))
}

func TestEstimate_IsConservative(t *testing.T) {
	// English averages ~4 chars per token; the estimator must never come in
	// under a realistic tokenizer's count.
	text := "What integrations does the enterprise plan support?"
	assert.GreaterOrEqual(t, Estimate(text), len(strings.Fields(text)))
}

func TestCounter_EmptyText(t *testing.T) {
	c := NewCounter("gpt-4o")
	assert.Equal(t, 0, c.Count(""))
}

func TestCounter_UnknownModelFallsBackToEstimate(t *testing.T) {
	c := NewCounter("not-a-real-model")
	text := strings.Repeat("word ", 50)
	assert.Positive(t, c.Count(text))
}
