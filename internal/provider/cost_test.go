package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostTracker_FlushesOnClose(t *testing.T) {
	sink := &recordingSink{}
	tracker := NewCostTracker(sink)

	for i := 0; i < 5; i++ {
		tracker.Record(CostEntry{ProviderID: "openai", ModelID: "gpt-4o-mini", TokensIn: 10, TokensOut: 5})
	}
	tracker.Close()

	assert.Equal(t, 5, sink.count())
	assert.False(t, sink.entries[0].RecordedAt.IsZero())
}

type failingSink struct{}

func (failingSink) RecordCost(ctx context.Context, entry CostEntry) error {
	return errors.New("sink down")
}

func TestCostTracker_SinkFailureIsDropped(t *testing.T) {
	tracker := NewCostTracker(failingSink{})

	// Must not panic or block; failures are logged and dropped.
	tracker.Record(CostEntry{ProviderID: "openai", ModelID: "gpt-4o"})
	tracker.Close()
}

func TestCostTracker_NilSink(t *testing.T) {
	tracker := NewCostTracker(nil)
	tracker.Record(CostEntry{ProviderID: "openai"})
	tracker.Close()
}
