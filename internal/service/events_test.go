package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmitterDeliversEvents(t *testing.T) {
	sink := &recordingEventSink{}
	emitter := NewEventEmitter(sink)
	defer emitter.Close()

	emitter.Emit(QueryEvent{ConversationID: "conv-1", State: string(StateCompleted)})

	assert.Eventually(t, func() bool {
		event, ok := sink.last()
		return ok && event.ConversationID == "conv-1"
	}, time.Second, 10*time.Millisecond)

	event, _ := sink.last()
	assert.False(t, event.OccurredAt.IsZero(), "OccurredAt should be stamped on emit")
}

func TestEmitterNilSinkDoesNotPanic(t *testing.T) {
	emitter := NewEventEmitter(nil)
	defer emitter.Close()

	assert.NotPanics(t, func() {
		emitter.Emit(QueryEvent{ConversationID: "conv-1"})
	})
}
