package service

import (
	"context"
	"log"
	"time"

	"github.com/groundline/groundline/internal/domain"
)

// QueryEvent is the per-query record emitted for lead-scoring and analytics
// collaborators. The engine never reads anything back from its consumers.
type QueryEvent struct {
	ConversationID string
	QueryText      string
	Answer         string
	Citations      []domain.Citation
	ProviderUsed   string
	ModelUsed      string
	TokensIn       int
	TokensOut      int
	LatencyMs      int64
	State          string
	FailedDuring   string
	OccurredAt     time.Time
}

// EventSink persists or forwards query events.
type EventSink interface {
	RecordQueryEvent(ctx context.Context, event QueryEvent) error
}

// EventEmitter delivers query events fire-and-forget: best effort, bounded
// buffer, drop-and-log on backpressure.
type EventEmitter struct {
	sink   EventSink
	events chan QueryEvent
	done   chan struct{}
}

const eventBufferSize = 128

func NewEventEmitter(sink EventSink) *EventEmitter {
	e := &EventEmitter{
		sink:   sink,
		events: make(chan QueryEvent, eventBufferSize),
		done:   make(chan struct{}),
	}
	go e.deliverLoop()
	return e
}

// Emit never blocks the query path.
func (e *EventEmitter) Emit(event QueryEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case e.events <- event:
	default:
		log.Printf("query event buffer full, dropping event for conversation %s", event.ConversationID)
	}
}

func (e *EventEmitter) deliverLoop() {
	for {
		select {
		case event := <-e.events:
			e.deliver(event)
		case <-e.done:
			for {
				select {
				case event := <-e.events:
					e.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (e *EventEmitter) deliver(event QueryEvent) {
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.sink.RecordQueryEvent(ctx, event); err != nil {
		log.Printf("query event delivery failed (dropped): %v", err)
	}
}

// Close drains buffered events.
func (e *EventEmitter) Close() {
	close(e.done)
}
