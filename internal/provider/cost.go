package provider

import (
	"context"
	"log"
	"sync"
	"time"
)

// CostEntry is one successful provider attempt's token usage.
type CostEntry struct {
	ProviderID     string
	ModelID        string
	TokensIn       int
	TokensOut      int
	ConversationID string
	RecordedAt     time.Time
}

// CostSink persists cost entries. The read side belongs to an external
// analytics collaborator.
type CostSink interface {
	RecordCost(ctx context.Context, entry CostEntry) error
}

// CostTracker is a write-only usage accumulator. Record never blocks the
// request path: entries go through a buffered channel and are dropped with a
// log line when the buffer is full or the sink fails.
type CostTracker struct {
	sink    CostSink
	entries chan CostEntry
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

const costBufferSize = 256

func NewCostTracker(sink CostSink) *CostTracker {
	t := &CostTracker{
		sink:    sink,
		entries: make(chan CostEntry, costBufferSize),
		done:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.flushLoop()
	return t
}

// Record enqueues a cost entry. Recording failures are logged and dropped,
// never propagated as request failures.
func (t *CostTracker) Record(entry CostEntry) {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	select {
	case t.entries <- entry:
	default:
		log.Printf("cost tracker buffer full, dropping entry for %s/%s", entry.ProviderID, entry.ModelID)
	}
}

func (t *CostTracker) flushLoop() {
	defer t.wg.Done()
	for {
		select {
		case entry := <-t.entries:
			t.persist(entry)
		case <-t.done:
			// Drain what is already buffered before exiting.
			for {
				select {
				case entry := <-t.entries:
					t.persist(entry)
				default:
					return
				}
			}
		}
	}
}

func (t *CostTracker) persist(entry CostEntry) {
	if t.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.sink.RecordCost(ctx, entry); err != nil {
		log.Printf("cost tracker sink error (entry dropped): %v", err)
	}
}

// Close flushes buffered entries and stops the background goroutine.
func (t *CostTracker) Close() {
	t.once.Do(func() {
		close(t.done)
	})
	t.wg.Wait()
}
