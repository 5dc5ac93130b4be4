package jobs

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/groundline/groundline/internal/domain"
)

// IndexingStore is the slice of the chunk store the backfill worker needs.
type IndexingStore interface {
	ListUnembedded(ctx context.Context, limit int) ([]*domain.Chunk, error)
	SetEmbedding(ctx context.Context, chunkID string, vector []float32, modelVersion string) error
}

// Embedder generates vectors for a batch of texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error)
}

// BackfillWorker embeds chunks that were ingested without a vector. Ingestion
// never blocks on a provider; this worker catches up behind it.
type BackfillWorker struct {
	store       IndexingStore
	embedder    Embedder
	batchSize   int
	concurrency int
}

func NewBackfillWorker(store IndexingStore, embedder Embedder, batchSize, concurrency int) *BackfillWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BackfillWorker{
		store:       store,
		embedder:    embedder,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// ProcessJobs implements the JobProcessor interface. One call embeds at most
// one batch; the polling loop provides the cadence.
func (w *BackfillWorker) ProcessJobs(ctx context.Context) error {
	chunks, err := w.store.ListUnembedded(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list unembedded chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	log.Printf("Embedding backfill: %d chunks pending", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, modelVersion, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// Provider outage; the next poll retries the same batch.
		return fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding batch cardinality mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i := range chunks {
		chunk, vector := chunks[i], vectors[i]
		g.Go(func() error {
			if err := w.store.SetEmbedding(gctx, chunk.ID, vector, modelVersion); err != nil {
				return fmt.Errorf("failed to store embedding for chunk %s: %w", chunk.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Printf("Embedding backfill: %d chunks embedded with %s", len(chunks), modelVersion)
	return nil
}
