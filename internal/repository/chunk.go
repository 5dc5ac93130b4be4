package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/groundline/groundline/internal/domain"
)

// ChunkRepository persists chunks in Postgres with pgvector embeddings and a
// tsvector column for keyword search. Identical content across documents is
// stored once and linked per document through chunk_documents.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// Upsert is idempotent keyed by content hash. The live chunk for a
// (document, ordinal) slot with matching hash is returned unchanged; changed
// content tombstones the prior link and links either an existing chunk row
// with the same hash or a freshly inserted one.
func (r *ChunkRepository) Upsert(ctx context.Context, chunk *domain.Chunk) (*domain.Chunk, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	_, err = tx.Exec(ctx,
		`INSERT INTO documents (id, source_uri, source_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (id) DO UPDATE SET source_uri = EXCLUDED.source_uri, source_type = EXCLUDED.source_type, updated_at = EXCLUDED.updated_at`,
		chunk.DocumentID, chunk.SourceURI, string(chunk.SourceType), now,
	)
	if err != nil {
		return nil, false, err
	}

	// Current live chunk for this document slot, if any.
	var currentID, currentHash string
	err = tx.QueryRow(ctx,
		`SELECT c.id, c.content_hash
		 FROM chunk_documents cd
		 JOIN chunks c ON c.id = cd.chunk_id
		 WHERE cd.document_id = $1 AND cd.ordinal = $2 AND cd.tombstoned_at IS NULL`,
		chunk.DocumentID, chunk.Ordinal,
	).Scan(&currentID, &currentHash)
	switch {
	case err == nil:
		if currentHash == chunk.ContentHash {
			existing, getErr := r.getTx(ctx, tx, currentID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, tx.Commit(ctx)
		}
		if err := r.tombstoneLink(ctx, tx, currentID, chunk.DocumentID, chunk.Ordinal, now); err != nil {
			return nil, false, err
		}
	case errors.Is(err, pgx.ErrNoRows):
		// First version of this slot.
	default:
		return nil, false, err
	}

	// Reuse an existing live row with the same content so a chunk shared by
	// several documents is embedded once.
	targetID := chunk.ID
	err = tx.QueryRow(ctx,
		`SELECT id FROM chunks WHERE content_hash = $1 AND tombstoned_at IS NULL`,
		chunk.ContentHash,
	).Scan(&targetID)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		targetID = chunk.ID
		_, err = tx.Exec(ctx,
			`INSERT INTO chunks (id, content_hash, text, token_count, refreshed_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			chunk.ID, chunk.ContentHash, chunk.Text, chunk.TokenCount, now,
		)
		if err != nil {
			return nil, false, err
		}
	default:
		return nil, false, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO chunk_documents (chunk_id, document_id, ordinal, linked_at)
		 VALUES ($1, $2, $3, $4)`,
		targetID, chunk.DocumentID, chunk.Ordinal, now,
	)
	if err != nil {
		return nil, false, err
	}

	stored, err := r.getTx(ctx, tx, targetID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, tx.Commit(ctx)
}

func (r *ChunkRepository) tombstoneLink(ctx context.Context, tx pgx.Tx, chunkID, documentID string, ordinal int, now time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE chunk_documents SET tombstoned_at = $1
		 WHERE chunk_id = $2 AND document_id = $3 AND ordinal = $4 AND tombstoned_at IS NULL`,
		now, chunkID, documentID, ordinal,
	)
	if err != nil {
		return err
	}
	// A chunk with no live links left is tombstoned itself; it stays
	// resolvable by ID for citations already handed out.
	_, err = tx.Exec(ctx,
		`UPDATE chunks SET tombstoned_at = $1
		 WHERE id = $2 AND tombstoned_at IS NULL
		   AND NOT EXISTS (
			SELECT 1 FROM chunk_documents WHERE chunk_id = $2 AND tombstoned_at IS NULL
		   )`,
		now, chunkID,
	)
	return err
}

const chunkColumns = `
	c.id, cd.document_id, d.source_uri, d.source_type, cd.ordinal, c.text, c.token_count,
	c.content_hash, c.embedding, c.model_version, c.refreshed_at, c.tombstoned_at`

// chunkFromClause joins each chunk to one representative document link,
// preferring live links so citations resolve the current URI.
const chunkFromClause = `
	FROM chunks c
	JOIN LATERAL (
		SELECT document_id, ordinal
		FROM chunk_documents
		WHERE chunk_id = c.id
		ORDER BY (tombstoned_at IS NULL) DESC, document_id, ordinal
		LIMIT 1
	) cd ON true
	JOIN documents d ON d.id = cd.document_id`

func scanChunk(row pgx.Row) (*domain.Chunk, error) {
	var c domain.Chunk
	var embedding *pgvector.Vector
	var modelVersion *string
	err := row.Scan(
		&c.ID, &c.DocumentID, &c.SourceURI, &c.SourceType, &c.Ordinal, &c.Text, &c.TokenCount,
		&c.ContentHash, &embedding, &modelVersion, &c.RefreshedAt, &c.TombstonedAt,
	)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		c.Embedding = embedding.Slice()
	}
	if modelVersion != nil {
		c.ModelVersion = *modelVersion
	}
	return &c, nil
}

func (r *ChunkRepository) getTx(ctx context.Context, db dbtx, chunkID string) (*domain.Chunk, error) {
	chunk, err := scanChunk(db.QueryRow(ctx,
		`SELECT`+chunkColumns+chunkFromClause+` WHERE c.id = $1`,
		chunkID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChunkNotFound
	}
	return chunk, err
}

// Get resolves a chunk by ID, tombstoned versions included.
func (r *ChunkRepository) Get(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	return r.getTx(ctx, r.pool, chunkID)
}

func (r *ChunkRepository) BulkGet(ctx context.Context, chunkIDs []string) ([]*domain.Chunk, error) {
	if len(chunkIDs) == 0 {
		return []*domain.Chunk{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT`+chunkColumns+chunkFromClause+` WHERE c.id = ANY($1)`,
		chunkIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// SearchByVector ranks live chunks by cosine distance. The model_version
// predicate keeps embeddings from different models out of the same ranking.
func (r *ChunkRepository) SearchByVector(ctx context.Context, queryVector []float32, modelVersion string, topK int) ([]*domain.ChunkMatch, error) {
	if topK <= 0 {
		topK = 20
	}
	vec := pgvector.NewVector(queryVector)

	rows, err := r.pool.Query(ctx,
		`SELECT`+chunkColumns+`,
			1.0 / (1.0 + (c.embedding <=> $1)) AS score`+
			chunkFromClause+`
		 WHERE c.tombstoned_at IS NULL
		   AND c.embedding IS NOT NULL
		   AND c.model_version = $2
		 ORDER BY c.embedding <=> $1
		 LIMIT $3`,
		vec, modelVersion, topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMatches(rows)
}

// SearchByKeyword ranks live chunks by full-text relevance using
// websearch_to_tsquery, so plain user queries work without tsquery syntax.
func (r *ChunkRepository) SearchByKeyword(ctx context.Context, queryText string, topK int) ([]*domain.ChunkMatch, error) {
	if topK <= 0 {
		topK = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT`+chunkColumns+`,
			ts_rank(c.text_search, websearch_to_tsquery('english', $1)) AS score`+
			chunkFromClause+`
		 WHERE c.tombstoned_at IS NULL
		   AND c.text_search @@ websearch_to_tsquery('english', $1)
		 ORDER BY score DESC, c.id
		 LIMIT $2`,
		queryText, topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMatches(rows)
}

func scanMatches(rows pgx.Rows) ([]*domain.ChunkMatch, error) {
	var out []*domain.ChunkMatch
	for rows.Next() {
		var c domain.Chunk
		var embedding *pgvector.Vector
		var modelVersion *string
		var score float64
		err := rows.Scan(
			&c.ID, &c.DocumentID, &c.SourceURI, &c.SourceType, &c.Ordinal, &c.Text, &c.TokenCount,
			&c.ContentHash, &embedding, &modelVersion, &c.RefreshedAt, &c.TombstonedAt,
			&score,
		)
		if err != nil {
			return nil, err
		}
		if embedding != nil {
			c.Embedding = embedding.Slice()
		}
		if modelVersion != nil {
			c.ModelVersion = *modelVersion
		}
		out = append(out, &domain.ChunkMatch{Chunk: &c, Score: score})
	}
	return out, rows.Err()
}

// MarkStale tombstones every live link of a document, and any chunk left with
// no live links.
func (r *ChunkRepository) MarkStale(ctx context.Context, documentID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, documentID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`UPDATE chunk_documents SET tombstoned_at = $1
		 WHERE document_id = $2 AND tombstoned_at IS NULL`,
		now, documentID,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE chunks c SET tombstoned_at = $1
		 WHERE c.tombstoned_at IS NULL
		   AND NOT EXISTS (
			SELECT 1 FROM chunk_documents cd
			WHERE cd.chunk_id = c.id AND cd.tombstoned_at IS NULL
		   )`,
		now,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListUnembedded returns live chunks awaiting an embedding, oldest first.
func (r *ChunkRepository) ListUnembedded(ctx context.Context, limit int) ([]*domain.Chunk, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT`+chunkColumns+chunkFromClause+`
		 WHERE c.tombstoned_at IS NULL AND c.embedding IS NULL
		 ORDER BY c.refreshed_at, c.id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// EmbeddingDimension reports the fixed width of the chunks.embedding column.
// pgvector stores the dimension directly in the column's type modifier.
func (r *ChunkRepository) EmbeddingDimension(ctx context.Context) (int, error) {
	var dim int
	err := r.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = 'chunks'::regclass AND attname = 'embedding' AND NOT attisdropped`,
	).Scan(&dim)
	if err != nil {
		return 0, err
	}
	return dim, nil
}

// SetEmbedding attaches an embedding to a live chunk. Tombstoned chunks are
// left untouched: the backfill worker may race a re-ingestion.
func (r *ChunkRepository) SetEmbedding(ctx context.Context, chunkID string, vector []float32, modelVersion string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chunks SET embedding = $1, model_version = $2
		 WHERE id = $3 AND tombstoned_at IS NULL`,
		pgvector.NewVector(vector), modelVersion, chunkID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM chunks WHERE id = $1)`, chunkID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrChunkNotFound
		}
	}
	return nil
}
