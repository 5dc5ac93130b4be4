package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundline/groundline/internal/service"
)

// QueryEventRepository stores query events for evaluation/feedback loops.
type QueryEventRepository struct {
	pool *pgxpool.Pool
}

func NewQueryEventRepository(pool *pgxpool.Pool) *QueryEventRepository {
	return &QueryEventRepository{pool: pool}
}

func (r *QueryEventRepository) RecordQueryEvent(ctx context.Context, event service.QueryEvent) error {
	citationsJSON, _ := json.Marshal(event.Citations)

	_, err := r.pool.Exec(ctx,
		`INSERT INTO query_events
			(conversation_id, query, answer, citations, provider_id, model_id, tokens_in, tokens_out, latency_ms, state, failed_during, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		nullableString(event.ConversationID),
		event.QueryText,
		event.Answer,
		citationsJSON,
		nullableString(event.ProviderUsed),
		nullableString(event.ModelUsed),
		event.TokensIn,
		event.TokensOut,
		event.LatencyMs,
		event.State,
		nullableString(event.FailedDuring),
		event.OccurredAt,
	)
	return err
}
