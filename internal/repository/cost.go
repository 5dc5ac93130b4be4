package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groundline/groundline/internal/provider"
)

// CostRepository stores provider cost entries. Write-only from the engine's
// side; billing and analytics read the table directly.
type CostRepository struct {
	pool *pgxpool.Pool
}

func NewCostRepository(pool *pgxpool.Pool) *CostRepository {
	return &CostRepository{pool: pool}
}

func (r *CostRepository) RecordCost(ctx context.Context, entry provider.CostEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cost_entries (provider_id, model_id, tokens_in, tokens_out, conversation_id, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ProviderID,
		entry.ModelID,
		entry.TokensIn,
		entry.TokensOut,
		nullableString(entry.ConversationID),
		entry.RecordedAt,
	)
	return err
}
