package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/pcn-service/internal/domain"
)

// PriceIncreaseRepository encapsulates price-increase persistence. Rows are
// append-only.
type PriceIncreaseRepository interface {
	Create(ctx context.Context, inc *domain.PriceIncrease) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.PriceIncrease, error)
}

type priceIncreaseRepository struct {
	pool *pgxpool.Pool
}

// NewPriceIncreaseRepository instantiates repository.
func NewPriceIncreaseRepository(pool *pgxpool.Pool) PriceIncreaseRepository {
	return &priceIncreaseRepository{pool: pool}
}

func (r *priceIncreaseRepository) Create(ctx context.Context, inc *domain.PriceIncrease) error {
	const query = `
        INSERT INTO price_increases (ticket_id, amount, effective_at, source)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, inc.TicketID, inc.Amount, inc.EffectiveAt, inc.Source).
		Scan(&inc.ID, &inc.CreatedAt)
}

func (r *priceIncreaseRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.PriceIncrease, error) {
	const query = `
        SELECT id, ticket_id, amount, effective_at, source, created_at
        FROM price_increases WHERE ticket_id=$1 ORDER BY effective_at`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PriceIncrease
	for rows.Next() {
		var inc domain.PriceIncrease
		if err := rows.Scan(&inc.ID, &inc.TicketID, &inc.Amount, &inc.EffectiveAt, &inc.Source, &inc.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, inc)
	}
	return result, rows.Err()
}
