package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/pcn-service/internal/domain"
)

// CorrespondenceRepository encapsulates correspondence persistence. Rows are
// append-only.
type CorrespondenceRepository interface {
	Create(ctx context.Context, corr *domain.Correspondence) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Correspondence, error)
}

type correspondenceRepository struct {
	pool *pgxpool.Pool
}

// NewCorrespondenceRepository instantiates repository.
func NewCorrespondenceRepository(pool *pgxpool.Pool) CorrespondenceRepository {
	return &correspondenceRepository{pool: pool}
}

func (r *correspondenceRepository) Create(ctx context.Context, corr *domain.Correspondence) error {
	const query = `
        INSERT INTO correspondence (ticket_id, type, sent_at)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, corr.TicketID, corr.Type, corr.SentAt).
		Scan(&corr.ID, &corr.CreatedAt)
}

func (r *correspondenceRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Correspondence, error) {
	const query = `
        SELECT id, ticket_id, type, sent_at, created_at
        FROM correspondence WHERE ticket_id=$1 ORDER BY sent_at`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Correspondence
	for rows.Next() {
		var corr domain.Correspondence
		if err := rows.Scan(&corr.ID, &corr.TicketID, &corr.Type, &corr.SentAt, &corr.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, corr)
	}
	return result, rows.Err()
}
