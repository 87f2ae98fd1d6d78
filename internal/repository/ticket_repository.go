package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/pcn-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error)
	// UpdateStatus applies a status transition as a single conditional write
	// keyed on the previous status_updated_at. A nil expected matches tickets
	// that have never transitioned. Returns ErrVersionConflict when the guard
	// fails, which callers must treat as a concurrent update, not an error in
	// the data.
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, updatedAt time.Time, expected *time.Time) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, vehicle_id, reference, issuer_name, issuer_type, contravention_code,
       issued_at, initial_amount, status, status_updated_at, tier, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (vehicle_id, reference, issuer_name, issuer_type, contravention_code, issued_at, initial_amount, status, tier)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.VehicleID,
		ticket.Reference,
		ticket.IssuerName,
		ticket.IssuerType,
		ticket.ContraventionCode,
		ticket.IssuedAt,
		ticket.InitialAmount,
		ticket.Status,
		ticket.Tier,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanTicket(row)
}

func (r *ticketRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT t.id, t.vehicle_id, t.reference, t.issuer_name, t.issuer_type, t.contravention_code,
                     t.issued_at, t.initial_amount, t.status, t.status_updated_at, t.tier, t.created_at, t.updated_at
              FROM tickets t
              JOIN vehicles v ON v.id = t.vehicle_id
              WHERE v.user_id=$1
              ORDER BY t.issued_at DESC
              LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, updatedAt time.Time, expected *time.Time) error {
	const query = `
        UPDATE tickets SET status=$2, status_updated_at=$3, updated_at=NOW()
        WHERE id=$1 AND status_updated_at IS NOT DISTINCT FROM $4`
	cmd, err := r.pool.Exec(ctx, query, id, status, updatedAt, expected)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.VehicleID,
		&ticket.Reference,
		&ticket.IssuerName,
		&ticket.IssuerType,
		&ticket.ContraventionCode,
		&ticket.IssuedAt,
		&ticket.InitialAmount,
		&ticket.Status,
		&ticket.StatusUpdatedAt,
		&ticket.Tier,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
