package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/pcn-service/internal/domain"
)

// DueReminder is a reminder joined with the ticket and owner context the
// scheduler needs to gate channels and address the notification.
type DueReminder struct {
	Reminder        domain.Reminder
	TicketReference string
	Tier            domain.Tier
	UserID          string
	UserEmail       string
}

// ReminderRepository encapsulates reminder persistence.
type ReminderRepository interface {
	// Create inserts a reminder unless one already exists for the
	// (ticket, type) pair; it reports whether a row was inserted.
	Create(ctx context.Context, reminder *domain.Reminder) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Reminder, error)
	ListDue(ctx context.Context, from, to time.Time) ([]DueReminder, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
}

type reminderRepository struct {
	pool *pgxpool.Pool
}

// NewReminderRepository instantiates repository.
func NewReminderRepository(pool *pgxpool.Pool) ReminderRepository {
	return &reminderRepository{pool: pool}
}

func (r *reminderRepository) Create(ctx context.Context, reminder *domain.Reminder) (bool, error) {
	const query = `
        INSERT INTO reminders (ticket_id, type, channel, send_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id, type) DO NOTHING
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		reminder.TicketID,
		reminder.Type,
		reminder.Channel,
		reminder.SendAt,
	).Scan(&reminder.ID, &reminder.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *reminderRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Reminder, error) {
	const query = `
        SELECT id, ticket_id, type, channel, send_at, sent_at, created_at
        FROM reminders WHERE ticket_id=$1 ORDER BY send_at`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Reminder
	for rows.Next() {
		var rem domain.Reminder
		if err := rows.Scan(&rem.ID, &rem.TicketID, &rem.Type, &rem.Channel, &rem.SendAt, &rem.SentAt, &rem.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rem)
	}
	return result, rows.Err()
}

func (r *reminderRepository) ListDue(ctx context.Context, from, to time.Time) ([]DueReminder, error) {
	const query = `
        SELECT r.id, r.ticket_id, r.type, r.channel, r.send_at, r.sent_at, r.created_at,
               t.reference, t.tier, v.user_id, u.email
        FROM reminders r
        JOIN tickets t ON t.id = r.ticket_id
        JOIN vehicles v ON v.id = t.vehicle_id
        JOIN users u ON u.id = v.user_id
        WHERE r.sent_at IS NULL AND r.send_at >= $1 AND r.send_at <= $2
        ORDER BY r.send_at`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DueReminder
	for rows.Next() {
		var due DueReminder
		if err := rows.Scan(
			&due.Reminder.ID,
			&due.Reminder.TicketID,
			&due.Reminder.Type,
			&due.Reminder.Channel,
			&due.Reminder.SendAt,
			&due.Reminder.SentAt,
			&due.Reminder.CreatedAt,
			&due.TicketReference,
			&due.Tier,
			&due.UserID,
			&due.UserEmail,
		); err != nil {
			return nil, err
		}
		result = append(result, due)
	}
	return result, rows.Err()
}

func (r *reminderRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE reminders SET sent_at=$2 WHERE id=$1 AND sent_at IS NULL`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}
