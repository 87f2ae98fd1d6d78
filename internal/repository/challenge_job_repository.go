package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/pcn-service/internal/domain"
)

// ChallengeJobRepository encapsulates contest-job persistence. The Mark*
// methods are conditional writes: they report applied=false when the row was
// not in the required prior state, so concurrent poll/cancel calls can treat
// an already-settled job as a benign no-op.
type ChallengeJobRepository interface {
	Create(ctx context.Context, job *domain.ChallengeJob) error
	GetByID(ctx context.Context, id string) (*domain.ChallengeJob, error)
	GetActiveByTicket(ctx context.Context, ticketID string) (*domain.ChallengeJob, error)
	MarkInProgress(ctx context.Context, id, workerJobID string, at time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, id, resultRef string, artefactRefs []string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, errorText string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error)
}

type challengeJobRepository struct {
	pool *pgxpool.Pool
}

// NewChallengeJobRepository instantiates repository.
func NewChallengeJobRepository(pool *pgxpool.Pool) ChallengeJobRepository {
	return &challengeJobRepository{pool: pool}
}

const jobColumns = `id, ticket_id, status, worker_job_id, reason, detail, evidence_refs,
       result_ref, artefact_refs, error_text, submitted_at, created_at, updated_at`

func (r *challengeJobRepository) Create(ctx context.Context, job *domain.ChallengeJob) error {
	const query = `
        INSERT INTO challenge_jobs (ticket_id, status, reason, detail, evidence_refs)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		job.TicketID,
		job.Status,
		job.Reason,
		job.Detail,
		job.EvidenceRefs,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrActiveJobExists
	}
	return err
}

func (r *challengeJobRepository) GetByID(ctx context.Context, id string) (*domain.ChallengeJob, error) {
	query := `SELECT ` + jobColumns + ` FROM challenge_jobs WHERE id=$1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

func (r *challengeJobRepository) GetActiveByTicket(ctx context.Context, ticketID string) (*domain.ChallengeJob, error) {
	query := `SELECT ` + jobColumns + ` FROM challenge_jobs
              WHERE ticket_id=$1 AND status IN ('PENDING','IN_PROGRESS')`
	return scanJob(r.pool.QueryRow(ctx, query, ticketID))
}

func (r *challengeJobRepository) MarkInProgress(ctx context.Context, id, workerJobID string, at time.Time) (bool, error) {
	const query = `
        UPDATE challenge_jobs
        SET status='IN_PROGRESS', worker_job_id=$2, submitted_at=$3, updated_at=NOW()
        WHERE id=$1 AND status='PENDING'`
	cmd, err := r.pool.Exec(ctx, query, id, workerJobID, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *challengeJobRepository) MarkSucceeded(ctx context.Context, id, resultRef string, artefactRefs []string, at time.Time) (bool, error) {
	const query = `
        UPDATE challenge_jobs
        SET status='SUCCESS', result_ref=$2, artefact_refs=$3, updated_at=$4
        WHERE id=$1 AND status='IN_PROGRESS'`
	cmd, err := r.pool.Exec(ctx, query, id, resultRef, artefactRefs, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *challengeJobRepository) MarkFailed(ctx context.Context, id, errorText string, at time.Time) (bool, error) {
	const query = `
        UPDATE challenge_jobs
        SET status='ERROR', error_text=$2, updated_at=$3
        WHERE id=$1 AND status='IN_PROGRESS'`
	cmd, err := r.pool.Exec(ctx, query, id, errorText, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *challengeJobRepository) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE challenge_jobs
        SET status='CANCELLED', updated_at=$2
        WHERE id=$1 AND status='IN_PROGRESS'`
	cmd, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func scanJob(row pgx.Row) (*domain.ChallengeJob, error) {
	var job domain.ChallengeJob
	if err := row.Scan(
		&job.ID,
		&job.TicketID,
		&job.Status,
		&job.WorkerJobID,
		&job.Reason,
		&job.Detail,
		&job.EvidenceRefs,
		&job.ResultRef,
		&job.ArtefactRefs,
		&job.ErrorText,
		&job.SubmittedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
