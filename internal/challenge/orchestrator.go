// Package challenge orchestrates the per-ticket contest job: creation,
// dispatch to the external automation worker, polling, cancellation and
// terminal resolution feeding back into the ticket lifecycle.
package challenge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/parkwise/pcn-service/internal/automation"
	"github.com/parkwise/pcn-service/internal/domain"
	"github.com/parkwise/pcn-service/internal/events"
	"github.com/parkwise/pcn-service/internal/lifecycle"
	"github.com/parkwise/pcn-service/internal/repository"
	apperrors "github.com/parkwise/pcn-service/pkg/util/errorutil"
)

// Orchestrator owns the contest-job lifecycle for tickets.
type Orchestrator struct {
	tickets    repository.TicketRepository
	vehicles   repository.VehicleRepository
	jobs       repository.ChallengeJobRepository
	worker     automation.Client
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// Dependencies bundles collaborators for the orchestrator.
type Dependencies struct {
	TicketRepo  repository.TicketRepository
	VehicleRepo repository.VehicleRepository
	JobRepo     repository.ChallengeJobRepository
	Worker      automation.Client
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// CreateInput describes a contest request.
type CreateInput struct {
	Reason       string
	Detail       string
	EvidenceRefs []string
}

// PollResult is what a status poll surfaces to the caller. Progress is only
// meaningful while the job is IN_PROGRESS.
type PollResult struct {
	Job      *domain.ChallengeJob
	Progress int
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		tickets:    deps.TicketRepo,
		vehicles:   deps.VehicleRepo,
		jobs:       deps.JobRepo,
		worker:     deps.Worker,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        now,
	}
}

// Create persists a PENDING contest job for the ticket. Dispatch is a
// separate step so the owning request can return quickly. The store's
// partial unique index is the real guarantee that two concurrent creates
// cannot both succeed.
func (o *Orchestrator) Create(ctx context.Context, requesterID, ticketID string, input CreateInput) (*domain.ChallengeJob, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, apperrors.NewValidationError("reason required", nil)
	}
	if _, err := o.ownedTicket(ctx, requesterID, ticketID); err != nil {
		return nil, err
	}

	job := &domain.ChallengeJob{
		TicketID:     ticketID,
		Status:       domain.ChallengeStatusPending,
		Reason:       strings.TrimSpace(input.Reason),
		Detail:       strings.TrimSpace(input.Detail),
		EvidenceRefs: input.EvidenceRefs,
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrActiveJobExists) {
			return nil, apperrors.NewConflict("a challenge is already in progress for this ticket", nil)
		}
		return nil, err
	}

	o.publish(ctx, events.Event{
		Type:     events.EventChallengeCreated,
		TicketID: ticketID,
		UserID:   requesterID,
		Payload:  events.ChallengeCreatedPayload{JobID: job.ID, Reason: job.Reason},
	})
	return job, nil
}

// Dispatch sends a PENDING job to the automation worker. A dispatch failure
// leaves the job PENDING for retry; it is a transport problem, not an
// execution outcome.
func (o *Orchestrator) Dispatch(ctx context.Context, requesterID, jobID string) (*domain.ChallengeJob, error) {
	job, ticket, err := o.ownedJob(ctx, requesterID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.ChallengeStatusPending {
		return nil, apperrors.NewInvalidState("job is not pending dispatch", map[string]any{"status": job.Status})
	}

	workerJobID, err := o.worker.Submit(ctx, automation.SubmitRequest{
		TicketReference: ticket.Reference,
		IssuerName:      ticket.IssuerName,
		Reason:          job.Reason,
		Detail:          job.Detail,
		EvidenceRefs:    job.EvidenceRefs,
	})
	if err != nil {
		o.logger.Warn("challenge dispatch failed, job left pending",
			zap.String("job_id", job.ID),
			zap.String("ticket_id", job.TicketID),
			zap.Error(err))
		return nil, apperrors.NewWorkerUnavailable(err)
	}

	now := o.now()
	applied, err := o.jobs.MarkInProgress(ctx, job.ID, workerJobID, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent call already moved the job on; re-read and report.
		return o.jobs.GetByID(ctx, job.ID)
	}

	job.Status = domain.ChallengeStatusInProgress
	job.WorkerJobID = &workerJobID
	job.SubmittedAt = &now

	o.publish(ctx, events.Event{
		Type:     events.EventChallengeDispatched,
		TicketID: job.TicketID,
		UserID:   requesterID,
		Payload:  events.ChallengeDispatchedPayload{JobID: job.ID, WorkerJobID: workerJobID},
	})
	return job, nil
}

// Poll surfaces current job status. Terminal jobs return their stored result
// with no worker call; polling is idempotent and safe to run concurrently.
// A worker that cannot be reached leaves local state untouched and reports a
// transient failure.
func (o *Orchestrator) Poll(ctx context.Context, requesterID, jobID string) (*PollResult, error) {
	job, ticket, err := o.ownedJob(ctx, requesterID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() || job.Status == domain.ChallengeStatusPending {
		return &PollResult{Job: job}, nil
	}
	if job.WorkerJobID == nil {
		// IN_PROGRESS without a worker id should not happen; surface as-is
		// rather than invent an outcome.
		return &PollResult{Job: job}, nil
	}

	report, err := o.worker.Status(ctx, *job.WorkerJobID)
	if err != nil {
		return nil, apperrors.NewWorkerUnavailable(err)
	}

	switch report.State {
	case automation.StateQueued, automation.StateRunning:
		return &PollResult{Job: job, Progress: report.Progress}, nil
	case automation.StateSucceeded:
		return o.settleSuccess(ctx, job, ticket, report)
	case automation.StateFailed:
		return o.settleFailure(ctx, job, report)
	default:
		o.logger.Error("worker reported unknown state",
			zap.String("job_id", job.ID),
			zap.String("state", string(report.State)))
		return &PollResult{Job: job, Progress: report.Progress}, nil
	}
}

// Cancel moves an IN_PROGRESS job to CANCELLED. The worker-side cancel is
// best effort: its failure is logged, never propagated, because local state
// must not stay stuck pending a remote acknowledgement.
func (o *Orchestrator) Cancel(ctx context.Context, requesterID, jobID string) (*domain.ChallengeJob, error) {
	job, _, err := o.ownedJob(ctx, requesterID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.ChallengeStatusInProgress {
		return nil, apperrors.NewInvalidState("only an in-progress challenge can be cancelled", map[string]any{"status": job.Status})
	}

	if job.WorkerJobID != nil {
		if err := o.worker.Cancel(ctx, *job.WorkerJobID); err != nil {
			o.logger.Warn("worker-side cancel failed, cancelling locally anyway",
				zap.String("job_id", job.ID),
				zap.String("worker_job_id", *job.WorkerJobID),
				zap.Error(err))
		}
	}

	now := o.now()
	applied, err := o.jobs.MarkCancelled(ctx, job.ID, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent poll or cancel settled the job first.
		settled, err := o.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if settled.Status == domain.ChallengeStatusCancelled {
			return settled, nil
		}
		return nil, apperrors.NewConflict("challenge already settled", map[string]any{"status": settled.Status})
	}

	job.Status = domain.ChallengeStatusCancelled
	o.publish(ctx, events.Event{
		Type:     events.EventChallengeCompleted,
		TicketID: job.TicketID,
		UserID:   requesterID,
		Payload:  events.ChallengeCompletedPayload{JobID: job.ID, Status: job.Status},
	})
	return job, nil
}

// Get returns a job after re-verifying ownership.
func (o *Orchestrator) Get(ctx context.Context, requesterID, jobID string) (*domain.ChallengeJob, error) {
	job, _, err := o.ownedJob(ctx, requesterID, jobID)
	return job, err
}

func (o *Orchestrator) settleSuccess(ctx context.Context, job *domain.ChallengeJob, ticket *domain.Ticket, report *automation.StatusReport) (*PollResult, error) {
	now := o.now()
	applied, err := o.jobs.MarkSucceeded(ctx, job.ID, report.ResultRef, report.ArtefactRefs, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent poll got there first; its writes stand.
		settled, err := o.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		return &PollResult{Job: settled, Progress: 100}, nil
	}

	job.Status = domain.ChallengeStatusSuccess
	if report.ResultRef != "" {
		ref := report.ResultRef
		job.ResultRef = &ref
	}
	job.ArtefactRefs = report.ArtefactRefs

	o.applyAppealTransition(ctx, ticket, now)

	o.publish(ctx, events.Event{
		Type:     events.EventChallengeCompleted,
		TicketID: job.TicketID,
		Payload:  events.ChallengeCompletedPayload{JobID: job.ID, Status: job.Status, ResultRef: job.ResultRef},
	})
	return &PollResult{Job: job, Progress: 100}, nil
}

func (o *Orchestrator) settleFailure(ctx context.Context, job *domain.ChallengeJob, report *automation.StatusReport) (*PollResult, error) {
	now := o.now()
	applied, err := o.jobs.MarkFailed(ctx, job.ID, report.Error, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		settled, err := o.jobs.GetByID(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		return &PollResult{Job: settled}, nil
	}

	job.Status = domain.ChallengeStatusError
	if report.Error != "" {
		// Worker text kept verbatim for support diagnosis.
		text := report.Error
		job.ErrorText = &text
	}

	o.publish(ctx, events.Event{
		Type:     events.EventChallengeCompleted,
		TicketID: job.TicketID,
		Payload:  events.ChallengeCompletedPayload{JobID: job.ID, Status: job.Status, ErrorText: job.ErrorText},
	})
	return &PollResult{Job: job}, nil
}

// applyAppealTransition feeds the implicit appeal-submitted event into the
// lifecycle resolver with now as effective date. A guard failure here means
// newer correspondence has since been applied; the decline is benign.
func (o *Orchestrator) applyAppealTransition(ctx context.Context, ticket *domain.Ticket, now time.Time) {
	res := lifecycle.Resolve(ticket.Status, ticket.StatusUpdatedAt, ticket.IssuedAt, domain.CorrespondenceAppealSubmitted, now)
	if !res.Applied {
		return
	}
	err := o.tickets.UpdateStatus(ctx, ticket.ID, res.NewStatus, now, ticket.StatusUpdatedAt)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			o.logger.Info("appeal transition declined by concurrent status change",
				zap.String("ticket_id", ticket.ID))
			return
		}
		o.logger.Error("failed to apply appeal transition",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
		return
	}

	o.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: ticket.Status,
			NewStatus: res.NewStatus,
			Trigger:   domain.CorrespondenceAppealSubmitted,
			SentAt:    now,
		},
	})
}

// ownedTicket loads a ticket and re-verifies the ticket -> vehicle -> user
// chain. Re-run per call: ownership can change between calls.
func (o *Orchestrator) ownedTicket(ctx context.Context, requesterID, ticketID string) (*domain.Ticket, error) {
	ticket, err := o.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, err
	}
	vehicle, err := o.vehicles.GetByID(ctx, ticket.VehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle.UserID != requesterID {
		return nil, apperrors.NewForbidden("not the owner of this ticket")
	}
	return ticket, nil
}

func (o *Orchestrator) ownedJob(ctx context.Context, requesterID, jobID string) (*domain.ChallengeJob, *domain.Ticket, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("challenge", nil)
		}
		return nil, nil, err
	}
	ticket, err := o.ownedTicket(ctx, requesterID, job.TicketID)
	if err != nil {
		return nil, nil, err
	}
	return job, ticket, nil
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	if o.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = o.now()
	}
	_ = o.dispatcher.Publish(ctx, event)
}
