package challenge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkwise/pcn-service/internal/automation"
	"github.com/parkwise/pcn-service/internal/domain"
	"github.com/parkwise/pcn-service/internal/repository"
	apperrors "github.com/parkwise/pcn-service/pkg/util/errorutil"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo(tickets ...*domain.Ticket) *fakeTicketRepo {
	r := &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
	for _, t := range tickets {
		copied := *t
		r.tickets[t.ID] = &copied
	}
	return r
}

func (r *fakeTicketRepo) Create(_ context.Context, t *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *t
	r.tickets[t.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTicketRepo) ListByUser(_ context.Context, _ string, _, _ int) ([]domain.Ticket, error) {
	return nil, nil
}

func (r *fakeTicketRepo) UpdateStatus(_ context.Context, id string, status domain.TicketStatus, updatedAt time.Time, expected *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return repository.ErrVersionConflict
	}
	switch {
	case expected == nil && t.StatusUpdatedAt != nil:
		return repository.ErrVersionConflict
	case expected != nil && (t.StatusUpdatedAt == nil || !t.StatusUpdatedAt.Equal(*expected)):
		return repository.ErrVersionConflict
	}
	t.Status = status
	at := updatedAt
	t.StatusUpdatedAt = &at
	return nil
}

type fakeVehicleRepo struct {
	vehicles map[string]*domain.Vehicle
}

func (r *fakeVehicleRepo) Create(_ context.Context, _ *domain.Vehicle) error { return nil }

func (r *fakeVehicleRepo) GetByID(_ context.Context, id string) (*domain.Vehicle, error) {
	v, ok := r.vehicles[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return v, nil
}

func (r *fakeVehicleRepo) ListByUser(_ context.Context, _ string) ([]domain.Vehicle, error) {
	return nil, nil
}

// fakeJobRepo mirrors the store semantics the orchestrator leans on: the
// partial unique index on non-terminal jobs and conditional Mark* writes.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.ChallengeJob
	seq  int
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]*domain.ChallengeJob{}}
}

func (r *fakeJobRepo) Create(_ context.Context, job *domain.ChallengeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.TicketID == job.TicketID && !existing.Status.IsTerminal() {
			return repository.ErrActiveJobExists
		}
	}
	r.seq++
	job.ID = "job-" + string(rune('0'+r.seq))
	job.CreatedAt = testNow
	job.UpdatedAt = testNow
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id string) (*domain.ChallengeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) GetActiveByTicket(_ context.Context, ticketID string) (*domain.ChallengeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.TicketID == ticketID && !job.Status.IsTerminal() {
			copied := *job
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeJobRepo) transition(id string, from, to domain.ChallengeStatus, mutate func(*domain.ChallengeJob)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != from {
		return false, nil
	}
	job.Status = to
	mutate(job)
	return true, nil
}

func (r *fakeJobRepo) MarkInProgress(_ context.Context, id, workerJobID string, at time.Time) (bool, error) {
	return r.transition(id, domain.ChallengeStatusPending, domain.ChallengeStatusInProgress, func(j *domain.ChallengeJob) {
		j.WorkerJobID = &workerJobID
		j.SubmittedAt = &at
	})
}

func (r *fakeJobRepo) MarkSucceeded(_ context.Context, id, resultRef string, artefactRefs []string, _ time.Time) (bool, error) {
	return r.transition(id, domain.ChallengeStatusInProgress, domain.ChallengeStatusSuccess, func(j *domain.ChallengeJob) {
		if resultRef != "" {
			j.ResultRef = &resultRef
		}
		j.ArtefactRefs = artefactRefs
	})
}

func (r *fakeJobRepo) MarkFailed(_ context.Context, id, errorText string, _ time.Time) (bool, error) {
	return r.transition(id, domain.ChallengeStatusInProgress, domain.ChallengeStatusError, func(j *domain.ChallengeJob) {
		if errorText != "" {
			j.ErrorText = &errorText
		}
	})
}

func (r *fakeJobRepo) MarkCancelled(_ context.Context, id string, _ time.Time) (bool, error) {
	return r.transition(id, domain.ChallengeStatusInProgress, domain.ChallengeStatusCancelled, func(*domain.ChallengeJob) {})
}

type fakeWorker struct {
	mu          sync.Mutex
	submitErr   error
	cancelErr   error
	statusErr   error
	report      automation.StatusReport
	submitCalls int
	statusCalls int
	cancelCalls int
}

func (w *fakeWorker) Submit(_ context.Context, _ automation.SubmitRequest) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitCalls++
	if w.submitErr != nil {
		return "", w.submitErr
	}
	return "worker-1", nil
}

func (w *fakeWorker) Status(_ context.Context, _ string) (*automation.StatusReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statusCalls++
	if w.statusErr != nil {
		return nil, w.statusErr
	}
	report := w.report
	return &report, nil
}

func (w *fakeWorker) Cancel(_ context.Context, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelCalls++
	return w.cancelErr
}

// --- fixtures ---

const (
	ownerID    = "user-1"
	strangerID = "user-2"
	vehicleID  = "veh-1"
	ticketID   = "tkt-1"
)

func fixtureTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:            ticketID,
		VehicleID:     vehicleID,
		Reference:     "PCN123456",
		IssuerName:    "Camden Council",
		IssuerType:    domain.IssuerTypeCouncil,
		IssuedAt:      testNow.Add(-20 * 24 * time.Hour),
		InitialAmount: 6000,
		Status:        domain.TicketStatusFullPayment,
		Tier:          domain.TierStandard,
	}
}

func setup(t *testing.T) (*Orchestrator, *fakeTicketRepo, *fakeJobRepo, *fakeWorker) {
	t.Helper()
	tickets := newFakeTicketRepo(fixtureTicket())
	vehicles := &fakeVehicleRepo{vehicles: map[string]*domain.Vehicle{
		vehicleID: {ID: vehicleID, UserID: ownerID, Plate: "AB12CDE"},
	}}
	jobs := newFakeJobRepo()
	worker := &fakeWorker{}
	orch := NewOrchestrator(Dependencies{
		TicketRepo:  tickets,
		VehicleRepo: vehicles,
		JobRepo:     jobs,
		Worker:      worker,
		Logger:      zap.NewNop(),
		Now:         func() time.Time { return testNow },
	})
	return orch, tickets, jobs, worker
}

func createInProgressJob(t *testing.T, orch *Orchestrator) *domain.ChallengeJob {
	t.Helper()
	job, err := orch.Create(context.Background(), ownerID, ticketID, CreateInput{Reason: "signage"})
	require.NoError(t, err)
	job, err = orch.Dispatch(context.Background(), ownerID, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ChallengeStatusInProgress, job.Status)
	return job
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	return de.Code
}

// --- tests ---

func TestCreate_RequiresReason(t *testing.T) {
	orch, _, _, _ := setup(t)
	_, err := orch.Create(context.Background(), ownerID, ticketID, CreateInput{})
	assert.Equal(t, "VALIDATION_FAILED", domainCode(t, err))
}

func TestCreate_UnknownTicket(t *testing.T) {
	orch, _, _, _ := setup(t)
	_, err := orch.Create(context.Background(), ownerID, "missing", CreateInput{Reason: "signage"})
	assert.Equal(t, "NOT_FOUND", domainCode(t, err))
}

func TestCreate_OwnershipEnforced(t *testing.T) {
	orch, _, _, _ := setup(t)
	_, err := orch.Create(context.Background(), strangerID, ticketID, CreateInput{Reason: "signage"})
	assert.Equal(t, "FORBIDDEN", domainCode(t, err))
}

func TestCreate_SecondLiveJobConflicts(t *testing.T) {
	orch, _, _, _ := setup(t)
	_, err := orch.Create(context.Background(), ownerID, ticketID, CreateInput{Reason: "signage"})
	require.NoError(t, err)

	_, err = orch.Create(context.Background(), ownerID, ticketID, CreateInput{Reason: "again"})
	assert.Equal(t, "CONFLICT", domainCode(t, err))
}

func TestCreate_ConcurrentCreatesExactlyOneSucceeds(t *testing.T) {
	orch, _, _, _ := setup(t)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orch.Create(context.Background(), ownerID, ticketID, CreateInput{Reason: "signage"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, "CONFLICT", domainCode(t, err))
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestDispatch_FailureLeavesJobPending(t *testing.T) {
	orch, _, jobs, worker := setup(t)
	worker.submitErr = errors.New("connection refused")

	job, err := orch.Create(context.Background(), ownerID, ticketID, CreateInput{Reason: "signage"})
	require.NoError(t, err)

	_, err = orch.Dispatch(context.Background(), ownerID, job.ID)
	assert.Equal(t, "WORKER_UNAVAILABLE", domainCode(t, err))

	stored, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusPending, stored.Status)
	assert.Nil(t, stored.WorkerJobID)

	// Retry succeeds once the worker is reachable again.
	worker.submitErr = nil
	dispatched, err := orch.Dispatch(context.Background(), ownerID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusInProgress, dispatched.Status)
	require.NotNil(t, dispatched.WorkerJobID)
	assert.Equal(t, "worker-1", *dispatched.WorkerJobID)
}

func TestPoll_RunningSurfacesProgressWithoutWrites(t *testing.T) {
	orch, _, jobs, worker := setup(t)
	job := createInProgressJob(t, orch)
	worker.report = automation.StatusReport{State: automation.StateRunning, Progress: 40}

	result, err := orch.Poll(context.Background(), ownerID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusInProgress, result.Job.Status)
	assert.Equal(t, 40, result.Progress)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, domain.ChallengeStatusInProgress, stored.Status)
}

func TestPoll_SuccessPersistsResultAndAppealsTicket(t *testing.T) {
	orch, tickets, jobs, worker := setup(t)
	job := createInProgressJob(t, orch)
	worker.report = automation.StatusReport{
		State:        automation.StateSucceeded,
		Progress:     100,
		ResultRef:    "REF-991",
		ArtefactRefs: []string{"s3://artefacts/confirmation.pdf"},
	}

	result, err := orch.Poll(context.Background(), ownerID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusSuccess, result.Job.Status)
	require.NotNil(t, result.Job.ResultRef)
	assert.Equal(t, "REF-991", *result.Job.ResultRef)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, domain.ChallengeStatusSuccess, stored.Status)

	ticket, err := tickets.GetByID(context.Background(), ticketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAppealed, ticket.Status)
	require.NotNil(t, ticket.StatusUpdatedAt)
	assert.True(t, ticket.StatusUpdatedAt.Equal(testNow))
}

func TestPoll_SuccessDoesNotRegressNewerTicketStatus(t *testing.T) {
	orch, tickets, _, worker := setup(t)
	job := createInProgressJob(t, orch)

	// A newer correspondence lands before the poll settles the job.
	newer := testNow.Add(time.Hour)
	require.NoError(t, tickets.UpdateStatus(context.Background(), ticketID, domain.TicketStatusChargeCert, newer, nil))

	worker.report = automation.StatusReport{State: automation.StateSucceeded, ResultRef: "REF-1"}
	_, err := orch.Poll(context.Background(), ownerID, job.ID)
	require.NoError(t, err)

	ticket, _ := tickets.GetByID(context.Background(), ticketID)
	assert.Equal(t, domain.TicketStatusChargeCert, ticket.Status)
}

func TestPoll_FailurePreservesWorkerErrorVerbatim(t *testing.T) {
	orch, _, jobs, worker := setup(t)
	job := createInProgressJob(t, orch)
	worker.report = automation.StatusReport{State: automation.StateFailed, Error: "captcha loop exceeded 3 attempts"}

	result, err := orch.Poll(context.Background(), ownerID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusError, result.Job.Status)
	require.NotNil(t, result.Job.ErrorText)
	assert.Equal(t, "captcha loop exceeded 3 attempts", *result.Job.ErrorText)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, domain.ChallengeStatusError, stored.Status)
}

func TestPoll_TerminalJobIsIdempotentNoOp(t *testing.T) {
	orch, _, _, worker := setup(t)
	job := createInProgressJob(t, orch)
	worker.report = automation.StatusReport{State: automation.StateSucceeded, ResultRef: "REF-991"}

	_, err := orch.Poll(context.Background(), ownerID, job.ID)
	require.NoError(t, err)
	callsAfterSettle := worker.statusCalls

	for i := 0; i < 5; i++ {
		result, err := orch.Poll(context.Background(), ownerID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeStatusSuccess, result.Job.Status)
		require.NotNil(t, result.Job.ResultRef)
		assert.Equal(t, "REF-991", *result.Job.ResultRef)
	}
	assert.Equal(t, callsAfterSettle, worker.statusCalls, "terminal polls must not call the worker")
}

func TestPoll_WorkerUnreachableLeavesStateUntouched(t *testing.T) {
	orch, _, jobs, worker := setup(t)
	job := createInProgressJob(t, orch)
	worker.statusErr = errors.New("dial tcp: i/o timeout")

	_, err := orch.Poll(context.Background(), ownerID, job.ID)
	assert.Equal(t, "WORKER_UNAVAILABLE", domainCode(t, err))

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, domain.ChallengeStatusInProgress, stored.Status)
}

func TestCancel_OnlyFromInProgress(t *testing.T) {
	orch, _, _, _ := setup(t)

	job, err := orch.Create(context.Background(), ownerID, ticketID, CreateInput{Reason: "signage"})
	require.NoError(t, err)

	_, err = orch.Cancel(context.Background(), ownerID, job.ID)
	assert.Equal(t, "CONFLICT", domainCode(t, err))
}

func TestCancel_TerminalJobConflicts(t *testing.T) {
	orch, _, _, worker := setup(t)
	job := createInProgressJob(t, orch)
	worker.report = automation.StatusReport{State: automation.StateFailed, Error: "boom"}
	_, err := orch.Poll(context.Background(), ownerID, job.ID)
	require.NoError(t, err)

	_, err = orch.Cancel(context.Background(), ownerID, job.ID)
	assert.Equal(t, "CONFLICT", domainCode(t, err))
}

func TestCancel_LocalCancelSurvivesWorkerFailure(t *testing.T) {
	orch, _, jobs, worker := setup(t)
	job := createInProgressJob(t, orch)
	worker.cancelErr = errors.New("504 gateway timeout")

	cancelled, err := orch.Cancel(context.Background(), ownerID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeStatusCancelled, cancelled.Status)
	assert.Equal(t, 1, worker.cancelCalls)

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, domain.ChallengeStatusCancelled, stored.Status)
}

func TestCancel_ConcurrentWithPollIsBenign(t *testing.T) {
	orch, _, jobs, worker := setup(t)
	job := createInProgressJob(t, orch)
	worker.report = automation.StatusReport{State: automation.StateSucceeded, ResultRef: "REF-7"}

	var wg sync.WaitGroup
	var pollErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, pollErr = orch.Poll(context.Background(), ownerID, job.ID)
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = orch.Cancel(context.Background(), ownerID, job.ID)
	}()
	wg.Wait()

	// Whichever settled second saw a terminal job; neither path may report
	// an internal failure, and the stored job must be terminal.
	require.NoError(t, pollErr)
	if cancelErr != nil {
		assert.Equal(t, "CONFLICT", domainCode(t, cancelErr))
	}
	stored, _ := jobs.GetByID(context.Background(), job.ID)
	assert.True(t, stored.Status.IsTerminal())
}

func TestNewTicketCanBeChallengedAfterTerminalJob(t *testing.T) {
	orch, _, _, worker := setup(t)
	job := createInProgressJob(t, orch)
	worker.report = automation.StatusReport{State: automation.StateFailed, Error: "boom"}
	_, err := orch.Poll(context.Background(), ownerID, job.ID)
	require.NoError(t, err)

	// Terminal job no longer blocks a fresh attempt.
	_, err = orch.Create(context.Background(), ownerID, ticketID, CreateInput{Reason: "retry"})
	assert.NoError(t, err)
}
