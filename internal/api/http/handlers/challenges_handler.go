package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/parkwise/pcn-service/internal/api/dto"
	"github.com/parkwise/pcn-service/internal/challenge"
	"github.com/parkwise/pcn-service/internal/domain"
	apperrors "github.com/parkwise/pcn-service/pkg/util/errorutil"
)

// ChallengesHandler exposes challenge-job endpoints.
type ChallengesHandler struct {
	orchestrator *challenge.Orchestrator
}

// NewChallengesHandler constructs handler.
func NewChallengesHandler(orchestrator *challenge.Orchestrator) *ChallengesHandler {
	return &ChallengesHandler{orchestrator: orchestrator}
}

// Create handles POST /challenges/:ticketId. The job is created first and
// dispatched second: a worker outage still yields a 201 with a PENDING job,
// because the contest request itself was accepted.
func (h *ChallengesHandler) Create(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	var req dto.CreateChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	job, err := h.orchestrator.Create(c.UserContext(), principal.User.ID, c.Params("ticketId"), challenge.CreateInput{
		Reason:       req.Reason,
		Detail:       req.Detail,
		EvidenceRefs: req.EvidenceRefs,
	})
	if err != nil {
		return err
	}

	dispatched, err := h.orchestrator.Dispatch(c.UserContext(), principal.User.ID, job.ID)
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) && domainErr.Code == "WORKER_UNAVAILABLE" {
			return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
				"job":        challengeJobResponse(job),
				"dispatched": false,
			}})
		}
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"job":        challengeJobResponse(dispatched),
		"dispatched": true,
	}})
}

// Dispatch handles POST /challenges/:jobId/dispatch, retrying a PENDING job.
func (h *ChallengesHandler) Dispatch(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	job, err := h.orchestrator.Dispatch(c.UserContext(), principal.User.ID, c.Params("jobId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": challengeJobResponse(job)})
}

// Status handles GET /challenges/:jobId/status.
func (h *ChallengesHandler) Status(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	result, err := h.orchestrator.Poll(c.UserContext(), principal.User.ID, c.Params("jobId"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": dto.ChallengeStatusResponse{
		ChallengeJobResponse: challengeJobResponse(result.Job),
		Progress:             result.Progress,
	}})
}

// Cancel handles POST /challenges/:jobId/cancel.
func (h *ChallengesHandler) Cancel(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	job, err := h.orchestrator.Cancel(c.UserContext(), principal.User.ID, c.Params("jobId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": challengeJobResponse(job)})
}

func challengeJobResponse(job *domain.ChallengeJob) dto.ChallengeJobResponse {
	return dto.ChallengeJobResponse{
		ID:           job.ID,
		TicketID:     job.TicketID,
		Status:       job.Status,
		Reason:       job.Reason,
		Detail:       job.Detail,
		EvidenceRefs: job.EvidenceRefs,
		ResultRef:    job.ResultRef,
		ArtefactRefs: job.ArtefactRefs,
		Error:        job.ErrorText,
		SubmittedAt:  job.SubmittedAt,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}
