package dto

import (
	"time"

	"github.com/parkwise/pcn-service/internal/domain"
)

// CreateChallengeRequest payload.
type CreateChallengeRequest struct {
	Reason       string   `json:"reason"`
	Detail       string   `json:"detail"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// ChallengeJobResponse response.
type ChallengeJobResponse struct {
	ID           string                 `json:"id"`
	TicketID     string                 `json:"ticket_id"`
	Status       domain.ChallengeStatus `json:"status"`
	Reason       string                 `json:"reason"`
	Detail       string                 `json:"detail,omitempty"`
	EvidenceRefs []string               `json:"evidence_refs,omitempty"`
	ResultRef    *string                `json:"result_ref,omitempty"`
	ArtefactRefs []string               `json:"artefact_refs,omitempty"`
	Error        *string                `json:"error,omitempty"`
	SubmittedAt  *time.Time             `json:"submitted_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ChallengeStatusResponse wraps a job with live progress. Progress is only
// meaningful while the job is IN_PROGRESS.
type ChallengeStatusResponse struct {
	ChallengeJobResponse
	Progress int `json:"progress"`
}
