package domain

import "time"

// ChallengeStatus enumerates the contest-job lifecycle.
type ChallengeStatus string

const (
	ChallengeStatusPending    ChallengeStatus = "PENDING"
	ChallengeStatusInProgress ChallengeStatus = "IN_PROGRESS"
	ChallengeStatusSuccess    ChallengeStatus = "SUCCESS"
	ChallengeStatusError      ChallengeStatus = "ERROR"
	ChallengeStatusCancelled  ChallengeStatus = "CANCELLED"
)

// IsTerminal reports whether the job can no longer change state.
func (s ChallengeStatus) IsTerminal() bool {
	switch s {
	case ChallengeStatusSuccess, ChallengeStatusError, ChallengeStatusCancelled:
		return true
	}
	return false
}

// ChallengeJob tracks a single contest/appeal submission executed by the
// external automation worker. At most one non-terminal job may exist per
// ticket; the store enforces this with a partial unique index.
type ChallengeJob struct {
	ID           string
	TicketID     string
	Status       ChallengeStatus
	WorkerJobID  *string
	Reason       string
	Detail       string
	EvidenceRefs []string
	ResultRef    *string
	ArtefactRefs []string
	ErrorText    *string
	SubmittedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
