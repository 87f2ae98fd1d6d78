// Package lifecycle holds the pure business rules of the ticket state
// machine: resolving correspondence into status transitions and computing
// the amount currently owed.
package lifecycle

import (
	"time"

	"github.com/parkwise/pcn-service/internal/domain"
)

// statusByCorrespondence maps classified correspondence types to the status
// they imply. Types absent from this table never change status: in
// particular APPEAL_RESPONSE, whose outcome (accepted vs rejected) cannot be
// inferred from the classification alone and must be resolved by a human.
var statusByCorrespondence = map[domain.CorrespondenceType]domain.TicketStatus{
	domain.CorrespondenceNoticeToOwner:    domain.TicketStatusNoticeToOwner,
	domain.CorrespondenceChargeCert:       domain.TicketStatusChargeCert,
	domain.CorrespondenceOrderForRecovery: domain.TicketStatusOrderForRecovery,
	domain.CorrespondenceCCJNotice:        domain.TicketStatusCCJIssued,
	domain.CorrespondenceBailiffNotice:    domain.TicketStatusBailiffStage,
	domain.CorrespondenceAppealSubmitted:  domain.TicketStatusAppealed,
}

// TransitionFor returns the status a correspondence type maps to, if any.
func TransitionFor(t domain.CorrespondenceType) (domain.TicketStatus, bool) {
	status, ok := statusByCorrespondence[t]
	return status, ok
}

// Resolution is the outcome of resolving one correspondence item.
type Resolution struct {
	NewStatus domain.TicketStatus
	Applied   bool
}

// Resolve decides whether a correspondence item advances ticket status under
// the last-update-wins rule: the item applies only if it is dated strictly
// after the effective current-status date (statusUpdatedAt if set, else
// issuedAt). Out-of-order arrival of an older letter never regresses status.
// Terminal statuses never transition.
func Resolve(current domain.TicketStatus, currentUpdatedAt *time.Time, issuedAt time.Time, corrType domain.CorrespondenceType, sentAt time.Time) Resolution {
	if current.IsTerminal() {
		return Resolution{NewStatus: current}
	}
	next, ok := TransitionFor(corrType)
	if !ok {
		return Resolution{NewStatus: current}
	}
	effective := issuedAt
	if currentUpdatedAt != nil {
		effective = *currentUpdatedAt
	}
	if !sentAt.After(effective) {
		return Resolution{NewStatus: current}
	}
	return Resolution{NewStatus: next, Applied: true}
}
