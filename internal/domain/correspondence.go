package domain

import "time"

// CorrespondenceType classifies an incoming letter or notice. Classification
// happens upstream; by the time a Correspondence reaches this service the
// type is already decided.
type CorrespondenceType string

const (
	CorrespondenceNoticeToOwner    CorrespondenceType = "NOTICE_TO_OWNER"
	CorrespondenceChargeCert       CorrespondenceType = "CHARGE_CERTIFICATE"
	CorrespondenceOrderForRecovery CorrespondenceType = "ORDER_FOR_RECOVERY"
	CorrespondenceCCJNotice        CorrespondenceType = "CCJ_NOTICE"
	CorrespondenceBailiffNotice    CorrespondenceType = "BAILIFF_NOTICE"
	CorrespondenceAppealSubmitted  CorrespondenceType = "APPEAL_SUBMITTED"

	// AppealResponse may mean acceptance or rejection; it carries no status
	// mapping and waits for manual classification.
	CorrespondenceAppealResponse CorrespondenceType = "APPEAL_RESPONSE"
	CorrespondenceReminder       CorrespondenceType = "REMINDER"
	CorrespondenceOther          CorrespondenceType = "OTHER"
)

// Correspondence is an immutable record of a classified letter or notice.
// It is only ever consumed by the transition resolver, never mutated.
type Correspondence struct {
	ID        string
	TicketID  string
	Type      CorrespondenceType
	SentAt    time.Time
	CreatedAt time.Time
}
