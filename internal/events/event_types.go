package events

import (
	"time"

	"github.com/parkwise/pcn-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated          EventType = "ticket_created"
	EventTicketStatusChanged    EventType = "ticket_status_changed"
	EventPriceIncreaseRecorded  EventType = "price_increase_recorded"
	EventCorrespondenceRecorded EventType = "correspondence_recorded"
	EventChallengeCreated       EventType = "challenge_created"
	EventChallengeDispatched    EventType = "challenge_dispatched"
	EventChallengeCompleted     EventType = "challenge_completed"
	EventReminderFired          EventType = "reminder_fired"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Reference  string            `json:"reference"`
	IssuerName string            `json:"issuer_name"`
	IssuerType domain.IssuerType `json:"issuer_type"`
	IssuedAt   time.Time         `json:"issued_at"`
	Amount     int64             `json:"amount"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus       `json:"old_status"`
	NewStatus domain.TicketStatus       `json:"new_status"`
	Trigger   domain.CorrespondenceType `json:"trigger"`
	SentAt    time.Time                 `json:"sent_at"`
}

// PriceIncreaseRecordedPayload payload.
type PriceIncreaseRecordedPayload struct {
	Amount      int64              `json:"amount"`
	EffectiveAt time.Time          `json:"effective_at"`
	Source      domain.PriceSource `json:"source"`
}

// CorrespondenceRecordedPayload payload.
type CorrespondenceRecordedPayload struct {
	CorrespondenceID string                    `json:"correspondence_id"`
	Type             domain.CorrespondenceType `json:"type"`
	SentAt           time.Time                 `json:"sent_at"`
	StatusApplied    bool                      `json:"status_applied"`
}

// ChallengeCreatedPayload payload.
type ChallengeCreatedPayload struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// ChallengeDispatchedPayload payload.
type ChallengeDispatchedPayload struct {
	JobID       string `json:"job_id"`
	WorkerJobID string `json:"worker_job_id"`
}

// ChallengeCompletedPayload payload.
type ChallengeCompletedPayload struct {
	JobID     string                 `json:"job_id"`
	Status    domain.ChallengeStatus `json:"status"`
	ResultRef *string                `json:"result_ref,omitempty"`
	ErrorText *string                `json:"error_text,omitempty"`
}

// ReminderFiredPayload payload.
type ReminderFiredPayload struct {
	ReminderID string                     `json:"reminder_id"`
	Type       domain.ReminderType        `json:"reminder_type"`
	Channel    domain.NotificationChannel `json:"channel"`
	Delivered  bool                       `json:"delivered"`
}
