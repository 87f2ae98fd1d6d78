package dto

import (
	"time"

	"github.com/parkwise/pcn-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	VehicleID         string            `json:"vehicle_id"`
	Reference         string            `json:"reference"`
	IssuerName        string            `json:"issuer_name"`
	IssuerType        domain.IssuerType `json:"issuer_type"`
	ContraventionCode string            `json:"contravention_code"`
	IssuedAt          time.Time         `json:"issued_at"`
	InitialAmount     int64             `json:"initial_amount"`
	Tier              domain.Tier       `json:"tier"`
}

// TicketSummary response. AmountDue is derived at read time, in pence.
type TicketSummary struct {
	ID                string              `json:"id"`
	VehicleID         string              `json:"vehicle_id"`
	Reference         string              `json:"reference"`
	IssuerName        string              `json:"issuer_name"`
	IssuerType        domain.IssuerType   `json:"issuer_type"`
	ContraventionCode string              `json:"contravention_code"`
	IssuedAt          time.Time           `json:"issued_at"`
	Status            domain.TicketStatus `json:"status"`
	StatusUpdatedAt   *time.Time          `json:"status_updated_at"`
	AmountDue         int64               `json:"amount_due"`
	Tier              domain.Tier         `json:"tier"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides a ticket with its related records.
type TicketDetailResponse struct {
	TicketSummary
	InitialAmount  int64                    `json:"initial_amount"`
	Correspondence []CorrespondenceResponse `json:"correspondence"`
	PriceIncreases []PriceIncreaseResponse  `json:"price_increases"`
	Reminders      []ReminderResponse       `json:"reminders"`
}

// RecordCorrespondenceRequest describes an ingested letter. Amount, when
// present, is the new absolute total the letter states.
type RecordCorrespondenceRequest struct {
	Type              domain.CorrespondenceType `json:"type"`
	SentAt            time.Time                 `json:"sent_at"`
	Amount            *int64                    `json:"amount"`
	AmountEffectiveAt *time.Time                `json:"amount_effective_at"`
}

// CorrespondenceResponse response.
type CorrespondenceResponse struct {
	ID        string                    `json:"id"`
	Type      domain.CorrespondenceType `json:"type"`
	SentAt    time.Time                 `json:"sent_at"`
	CreatedAt time.Time                 `json:"created_at"`
}

// AddPriceIncreaseRequest records a manual amount change.
type AddPriceIncreaseRequest struct {
	Amount      int64     `json:"amount"`
	EffectiveAt time.Time `json:"effective_at"`
}

// PriceIncreaseResponse response.
type PriceIncreaseResponse struct {
	ID          string             `json:"id"`
	Amount      int64              `json:"amount"`
	EffectiveAt time.Time          `json:"effective_at"`
	Source      domain.PriceSource `json:"source"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ReminderResponse response.
type ReminderResponse struct {
	ID      string                     `json:"id"`
	Type    domain.ReminderType        `json:"type"`
	Channel domain.NotificationChannel `json:"channel"`
	SendAt  time.Time                  `json:"send_at"`
	SentAt  *time.Time                 `json:"sent_at"`
}
