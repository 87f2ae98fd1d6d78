package domain

import "time"

// TicketStatus enumerates lifecycle states for penalty charge notices.
type TicketStatus string

const (
	TicketStatusInitial          TicketStatus = "INITIAL"
	TicketStatusReducedPayment   TicketStatus = "REDUCED_PAYMENT_DUE"
	TicketStatusFullPayment      TicketStatus = "FULL_PAYMENT_DUE"
	TicketStatusNoticeToOwner    TicketStatus = "NOTICE_TO_OWNER"
	TicketStatusChargeCert       TicketStatus = "CHARGE_CERTIFICATE"
	TicketStatusOrderForRecovery TicketStatus = "ORDER_FOR_RECOVERY"
	TicketStatusCCJIssued        TicketStatus = "CCJ_ISSUED"
	TicketStatusBailiffStage     TicketStatus = "ENFORCEMENT_BAILIFF_STAGE"
	TicketStatusAppealed         TicketStatus = "APPEALED"
	TicketStatusPaid             TicketStatus = "PAID"
	TicketStatusCancelled        TicketStatus = "CANCELLED"
)

// IsTerminal reports whether no further correspondence can change the status.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusPaid || s == TicketStatusCancelled
}

// IssuerType distinguishes who issued the notice.
type IssuerType string

const (
	IssuerTypeCouncil IssuerType = "COUNCIL"
	IssuerTypePrivate IssuerType = "PRIVATE"
	IssuerTypeTfL     IssuerType = "TFL"
)

// Tier gates which paid features apply to a ticket.
type Tier string

const (
	TierFree     Tier = "FREE"
	TierStandard Tier = "STANDARD"
	TierPremium  Tier = "PREMIUM"
)

// Ticket is the aggregate for a penalty charge notice.
//
// StatusUpdatedAt is monotonically non-decreasing and only changes through a
// resolved correspondence transition; nil means no correspondence has been
// applied yet and IssuedAt is the effective status date.
type Ticket struct {
	ID                string
	VehicleID         string
	Reference         string
	IssuerName        string
	IssuerType        IssuerType
	ContraventionCode string
	IssuedAt          time.Time
	InitialAmount     int64
	Status            TicketStatus
	StatusUpdatedAt   *time.Time
	Tier              Tier
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EffectiveStatusDate is the date against which incoming correspondence is
// ordered: the last applied transition if there is one, else the issue date.
func (t *Ticket) EffectiveStatusDate() time.Time {
	if t.StatusUpdatedAt != nil {
		return *t.StatusUpdatedAt
	}
	return t.IssuedAt
}
