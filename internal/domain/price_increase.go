package domain

import "time"

// PriceSource records where a price increase originated.
type PriceSource string

const (
	PriceSourceCorrespondence PriceSource = "CORRESPONDENCE"
	PriceSourceManual         PriceSource = "MANUAL"
	PriceSourceSystem         PriceSource = "SYSTEM"
)

// PriceIncrease records an absolute change to the amount owed on a ticket.
// Amount is the new total in pence, not a delta. Rows are never mutated after
// creation; the current amount is derived by selecting the latest row whose
// EffectiveAt is <= now.
type PriceIncrease struct {
	ID          string
	TicketID    string
	Amount      int64
	EffectiveAt time.Time
	Source      PriceSource
	CreatedAt   time.Time
}
