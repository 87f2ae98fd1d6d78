package lifecycle

import (
	"math"
	"time"

	"github.com/parkwise/pcn-service/internal/domain"
)

// DiscountWindow is the period after issue during which the reduced amount
// applies.
const DiscountWindow = 14 * 24 * time.Hour

// statusMultipliers scales the initial amount for statuses where no explicit
// price increase has been recorded. Statuses absent from the table pay x1.0.
var statusMultipliers = map[domain.TicketStatus]float64{
	domain.TicketStatusOrderForRecovery: 1.5,
	domain.TicketStatusCCJIssued:        1.5,
	domain.TicketStatusBailiffStage:     1.5,
}

// AmountDue computes the amount currently owed in pence. It is a pure
// function of (status, issuedAt, initialAmount, increases, now).
//
// Precedence: settled tickets owe nothing; the latest recorded price
// increase effective by now wins verbatim; otherwise a standard amount is
// derived from the initial amount. Multiplication results are floored, never
// rounded, so the figure can never overstate what is owed.
func AmountDue(t *domain.Ticket, increases []domain.PriceIncrease, now time.Time) int64 {
	if t.Status.IsTerminal() {
		return 0
	}
	if inc, ok := latestEffective(increases, now); ok {
		return inc.Amount
	}
	if t.Status == domain.TicketStatusReducedPayment || now.Sub(t.IssuedAt) < DiscountWindow {
		return t.InitialAmount / 2
	}
	mult, ok := statusMultipliers[t.Status]
	if !ok {
		return t.InitialAmount
	}
	return int64(math.Floor(float64(t.InitialAmount) * mult))
}

func latestEffective(increases []domain.PriceIncrease, now time.Time) (domain.PriceIncrease, bool) {
	var best domain.PriceIncrease
	found := false
	for _, inc := range increases {
		if inc.EffectiveAt.After(now) {
			continue
		}
		if !found || inc.EffectiveAt.After(best.EffectiveAt) {
			best = inc
			found = true
		}
	}
	return best, found
}
