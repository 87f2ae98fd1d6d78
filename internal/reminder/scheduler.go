// Package reminder schedules and fires deadline notifications: a discount
// reminder before the 14-day reduced-payment window closes and a full-payment
// reminder before the 28-day deadline.
package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parkwise/pcn-service/internal/domain"
	"github.com/parkwise/pcn-service/internal/events"
	"github.com/parkwise/pcn-service/internal/notify"
	"github.com/parkwise/pcn-service/internal/repository"
)

const (
	// DiscountLead is when the discount-deadline reminder is due.
	DiscountLead = 14 * 24 * time.Hour
	// FullPaymentLead is when the full-payment-deadline reminder is due.
	FullPaymentLead = 28 * 24 * time.Hour
)

// RunGuard collapses overlapping reminder runs to one. Acquire reports
// whether this invocation holds the day's slot.
type RunGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// Outcome records the result of one reminder attempt within a run.
type Outcome struct {
	ReminderID string                     `json:"reminder_id"`
	TicketID   string                     `json:"ticket_id"`
	Type       domain.ReminderType        `json:"type"`
	Channel    domain.NotificationChannel `json:"channel"`
	Delivered  bool                       `json:"delivered"`
	Skipped    bool                       `json:"skipped,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// RunReport summarizes one reminder run.
type RunReport struct {
	AlreadyRunning bool      `json:"already_running"`
	Processed      int       `json:"processed"`
	Delivered      int       `json:"delivered"`
	Failed         int       `json:"failed"`
	Skipped        int       `json:"skipped"`
	Outcomes       []Outcome `json:"outcomes"`
}

// Scheduler owns reminder creation, due selection and firing.
type Scheduler struct {
	reminders  repository.ReminderRepository
	transport  notify.Transport
	guard      RunGuard
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewScheduler constructs the scheduler.
func NewScheduler(reminders repository.ReminderRepository, transport notify.Transport, guard RunGuard, dispatcher events.Dispatcher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		reminders:  reminders,
		transport:  transport,
		guard:      guard,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// EnsureReminders idempotently creates the two deadline reminders for a
// ticket. Existing (ticket, type) pairs are skipped regardless of whether
// they have been sent.
func (s *Scheduler) EnsureReminders(ctx context.Context, ticket *domain.Ticket) ([]domain.Reminder, error) {
	wanted := []domain.Reminder{
		{
			TicketID: ticket.ID,
			Type:     domain.ReminderDiscountPeriod,
			Channel:  domain.ChannelAll,
			SendAt:   ticket.IssuedAt.Add(DiscountLead),
		},
		{
			TicketID: ticket.ID,
			Type:     domain.ReminderFullPayment,
			Channel:  domain.ChannelAll,
			SendAt:   ticket.IssuedAt.Add(FullPaymentLead),
		},
	}

	created := make([]domain.Reminder, 0, len(wanted))
	for i := range wanted {
		inserted, err := s.reminders.Create(ctx, &wanted[i])
		if err != nil {
			return nil, err
		}
		if inserted {
			created = append(created, wanted[i])
		}
	}
	return created, nil
}

// ListForTicket returns a ticket's reminders in send order.
func (s *Scheduler) ListForTicket(ctx context.Context, ticketID string) ([]domain.Reminder, error) {
	return s.reminders.ListByTicket(ctx, ticketID)
}

// Run evaluates and fires every reminder due today. One failing send never
// prevents the others from being attempted; failed sends keep sent_at null
// so the next run retries them.
func (s *Scheduler) Run(ctx context.Context, now time.Time) (*RunReport, error) {
	if s.guard != nil {
		held, err := s.guard.Acquire(ctx, runKey(now))
		if err != nil {
			return nil, err
		}
		if !held {
			return &RunReport{AlreadyRunning: true}, nil
		}
	}

	from := startOfDay(now)
	to := from.Add(24*time.Hour - time.Nanosecond)
	due, err := s.reminders.ListDue(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &RunReport{Outcomes: make([]Outcome, 0, len(due))}
	for _, item := range due {
		outcome := s.fire(ctx, item, now)
		report.Outcomes = append(report.Outcomes, outcome)
		report.Processed++
		switch {
		case outcome.Skipped:
			report.Skipped++
		case outcome.Delivered:
			report.Delivered++
		default:
			report.Failed++
		}
	}
	return report, nil
}

// fire attempts delivery of one due reminder and records the outcome.
func (s *Scheduler) fire(ctx context.Context, due repository.DueReminder, now time.Time) Outcome {
	outcome := Outcome{
		ReminderID: due.Reminder.ID,
		TicketID:   due.Reminder.TicketID,
		Type:       due.Reminder.Type,
		Channel:    due.Reminder.Channel,
	}

	if !ChannelEligible(due.Reminder.Channel, due.Tier) {
		outcome.Skipped = true
		return outcome
	}

	msg := notify.Message{
		Recipient: due.UserEmail,
		Subject:   subjectFor(due.Reminder.Type),
		Body:      bodyFor(due),
		TicketRef: due.TicketReference,
	}
	err := s.transport.Send(ctx, effectiveChannel(due.Reminder.Channel, due.Tier), msg)
	if err != nil {
		// sent_at stays null so the next run retries; a duplicate send on a
		// false-negative failure is accepted over a missed deadline.
		outcome.Error = err.Error()
		s.logger.Warn("reminder send failed",
			zap.String("reminder_id", due.Reminder.ID),
			zap.String("ticket_id", due.Reminder.TicketID),
			zap.Error(err))
	} else {
		outcome.Delivered = true
		if markErr := s.reminders.MarkSent(ctx, due.Reminder.ID, now); markErr != nil {
			s.logger.Error("failed to mark reminder sent",
				zap.String("reminder_id", due.Reminder.ID),
				zap.Error(markErr))
		}
	}

	s.publish(ctx, due, outcome, now)
	return outcome
}

// ChannelEligible applies the tier gate: push reminders fire for every tier,
// email/SMS only for paying tiers.
func ChannelEligible(channel domain.NotificationChannel, tier domain.Tier) bool {
	switch channel {
	case domain.ChannelPush:
		return true
	case domain.ChannelEmail, domain.ChannelSMS:
		return tier == domain.TierStandard || tier == domain.TierPremium
	case domain.ChannelAll:
		return true
	}
	return false
}

// effectiveChannel narrows ALL to what the tier is entitled to.
func effectiveChannel(channel domain.NotificationChannel, tier domain.Tier) domain.NotificationChannel {
	if channel != domain.ChannelAll {
		return channel
	}
	if tier == domain.TierStandard || tier == domain.TierPremium {
		return domain.ChannelAll
	}
	return domain.ChannelPush
}

func (s *Scheduler) publish(ctx context.Context, due repository.DueReminder, outcome Outcome, now time.Time) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		Type:      events.EventReminderFired,
		TicketID:  due.Reminder.TicketID,
		UserID:    due.UserID,
		Timestamp: now,
		Payload: events.ReminderFiredPayload{
			ReminderID: due.Reminder.ID,
			Type:       due.Reminder.Type,
			Channel:    due.Reminder.Channel,
			Delivered:  outcome.Delivered,
		},
	})
}

func subjectFor(t domain.ReminderType) string {
	if t == domain.ReminderDiscountPeriod {
		return "Your PCN discount period is ending"
	}
	return "Your PCN payment deadline is approaching"
}

func bodyFor(due repository.DueReminder) string {
	if due.Reminder.Type == domain.ReminderDiscountPeriod {
		return fmt.Sprintf("The reduced amount on ticket %s is only available until today.", due.TicketReference)
	}
	return fmt.Sprintf("The full amount on ticket %s is due. Further delay can increase the charge.", due.TicketReference)
}

func runKey(now time.Time) string {
	return "reminders:run:" + startOfDay(now).Format("2006-01-02")
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
