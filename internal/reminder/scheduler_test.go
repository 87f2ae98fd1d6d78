package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkwise/pcn-service/internal/domain"
	"github.com/parkwise/pcn-service/internal/notify"
	"github.com/parkwise/pcn-service/internal/repository"
)

var testNow = time.Date(2026, 5, 15, 9, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeReminderRepo struct {
	mu        sync.Mutex
	reminders map[string]*domain.Reminder
	context   map[string]repository.DueReminder
	seq       int
}

func newFakeReminderRepo() *fakeReminderRepo {
	return &fakeReminderRepo{
		reminders: map[string]*domain.Reminder{},
		context:   map[string]repository.DueReminder{},
	}
}

func (r *fakeReminderRepo) Create(_ context.Context, reminder *domain.Reminder) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reminders {
		if existing.TicketID == reminder.TicketID && existing.Type == reminder.Type {
			return false, nil
		}
	}
	r.seq++
	reminder.ID = fmt.Sprintf("rem-%d", r.seq)
	copied := *reminder
	r.reminders[reminder.ID] = &copied
	return true, nil
}

func (r *fakeReminderRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Reminder{}
	for _, rem := range r.reminders {
		if rem.TicketID == ticketID {
			out = append(out, *rem)
		}
	}
	return out, nil
}

func (r *fakeReminderRepo) ListDue(_ context.Context, from, to time.Time) ([]repository.DueReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []repository.DueReminder{}
	for id, rem := range r.reminders {
		if rem.SentAt != nil || rem.SendAt.Before(from) || rem.SendAt.After(to) {
			continue
		}
		due := r.context[id]
		due.Reminder = *rem
		out = append(out, due)
	}
	return out, nil
}

func (r *fakeReminderRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return errors.New("reminder not found")
	}
	sent := at
	rem.SentAt = &sent
	return nil
}

// seed inserts a reminder with its joined ticket/owner context.
func (r *fakeReminderRepo) seed(rem domain.Reminder, ref string, tier domain.Tier, email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rem.ID = fmt.Sprintf("rem-%d", r.seq)
	copied := rem
	r.reminders[rem.ID] = &copied
	r.context[rem.ID] = repository.DueReminder{
		TicketReference: ref,
		Tier:            tier,
		UserID:          "user-1",
		UserEmail:       email,
	}
	return rem.ID
}

func (r *fakeReminderRepo) sentAt(id string) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reminders[id].SentAt
}

type sentMessage struct {
	Channel domain.NotificationChannel
	Message notify.Message
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	failNext int
}

func (t *fakeTransport) Send(_ context.Context, channel domain.NotificationChannel, msg notify.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext > 0 {
		t.failNext--
		return errors.New("smtp connect timeout")
	}
	t.sent = append(t.sent, sentMessage{Channel: channel, Message: msg})
	return nil
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

type fakeGuard struct {
	held bool
	err  error
}

func (g *fakeGuard) Acquire(context.Context, string) (bool, error) {
	return g.held, g.err
}

func newTestScheduler(repo *fakeReminderRepo, transport *fakeTransport, guard RunGuard) *Scheduler {
	return NewScheduler(repo, transport, guard, nil, zap.NewNop())
}

// --- tests ---

func TestEnsureReminders_CreatesBothDeadlines(t *testing.T) {
	repo := newFakeReminderRepo()
	s := newTestScheduler(repo, &fakeTransport{}, nil)

	issued := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{ID: "ticket-1", IssuedAt: issued}

	created, err := s.EnsureReminders(context.Background(), ticket)
	require.NoError(t, err)
	require.Len(t, created, 2)

	byType := map[domain.ReminderType]domain.Reminder{}
	for _, rem := range created {
		byType[rem.Type] = rem
	}
	assert.Equal(t, issued.Add(14*24*time.Hour), byType[domain.ReminderDiscountPeriod].SendAt)
	assert.Equal(t, issued.Add(28*24*time.Hour), byType[domain.ReminderFullPayment].SendAt)
}

func TestEnsureReminders_SecondCallCreatesNothing(t *testing.T) {
	repo := newFakeReminderRepo()
	s := newTestScheduler(repo, &fakeTransport{}, nil)
	ticket := &domain.Ticket{ID: "ticket-1", IssuedAt: testNow}

	_, err := s.EnsureReminders(context.Background(), ticket)
	require.NoError(t, err)

	created, err := s.EnsureReminders(context.Background(), ticket)
	require.NoError(t, err)
	assert.Empty(t, created)

	all, err := s.ListForTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRun_GuardHeldElsewhereSkipsEverything(t *testing.T) {
	repo := newFakeReminderRepo()
	repo.seed(domain.Reminder{
		TicketID: "ticket-1",
		Type:     domain.ReminderDiscountPeriod,
		Channel:  domain.ChannelPush,
		SendAt:   testNow,
	}, "PCN123", domain.TierFree, "owner@example.com")
	transport := &fakeTransport{}
	s := newTestScheduler(repo, transport, &fakeGuard{held: false})

	report, err := s.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.True(t, report.AlreadyRunning)
	assert.Zero(t, report.Processed)
	assert.Zero(t, transport.sentCount())
}

func TestRun_DeliversDueAndMarksSent(t *testing.T) {
	repo := newFakeReminderRepo()
	id := repo.seed(domain.Reminder{
		TicketID: "ticket-1",
		Type:     domain.ReminderFullPayment,
		Channel:  domain.ChannelPush,
		SendAt:   testNow.Add(-2 * time.Hour),
	}, "PCN123", domain.TierFree, "owner@example.com")
	transport := &fakeTransport{}
	s := newTestScheduler(repo, transport, &fakeGuard{held: true})

	report, err := s.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Delivered)

	require.NotNil(t, repo.sentAt(id))
	assert.Equal(t, testNow, *repo.sentAt(id))
	require.Equal(t, 1, transport.sentCount())
	assert.Equal(t, "owner@example.com", transport.sent[0].Message.Recipient)
	assert.Equal(t, "PCN123", transport.sent[0].Message.TicketRef)
}

func TestRun_IgnoresRemindersOutsideToday(t *testing.T) {
	repo := newFakeReminderRepo()
	tomorrow := repo.seed(domain.Reminder{
		TicketID: "ticket-1",
		Type:     domain.ReminderDiscountPeriod,
		Channel:  domain.ChannelPush,
		SendAt:   testNow.Add(24 * time.Hour),
	}, "PCN123", domain.TierFree, "owner@example.com")
	transport := &fakeTransport{}
	s := newTestScheduler(repo, transport, nil)

	report, err := s.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Nil(t, repo.sentAt(tomorrow))
}

func TestRun_TierGateSkipsEmailForFreeTier(t *testing.T) {
	repo := newFakeReminderRepo()
	id := repo.seed(domain.Reminder{
		TicketID: "ticket-1",
		Type:     domain.ReminderDiscountPeriod,
		Channel:  domain.ChannelEmail,
		SendAt:   testNow,
	}, "PCN123", domain.TierFree, "owner@example.com")
	transport := &fakeTransport{}
	s := newTestScheduler(repo, transport, nil)

	report, err := s.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Delivered)
	assert.Zero(t, transport.sentCount())
	// A skipped reminder is not consumed; an upgrade before the deadline
	// would still deliver it.
	assert.Nil(t, repo.sentAt(id))
}

func TestRun_FreeTierAllChannelNarrowsToPush(t *testing.T) {
	repo := newFakeReminderRepo()
	repo.seed(domain.Reminder{
		TicketID: "ticket-1",
		Type:     domain.ReminderDiscountPeriod,
		Channel:  domain.ChannelAll,
		SendAt:   testNow,
	}, "PCN123", domain.TierFree, "owner@example.com")
	transport := &fakeTransport{}
	s := newTestScheduler(repo, transport, nil)

	report, err := s.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	require.Equal(t, 1, transport.sentCount())
	assert.Equal(t, domain.ChannelPush, transport.sent[0].Channel)
}

func TestRun_FailedSendStaysUnsentAndRetries(t *testing.T) {
	repo := newFakeReminderRepo()
	id := repo.seed(domain.Reminder{
		TicketID: "ticket-1",
		Type:     domain.ReminderFullPayment,
		Channel:  domain.ChannelPush,
		SendAt:   testNow,
	}, "PCN123", domain.TierPremium, "owner@example.com")
	transport := &fakeTransport{failNext: 1}
	s := newTestScheduler(repo, transport, nil)

	report, err := s.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Nil(t, repo.sentAt(id))

	// Next run picks the same reminder up again and succeeds.
	report, err = s.Run(context.Background(), testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.NotNil(t, repo.sentAt(id))
}

func TestRun_OneFailureDoesNotBlockOthers(t *testing.T) {
	repo := newFakeReminderRepo()
	first := repo.seed(domain.Reminder{
		TicketID: "ticket-1",
		Type:     domain.ReminderDiscountPeriod,
		Channel:  domain.ChannelPush,
		SendAt:   testNow.Add(-time.Hour),
	}, "PCN123", domain.TierFree, "one@example.com")
	second := repo.seed(domain.Reminder{
		TicketID: "ticket-2",
		Type:     domain.ReminderDiscountPeriod,
		Channel:  domain.ChannelPush,
		SendAt:   testNow,
	}, "PCN456", domain.TierFree, "two@example.com")
	transport := &fakeTransport{failNext: 1}
	s := newTestScheduler(repo, transport, nil)

	report, err := s.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Delivered)

	// Exactly one of the two was marked; which one depends on map order.
	marked := 0
	for _, id := range []string{first, second} {
		if repo.sentAt(id) != nil {
			marked++
		}
	}
	assert.Equal(t, 1, marked)
}

func TestChannelEligible(t *testing.T) {
	cases := []struct {
		channel  domain.NotificationChannel
		tier     domain.Tier
		eligible bool
	}{
		{domain.ChannelPush, domain.TierFree, true},
		{domain.ChannelPush, domain.TierPremium, true},
		{domain.ChannelEmail, domain.TierFree, false},
		{domain.ChannelEmail, domain.TierStandard, true},
		{domain.ChannelSMS, domain.TierFree, false},
		{domain.ChannelSMS, domain.TierPremium, true},
		{domain.ChannelAll, domain.TierFree, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.eligible, ChannelEligible(tc.channel, tc.tier),
			"channel=%s tier=%s", tc.channel, tc.tier)
	}
}
