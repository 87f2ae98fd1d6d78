package domain

import "time"

// ReminderType identifies which deadline a reminder tracks.
type ReminderType string

const (
	ReminderDiscountPeriod ReminderType = "DISCOUNT_PERIOD"
	ReminderFullPayment    ReminderType = "FULL_PAYMENT"
)

// NotificationChannel selects the transport for a reminder.
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelSMS   NotificationChannel = "SMS"
	ChannelPush  NotificationChannel = "PUSH"
	ChannelAll   NotificationChannel = "ALL"
)

// Reminder schedules a deadline notification for a ticket. Once sent for a
// given (ticket, type) pair it is never re-created.
type Reminder struct {
	ID        string
	TicketID  string
	Type      ReminderType
	Channel   NotificationChannel
	SendAt    time.Time
	SentAt    *time.Time
	CreatedAt time.Time
}
