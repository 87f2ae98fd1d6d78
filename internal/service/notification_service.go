package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/parkwise/pcn-service/internal/events"
)

// NotificationService logs domain events of operational interest. Reminder
// delivery itself goes through the notify.Transport; this subscriber only
// provides the audit trail for event-driven side effects.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.logEvent)
	n.dispatcher.Subscribe(events.EventPriceIncreaseRecorded, n.logEvent)
	n.dispatcher.Subscribe(events.EventChallengeDispatched, n.logEvent)
	n.dispatcher.Subscribe(events.EventChallengeCompleted, n.logEvent)
	n.dispatcher.Subscribe(events.EventReminderFired, n.logEvent)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}
