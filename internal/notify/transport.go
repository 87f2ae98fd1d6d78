// Package notify defines the outbound notification-transport boundary.
// Channel selection mechanics and content formatting live behind Transport;
// this service only decides whether and when to call it.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/parkwise/pcn-service/internal/domain"
)

// Message is the payload handed to the transport.
type Message struct {
	Recipient string
	Subject   string
	Body      string
	TicketRef string
}

// Transport delivers a notification on a single concrete channel.
type Transport interface {
	Send(ctx context.Context, channel domain.NotificationChannel, msg Message) error
}

// LogTransport writes notifications to the log instead of delivering them.
// Used in development and as the default when no real transport is wired.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport constructs the stub transport.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Send logs the would-be delivery and reports success.
func (t *LogTransport) Send(_ context.Context, channel domain.NotificationChannel, msg Message) error {
	t.logger.Info("notification",
		zap.String("channel", string(channel)),
		zap.String("recipient", msg.Recipient),
		zap.String("ticket_ref", msg.TicketRef),
		zap.String("subject", msg.Subject))
	return nil
}
