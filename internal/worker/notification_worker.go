package worker

import (
	"github.com/parkwise/pcn-service/internal/service"
)

// StartNotificationWorker registers event-log handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
