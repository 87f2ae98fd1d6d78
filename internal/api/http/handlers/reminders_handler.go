package handlers

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/parkwise/pcn-service/internal/reminder"
	apperrors "github.com/parkwise/pcn-service/pkg/util/errorutil"
)

// RemindersHandler exposes the reminder run endpoint, intended for an
// external cron caller rather than end users.
type RemindersHandler struct {
	scheduler *reminder.Scheduler
	runToken  string
}

// NewRemindersHandler constructs handler.
func NewRemindersHandler(scheduler *reminder.Scheduler, runToken string) *RemindersHandler {
	return &RemindersHandler{scheduler: scheduler, runToken: runToken}
}

// Run handles POST /reminders/run. Callers authenticate with the shared run
// token, not a user session.
func (h *RemindersHandler) Run(c *fiber.Ctx) error {
	if h.runToken == "" {
		return apperrors.NewForbidden("reminder runs are disabled")
	}
	provided := c.Get("X-Run-Token")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.runToken)) != 1 {
		return apperrors.NewUnauthorized("invalid run token")
	}

	report, err := h.scheduler.Run(c.UserContext(), time.Now().UTC())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
