package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/service"
)

// NotificationWorker owns the goroutines that deliver notifications.
type NotificationWorker struct {
	dispatcher *events.AsyncDispatcher
	logger     *zap.Logger
}

// StartNotificationWorker registers notification handlers on dispatcher and
// starts its workers.
func StartNotificationWorker(notificationService *service.NotificationService, dispatcher *events.AsyncDispatcher, logger *zap.Logger) *NotificationWorker {
	if notificationService == nil || dispatcher == nil {
		return nil
	}
	notificationService.RegisterHandlers()
	dispatcher.Start()
	logger.Info("notification worker started")
	return &NotificationWorker{dispatcher: dispatcher, logger: logger}
}

// Stop drains queued notifications until ctx ends.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	if w == nil {
		return nil
	}
	err := w.dispatcher.Close(ctx)
	if err != nil {
		w.logger.Warn("notification queue not drained", zap.Error(err))
	} else {
		w.logger.Info("notification worker stopped")
	}
	return err
}
