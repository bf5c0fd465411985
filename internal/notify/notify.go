package notify

import (
	"context"
	"log/slog"

	"repairmarket/internal/models"
)

// Store is the slice of persistence the sink needs.
type Store interface {
	AddNotification(ctx context.Context, n models.Notification) (models.Notification, error)
}

// Sink records lifecycle events as user notifications. Delivery is
// fire-and-forget: failures are logged and swallowed so a broken sink
// can never roll back or block the transition that produced the event.
type Sink struct {
	store  Store
	logger *slog.Logger
}

func NewSink(store Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, logger: logger}
}

func (s *Sink) Notify(ctx context.Context, userId string, typ models.NotificationType, title, message string, data models.NotificationData) {
	_, err := s.store.AddNotification(ctx, models.Notification{
		UserId:  userId,
		Type:    typ,
		Title:   title,
		Message: message,
		Data:    data,
	})
	if err != nil {
		s.logger.Error("failed to deliver notification",
			"userId", userId,
			"type", string(typ),
			"error", err)
	}
}
