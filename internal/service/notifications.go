package service

import (
	"context"
	"fmt"

	"repairmarket/internal/models"
)

func (s *Service) Notifications(ctx context.Context, userId string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	notifications, err := s.store.Notifications(ctx, userId, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service.Service.Notifications: %w", err)
	}
	return notifications, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, userId, notificationId string) (models.Notification, error) {
	n, err := s.store.MarkNotificationRead(ctx, userId, notificationId)
	if err != nil {
		return models.Notification{}, fmt.Errorf("service.Service.MarkNotificationRead: %w", err)
	}
	return n, nil
}
