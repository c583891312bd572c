package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/civicseva/backend/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	citizenChannel   = "notify:citizen"
	authorityChannel = "notify:authority"
)

// NotificationService publishes notification events to Redis channels for the
// delivery workers to pick up. Dispatch is best effort; callers log failures
// and move on.
type NotificationService struct {
	rdb *redis.Client
}

func NewNotificationService(rdb *redis.Client) *NotificationService {
	return &NotificationService{rdb: rdb}
}

func (ns *NotificationService) NotifyCitizen(ctx context.Context, event models.NotificationEvent) error {
	return ns.publish(ctx, citizenChannel, event)
}

func (ns *NotificationService) NotifyAuthority(ctx context.Context, event models.NotificationEvent) error {
	return ns.publish(ctx, authorityChannel, event)
}

func (ns *NotificationService) publish(ctx context.Context, channel string, event models.NotificationEvent) error {
	if ns.rdb == nil {
		return fmt.Errorf("notification transport not configured")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := ns.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
