package service

import (
	"context"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
)

const NotificationTopic = "notifications"

// NotificationEvent is published whenever a user's balance changed hands:
// on-us sends and receives, settled external payments and earned rewards.
type NotificationEvent struct {
	UserID int64  `json:"user_id"`
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo,omitempty"`
	RHash  string `json:"r_hash,omitempty"`
}

func (svc *SatstashService) publishNotification(event NotificationEvent) {
	svc.EventPubSub.Publish(NotificationTopic, event)
	svc.EventPubSub.Publish(strconv.FormatInt(event.UserID, 10), event)

	if svc.RabbitMQClient != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := svc.RabbitMQClient.PublishNotification(ctx, event.Type, event); err != nil {
				svc.Logger.Errorf("Failed to publish notification to rabbitmq user_id:%v error:%v", event.UserID, err)
				sentry.CaptureException(err)
			}
		}()
	}
}
