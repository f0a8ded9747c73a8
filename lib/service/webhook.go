package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// StartWebhookSubscription forwards every notification event to the
// configured webhook endpoint until the context is cancelled.
func (svc *SatstashService) StartWebhookSubscription(ctx context.Context, url string) {
	events := make(chan NotificationEvent)
	subscriptionId, err := svc.EventPubSub.Subscribe(NotificationTopic, events)
	if err != nil {
		svc.Logger.Errorf("Failed to subscribe for webhook delivery error:%v", err)
		return
	}
	defer svc.EventPubSub.Unsubscribe(subscriptionId, NotificationTopic)

	svc.Logger.Infof("Starting webhook delivery url:%s", url)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			svc.postToWebhook(event, url)
		}
	}
}

func (svc *SatstashService) postToWebhook(event NotificationEvent, url string) {
	payload := new(bytes.Buffer)
	if err := json.NewEncoder(payload).Encode(event); err != nil {
		svc.Logger.Errorf("Failed to encode webhook payload error:%v", err)
		return
	}
	resp, err := http.Post(url, "application/json", payload)
	if err != nil {
		svc.Logger.Errorf("Failed to deliver webhook user_id:%v error:%v", event.UserID, err)
		sentry.CaptureException(err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		svc.Logger.Errorf("Webhook endpoint returned status:%v user_id:%v", resp.StatusCode, event.UserID)
	}
}
