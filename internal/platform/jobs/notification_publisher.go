// Package jobs publishes background work to Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/loomhouse/api/internal/services"
)

// PubSubNotificationPublisher enqueues customer email jobs for the delivery worker.
type PubSubNotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.NotificationPublisher = (*PubSubNotificationPublisher)(nil)

// NewPubSubNotificationPublisher wraps topic.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishNotification publishes message as JSON and waits for the server-assigned ID.
func (p *PubSubNotificationPublisher) PublishNotification(ctx context.Context, message services.NotificationMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub notification publisher: not initialised")
	}
	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string, 3)
	setAttr(attrs, "notificationId", message.ID)
	setAttr(attrs, "kind", message.Kind)
	setAttr(attrs, "orderId", message.OrderID)

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s notification: %w", message.Kind, err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
