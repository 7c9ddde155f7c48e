package notify

import (
	"context"

	"github.com/mmdatafocus/inspection_backend/config"
)

const DefaultTopic = "dispute-notifications"

type publishFunc func(ctx context.Context, topic string, obj interface{}, attrs map[string]string) (string, error)

// PubSubNotifier publishes notices for the messaging service to deliver.
type PubSubNotifier struct {
	Topic   string
	publish publishFunc
}

func NewPubSubNotifier(topic string) *PubSubNotifier {
	return &PubSubNotifier{Topic: topic, publish: config.PublishJSON}
}

func (n *PubSubNotifier) Notify(ctx context.Context, notice Notice) error {
	attrs := map[string]string{
		"project_id": notice.ProjectId,
		"type":       "dispute_notice",
	}
	if notice.CorrelationId != "" {
		attrs["correlation_id"] = notice.CorrelationId
	}
	_, err := n.publish(ctx, n.Topic, notice, attrs)
	return err
}
