package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// TopicTaskLifecycle is the topic lifecycle events are published to.
const TopicTaskLifecycle = "task-lifecycle"

// WatermillPublisher implements the Publisher interface over a
// Watermill message publisher, letting downstream consumers subscribe
// to lifecycle events through any Watermill-supported transport
// (in-process gochannel by default).
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

// NewWatermillPublisher creates a publisher that writes lifecycle
// events to the given topic. An empty topic uses TopicTaskLifecycle.
func NewWatermillPublisher(publisher message.Publisher, topic string, logger *slog.Logger) *WatermillPublisher {
	if topic == "" {
		topic = TopicTaskLifecycle
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    logger.With("component", "watermill_publisher"),
	}
}

// Publish serializes the event and writes it to the configured topic.
// Event metadata carries the type and task reference so subscribers can
// filter without decoding the payload.
func (p *WatermillPublisher) Publish(ctx context.Context, event *TaskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID.String(), payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("task_id", event.TaskID.String())
	msg.Metadata.Set("user_id", event.UserID.String())
	msg.Metadata.Set("timestamp", event.CreatedAt.Format(time.RFC3339Nano))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.Error("failed to publish event",
			"error", err,
			"event_id", event.ID,
			"event_type", event.Type,
			"topic", p.topic)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published event",
		"event_id", event.ID,
		"event_type", event.Type,
		"task_id", event.TaskID,
		"topic", p.topic)
	return nil
}

// HandleEvent lets the bridge register on an InMemoryPublisher as one
// of its handlers, forwarding each event to the Watermill topic.
func (p *WatermillPublisher) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return p.Publish(ctx, event)
}

// Ensure WatermillPublisher implements Publisher and Handler
var (
	_ Publisher = (*WatermillPublisher)(nil)
	_ Handler   = (*WatermillPublisher)(nil)
)
