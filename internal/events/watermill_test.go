package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher_Publish(t *testing.T) {
	t.Parallel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() { _ = pubSub.Close() }()

	messages, err := pubSub.Subscribe(context.Background(), TopicTaskLifecycle)
	require.NoError(t, err)

	publisher := NewWatermillPublisher(pubSub, "", discardLogger())

	event := NewTaskEvent(EventTaskCompleted, eventTask(t))
	event.Outputs = json.RawMessage(`{"text":"out"}`)

	require.NoError(t, publisher.Publish(context.Background(), event))

	select {
	case msg := <-messages:
		msg.Ack()

		assert.Equal(t, event.ID.String(), msg.UUID)
		assert.Equal(t, string(EventTaskCompleted), msg.Metadata.Get("event_type"))
		assert.Equal(t, event.TaskID.String(), msg.Metadata.Get("task_id"))

		var decoded TaskEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, event.TaskID, decoded.TaskID)
		assert.Equal(t, event.Outputs, decoded.Outputs)

	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestInMemoryPublisher_BridgesToWatermill(t *testing.T) {
	t.Parallel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() { _ = pubSub.Close() }()

	messages, err := pubSub.Subscribe(context.Background(), TopicTaskLifecycle)
	require.NoError(t, err)

	emitter := NewInMemoryPublisher(discardLogger())
	emitter.RegisterHandler(NewWatermillPublisher(pubSub, "", discardLogger()))
	emitter.RegisterHandler(NewLoggingHandler(discardLogger()))

	event := NewTaskEvent(EventTaskProcessing, eventTask(t))

	require.NoError(t, emitter.Publish(context.Background(), event))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, event.ID.String(), msg.UUID)
		assert.Equal(t, string(EventTaskProcessing), msg.Metadata.Get("event_type"))

	case <-time.After(5 * time.Second):
		t.Fatal("no message received through the bridge")
	}
}
