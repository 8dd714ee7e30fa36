package telemetryqueue_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/illmade-knight/go-telemetry/pkg/telemetryqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubscriber(t *testing.T, ctx context.Context, client *pubsub.Client) *telemetryqueue.Subscriber {
	t.Helper()
	subscriber, err := telemetryqueue.NewSubscriber(telemetryqueue.NewSubscriberDefaults(), client, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = subscriber.Stop(stopCtx)
	})
	return subscriber
}

// createDataTopic pre-creates a data topic so the subscriber can attach to it.
func createDataTopic(t *testing.T, ctx context.Context, client *pubsub.Client, topicID string) {
	t.Helper()
	_, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)
}

func startedEvent(topic string) *telemetry.MeasurementStarted {
	return &telemetry.MeasurementStarted{
		Meta:      telemetry.EventMeta{Timestamp: time.Now().UTC(), SensorID: uuid.New()},
		TopicName: topic,
		Format:    telemetry.FormatFloatBinary,
	}
}

func stoppedEvent(topic string) *telemetry.MeasurementStopped {
	return &telemetry.MeasurementStopped{
		Meta:      telemetry.EventMeta{Timestamp: time.Now().UTC(), SensorID: uuid.New()},
		TopicName: topic,
	}
}

func TestSubscriber_RegistryConvergence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-subscriber")
	subscriber := newTestSubscriber(t, ctx, client)
	require.NoError(t, subscriber.Start(ctx))

	createDataTopic(t, ctx, client, "data-topic-a")
	createDataTopic(t, ctx, client, "data-topic-b")

	// started(A) -> started(B) -> stopped(A); wait for each mutation to land
	// so the sequence is processed in order.
	publishControlEvent(t, ctx, client, startedEvent("data-topic-a"))
	require.Eventually(t, func() bool {
		return len(subscriber.RegisteredTopics()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	publishControlEvent(t, ctx, client, startedEvent("data-topic-b"))
	require.Eventually(t, func() bool {
		return len(subscriber.RegisteredTopics()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	publishControlEvent(t, ctx, client, stoppedEvent("data-topic-a"))
	require.Eventually(t, func() bool {
		topics := subscriber.RegisteredTopics()
		_, hasB := topics["data-topic-b"]
		return len(topics) == 1 && hasB
	}, 5*time.Second, 20*time.Millisecond)

	// The live consumer's subscription set converges to the registry's key set.
	assert.Equal(t, []string{"data-topic-b"}, subscriber.ActiveTopics())
}

func TestSubscriber_StoppedMeasurementGoesIdle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-subscriber")
	subscriber := newTestSubscriber(t, ctx, client)
	require.NoError(t, subscriber.Start(ctx))

	createDataTopic(t, ctx, client, "data-topic-a")
	publishControlEvent(t, ctx, client, startedEvent("data-topic-a"))
	require.Eventually(t, func() bool {
		return len(subscriber.ActiveTopics()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	publishControlEvent(t, ctx, client, stoppedEvent("data-topic-a"))
	require.Eventually(t, func() bool {
		return len(subscriber.RegisteredTopics()) == 0 && len(subscriber.ActiveTopics()) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSubscriber_PerRecordIsolation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-subscriber")
	subscriber := newTestSubscriber(t, ctx, client)

	collector := &sampleCollector{}
	subscriber.SetSampleHandler(collector.Handler())
	require.NoError(t, subscriber.Start(ctx))

	createDataTopic(t, ctx, client, "data-topic-a")
	publishControlEvent(t, ctx, client, startedEvent("data-topic-a"))
	require.Eventually(t, func() bool {
		return len(subscriber.ActiveTopics()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// A malformed record in the middle must not stop later records from
	// being decoded and handled.
	publishRaw(t, ctx, client, "data-topic-a", mustEncodeFloat(t, 22.5))
	publishRaw(t, ctx, client, "data-topic-a", []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01})
	publishRaw(t, ctx, client, "data-topic-a", mustEncodeFloat(t, 23.0))

	require.Eventually(t, func() bool {
		return collector.Count() == 2
	}, 5*time.Second, 20*time.Millisecond, "both valid records should be handled")

	var values []any
	for _, collected := range collector.Samples() {
		values = append(values, collected.Sample.Value)
	}
	assert.ElementsMatch(t, []any{float32(22.5), float32(23.0)}, values)
}

func TestSubscriber_MalformedControlEventsAreDropped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-subscriber")
	subscriber := newTestSubscriber(t, ctx, client)
	require.NoError(t, subscriber.Start(ctx))

	// Neither garbage bytes nor a tagless document may crash the control loop.
	publishRaw(t, ctx, client, telemetry.ControlTopicID, []byte("{not json"))
	publishRaw(t, ctx, client, telemetry.ControlTopicID, []byte(`{"timestamp":"2026-08-30T12:00:00Z"}`))

	createDataTopic(t, ctx, client, "data-topic-a")
	publishControlEvent(t, ctx, client, startedEvent("data-topic-a"))
	require.Eventually(t, func() bool {
		return len(subscriber.RegisteredTopics()) == 1
	}, 5*time.Second, 20*time.Millisecond, "control loop should survive malformed events")
}

func TestSubscriber_UnknownEventTagReachesHandlerAsOther(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-subscriber")
	subscriber := newTestSubscriber(t, ctx, client)

	collector := &eventCollector{}
	subscriber.SetStatusEventHandler(collector.Handler())
	require.NoError(t, subscriber.Start(ctx))

	publishRaw(t, ctx, client, telemetry.ControlTopicID, []byte(
		`{"event_type":"FIRMWARE_UPDATED","timestamp":"2026-08-30T12:00:00Z","sensor_id":"`+uuid.NewString()+`","firmware_version":"2.4.1"}`))

	require.Eventually(t, func() bool {
		for _, ev := range collector.Events() {
			if _, ok := ev.(*telemetry.SensorOther); ok {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSubscriber_SingleConsumptionTaskAcrossRebuilds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-subscriber")
	subscriber := newTestSubscriber(t, ctx, client)

	collector := &sampleCollector{}
	subscriber.SetSampleHandler(collector.Handler())
	require.NoError(t, subscriber.Start(ctx))

	// Several consecutive started events force several rebuild cycles.
	topics := []string{"data-topic-a", "data-topic-b", "data-topic-c"}
	for i, topic := range topics {
		createDataTopic(t, ctx, client, topic)
		publishControlEvent(t, ctx, client, startedEvent(topic))
		require.Eventually(t, func() bool {
			return len(subscriber.ActiveTopics()) == i+1
		}, 5*time.Second, 20*time.Millisecond)
	}

	// Were an old consumption task still alive alongside the new one, this
	// record would be delivered to the handler more than once.
	publishRaw(t, ctx, client, "data-topic-a", mustEncodeFloat(t, 24.5))

	require.Eventually(t, func() bool {
		return collector.Count() == 1
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, collector.Count(), "exactly one consumption task may be alive")
}

func mustEncodeFloat(t *testing.T, v float32) []byte {
	t.Helper()
	payload, err := telemetry.EncodeSamplePayload(telemetry.NewFloatSample(v), telemetry.FormatFloatBinary)
	require.NoError(t, err)
	return payload
}
