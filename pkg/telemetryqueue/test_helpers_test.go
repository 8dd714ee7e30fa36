package telemetryqueue_test

import (
	"context"
	"sync"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/illmade-knight/go-telemetry/pkg/telemetryqueue"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// newTestClient spins up an in-process Pub/Sub fake and returns a client bound
// to it. Everything is cleaned up with the test.
func newTestClient(t *testing.T, projectID string) *pubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// sampleCollector is a concurrency-safe SampleHandler for assertions.
type sampleCollector struct {
	mu      sync.Mutex
	samples []collectedSample
}

type collectedSample struct {
	Topic  string
	Sample telemetry.Sample
}

func (c *sampleCollector) Handler() telemetryqueue.SampleHandler {
	return func(_ context.Context, topic string, sample telemetry.Sample) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.samples = append(c.samples, collectedSample{Topic: topic, Sample: sample})
		return nil
	}
}

func (c *sampleCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func (c *sampleCollector) Samples() []collectedSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]collectedSample(nil), c.samples...)
}

// eventCollector is a concurrency-safe StatusEventHandler for assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []telemetry.StatusEvent
}

func (c *eventCollector) Handler() telemetryqueue.StatusEventHandler {
	return func(_ context.Context, ev telemetry.StatusEvent) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, ev)
		return nil
	}
}

func (c *eventCollector) Events() []telemetry.StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]telemetry.StatusEvent(nil), c.events...)
}

// publishControlEvent writes one encoded status event straight onto the
// control topic, bypassing a Publisher, and waits for the broker ack.
func publishControlEvent(t *testing.T, ctx context.Context, client *pubsub.Client, ev telemetry.StatusEvent) {
	t.Helper()
	data, err := telemetry.EncodeStatusEvent(ev)
	require.NoError(t, err)
	publishRaw(t, ctx, client, telemetry.ControlTopicID, data)
}

// publishRaw writes arbitrary bytes to a topic and waits for the broker ack.
func publishRaw(t *testing.T, ctx context.Context, client *pubsub.Client, topicID string, payload []byte) {
	t.Helper()
	topic := client.Topic(topicID)
	defer topic.Stop()
	res := topic.Publish(ctx, &pubsub.Message{Data: payload})
	_, err := res.Get(ctx)
	require.NoError(t, err)
}
