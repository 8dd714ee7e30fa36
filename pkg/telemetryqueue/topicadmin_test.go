package telemetryqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-telemetry/pkg/telemetryqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicAdmin_EnsureTopic_CreatesWhenAbsent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-admin")
	admin, err := telemetryqueue.NewTopicAdmin(client, zerolog.Nop())
	require.NoError(t, err)

	err = admin.EnsureTopic(ctx, "admin-topic", 5, false)
	require.NoError(t, err)

	exists, err := client.Topic("admin-topic").Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTopicAdmin_EnsureTopic_Idempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-admin")
	admin, err := telemetryqueue.NewTopicAdmin(client, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, admin.EnsureTopic(ctx, "admin-topic", 1, false))
	// Bootstrap is a no-op when the topic is already there.
	assert.NoError(t, admin.EnsureTopic(ctx, "admin-topic", 1, false))
}

func TestTopicAdmin_EnsureTopic_FailIfExists(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-admin")
	admin, err := telemetryqueue.NewTopicAdmin(client, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, admin.EnsureTopic(ctx, "admin-topic", 1, false))

	err = admin.EnsureTopic(ctx, "admin-topic", 1, true)
	assert.ErrorIs(t, err, telemetryqueue.ErrTopicExists)
}

func TestTopicAdmin_EnsureSubscription_Idempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client := newTestClient(t, "test-admin")
	admin, err := telemetryqueue.NewTopicAdmin(client, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, admin.EnsureTopic(ctx, "admin-topic", 1, false))

	first, err := admin.EnsureSubscription(ctx, "admin-sub", "admin-topic")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := admin.EnsureSubscription(ctx, "admin-sub", "admin-topic")
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())
}
