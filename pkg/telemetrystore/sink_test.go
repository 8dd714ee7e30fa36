package telemetrystore_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/illmade-knight/go-telemetry/pkg/telemetrystore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleRow(t *testing.T) {
	topic := telemetry.DataTopicID("telemetry", "Living Room Temperature", telemetry.FormatFloatBinary, "token-1")

	t.Run("float sample", func(t *testing.T) {
		sample := telemetry.Sample{Timestamp: time.Unix(1700000000, 0).UTC(), Value: float32(22.5)}
		row, err := telemetrystore.NewSampleRow(topic, sample)
		require.NoError(t, err)

		assert.Equal(t, topic, row.Topic)
		assert.Equal(t, "Living-Room-Temperature", row.SensorName)
		assert.Equal(t, "FLOAT_BINARY", row.Format)
		assert.Equal(t, "token-1", row.ProcessToken)
		assert.Equal(t, sample.Timestamp, row.Timestamp)
		require.True(t, row.Value.Valid)
		assert.InDelta(t, 22.5, row.Value.Float64, 1e-6)
	})

	t.Run("null sample keeps the gap visible", func(t *testing.T) {
		row, err := telemetrystore.NewSampleRow(topic, telemetry.NewNullSample())
		require.NoError(t, err)
		assert.False(t, row.Value.Valid)
	})

	t.Run("unparseable topic", func(t *testing.T) {
		_, err := telemetrystore.NewSampleRow("not-a-data-topic", telemetry.NewFloatSample(1))
		require.Error(t, err)
	})
}

func TestNewSampleBatchSink(t *testing.T) {
	mockInserter := &mockBatchInserter[telemetrystore.SampleRow]{}
	batcher := telemetrystore.NewBatchInserter[telemetrystore.SampleRow](
		&telemetrystore.BatchInserterConfig{BatchSize: 2, FlushInterval: time.Second, InsertTimeout: time.Second},
		mockInserter, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	batcher.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		_ = batcher.Stop(stopCtx)
	})

	handler := telemetrystore.NewSampleBatchSink(batcher)
	topic := telemetry.DataTopicID("telemetry", "Hall Humidity", telemetry.FormatFloatBinary, "token-2")

	require.NoError(t, handler(ctx, topic, telemetry.NewFloatSample(44.0)))
	require.NoError(t, handler(ctx, topic, telemetry.NewNullSample()))

	require.Eventually(t, func() bool {
		return mockInserter.CallCount() == 1
	}, time.Second, 10*time.Millisecond)

	batches := mockInserter.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "Hall-Humidity", batches[0][0].SensorName)
}
