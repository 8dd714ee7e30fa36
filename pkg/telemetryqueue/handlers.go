package telemetryqueue

import (
	"context"

	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/rs/zerolog"
)

// SampleHandler is the injectable endpoint for decoded samples. Returning an
// error marks the record as failed for logging; the consumption loop still
// advances to the next record.
type SampleHandler func(ctx context.Context, topic string, sample telemetry.Sample) error

// StatusEventHandler is the injectable endpoint for control-topic events. All
// variants are delivered; MeasurementStarted/MeasurementStopped additionally
// drive the subscriber's registry regardless of what the handler does.
type StatusEventHandler func(ctx context.Context, ev telemetry.StatusEvent) error

// LoggingSampleHandler is the default sample endpoint: it only logs.
func LoggingSampleHandler(logger zerolog.Logger) SampleHandler {
	return func(_ context.Context, topic string, sample telemetry.Sample) error {
		logger.Info().
			Str("topic_id", topic).
			Time("sample_time", sample.Timestamp).
			Interface("value", sample.Value).
			Msg("Sample received.")
		return nil
	}
}

// LoggingStatusEventHandler is the default status-event endpoint: it only logs.
func LoggingStatusEventHandler(logger zerolog.Logger) StatusEventHandler {
	return func(_ context.Context, ev telemetry.StatusEvent) error {
		meta := ev.EventMeta()
		logger.Info().
			Str("event_type", string(ev.Type())).
			Str("sensor_id", meta.SensorID.String()).
			Str("sensor_name", meta.SensorName).
			Msg("Status event received.")
		return nil
	}
}
