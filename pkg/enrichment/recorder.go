package enrichment

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-telemetry/pkg/devicecache"
	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/illmade-knight/go-telemetry/pkg/telemetryqueue"
	"github.com/rs/zerolog"
)

// NewMetadataRecorder wraps a status-event handler so sensor names observed in
// lifecycle events land in the metadata store, keyed by the sanitized name
// used in data-topic IDs. Later samples then enrich without a source lookup.
func NewMetadataRecorder(
	store devicecache.Store[string, devicecache.SensorMetadata],
	next telemetryqueue.StatusEventHandler,
	logger zerolog.Logger,
) (telemetryqueue.StatusEventHandler, error) {
	if store == nil {
		return nil, fmt.Errorf("metadata store cannot be nil")
	}

	recordLogger := logger.With().Str("component", "MetadataRecorder").Logger()

	return func(ctx context.Context, ev telemetry.StatusEvent) error {
		meta := ev.EventMeta()
		if meta.SensorName != "" {
			switch ev.Type() {
			case telemetry.EventTypeSensorCreated, telemetry.EventTypeMeasurementStarted:
				key := telemetry.SanitizeTopicPart(meta.SensorName)
				record := devicecache.SensorMetadata{ID: meta.SensorID, Name: meta.SensorName}
				if err := store.Set(ctx, key, record); err != nil {
					// Recording is best effort; the event still reaches the handler.
					recordLogger.Warn().Err(err).Str("sensor_name", meta.SensorName).Msg("Failed to record sensor metadata.")
				}
			}
		}

		if next == nil {
			return nil
		}
		return next(ctx, ev)
	}, nil
}
