// Package enrichment attaches sensor metadata to decoded samples on their way
// to a downstream handler.
package enrichment

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-telemetry/pkg/devicecache"
	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/illmade-knight/go-telemetry/pkg/telemetryqueue"
	"github.com/rs/zerolog"
)

// MetadataFetcher resolves sensor metadata by the sanitized sensor name that
// appears in data-topic IDs.
type MetadataFetcher = devicecache.Fetcher[string, devicecache.SensorMetadata]

// EnrichedSample is a decoded sample plus whatever metadata could be resolved
// for its sensor. Metadata is nil when resolution failed.
type EnrichedSample struct {
	Topic    string
	Sample   telemetry.Sample
	Metadata *devicecache.SensorMetadata
}

// EnrichedSampleHandler consumes enriched samples.
type EnrichedSampleHandler func(ctx context.Context, sample EnrichedSample) error

// NewEnrichingSampleHandler wraps next in a sample handler that resolves
// sensor metadata from the data-topic name. Enrichment is additive: a fetch
// failure is logged and the sample is delivered unenriched rather than
// dropped.
func NewEnrichingSampleHandler(
	fetcher MetadataFetcher,
	next EnrichedSampleHandler,
	logger zerolog.Logger,
) (telemetryqueue.SampleHandler, error) {
	if fetcher == nil || next == nil {
		return nil, fmt.Errorf("fetcher and next handler cannot be nil")
	}

	enrichLogger := logger.With().Str("component", "EnrichingSampleHandler").Logger()

	return func(ctx context.Context, topic string, sample telemetry.Sample) error {
		enriched := EnrichedSample{Topic: topic, Sample: sample}

		parts, err := telemetry.ParseDataTopicID(topic)
		if err != nil {
			enrichLogger.Debug().Str("topic", topic).Msg("Topic has no sensor segment, skipping enrichment.")
			return next(ctx, enriched)
		}

		meta, err := fetcher.Fetch(ctx, parts.SensorName)
		if err != nil {
			enrichLogger.Warn().Err(err).Str("sensor_name", parts.SensorName).Msg("Failed to fetch sensor metadata.")
			return next(ctx, enriched)
		}

		enriched.Metadata = &meta
		return next(ctx, enriched)
	}, nil
}
