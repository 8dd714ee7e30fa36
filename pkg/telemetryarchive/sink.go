package telemetryarchive

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/illmade-knight/go-telemetry/pkg/telemetryqueue"
	"github.com/illmade-knight/go-telemetry/pkg/telemetrystore"
)

// NewArchiveRecord converts a decoded sample into its archival shape.
func NewArchiveRecord(topic string, sample telemetry.Sample) (*ArchiveRecord, error) {
	parts, err := telemetry.ParseDataTopicID(topic)
	if err != nil {
		return nil, fmt.Errorf("cannot derive archive fields: %w", err)
	}

	rec := &ArchiveRecord{
		Topic:      topic,
		SensorName: parts.SensorName,
		Timestamp:  sample.Timestamp,
		ArchivedAt: time.Now().UTC(),
	}
	switch v := sample.Value.(type) {
	case nil:
	case float32:
		f := float64(v)
		rec.Value = &f
	case float64:
		f := v
		rec.Value = &f
	default:
		return nil, fmt.Errorf("unsupported sample value type %T", v)
	}
	return rec, nil
}

// NewArchiveSink adapts a running batcher backed by an ArchiveUploader into a
// sample handler, so a subscriber can archive every sample it consumes.
func NewArchiveSink(batcher *telemetrystore.BatchInserter[ArchiveRecord]) telemetryqueue.SampleHandler {
	return func(ctx context.Context, topic string, sample telemetry.Sample) error {
		rec, err := NewArchiveRecord(topic, sample)
		if err != nil {
			return err
		}
		select {
		case batcher.Input() <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
