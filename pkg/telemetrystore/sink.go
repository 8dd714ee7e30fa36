package telemetrystore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/illmade-knight/go-telemetry/pkg/telemetryqueue"
)

// SampleRow is the BigQuery row shape for one decoded sample. Field tags drive
// both schema inference and streaming inserts.
type SampleRow struct {
	Topic        string               `bigquery:"topic"`
	SensorName   string               `bigquery:"sensor_name"`
	Format       string               `bigquery:"format"`
	ProcessToken string               `bigquery:"process_token"`
	Timestamp    time.Time            `bigquery:"timestamp"`
	Value        bigquery.NullFloat64 `bigquery:"value"`
}

// NewSampleRow converts a decoded sample into its row shape. Null samples
// produce a row with an invalid Value so gaps stay visible in the table.
func NewSampleRow(topic string, sample telemetry.Sample) (*SampleRow, error) {
	parts, err := telemetry.ParseDataTopicID(topic)
	if err != nil {
		return nil, fmt.Errorf("cannot derive row fields: %w", err)
	}

	row := &SampleRow{
		Topic:        topic,
		SensorName:   parts.SensorName,
		Format:       string(parts.Format),
		ProcessToken: parts.ProcessToken,
		Timestamp:    sample.Timestamp,
	}
	switch v := sample.Value.(type) {
	case nil:
	case float32:
		row.Value = bigquery.NullFloat64{Float64: float64(v), Valid: true}
	case float64:
		row.Value = bigquery.NullFloat64{Float64: v, Valid: true}
	default:
		return nil, fmt.Errorf("unsupported sample value type %T", v)
	}
	return row, nil
}

// NewSampleBatchSink adapts a running BatchInserter into a sample handler, so
// a subscriber can stream decoded samples straight into BigQuery.
func NewSampleBatchSink(batcher *BatchInserter[SampleRow]) telemetryqueue.SampleHandler {
	return func(ctx context.Context, topic string, sample telemetry.Sample) error {
		row, err := NewSampleRow(topic, sample)
		if err != nil {
			return err
		}
		select {
		case batcher.Input() <- row:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
