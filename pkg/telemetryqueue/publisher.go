package telemetryqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/rs/zerolog"
)

// PublisherConfig holds configuration for one measurement-producing process.
type PublisherConfig struct {
	SensorID   uuid.UUID
	SensorName string
	Format     telemetry.SampleFormat
	// ProcessToken keeps concurrent measurement runs of the same sensor on
	// separate data topics. Defaults to a fresh UUID per Publisher.
	ProcessToken string
	TopicPrefix  string
	// DataRetentionDays is applied when this publisher creates its data topic.
	DataRetentionDays int
	// FailIfTopicExists makes a pre-existing data topic a configuration error
	// instead of an idempotent no-op.
	FailIfTopicExists bool
}

// NewPublisherDefaults provides a config with sensible defaults.
func NewPublisherDefaults(sensorID uuid.UUID, sensorName string, format telemetry.SampleFormat) *PublisherConfig {
	cfg := &PublisherConfig{
		SensorID:          sensorID,
		SensorName:        sensorName,
		Format:            format,
		ProcessToken:      uuid.NewString(),
		TopicPrefix:       telemetry.DefaultTopicPrefix,
		DataRetentionDays: 1,
	}
	if rd := os.Getenv("TELEMETRY_DATA_RETENTION_DAYS"); rd != "" {
		if val, err := strconv.Atoi(rd); err == nil && val > 0 {
			cfg.DataRetentionDays = val
		}
	}
	return cfg
}

// Publisher owns the publishing side of one measurement process: it announces
// lifecycle events on the shared control topic and streams binary samples to
// its own data topic. Not safe for use after Close.
type Publisher struct {
	cfg          PublisherConfig
	controlTopic *pubsub.Topic
	dataTopic    *pubsub.Topic
	topicName    string
	logger       zerolog.Logger
	closeOnce    sync.Once
}

// NewPublisher bootstraps the control topic (idempotently) and this process's
// data topic, then returns a ready publisher. The client's lifecycle is
// managed by the caller.
func NewPublisher(ctx context.Context, cfg *PublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if cfg.SensorName == "" {
		return nil, fmt.Errorf("sensor name is required")
	}
	if _, err := telemetry.ParseSampleFormat(string(cfg.Format)); err != nil {
		return nil, fmt.Errorf("publisher config: %w", err)
	}
	if cfg.ProcessToken == "" {
		cfg.ProcessToken = uuid.NewString()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = telemetry.DefaultTopicPrefix
	}
	if cfg.DataRetentionDays <= 0 {
		cfg.DataRetentionDays = 1
	}

	admin, err := NewTopicAdmin(client, logger)
	if err != nil {
		return nil, err
	}
	if err := admin.EnsureTopic(ctx, telemetry.ControlTopicID, telemetry.ControlTopicRetentionDays, false); err != nil {
		return nil, fmt.Errorf("control topic bootstrap: %w", err)
	}

	topicName := telemetry.DataTopicID(cfg.TopicPrefix, cfg.SensorName, cfg.Format, cfg.ProcessToken)
	if err := admin.EnsureTopic(ctx, topicName, cfg.DataRetentionDays, cfg.FailIfTopicExists); err != nil {
		return nil, fmt.Errorf("data topic bootstrap: %w", err)
	}

	logger = logger.With().Str("component", "Publisher").Str("topic_id", topicName).Logger()
	logger.Info().Str("sensor_id", cfg.SensorID.String()).Str("format", string(cfg.Format)).Msg("Publisher initialized successfully.")

	return &Publisher{
		cfg:          *cfg,
		controlTopic: client.Topic(telemetry.ControlTopicID),
		dataTopic:    client.Topic(topicName),
		topicName:    topicName,
		logger:       logger,
	}, nil
}

// TopicName returns the derived data topic this publisher streams to.
func (p *Publisher) TopicName() string { return p.topicName }

// AnnounceStarted publishes a MeasurementStarted event naming this publisher's
// data topic, format, and expected sampling interval. Subscribers react by
// adding the topic to their live subscription set, so callers should announce
// before the first sample or accept that early samples may be missed.
func (p *Publisher) AnnounceStarted(ctx context.Context, interval time.Duration) error {
	return p.publishStatusEvent(ctx, &telemetry.MeasurementStarted{
		Meta:             p.eventMeta(),
		TopicName:        p.topicName,
		Format:           p.cfg.Format,
		SamplingInterval: interval.Seconds(),
	})
}

// AnnounceStopped publishes a MeasurementStopped event so subscribers can
// remove the data topic and clean it up once drained.
func (p *Publisher) AnnounceStopped(ctx context.Context) error {
	return p.publishStatusEvent(ctx, &telemetry.MeasurementStopped{
		Meta:      p.eventMeta(),
		TopicName: p.topicName,
	})
}

// PublishStatusEvent sends an arbitrary status event (info, warning, error,
// lifecycle) on the shared control topic with an acknowledged send.
func (p *Publisher) PublishStatusEvent(ctx context.Context, ev telemetry.StatusEvent) error {
	return p.publishStatusEvent(ctx, ev)
}

func (p *Publisher) publishStatusEvent(ctx context.Context, ev telemetry.StatusEvent) error {
	data, err := telemetry.EncodeStatusEvent(ev)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	res := p.controlTopic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type(), err)
	}
	p.logger.Debug().Str("event_type", string(ev.Type())).Msg("Status event published.")
	return nil
}

// Publish sends one sample with an acknowledged, blocking send: the call does
// not return until the broker confirms the record.
func (p *Publisher) Publish(ctx context.Context, sample telemetry.Sample) error {
	payload, err := telemetry.EncodeSamplePayload(sample, p.cfg.Format)
	if err != nil {
		return err
	}
	res := p.dataTopic.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish sample to %s: %w", p.topicName, err)
	}
	return nil
}

// PublishBatch sends many samples with overlapping network round-trips and
// waits for every acknowledgment. Encoding is validated up front so a
// malformed sample fails the call before anything is sent; a transport failure
// mid-batch propagates, but already-acknowledged sends are not retracted.
func (p *Publisher) PublishBatch(ctx context.Context, samples []telemetry.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	payloads := make([][]byte, len(samples))
	for i, sample := range samples {
		payload, err := telemetry.EncodeSamplePayload(sample, p.cfg.Format)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		payloads[i] = payload
	}

	results := make([]*pubsub.PublishResult, len(payloads))
	for i, payload := range payloads {
		results[i] = p.dataTopic.Publish(ctx, &pubsub.Message{Data: payload})
	}

	var errs []error
	for i, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sample %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("publish batch to %s: %w", p.topicName, err)
	}
	p.logger.Debug().Int("batch_size", len(samples)).Msg("Sample batch acknowledged.")
	return nil
}

func (p *Publisher) eventMeta() telemetry.EventMeta {
	return telemetry.EventMeta{
		Timestamp:  time.Now().UTC(),
		SensorID:   p.cfg.SensorID,
		SensorName: p.cfg.SensorName,
	}
}

// Close flushes both topic handles and must be called on every exit path; the
// broker client itself is owned and closed by the caller.
func (p *Publisher) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.logger.Info().Msg("Stopping publisher...")
		stopDone := make(chan struct{})
		go func() {
			p.dataTopic.Stop()
			p.controlTopic.Stop()
			close(stopDone)
		}()
		select {
		case <-stopDone:
			p.logger.Info().Msg("Publisher stopped.")
		case <-ctx.Done():
			p.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for publisher topics to flush.")
			err = ctx.Err()
		}
	})
	return err
}
