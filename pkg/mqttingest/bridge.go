package mqttingest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/rs/zerolog"
)

// SamplePublisher is the slice of the queue publisher the bridge needs.
type SamplePublisher interface {
	AnnounceStarted(ctx context.Context, interval time.Duration) error
	Publish(ctx context.Context, sample telemetry.Sample) error
	AnnounceStopped(ctx context.Context) error
}

// ReadingParser turns a raw MQTT reading into a sample.
type ReadingParser func(reading Reading) (telemetry.Sample, error)

// ParseFloatReading is the default parser: the payload is a decimal float in
// ASCII, or empty/"null" for a gap reading.
func ParseFloatReading(reading Reading) (telemetry.Sample, error) {
	payload := bytes.TrimSpace(reading.Payload)
	if len(payload) == 0 || bytes.EqualFold(payload, []byte("null")) {
		return telemetry.Sample{Timestamp: reading.ReceivedAt, Value: nil}, nil
	}
	v, err := strconv.ParseFloat(string(payload), 32)
	if err != nil {
		return telemetry.Sample{}, fmt.Errorf("unparseable reading %q: %w", payload, err)
	}
	return telemetry.Sample{Timestamp: reading.ReceivedAt, Value: float32(v)}, nil
}

// BridgeConfig holds configuration for the MQTT-to-queue bridge.
type BridgeConfig struct {
	// SamplingInterval is announced to subscribers when the bridge starts.
	SamplingInterval time.Duration
}

// Bridge consumes raw readings from an MQTT topic and republishes them as
// samples on the measurement's data topic, bracketed by started/stopped
// announcements. Unparseable readings are logged and skipped.
type Bridge struct {
	cfg       BridgeConfig
	consumer  *Consumer
	publisher SamplePublisher
	parser    ReadingParser
	logger    zerolog.Logger

	workerDone chan struct{}
	stopOnce   sync.Once
}

// NewBridge creates a bridge. A nil parser defaults to ParseFloatReading.
func NewBridge(
	cfg BridgeConfig,
	consumer *Consumer,
	publisher SamplePublisher,
	parser ReadingParser,
	logger zerolog.Logger,
) (*Bridge, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if parser == nil {
		parser = ParseFloatReading
	}
	return &Bridge{
		cfg:        cfg,
		consumer:   consumer,
		publisher:  publisher,
		parser:     parser,
		logger:     logger.With().Str("component", "MqttBridge").Logger(),
		workerDone: make(chan struct{}),
	}, nil
}

// Start announces the measurement, connects the consumer, and begins
// forwarding readings.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.publisher.AnnounceStarted(ctx, b.cfg.SamplingInterval); err != nil {
		return fmt.Errorf("failed to announce measurement start: %w", err)
	}
	if err := b.consumer.Start(ctx); err != nil {
		return err
	}

	go b.forward(ctx)
	return nil
}

func (b *Bridge) forward(ctx context.Context) {
	defer close(b.workerDone)
	for reading := range b.consumer.Messages() {
		sample, err := b.parser(reading)
		if err != nil {
			b.logger.Warn().Err(err).Str("mqtt_topic", reading.Topic).Msg("Dropping unparseable reading.")
			continue
		}
		if err := b.publisher.Publish(ctx, sample); err != nil {
			b.logger.Error().Err(err).Str("mqtt_topic", reading.Topic).Msg("Failed to publish sample.")
		}
	}
}

// Stop drains the consumer, joins the forwarding worker, and announces the
// measurement stopped.
func (b *Bridge) Stop(ctx context.Context) error {
	var stopErr error
	b.stopOnce.Do(func() {
		if err := b.consumer.Stop(ctx); err != nil {
			stopErr = err
			return
		}
		select {
		case <-b.workerDone:
		case <-ctx.Done():
			stopErr = ctx.Err()
			return
		}
		stopErr = b.publisher.AnnounceStopped(ctx)
	})
	return stopErr
}
