package telemetryqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-telemetry/pkg/telemetry"
	"github.com/rs/zerolog"
)

// SubscriberConfig holds configuration for a telemetry subscriber.
type SubscriberConfig struct {
	// ConsumerGroup names this subscriber's share of the control topic and is
	// suffixed onto every data-topic subscription it creates. Subscribers with
	// the same group split the stream; distinct groups each see everything.
	ConsumerGroup  string
	ControlTopicID string
}

// NewSubscriberDefaults provides a config with sensible defaults.
func NewSubscriberDefaults() *SubscriberConfig {
	cfg := &SubscriberConfig{
		ConsumerGroup:  "status-events-default",
		ControlTopicID: telemetry.ControlTopicID,
	}
	if cg := os.Getenv("TELEMETRY_CONSUMER_GROUP"); cg != "" {
		cfg.ConsumerGroup = cg
	}
	return cfg
}

// Subscriber watches the control topic and translates measurement lifecycle
// events into data-plane subscription changes: MeasurementStarted adds the
// named topic to the registry, MeasurementStopped removes it, and either way
// the single sample-consumption task is cancelled, joined, reconfigured to the
// registry's current topic set, and respawned. The registry is mutated only by
// the control loop and each consumption task reads its own snapshot, so the
// two never share live state.
type Subscriber struct {
	cfg    SubscriberConfig
	client *pubsub.Client
	admin  *TopicAdmin
	logger zerolog.Logger

	sampleHandler SampleHandler
	eventHandler  StatusEventHandler

	rootCtx     context.Context
	rootCancel  context.CancelFunc
	controlDone chan struct{}

	// sampleCancel/sampleDone belong to the current consumption task and are
	// touched only from the control loop (serial by construction).
	sampleCancel context.CancelFunc
	sampleDone   chan struct{}

	// mu guards the registry and active-topic views exposed to other
	// goroutines; the loops themselves never contend on it.
	mu           sync.Mutex
	registry     map[string]telemetry.SampleFormat
	activeTopics []string

	started  bool
	stopOnce sync.Once
}

// NewSubscriber creates a subscriber with logging default handlers. Override
// the endpoints with SetSampleHandler/SetStatusEventHandler before Start. The
// client's lifecycle is managed by the caller.
func NewSubscriber(cfg *SubscriberConfig, client *pubsub.Client, logger zerolog.Logger) (*Subscriber, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if cfg.ControlTopicID == "" {
		cfg.ControlTopicID = telemetry.ControlTopicID
	}

	admin, err := NewTopicAdmin(client, logger)
	if err != nil {
		return nil, err
	}

	componentLogger := logger.With().Str("component", "Subscriber").Str("consumer_group", cfg.ConsumerGroup).Logger()
	return &Subscriber{
		cfg:           *cfg,
		client:        client,
		admin:         admin,
		logger:        componentLogger,
		sampleHandler: LoggingSampleHandler(componentLogger),
		eventHandler:  LoggingStatusEventHandler(componentLogger),
		registry:      make(map[string]telemetry.SampleFormat),
	}, nil
}

// SetSampleHandler injects the sample endpoint. Must be called before Start.
func (s *Subscriber) SetSampleHandler(h SampleHandler) {
	if h != nil {
		s.sampleHandler = h
	}
}

// SetStatusEventHandler injects the status-event endpoint. Must be called before Start.
func (s *Subscriber) SetStatusEventHandler(h StatusEventHandler) {
	if h != nil {
		s.eventHandler = h
	}
}

// Start bootstraps the control topic and consumer group, then launches the
// long-lived control-event loop. The sample-consumption task starts idle and
// is spawned by the first MeasurementStarted event.
func (s *Subscriber) Start(ctx context.Context) error {
	if s.started {
		return fmt.Errorf("subscriber already started")
	}

	if err := s.admin.EnsureTopic(ctx, s.cfg.ControlTopicID, telemetry.ControlTopicRetentionDays, false); err != nil {
		return fmt.Errorf("control topic bootstrap: %w", err)
	}
	controlSub, err := s.admin.EnsureSubscription(ctx, s.controlSubscriptionID(), s.cfg.ControlTopicID)
	if err != nil {
		return fmt.Errorf("control subscription bootstrap: %w", err)
	}
	// Control events mutate the registry and must be processed one at a time,
	// in order.
	controlSub.ReceiveSettings.NumGoroutines = 1
	controlSub.ReceiveSettings.MaxOutstandingMessages = 1

	s.rootCtx, s.rootCancel = context.WithCancel(ctx)
	s.controlDone = make(chan struct{})
	s.started = true

	go func() {
		defer close(s.controlDone)
		s.logger.Info().Str("subscription_id", s.controlSubscriptionID()).Msg("Control-event loop started.")
		err := controlSub.Receive(s.rootCtx, func(msgCtx context.Context, msg *pubsub.Message) {
			s.processStatusEvent(msgCtx, msg.Data)
			// Malformed or failed events are logged and dropped, never redelivered.
			msg.Ack()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Control-event loop exited with transport error; recreate the subscriber to recover.")
		}
		s.logger.Info().Msg("Control-event loop stopped.")
	}()

	s.logger.Info().Msg("Subscriber started.")
	return nil
}

// processStatusEvent decodes one control-topic record, applies any registry
// mutation, and dispatches to the injected handler.
func (s *Subscriber) processStatusEvent(ctx context.Context, data []byte) {
	ev, err := telemetry.DecodeStatusEvent(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed status event.")
		return
	}

	switch e := ev.(type) {
	case *telemetry.MeasurementStarted:
		s.mu.Lock()
		s.registry[e.TopicName] = e.Format
		s.mu.Unlock()
		s.logger.Info().
			Str("topic_id", e.TopicName).
			Str("format", string(e.Format)).
			Msg("Measurement started; rebuilding sample consumption.")
		s.rebuildSampleLoop()
	case *telemetry.MeasurementStopped:
		s.mu.Lock()
		delete(s.registry, e.TopicName)
		s.mu.Unlock()
		s.logger.Info().
			Str("topic_id", e.TopicName).
			Msg("Measurement stopped; rebuilding sample consumption.")
		s.rebuildSampleLoop()
	}

	if err := s.eventHandler(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(ev.Type())).Msg("Status event handler failed; event dropped.")
	}
}

// rebuildSampleLoop runs the restart protocol: cancel the current consumption
// task, join it, reconfigure subscriptions to the registry's topic set, and
// spawn a fresh task over a snapshot. The broker client cannot change a
// consumer's topic membership mid-fetch without risking dropped buffered
// records, so the task is always torn down whole. Only the control loop calls
// this, so there is never more than one task alive.
func (s *Subscriber) rebuildSampleLoop() {
	if s.sampleCancel != nil {
		s.sampleCancel()
		<-s.sampleDone
		s.sampleCancel, s.sampleDone = nil, nil
	}
	s.setActiveTopics(nil)

	snapshot := s.RegisteredTopics()
	if len(snapshot) == 0 {
		s.logger.Info().Msg("Registry is empty; sample consumption idle.")
		return
	}

	subs := make(map[string]*pubsub.Subscription, len(snapshot))
	for topic := range snapshot {
		sub, err := s.admin.EnsureSubscription(s.rootCtx, s.dataSubscriptionID(topic), topic)
		if err != nil {
			s.logger.Error().Err(err).Str("topic_id", topic).Msg("Failed to ensure data subscription; topic skipped until next rebuild.")
			continue
		}
		sub.ReceiveSettings.NumGoroutines = 1
		subs[topic] = sub
	}

	loopCtx, cancel := context.WithCancel(s.rootCtx)
	done := make(chan struct{})
	s.sampleCancel, s.sampleDone = cancel, done

	var wg sync.WaitGroup
	for topic, sub := range subs {
		wg.Add(1)
		format := snapshot[topic]
		go func(topic string, format telemetry.SampleFormat, sub *pubsub.Subscription) {
			defer wg.Done()
			err := sub.Receive(loopCtx, func(msgCtx context.Context, msg *pubsub.Message) {
				if err := s.processSampleRecord(msgCtx, topic, format, msg.Data, msg.PublishTime.UnixMilli()); err != nil {
					s.logger.Error().Err(err).
						Str("topic_id", topic).
						Str("format", string(format)).
						Str("msg_id", msg.ID).
						Msg("Sample record failed; skipping record.")
				}
				// At-least-once with best-effort per-record isolation: the
				// record is consumed either way so the loop advances.
				msg.Ack()
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Str("topic_id", topic).Msg("Sample consumption exited with transport error; recreate the subscriber to recover.")
			}
		}(topic, format, sub)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	topics := make([]string, 0, len(subs))
	for topic := range subs {
		topics = append(topics, topic)
	}
	s.setActiveTopics(topics)
	s.logger.Info().Int("topic_count", len(topics)).Msg("Sample consumption task started.")
}

// processSampleRecord decodes one data-topic record and hands it to the sample
// endpoint. The broker's publish timestamp is authoritative for formats that
// carry none of their own.
func (s *Subscriber) processSampleRecord(ctx context.Context, topic string, format telemetry.SampleFormat, payload []byte, publishTimeMs int64) error {
	sample, err := telemetry.DecodeSamplePayload(payload, format, publishTimeMs)
	if err != nil {
		return fmt.Errorf("decode sample: %w", err)
	}
	if err := s.sampleHandler(ctx, topic, sample); err != nil {
		return fmt.Errorf("sample handler: %w", err)
	}
	return nil
}

// RegisteredTopics returns a copy of the registry: data topic → declared format.
func (s *Subscriber) RegisteredTopics() map[string]telemetry.SampleFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string]telemetry.SampleFormat, len(s.registry))
	for topic, format := range s.registry {
		snapshot[topic] = format
	}
	return snapshot
}

// ActiveTopics returns the sorted topic set the current consumption task is
// subscribed to. Empty when idle. After every registry mutation this converges
// to the registry's key set.
func (s *Subscriber) ActiveTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.activeTopics...)
}

func (s *Subscriber) setActiveTopics(topics []string) {
	sort.Strings(topics)
	s.mu.Lock()
	s.activeTopics = topics
	s.mu.Unlock()
}

func (s *Subscriber) controlSubscriptionID() string {
	return s.cfg.ControlTopicID + "--" + s.cfg.ConsumerGroup
}

func (s *Subscriber) dataSubscriptionID(topic string) string {
	return topic + "--" + s.cfg.ConsumerGroup
}

// Stop cancels both loops and waits for them to exit. It must be called on
// every exit path; abnormal teardown without Stop leaves broker-side
// subscriptions intact but abandons in-flight records to redelivery.
func (s *Subscriber) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		if !s.started {
			return
		}
		s.logger.Info().Msg("Stopping subscriber...")
		s.rootCancel()

		// The control loop returns only after any in-flight rebuild finished,
		// so sampleDone is stable to read afterwards.
		select {
		case <-s.controlDone:
		case <-ctx.Done():
			stopErr = ctx.Err()
			s.logger.Error().Err(stopErr).Msg("Timeout waiting for control-event loop to stop.")
			return
		}

		if s.sampleDone != nil {
			select {
			case <-s.sampleDone:
			case <-ctx.Done():
				stopErr = ctx.Err()
				s.logger.Error().Err(stopErr).Msg("Timeout waiting for sample consumption to stop.")
				return
			}
		}
		s.logger.Info().Msg("Subscriber stopped.")
	})
	return stopErr
}
