package mqttingest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Reading is one raw sensor reading lifted off the MQTT wire.
type Reading struct {
	ID         string
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Consumer subscribes to one MQTT topic and exposes readings on a channel.
// The Paho client is injected so tests can drive the message handler directly.
type Consumer struct {
	pahoClient mqtt.Client
	logger     zerolog.Logger
	cfg        *MQTTConfig
	outputChan chan Reading
	doneChan   chan struct{}
	stopOnce   sync.Once
}

// NewConsumer creates a consumer over an existing Paho client. It does not
// connect until Start is called.
func NewConsumer(client mqtt.Client, cfg *MQTTConfig, logger zerolog.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("mqtt client cannot be nil")
	}
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("MQTT topic is required")
	}
	return &Consumer{
		pahoClient: client,
		logger:     logger.With().Str("component", "MqttConsumer").Logger(),
		cfg:        cfg,
		outputChan: make(chan Reading, 1000),
		doneChan:   make(chan struct{}),
	}, nil
}

// Messages returns the read-only channel of raw readings.
func (c *Consumer) Messages() <-chan Reading {
	return c.outputChan
}

// Start connects and subscribes. A failed initial connect is logged rather
// than fatal; the Paho client keeps retrying in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().Msg("Attempting to connect to MQTT broker...")
	if token := c.pahoClient.Connect(); token.WaitTimeout(c.connectTimeout()) && token.Error() != nil {
		c.logger.Error().Err(token.Error()).Msg("Failed to connect to MQTT broker on startup. The Paho client will continue to retry in the background.")
	}

	if token := c.pahoClient.Subscribe(c.cfg.Topic, 1, c.handleIncomingMessage(ctx)); token.WaitTimeout(c.connectTimeout()) && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to MQTT topic %s: %w", c.cfg.Topic, token.Error())
	}
	c.logger.Info().Str("topic", c.cfg.Topic).Msg("Subscribed to MQTT topic.")

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop unsubscribes, disconnects, and closes the output channel.
func (c *Consumer) Stop(_ context.Context) error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping MqttConsumer...")
		if c.pahoClient.IsConnected() {
			if token := c.pahoClient.Unsubscribe(c.cfg.Topic); token.WaitTimeout(2*time.Second) && token.Error() != nil {
				c.logger.Warn().Err(token.Error()).Str("topic", c.cfg.Topic).Msg("Failed to unsubscribe from MQTT topic.")
			}
			c.pahoClient.Disconnect(500)
		}
		close(c.outputChan)
		close(c.doneChan)
		c.logger.Info().Msg("MqttConsumer stopped.")
	})
	return nil
}

// Done is closed when the consumer has fully stopped.
func (c *Consumer) Done() <-chan struct{} {
	return c.doneChan
}

// IsConnected reports the underlying client's connection status.
func (c *Consumer) IsConnected() bool {
	return c.pahoClient.IsConnected()
}

func (c *Consumer) connectTimeout() time.Duration {
	if c.cfg.ConnectTimeout > 0 {
		return c.cfg.ConnectTimeout
	}
	return 5 * time.Second
}

func (c *Consumer) handleIncomingMessage(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		c.logger.Debug().Str("topic", msg.Topic()).Msg("Received MQTT message")
		payloadCopy := make([]byte, len(msg.Payload()))
		copy(payloadCopy, msg.Payload())

		reading := Reading{
			ID:         fmt.Sprintf("%d", msg.MessageID()),
			Topic:      msg.Topic(),
			Payload:    payloadCopy,
			ReceivedAt: time.Now().UTC(),
		}
		select {
		case c.outputChan <- reading:
		case <-ctx.Done():
			c.logger.Warn().Str("topic", msg.Topic()).Msg("Consumer is shutting down, dropping MQTT message.")
		}
	}
}

// NewPahoClient assembles a Paho client from the config, including TLS when
// the broker URL calls for it.
func NewPahoClient(cfg *MQTTConfig, logger zerolog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	uniqueSuffix := time.Now().UnixNano() % 1000000
	opts.SetClientID(fmt.Sprintf("%s%d", cfg.ClientIDPrefix, uniqueSuffix))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.ReconnectWaitMax)
	opts.SetResumeSubs(true)
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("Paho client connected to MQTT broker.")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error().Err(err).Msg("Paho client lost MQTT connection.")
	})

	if strings.HasPrefix(strings.ToLower(cfg.BrokerURL), "tls://") {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return mqtt.NewClient(opts), nil
}

func newTLSConfig(cfg *MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert file %s: %w", cfg.CACertFile, err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA cert from %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
