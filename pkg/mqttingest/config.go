package mqttingest

import (
	"os"
	"time"
)

// MQTTConfig holds connection parameters, security settings, and the topic
// subscription for the edge consumer.
type MQTTConfig struct {
	// BrokerURL is the full URL of the MQTT broker, e.g. "tls://mqtt.example.com:8883".
	BrokerURL string
	// Topic is the MQTT topic filter the consumer subscribes to.
	Topic string
	// ClientIDPrefix is prefixed to a unique suffix so concurrent clients do
	// not evict each other from the broker.
	ClientIDPrefix string
	// Username and Password authenticate with the broker.
	Username string
	Password string
	// KeepAlive is the interval between keep-alive pings.
	KeepAlive time.Duration
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
	// ReconnectWaitMax caps the backoff between reconnect attempts.
	ReconnectWaitMax time.Duration
	// CACertFile is an optional CA certificate for verifying the broker.
	CACertFile string
	// ClientCertFile/ClientKeyFile enable mTLS authentication.
	ClientCertFile string
	ClientKeyFile  string
	// InsecureSkipVerify skips TLS certificate verification. Not for production.
	InsecureSkipVerify bool
}

const (
	MqttBrokerURL             = "MQTT_BROKER_URL"
	MqttTopic                 = "MQTT_TOPIC"
	MqttSkipVerify            = "MQTT_INSECURE_SKIP_VERIFY"
	MqttKeepAliveSeconds      = "MQTT_KEEP_ALIVE_SECONDS"
	MqttConnectTimeoutSeconds = "MQTT_CONNECT_TIMEOUT_SECONDS"
)

// LoadMQTTConfigWithEnv loads MQTT configuration from environment variables,
// with sensible defaults for anything unset.
func LoadMQTTConfigWithEnv() *MQTTConfig {
	cfg := &MQTTConfig{
		BrokerURL:        os.Getenv(MqttBrokerURL),
		Topic:            os.Getenv(MqttTopic),
		KeepAlive:        60 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReconnectWaitMax: 120 * time.Second,
		ClientIDPrefix:   "telemetry-ingest-",
	}
	if skipVerify := os.Getenv(MqttSkipVerify); skipVerify == "true" {
		cfg.InsecureSkipVerify = true
	}
	if ka := os.Getenv(MqttKeepAliveSeconds); ka != "" {
		if d, err := time.ParseDuration(ka + "s"); err == nil {
			cfg.KeepAlive = d
		}
	}
	if ct := os.Getenv(MqttConnectTimeoutSeconds); ct != "" {
		if d, err := time.ParseDuration(ct + "s"); err == nil {
			cfg.ConnectTimeout = d
		}
	}
	return cfg
}
