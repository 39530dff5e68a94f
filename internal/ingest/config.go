// Package ingest contains the producers that feed timestamps into the buffer.
package ingest

import (
	"fmt"
	"time"
)

// Config holds producer configuration.
type Config struct {
	// TickerEnabled turns on the wall-clock producer
	TickerEnabled bool `env:"TICKER_ENABLED" envDefault:"true"`

	// TickerInterval is how often the ticker records the current time
	TickerInterval time.Duration `env:"TICKER_INTERVAL" envDefault:"1s"`

	// NATSEnabled turns on the NATS subscriber
	NATSEnabled bool `env:"NATS_ENABLED" envDefault:"false"`

	// Subject is the NATS subject carrying timestamps
	Subject string `env:"NATS_SUBJECT" envDefault:"timestamps.record"`

	// QueueGroup load-balances messages across replicas; empty disables it
	QueueGroup string `env:"NATS_QUEUE_GROUP" envDefault:"timebuffer"`

	// MQTT subscriber configuration
	MQTT MQTTConfig `envPrefix:"MQTT_"`
}

// MQTTConfig holds MQTT subscriber configuration.
type MQTTConfig struct {
	// Enabled turns on the MQTT subscriber
	Enabled bool `env:"ENABLED" envDefault:"false"`

	// Broker is the broker URL (tcp:// or ssl://)
	Broker string `env:"BROKER" envDefault:"tcp://localhost:1883"`

	// ClientID identifies this client to the broker
	ClientID string `env:"CLIENT_ID" envDefault:"timebuffer"`

	// Topic carries timestamps; wildcards are allowed
	Topic string `env:"TOPIC" envDefault:"timestamps/record"`

	// QoS is the maximum delivery guarantee requested (0, 1 or 2)
	QoS int `env:"QOS" envDefault:"1"`

	// Username and Password authenticate to the broker when set
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`

	// ConnectTimeout bounds the initial connection
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

// Validate checks the producer configuration.
func (c Config) Validate() error {
	if c.TickerEnabled && c.TickerInterval <= 0 {
		return fmt.Errorf("%w: ticker interval must be positive", ErrInvalidConfig)
	}
	if c.NATSEnabled && c.Subject == "" {
		return fmt.Errorf("%w: NATS subject is required", ErrInvalidConfig)
	}
	if c.MQTT.Enabled {
		switch {
		case c.MQTT.Broker == "":
			return fmt.Errorf("%w: MQTT broker is required", ErrInvalidConfig)
		case c.MQTT.Topic == "":
			return fmt.Errorf("%w: MQTT topic is required", ErrInvalidConfig)
		case c.MQTT.QoS < 0 || c.MQTT.QoS > 2:
			return fmt.Errorf("%w: MQTT QoS must be 0, 1 or 2", ErrInvalidConfig)
		}
	}
	return nil
}
