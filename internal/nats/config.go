// Package nats manages the core NATS connection used to ingest timestamps.
package nats

import (
	"time"
)

// Config holds NATS connection configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string `env:"URL" envDefault:"nats://localhost:4222"`

	// Name is the client connection name for monitoring
	Name string `env:"CLIENT_NAME" envDefault:"timebuffer"`

	// MaxReconnects is the maximum number of reconnection attempts
	MaxReconnects int `env:"MAX_RECONNECTS" envDefault:"60"`

	// ReconnectWait is the time to wait between reconnection attempts
	ReconnectWait time.Duration `env:"RECONNECT_WAIT" envDefault:"2s"`

	// Timeout is the connection timeout
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}
