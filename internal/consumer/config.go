// Package consumer drains the timestamp buffer into the store.
package consumer

import (
	"fmt"
	"time"
)

// Config holds consumer loop configuration.
type Config struct {
	// EmptyQueueSleep is how long to wait when the buffer is empty
	EmptyQueueSleep time.Duration `env:"EMPTY_QUEUE_SLEEP" envDefault:"100ms"`

	// DBUnavailableSleep is how long to wait while the store is unavailable
	DBUnavailableSleep time.Duration `env:"DB_UNAVAILABLE_SLEEP" envDefault:"1s"`

	// BatchThreshold is the buffer depth at which batched writes start
	BatchThreshold int `env:"BATCH_THRESHOLD" envDefault:"50"`

	// MaxBatchSize is the maximum number of timestamps per batched write
	MaxBatchSize int `env:"MAX_BATCH_SIZE" envDefault:"500"`

	// ShutdownTimeout is the grace period for the current iteration on stop
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Validate checks the consumer configuration against the buffer capacity.
func (c Config) Validate(maxBufferSize int) error {
	switch {
	case c.EmptyQueueSleep <= 0:
		return fmt.Errorf("%w: empty queue sleep must be positive", ErrInvalidConfig)
	case c.DBUnavailableSleep <= 0:
		return fmt.Errorf("%w: db unavailable sleep must be positive", ErrInvalidConfig)
	case c.BatchThreshold <= 0:
		return fmt.Errorf("%w: batch threshold must be positive", ErrInvalidConfig)
	case c.MaxBatchSize <= 0:
		return fmt.Errorf("%w: max batch size must be positive", ErrInvalidConfig)
	case c.BatchThreshold > maxBufferSize:
		return fmt.Errorf("%w: batch threshold %d exceeds max buffer size %d",
			ErrInvalidConfig, c.BatchThreshold, maxBufferSize)
	case c.MaxBatchSize > maxBufferSize:
		return fmt.Errorf("%w: max batch size %d exceeds max buffer size %d",
			ErrInvalidConfig, c.MaxBatchSize, maxBufferSize)
	}
	return nil
}
