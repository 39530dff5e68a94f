package queue

import "errors"

// Sentinel errors for the queue package.
var (
	ErrInvalidCapacity = errors.New("max buffer size must be positive")
)
