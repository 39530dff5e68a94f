package consumer

import "errors"

// Sentinel errors for the consumer package.
var (
	ErrInvalidConfig   = errors.New("invalid consumer configuration")
	ErrAlreadyStarted  = errors.New("consumer already started")
	ErrShutdownTimeout = errors.New("consumer did not stop within the shutdown timeout")
	ErrIterationPanic  = errors.New("consumer iteration panicked")
)
