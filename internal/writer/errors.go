package writer

import "errors"

// Sentinel errors for the writer package.
var (
	// ErrWriteFailed wraps a non-connection store failure. The entries of
	// the failed call were not requeued.
	ErrWriteFailed = errors.New("store write failed")
)
