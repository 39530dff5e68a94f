package ingest

import "errors"

// Sentinel errors for the ingest package.
var (
	ErrInvalidConfig  = errors.New("invalid ingest configuration")
	ErrEmptyPayload   = errors.New("empty timestamp payload")
	ErrInvalidPayload = errors.New("payload is neither a protobuf Timestamp nor RFC 3339 text")
	ErrAlreadyStarted = errors.New("producer already started")
)
