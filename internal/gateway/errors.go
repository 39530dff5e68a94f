package gateway

import "errors"

// Sentinel errors for the gateway package.
var (
	ErrTooManyTimestamps = errors.New("too many timestamps in one request")
	ErrInvalidTimestamp  = errors.New("timestamp must be RFC 3339")
	ErrMissingDependency = errors.New("gateway dependency is required")
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest       = "bad_request"
	codeRateLimited      = "rate_limited"
	codeStoreUnavailable = "store_unavailable"
	codeInternal         = "internal_error"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
