package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market Data Errors
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrUpstreamAPI        = errors.New("upstream market data API error")
	ErrUnsupportedSymbol  = errors.New("symbol not supported by provider")
	ErrUnknownProvider    = errors.New("unknown market data provider")
	ErrConnectionFailed   = errors.New("failed to connect to upstream")
	ErrRateLimited        = errors.New("API rate limit exceeded")

	// Storage Errors
	ErrCacheUnavailable = errors.New("cache backend unavailable")
	ErrDuplicateEntry   = errors.New("database record already exists")
	ErrQueryFailed      = errors.New("database query failed")
	ErrUpdateFailed     = errors.New("database update failed")
)

// UpstreamAPIError is the single error type every vendor client returns.
// errors.Is(err, ErrUpstreamAPI) holds for every instance.
type UpstreamAPIError struct {
	Vendor     string
	StatusCode int   // HTTP status, 0 when no response was received
	Code       int64 // vendor error code, 0 when absent
	Message    string
	Err        error // underlying cause, may be nil
}

func (e *UpstreamAPIError) Error() string {
	msg := fmt.Sprintf("%s API error", e.Vendor)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" %d", e.StatusCode)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *UpstreamAPIError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamAPI}
	}
	return []error{ErrUpstreamAPI, e.Err}
}
