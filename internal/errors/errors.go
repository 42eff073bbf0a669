package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a request outcome that maps onto a response status.
type HTTPError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	underlying error
}

func (e *HTTPError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.underlying
}

// WriteText writes the error as a plain-text response. Details are only
// written when present; callers decide whether details may leave the process.
func (e *HTTPError) WriteText(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.Code)
	if e.Details != "" {
		fmt.Fprint(w, e.Details)
	}
}

// Request outcomes. Route lookup failures answer 403 and both the method
// and the caller address gates answer 405.
var (
	ErrRouteNotFound = &HTTPError{
		Code:    http.StatusForbidden,
		Message: "route not configured",
	}

	ErrMethodNotAllowed = &HTTPError{
		Code:    http.StatusMethodNotAllowed,
		Message: "method not allowed",
	}

	ErrAddressNotAllowed = &HTTPError{
		Code:    http.StatusMethodNotAllowed,
		Message: "caller address not allowed",
	}

	ErrBadGateway = &HTTPError{
		Code:    http.StatusBadGateway,
		Message: "Bad Gateway",
	}

	ErrServiceUnavailable = &HTTPError{
		Code:    http.StatusServiceUnavailable,
		Message: "Service Unavailable",
	}

	ErrGatewayTimeout = &HTTPError{
		Code:    http.StatusGatewayTimeout,
		Message: "Gateway Timeout",
	}

	ErrTooManyRequests = &HTTPError{
		Code:    http.StatusTooManyRequests,
		Message: "Too Many Requests",
	}

	ErrInternalServer = &HTTPError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}
)

// New creates a new HTTPError
func New(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a status and message
func Wrap(err error, code int, message string) *HTTPError {
	return &HTTPError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// WithDetails adds details to the error
func (e *HTTPError) WithDetails(details string) *HTTPError {
	return &HTTPError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		RequestID:  e.RequestID,
		underlying: e.underlying,
	}
}

// WithRequestID adds a request ID to the error
func (e *HTTPError) WithRequestID(requestID string) *HTTPError {
	return &HTTPError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    e.Details,
		RequestID:  requestID,
		underlying: e.underlying,
	}
}

// AsHTTPError reports whether err is, or wraps, an HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// ConfigError reports malformed or incomplete configuration. It is fatal at
// startup; on reload the previously active routing table stays in effect.
type ConfigError struct {
	Source string // file name or route path, empty when unknown
	Reason string
	Err    error
}

// NewConfigError creates a ConfigError for source.
func NewConfigError(source, format string, args ...any) *ConfigError {
	return &ConfigError{
		Source: source,
		Reason: fmt.Sprintf(format, args...),
	}
}

// WrapConfigError wraps err as a ConfigError for source.
func WrapConfigError(err error, source, reason string) *ConfigError {
	return &ConfigError{
		Source: source,
		Reason: reason,
		Err:    err,
	}
}

func (e *ConfigError) Error() string {
	msg := "config"
	if e.Source != "" {
		msg += " " + e.Source
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// AsConfigError reports whether err is, or wraps, a ConfigError.
func AsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// TransportError is a failed outbound exchange: no HTTP status came back.
// Status is the failing status the forward contributes to the aggregate.
type TransportError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("forward to %s failed (%d): %v", e.URL, e.Status, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsTransportError reports whether err is, or wraps, a TransportError.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
