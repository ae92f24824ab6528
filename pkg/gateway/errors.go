package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayNotFound indicates an unknown provider name was requested.
	ErrGatewayNotFound = errors.New("gateway not found")

	// ErrSignatureInvalid indicates a webhook failed signature verification.
	// Adapters that require signatures fail closed with this error.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrUnhandledEventType indicates a webhook event kind the adapter does
	// not model. Callers must treat this as non-fatal: log it and return 200
	// so the provider stops retrying.
	ErrUnhandledEventType = errors.New("unhandled webhook event type")

	// ErrTransactionNotFound indicates no settled transaction exists behind a
	// payment link, distinguishing it from a provider-rejected refund.
	ErrTransactionNotFound = errors.New("no transaction found for payment")
)

// UpstreamError wraps a failure reported by an external payment provider.
type UpstreamError struct {
	Gateway    string // Provider name
	Op         string // Operation being performed
	StatusCode int    // HTTP status from the provider, if any
	Message    string // Provider-supplied message
	Err        error  // Underlying error
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s failed: %s (status %d)", e.Gateway, e.Op, e.Message, e.StatusCode)
	}

	return fmt.Sprintf("%s %s failed: %v", e.Gateway, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates a provider error with context.
func NewUpstreamError(gateway, op string, statusCode int, message string) *UpstreamError {
	return &UpstreamError{Gateway: gateway, Op: op, StatusCode: statusCode, Message: message}
}

// WrapUpstream wraps a transport-level failure as an upstream error.
func WrapUpstream(gateway, op string, err error) *UpstreamError {
	return &UpstreamError{Gateway: gateway, Op: op, Err: err}
}

// IsUpstreamError checks whether err originated from an external provider.
func IsUpstreamError(err error) bool {
	var upstream *UpstreamError

	return errors.As(err, &upstream)
}

// IsGatewayNotFound checks whether err names an unregistered provider.
func IsGatewayNotFound(err error) bool {
	return errors.Is(err, ErrGatewayNotFound)
}

// IsTransactionNotFound checks whether err means no settled transaction
// backs the payment link.
func IsTransactionNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}

// IsSignatureInvalid checks whether err is a webhook signature failure.
func IsSignatureInvalid(err error) bool {
	return errors.Is(err, ErrSignatureInvalid)
}

// IsUnhandledEventType checks whether err is an unmodeled webhook event.
func IsUnhandledEventType(err error) bool {
	return errors.Is(err, ErrUnhandledEventType)
}
