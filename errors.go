package olakai

import (
	"fmt"

	"github.com/olakai-ai/olakai-sdk-go/internal/transport"
)

// Error taxonomy. Each variant carries the minimum data needed to act on
// it, favoring a flat set of concrete types over an exception hierarchy.
// Callers should discriminate using errors.As.
//
// The transport-layer variants are defined in internal/transport and
// re-exported here so callers never need to import an internal package.
type (
	APIKeyMissingError    = transport.APIKeyMissingError
	URLConfigurationError = transport.URLConfigurationError
	TimeoutError          = transport.TimeoutError
	ResponseError         = transport.ResponseError
	NetworkError          = transport.NetworkError
	RetryExhaustedError   = transport.RetryExhaustedError
)

// BlockedError is the user-visible outcome of a policy denial. It carries
// the control service's sensitivity details.
type BlockedError struct {
	Message string
	Details ControlDetails
}

func (e *BlockedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Function execution blocked by Olakai"
}

// ControlServiceError wraps any failure encountered while gating a call
// (network failure, timeout, non-2xx). The supervisor treats its presence
// according to Config.FailOpenOnControlError.
type ControlServiceError struct {
	Cause error
}

func (e *ControlServiceError) Error() string {
	return fmt.Sprintf("olakai: control service error: %v", e.Cause)
}
func (e *ControlServiceError) Unwrap() error { return e.Cause }

// MiddlewareError wraps a panic/error raised by a registered Middleware
// hook. Non-fatal: logged and the call proceeds with the last good state.
type MiddlewareError struct {
	Name  string
	Stage string
	Cause error
}

func (e *MiddlewareError) Error() string {
	return fmt.Sprintf("olakai: middleware %q failed during %s: %v", e.Name, e.Stage, e.Cause)
}
func (e *MiddlewareError) Unwrap() error { return e.Cause }

// SanitizationError wraps a failure while applying sanitize patterns.
// Non-fatal: the offending value is replaced with "[SANITIZED]".
type SanitizationError struct {
	Cause error
}

func (e *SanitizationError) Error() string {
	return fmt.Sprintf("olakai: sanitization failed: %v", e.Cause)
}
func (e *SanitizationError) Unwrap() error { return e.Cause }

// QueueNotInitializedError indicates a queue operation was attempted before
// the owning Client finished construction. Programmer error.
type QueueNotInitializedError struct{}

func (e *QueueNotInitializedError) Error() string { return "olakai: queue manager not initialized" }

// InitializationError indicates invalid Config was supplied to NewClient.
// Programmer error.
type InitializationError struct {
	Reason string
}

func (e *InitializationError) Error() string { return "olakai: initialization failed: " + e.Reason }
