// Package errors defines the structured error types used across the dev
// server: bind failures, handshake rejections, frame decode failures, and
// configuration problems. Per-connection errors are contained to their
// connection; only the bind failure at startup escalates to the caller.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes errors by subsystem.
type ErrorType string

const (
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeProtocol ErrorType = "protocol"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// Stable error codes. Callers match on these via errors.Is against the
// constructors' sentinel behavior rather than string comparison.
const (
	CodePortInUse     = "port_in_use"
	CodeHandshake     = "handshake_failed"
	CodeFrameDecode   = "frame_decode_failed"
	CodeServerStopped = "server_stopped"
	CodeConfigInvalid = "config_invalid"
)

// DevServerError is a structured error with a type, stable code, optional
// cause, and free-form context.
type DevServerError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *DevServerError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause.
func (e *DevServerError) Unwrap() error {
	return e.Cause
}

// Is matches errors by type and code so sentinels built with the same
// constructor compare equal under errors.Is.
func (e *DevServerError) Is(target error) bool {
	var t *DevServerError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext attaches a key/value pair to the error.
func (e *DevServerError) WithContext(key string, value any) *DevServerError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value

	return e
}

// NewPortInUseError reports a bind failure at server start. This is the only
// error the server escalates to its caller; it usually means a stale dev
// server still owns the port.
func NewPortInUseError(addr string, cause error) *DevServerError {
	return &DevServerError{
		Type:    ErrorTypeNetwork,
		Code:    CodePortInUse,
		Message: fmt.Sprintf("cannot bind %s", addr),
		Cause:   cause,
	}
}

// NewHandshakeError reports a malformed or incomplete upgrade request. The
// connection is closed without upgrading; no other connection is affected.
func NewHandshakeError(cause error) *DevServerError {
	return &DevServerError{
		Type:    ErrorTypeProtocol,
		Code:    CodeHandshake,
		Message: "websocket handshake failed",
		Cause:   cause,
	}
}

// NewFrameDecodeError reports a malformed inbound frame. The frame is
// dropped; the connection stays open.
func NewFrameDecodeError(cause error) *DevServerError {
	return &DevServerError{
		Type:    ErrorTypeProtocol,
		Code:    CodeFrameDecode,
		Message: "frame decode failed",
		Cause:   cause,
	}
}

// NewServerStoppedError reports a Start call on a server that has already
// been stopped; stopped servers are terminal and must be reconstructed.
func NewServerStoppedError() *DevServerError {
	return &DevServerError{
		Type:    ErrorTypeInternal,
		Code:    CodeServerStopped,
		Message: "server has been stopped and cannot be restarted",
	}
}

// NewConfigError reports an invalid configuration value.
func NewConfigError(field, message string) *DevServerError {
	return &DevServerError{
		Type:    ErrorTypeConfig,
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("%s: %s", field, message),
	}
}

// IsPortInUse reports whether err is a bind failure.
func IsPortInUse(err error) bool {
	var e *DevServerError
	return errors.As(err, &e) && e.Code == CodePortInUse
}

// IsHandshakeFailure reports whether err is a handshake rejection.
func IsHandshakeFailure(err error) bool {
	var e *DevServerError
	return errors.As(err, &e) && e.Code == CodeHandshake
}
