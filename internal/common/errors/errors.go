// Package errors provides the error types shared across the bridge.
package errors

import (
	"errors"
	"fmt"
)

// Error codes as constants. The code decides how the owning component reacts:
// config errors stop the component, transient errors are retried on the next
// tick or reconnect, protocol errors discard the offending message, and
// persistence errors degrade to in-memory operation.
const (
	ErrCodeConfig      = "CONFIG_ERROR"
	ErrCodeTransient   = "TRANSIENT_ERROR"
	ErrCodeProtocol    = "PROTOCOL_ERROR"
	ErrCodePersistence = "PERSISTENCE_ERROR"
	ErrCodeSpawnFailed = "SPAWN_FAILED"
)

// BridgeError represents a bridge-specific error with a recovery class.
type BridgeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// Config creates a configuration error. The affected component must not start.
func Config(message string) *BridgeError {
	return &BridgeError{
		Code:    ErrCodeConfig,
		Message: message,
	}
}

// Transient creates an error for a failure that is expected to clear on its
// own, wrapping the underlying cause.
func Transient(message string, err error) *BridgeError {
	return &BridgeError{
		Code:    ErrCodeTransient,
		Message: message,
		Err:     err,
	}
}

// Protocol creates an error for a malformed message or response body.
func Protocol(message string, err error) *BridgeError {
	return &BridgeError{
		Code:    ErrCodeProtocol,
		Message: message,
		Err:     err,
	}
}

// Persistence creates an error for a failed state write.
func Persistence(message string, err error) *BridgeError {
	return &BridgeError{
		Code:    ErrCodePersistence,
		Message: message,
		Err:     err,
	}
}

// SpawnFailed creates an error for a session spawn the host rejected.
func SpawnFailed(taskID string, message string) *BridgeError {
	return &BridgeError{
		Code:    ErrCodeSpawnFailed,
		Message: fmt.Sprintf("spawn for task '%s' failed: %s", taskID, message),
	}
}

// Wrap wraps an existing error with additional context, preserving the code
// when the error is already a BridgeError.
func Wrap(err error, message string) *BridgeError {
	if err == nil {
		return nil
	}

	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		return &BridgeError{
			Code:    bridgeErr.Code,
			Message: fmt.Sprintf("%s: %s", message, bridgeErr.Message),
			Err:     err,
		}
	}

	return &BridgeError{
		Code:    ErrCodeTransient,
		Message: message,
		Err:     err,
	}
}

// IsConfig checks if the error is a configuration error.
func IsConfig(err error) bool {
	return codeOf(err) == ErrCodeConfig
}

// IsTransient checks if the error is a transient error.
func IsTransient(err error) bool {
	return codeOf(err) == ErrCodeTransient
}

// IsPersistence checks if the error is a persistence error.
func IsPersistence(err error) bool {
	return codeOf(err) == ErrCodePersistence
}

func codeOf(err error) string {
	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Code
	}
	return ""
}
