// Package synerr defines the runtime-wide error taxonomy. Operations in
// internal/consent, internal/channel, internal/fusion, internal/heads,
// internal/upload, and internal/facade that fail for one of these
// reasons return the matching kind wrapped with context via
// fmt.Errorf("...: %w", err), classified by callers with
// errors.Is/errors.As rather than string matching. Other failures
// (lifecycle-state checks, storage, decoding) are returned as ordinary
// wrapped errors that carry no kind.
package synerr

import (
	"errors"
	"fmt"
)

// Code identifies an error kind independent of the wrapping message.
type Code string

const (
	CodeNotInitialized      Code = "not_initialized"
	CodeAlreadyInitialized  Code = "already_initialized"
	CodeConsentRequired     Code = "consent_required"
	CodeInvalidConfig       Code = "invalid_config"
	CodeAuthFailure         Code = "auth_failure"
	CodeProfileNotFound     Code = "profile_not_found"
	CodeNetworkTransient    Code = "network_transient"
	CodePayloadInvalid      Code = "payload_invalid"
	CodeDeviceStorageFailed Code = "device_storage_failure"
	CodeSensorUnavailable   Code = "sensor_unavailable"
	CodeFatal               Code = "fatal"
)

// Error is a typed runtime error. Use the New* constructors below rather
// than constructing directly; use Is/As or the IsXxx helpers to classify.
type Error struct {
	Code    Code
	Message string
	Channel string // populated for ConsentRequired / SensorUnavailable
	Err     error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Channel != "" {
		msg = fmt.Sprintf("%s (channel=%s)", msg, e.Channel)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, synerr.ErrConsentRequired) style sentinel
// comparisons to match on Code alone, ignoring Channel/Message/Err.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.Code == te.Code
}

// Sentinel values for errors.Is comparisons against a bare code.
var (
	ErrNotInitialized      = &Error{Code: CodeNotInitialized, Message: "not initialized"}
	ErrAlreadyInitialized  = &Error{Code: CodeAlreadyInitialized, Message: "already initialized"}
	ErrAuthFailure         = &Error{Code: CodeAuthFailure, Message: "authentication failure"}
	ErrProfileNotFound     = &Error{Code: CodeProfileNotFound, Message: "profile not found"}
	ErrNetworkTransient    = &Error{Code: CodeNetworkTransient, Message: "transient network error"}
	ErrPayloadInvalid      = &Error{Code: CodePayloadInvalid, Message: "invalid payload"}
	ErrDeviceStorageFailed = &Error{Code: CodeDeviceStorageFailed, Message: "device storage failure"}
	ErrFatal               = &Error{Code: CodeFatal, Message: "fatal invariant violation"}
)

// NewConsentRequired reports an operation attempted without the
// required consent grant for the given channel.
func NewConsentRequired(channel string) *Error {
	return &Error{Code: CodeConsentRequired, Message: "consent required", Channel: channel}
}

// NewInvalidConfig reports a missing or malformed configuration field.
func NewInvalidConfig(detail string) *Error {
	return &Error{Code: CodeInvalidConfig, Message: "invalid configuration: " + detail}
}

// NewSensorUnavailable reports that a channel's source adapter failed
// unrecoverably; the channel transitions to an error state.
func NewSensorUnavailable(channel string, cause error) *Error {
	return &Error{Code: CodeSensorUnavailable, Message: "sensor unavailable", Channel: channel, Err: cause}
}

// Wrap attaches cause to one of the package sentinels, preserving Code
// and Channel while replacing Err.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Channel: sentinel.Channel, Err: cause}
}

// IsConsentRequired reports whether err is a consent-gating failure, and
// if so for which channel.
func IsConsentRequired(err error) (channel string, ok bool) {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeConsentRequired {
		return e.Channel, true
	}
	return "", false
}

// IsSensorUnavailable reports whether err is an unrecoverable sensor
// failure, and if so for which channel.
func IsSensorUnavailable(err error) (channel string, ok bool) {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeSensorUnavailable {
		return e.Channel, true
	}
	return "", false
}

// IsAuthFailure reports whether err is an authentication failure (401
// from the consent or upload endpoint).
func IsAuthFailure(err error) bool { return hasCode(err, CodeAuthFailure) }

// IsNetworkTransient reports whether err should be retried locally with
// backoff rather than surfaced to the caller.
func IsNetworkTransient(err error) bool { return hasCode(err, CodeNetworkTransient) }

// IsPayloadInvalid reports whether err means the item should be dropped
// and logged rather than retried.
func IsPayloadInvalid(err error) bool { return hasCode(err, CodePayloadInvalid) }

// IsFatal reports whether err is an invariant violation that must stop
// fusion and halt data collection.
func IsFatal(err error) bool { return hasCode(err, CodeFatal) }

// IsRetryable reports whether the error is transient and the operation
// may succeed if retried (network errors and auth failures, which are
// retried once after a token refresh).
func IsRetryable(err error) bool {
	return IsNetworkTransient(err) || IsAuthFailure(err)
}

func hasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
