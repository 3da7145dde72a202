package fluxid

import (
	"errors"
	"fmt"
	"time"
)

// ErrSequenceOverflow is returned by callers that choose not to tolerate a
// Pending result and want a terminal error instead (most callers should
// prefer the Pending contract; see poll.go).
var ErrSequenceOverflow = errors.New("fluxid: sequence overflow")

// ClockError reports that the time source regressed further than a
// generator was configured to tolerate. It is the one case where a Pending
// result is escalated to a hard failure, see
// (*LockSnowflakeGenerator).TryPollID.
type ClockError struct {
	CurrentMillis   int64
	LastMillis      int64
	ToleranceMillis int64
	MachineID       uint64
}

func (e *ClockError) Error() string {
	return fmt.Sprintf(
		"fluxid: clock moved backward by %dms (tolerance %dms) on machine %d",
		e.LastMillis-e.CurrentMillis, e.ToleranceMillis, e.MachineID,
	)
}

func (e *ClockError) Unwrap() error { return ErrClockMovedBack }

// ErrClockMovedBack is the sentinel wrapped by every ClockError, for callers
// that only want to test the error class via errors.Is.
var ErrClockMovedBack = errors.New("fluxid: clock moved backward")

// Drift returns the magnitude of the observed regression.
func (e *ClockError) Drift() time.Duration {
	return time.Duration(e.LastMillis-e.CurrentMillis) * time.Millisecond
}

// ConfigError reports an invalid generator or layout configuration
// supplied by the caller.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("fluxid: invalid config field %q=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// ErrInvalidConfig is the sentinel wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("fluxid: invalid config")

// DecodeError reports that a Base32-encoded string could not be decoded
// back into a raw integer.
type DecodeError struct {
	Kind  DecodeErrorKind
	Byte  byte
	Index int
}

// DecodeErrorKind enumerates the ways Base32 decoding can fail.
type DecodeErrorKind int

const (
	// DecodeInvalidLength means the encoded string's length did not match
	// the layout's expected ceil(Width/5) character count.
	DecodeInvalidLength DecodeErrorKind = iota
	// DecodeInvalidAscii means a byte in the encoded string is not a valid
	// (possibly aliased) Crockford Base32 character.
	DecodeInvalidAscii
	// DecodeOverflow means the top character carries bits beyond the
	// value's bit width, or the decoded integer has non-zero reserved bits.
	DecodeOverflow
)

func (e *DecodeError) Error() string {
	switch e.Kind {
	case DecodeInvalidLength:
		return "fluxid: base32 decode: invalid length"
	case DecodeInvalidAscii:
		return fmt.Sprintf("fluxid: base32 decode: invalid ascii byte 0x%02X at index %d", e.Byte, e.Index)
	case DecodeOverflow:
		return "fluxid: base32 decode: decoded value sets reserved bits"
	default:
		return "fluxid: base32 decode: unknown error"
	}
}

// RequestErrorKind is the client/service-facing error taxonomy exposed at
// the streaming RPC seam (see internal/rpc and internal/service).
type RequestErrorKind int

const (
	// KindInvalidRequest: client-caused; the reason is surfaced verbatim.
	KindInvalidRequest RequestErrorKind = iota
	// KindRequestCancelled: client disconnect or explicit cancellation.
	KindRequestCancelled
	// KindServiceShutdown: the process is refusing new work.
	KindServiceShutdown
	// KindChannelError: an internal channel closed unexpectedly.
	KindChannelError
	// KindGenerationFailed: the lock-based generator could not produce an
	// ID (a ClockError it could not recover from).
	KindGenerationFailed
)

// RequestError is the error type returned by the streaming service's public
// seam (internal/worker, internal/service, internal/rpc). Each Kind maps
// onto exactly one transport status code.
type RequestError struct {
	Kind    RequestErrorKind
	Reason  string
	Context string
	Inner   error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindInvalidRequest:
		return fmt.Sprintf("fluxid: invalid request: %s", e.Reason)
	case KindRequestCancelled:
		return "fluxid: request cancelled"
	case KindServiceShutdown:
		return "fluxid: service shutting down"
	case KindChannelError:
		return fmt.Sprintf("fluxid: channel error: %s", e.Context)
	case KindGenerationFailed:
		return fmt.Sprintf("fluxid: generation failed: %v", e.Inner)
	default:
		return "fluxid: request error"
	}
}

func (e *RequestError) Unwrap() error { return e.Inner }

// NewInvalidRequestError builds a KindInvalidRequest RequestError.
func NewInvalidRequestError(reason string) *RequestError {
	return &RequestError{Kind: KindInvalidRequest, Reason: reason}
}

// NewServiceShutdownError builds a KindServiceShutdown RequestError.
func NewServiceShutdownError() *RequestError {
	return &RequestError{Kind: KindServiceShutdown}
}

// NewChannelError builds a KindChannelError RequestError.
func NewChannelError(context string) *RequestError {
	return &RequestError{Kind: KindChannelError, Context: context}
}

// NewGenerationFailedError wraps a generator failure as a KindGenerationFailed
// RequestError.
func NewGenerationFailedError(inner error) *RequestError {
	return &RequestError{Kind: KindGenerationFailed, Inner: inner}
}

// NewRequestCancelledError builds a KindRequestCancelled RequestError.
func NewRequestCancelledError() *RequestError {
	return &RequestError{Kind: KindRequestCancelled}
}

// IsClockError reports whether err is (or wraps) a *ClockError.
func IsClockError(err error) bool {
	var ce *ClockError
	return errors.As(err, &ce)
}

// IsConfigError reports whether err is (or wraps) a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// AsRequestError extracts a *RequestError from err, if present.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
