// Package exerr defines the typed error taxonomy shared by the REST gateway,
// the websocket readers and the trading client.
package exerr

import (
	"errors"
	"fmt"
)

// Kind classifies an exchange error for callers deciding between retry,
// reconnect and surface-as-is.
type Kind int

const (
	// KindAuthentication covers bad key material and signing failures.
	// Fatal at construction time.
	KindAuthentication Kind = iota
	// KindRestAPI covers transport failures, non-2xx responses and JSON
	// decode failures. Recoverable by caller retry.
	KindRestAPI
	// KindTrading covers business-rule violations such as unsupported
	// methods, empty responses or unparseable numeric fields.
	KindTrading
	// KindWebSocket covers connect/send/decode failures on a websocket.
	// Recoverable via the reconnect loop.
	KindWebSocket
	// KindInvalidData marks values outside the known exchange vocabulary.
	// Not retried, surfaced as-is.
	KindInvalidData
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRestAPI:
		return "rest_api"
	case KindTrading:
		return "trading"
	case KindWebSocket:
		return "websocket"
	case KindInvalidData:
		return "invalid_data"
	default:
		return "unknown"
	}
}

// Error is the concrete exchange error carried through the connector.
type Error struct {
	Kind    Kind
	Message string
	Status  int // HTTP status for rest_api errors, zero otherwise
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Authentication builds an authentication error.
func Authentication(format string, args ...interface{}) *Error {
	return New(KindAuthentication, format, args...)
}

// RestAPI builds a rest_api error carrying the HTTP status.
func RestAPI(status int, format string, args ...interface{}) *Error {
	e := New(KindRestAPI, format, args...)
	e.Status = status
	return e
}

// Trading builds a trading error.
func Trading(format string, args ...interface{}) *Error {
	return New(KindTrading, format, args...)
}

// WebSocket builds a websocket error.
func WebSocket(format string, args ...interface{}) *Error {
	return New(KindWebSocket, format, args...)
}

// InvalidData builds an invalid_data error.
func InvalidData(format string, args ...interface{}) *Error {
	return New(KindInvalidData, format, args...)
}

// KindOf extracts the Kind from err, or ok=false when err is not an exchange
// error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err is an exchange error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
