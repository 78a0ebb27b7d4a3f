package livevoice

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Common error variables
var (
	// ErrClosed is returned when a transport is used after it has been closed.
	ErrClosed = errors.New("livevoice: connection is closed")

	// ErrInvalidConfig is returned when required configuration fields are missing.
	ErrInvalidConfig = errors.New("livevoice: invalid configuration")

	// ErrConnectionFailed is returned when the websocket cannot be established.
	ErrConnectionFailed = errors.New("livevoice: connection failed")

	// ErrSetupTimeout is returned when the service does not acknowledge the setup
	// frame within Config.SetupTimeout.
	ErrSetupTimeout = errors.New("livevoice: timed out waiting for setup acknowledgement")

	// ErrCancelled is returned from Connect when Disconnect is called before the
	// handshake settles.
	ErrCancelled = errors.New("livevoice: connect cancelled by client")

	// ErrServer matches any error frame reported by the remote service.
	ErrServer = errors.New("livevoice: server reported an error")

	// ErrInvalidEventData is returned when an inbound frame cannot be parsed.
	ErrInvalidEventData = errors.New("livevoice: invalid event data")
)

// ConfigError represents a configuration validation error.
// It provides detailed information about which configuration field is invalid.
type ConfigError struct {
	Field   string // The configuration field that is invalid
	Value   string // The invalid value (if safe to log)
	Message string // Detailed error message
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("livevoice: invalid config field %q (value: %q): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("livevoice: invalid config field %q: %s", e.Field, e.Message)
}

// Is implements error matching for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ConnectionError represents a failure to open the transport.
type ConnectionError struct {
	URL       string // The endpoint that failed, with credentials redacted
	Cause     error  // The underlying error
	Operation string // The operation that failed (e.g., "dial", "setup")
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("livevoice: %s failed for %q: %v", e.Operation, e.URL, e.Cause)
	}
	return fmt.Sprintf("livevoice: %s failed for %q", e.Operation, e.URL)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for ConnectionError.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// CloseError reports that the transport was closed, with the websocket close
// code and reason.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("livevoice: connection closed (code %d: %s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("livevoice: connection closed (code %d)", e.Code)
}

// Is implements error matching for CloseError.
func (e *CloseError) Is(target error) bool {
	return target == ErrClosed
}

// Normal reports whether the closure used the normal-closure code.
func (e *CloseError) Normal() bool { return e.Code == CloseNormal }

// ServerError is an error frame sent by the remote service.
type ServerError struct {
	Message string // Message or status text, never empty
	Status  string // Status string when the service sent one
	Code    int    // Numeric code when the service sent one
}

func (e *ServerError) Error() string {
	return "livevoice: server error: " + e.Message
}

// Is implements error matching for ServerError.
func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// EventError represents an error in processing a frame from the service.
type EventError struct {
	EventType string // The frame kind being parsed, if known
	RawData   []byte // The raw payload
	Cause     error  // The underlying parsing error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("livevoice: failed to process %s frame: %v", e.EventType, e.Cause)
}

// Unwrap returns the underlying error.
func (e *EventError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for EventError.
func (e *EventError) Is(target error) bool {
	return target == ErrInvalidEventData
}

// FailureKind groups connect failures into categories suitable for end users.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureTimeout
	FailureSecurity
	FailureTransport
	FailureConfiguration
	FailureCancelled
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureSecurity:
		return "security"
	case FailureTransport:
		return "transport"
	case FailureConfiguration:
		return "configuration"
	case FailureCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ConnectError is returned by Session.Connect when the handshake does not
// complete. Cause holds the single reason the attempt failed.
type ConnectError struct {
	Kind  FailureKind
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("livevoice: connect failed (%s): %v", e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// Friendly returns the user-facing message for this failure.
func (e *ConnectError) Friendly() string {
	return friendlyMessages[e.Kind]
}

var friendlyMessages = map[FailureKind]string{
	FailureUnknown:       "Something went wrong while starting the voice session. Please try again.",
	FailureTimeout:       "The voice service took too long to respond. Check your connection and try again.",
	FailureSecurity:      "A secure (HTTPS/WSS) connection is required to start a voice session.",
	FailureTransport:     "Could not reach the voice service. Check your network connection and try again.",
	FailureConfiguration: "The voice service rejected the session configuration. Check the model and voice settings.",
	FailureCancelled:     "The voice session was cancelled before it started.",
}

// Classify maps an error returned by this package onto a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	var (
		certErr      *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
	)
	switch {
	case errors.Is(err, ErrSetupTimeout):
		return FailureTimeout
	case errors.Is(err, ErrCancelled):
		return FailureCancelled
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrServer):
		return FailureConfiguration
	case errors.As(err, &certErr), errors.As(err, &authorityErr), errors.As(err, &hostErr):
		return FailureSecurity
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range securityHints {
		if strings.Contains(msg, hint) {
			return FailureSecurity
		}
	}

	switch {
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrClosed):
		return FailureTransport
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	}
	return FailureUnknown
}

// securityHints match certificate and TLS failures that arrive as plain text,
// for example from proxies or non-Go transports.
var securityHints = []string{"x509", "certificate", "tls:", "mixed content", "insecure"}

// FriendlyMessage returns a short message suitable for showing to end users
// instead of the raw error text.
func FriendlyMessage(err error) string {
	return friendlyMessages[Classify(err)]
}

func newConnectError(cause error) *ConnectError {
	return &ConnectError{Kind: Classify(cause), Cause: cause}
}

// RedactURL replaces the "key" query credential of an endpoint with REDACTED so
// the URL can be logged or embedded in an error.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
