package livevoice

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name          string
		field         string
		value         string
		message       string
		expectedError string
	}{
		{
			name:          "with value",
			field:         "Endpoint",
			value:         "invalid-url",
			message:       "invalid URL format",
			expectedError: `livevoice: invalid config field "Endpoint" (value: "invalid-url"): invalid URL format`,
		},
		{
			name:          "without value",
			field:         "Model",
			value:         "",
			message:       "cannot be empty",
			expectedError: `livevoice: invalid config field "Model": cannot be empty`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigError(tt.field, tt.value, tt.message)

			if err.Error() != tt.expectedError {
				t.Errorf("expected error %q, got %q", tt.expectedError, err.Error())
			}

			// Test error matching
			if !errors.Is(err, ErrInvalidConfig) {
				t.Error("ConfigError should match ErrInvalidConfig")
			}
		})
	}
}

func TestConnectionError(t *testing.T) {
	underlying := errors.New("network unreachable")
	err := &ConnectionError{URL: "wss://live.example.com/ws?key=REDACTED", Operation: "dial", Cause: underlying}

	expected := `livevoice: dial failed for "wss://live.example.com/ws?key=REDACTED": network unreachable`
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Error("ConnectionError should match ErrConnectionFailed")
	}
	if !errors.Is(err, underlying) {
		t.Error("ConnectionError should unwrap to its cause")
	}
}

func TestCloseError(t *testing.T) {
	err := &CloseError{Code: 1006, Reason: "abnormal"}
	if err.Error() != "livevoice: connection closed (code 1006: abnormal)" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrClosed) {
		t.Error("CloseError should match ErrClosed")
	}
	if err.Normal() {
		t.Error("1006 is not a normal closure")
	}
	if !(&CloseError{Code: 1000}).Normal() {
		t.Error("1000 is a normal closure")
	}
}

func TestServerError(t *testing.T) {
	err := &ServerError{Message: "invalid argument"}
	if err.Error() != "livevoice: server error: invalid argument" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrServer) {
		t.Error("ServerError should match ErrServer")
	}
}

func TestEventError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &EventError{EventType: "inbound", RawData: []byte("{"), Cause: cause}
	if !errors.Is(err, ErrInvalidEventData) {
		t.Error("EventError should match ErrInvalidEventData")
	}
	if !errors.Is(err, cause) {
		t.Error("EventError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "inbound") {
		t.Errorf("expected event type in message, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, FailureUnknown},
		{"setup timeout", ErrSetupTimeout, FailureTimeout},
		{"context deadline", context.DeadlineExceeded, FailureTimeout},
		{"cancelled", ErrCancelled, FailureCancelled},
		{"context canceled", context.Canceled, FailureCancelled},
		{"config", NewConfigError("Model", "", "cannot be empty"), FailureConfiguration},
		{"server", &ServerError{Message: "model not found"}, FailureConfiguration},
		{"dial", &ConnectionError{Operation: "dial", Cause: errors.New("connection refused")}, FailureTransport},
		{"closed", &CloseError{Code: 1006}, FailureTransport},
		{"unknown authority", &ConnectionError{Operation: "dial", Cause: x509.UnknownAuthorityError{}}, FailureSecurity},
		{"tls text", errors.New("remote error: tls: handshake failure"), FailureSecurity},
		{"certificate text", errors.New("proxy: bad certificate"), FailureSecurity},
		{"plain", errors.New("boom"), FailureUnknown},
		{"wrapped", fmt.Errorf("outer: %w", ErrSetupTimeout), FailureTimeout},
		{"connect error", &ConnectError{Kind: FailureSecurity, Cause: errors.New("x")}, FailureSecurity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify_TransportURLNotSecurity(t *testing.T) {
	// Dial errors mention the https form of the endpoint; that alone is not a
	// certificate problem.
	err := &ConnectionError{
		URL:       "wss://live.example.com/ws",
		Operation: "dial",
		Cause:     errors.New(`failed to WebSocket dial: Get "https://live.example.com/ws": dial tcp: connection refused`),
	}
	if got := Classify(err); got != FailureTransport {
		t.Errorf("expected transport failure, got %s", got)
	}
}

func TestConnectError(t *testing.T) {
	err := newConnectError(ErrSetupTimeout)
	if err.Kind != FailureTimeout {
		t.Errorf("expected timeout kind, got %s", err.Kind)
	}
	if !errors.Is(err, ErrSetupTimeout) {
		t.Error("ConnectError should unwrap to its cause")
	}
	if err.Error() != "livevoice: connect failed (timeout): livevoice: timed out waiting for setup acknowledgement" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if err.Friendly() != FriendlyMessage(err) {
		t.Error("Friendly and FriendlyMessage should agree")
	}
}

func TestFriendlyMessage(t *testing.T) {
	seen := map[string]bool{}
	for _, err := range []error{
		ErrSetupTimeout,
		errors.New("x509: certificate signed by unknown authority"),
		&ConnectionError{Operation: "dial", Cause: errors.New("refused")},
		&ServerError{Message: "bad model"},
		errors.New("boom"),
	} {
		msg := FriendlyMessage(err)
		if msg == "" {
			t.Errorf("empty friendly message for %v", err)
		}
		if strings.Contains(msg, err.Error()) {
			t.Errorf("friendly message leaks raw error text: %q", msg)
		}
		seen[msg] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 distinct messages, got %d", len(seen))
	}
}

func TestRedactURL(t *testing.T) {
	got := RedactURL("wss://live.example.com/ws?key=secret&alt=json")
	if strings.Contains(got, "secret") {
		t.Errorf("key not redacted: %q", got)
	}
	if !strings.Contains(got, "key=REDACTED") || !strings.Contains(got, "alt=json") {
		t.Errorf("unexpected redacted URL %q", got)
	}
	if got := RedactURL("wss://live.example.com/ws"); got != "wss://live.example.com/ws" {
		t.Errorf("URL without key should be unchanged, got %q", got)
	}
}
