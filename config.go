package livevoice

import (
	"net/http"
	"net/url"
	"time"
)

// Defaults applied by Connect when the corresponding Config field is zero.
const (
	DefaultSetupTimeout         = 10 * time.Second
	DefaultMaxReconnectAttempts = 3
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultWriteTimeout         = 15 * time.Second
)

// Config holds the connection parameters for one voice session. It is normally
// produced by the token collaborator (see package credentials) and is kept
// unchanged across reconnects.
type Config struct {
	// Endpoint is the websocket (or http/https) URL of the live service.
	// Required: Yes
	Endpoint string

	// AuthKey is appended to Endpoint as the "key" query credential.
	// Required: Yes
	AuthKey string

	// Model identifies the generative model, e.g. "models/gemini-2.0-flash-exp".
	// Required: Yes
	Model string

	// VoiceName selects the prebuilt voice used for audio responses.
	// Required: No (the service picks its default voice)
	VoiceName string

	// SystemPrompt is sent as the system instruction in the setup frame.
	// Required: No
	SystemPrompt string

	// SetupTimeout bounds how long Connect waits for the setup acknowledgement.
	// Default: 10 seconds
	SetupTimeout time.Duration

	// MaxReconnectAttempts caps automatic reconnects after an abnormal closure.
	// Zero selects the default of 3; a negative value disables reconnection.
	MaxReconnectAttempts int

	// ReconnectBaseDelay is multiplied by the attempt number to get the delay
	// before each reconnect.
	// Default: 1 second
	ReconnectBaseDelay time.Duration

	// WriteTimeout bounds a single outbound frame write.
	// Default: 15 seconds
	WriteTimeout time.Duration

	// HandshakeHeaders allows adding custom headers to the websocket handshake request.
	// Useful for proxy authentication, tracing headers, etc.
	// Required: No
	HandshakeHeaders http.Header
}

// ValidateConfig performs configuration validation. It is called by Connect
// before any connection attempt is made.
func ValidateConfig(cfg Config) error {
	if cfg.Endpoint == "" {
		return NewConfigError("Endpoint", "", "cannot be empty")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return NewConfigError("Endpoint", cfg.Endpoint, "invalid URL format")
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return NewConfigError("Endpoint", cfg.Endpoint, "scheme must be ws, wss, http or https")
	}

	if cfg.AuthKey == "" {
		return NewConfigError("AuthKey", "", "cannot be empty")
	}

	if cfg.Model == "" {
		return NewConfigError("Model", "", "cannot be empty")
	}

	if cfg.SetupTimeout < 0 {
		return NewConfigError("SetupTimeout", cfg.SetupTimeout.String(), "cannot be negative")
	}
	if cfg.ReconnectBaseDelay < 0 {
		return NewConfigError("ReconnectBaseDelay", cfg.ReconnectBaseDelay.String(), "cannot be negative")
	}
	if cfg.WriteTimeout < 0 {
		return NewConfigError("WriteTimeout", cfg.WriteTimeout.String(), "cannot be negative")
	}
	return nil
}

// NewConfigError creates a new configuration error.
func NewConfigError(field, value, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

func (c Config) withDefaults() Config {
	if c.SetupTimeout == 0 {
		c.SetupTimeout = DefaultSetupTimeout
	}
	switch {
	case c.MaxReconnectAttempts == 0:
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	case c.MaxReconnectAttempts < 0:
		c.MaxReconnectAttempts = 0
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}
