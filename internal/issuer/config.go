// Package issuer hands the live-session connection parameters, including the
// upstream service key, to authenticated callers. Callers prove who they are
// with an OIDC ID token or a JWT access token; anonymous access must be
// enabled explicitly and browser access is limited to listed origins.
package issuer

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the issuer configuration. It is read from a TOML file and then
// overridden from the environment.
type Config struct {
	Addr     string   `toml:"addr"`
	Upstream Upstream `toml:"upstream"`
	OIDC     OIDC     `toml:"oidc"`
	CORS     CORS     `toml:"cors"`

	// AllowAnonymous serves /token without caller authentication. Every
	// caller then receives the upstream key, so it is only meant for local
	// development or networks that are already access controlled.
	AllowAnonymous bool `toml:"allow_anonymous"`
}

// Upstream describes the live service handed out to callers.
type Upstream struct {
	Endpoint     string `toml:"endpoint"`
	AuthKey      string `toml:"auth_key"`
	Model        string `toml:"model"`
	Voice        string `toml:"voice"`
	SystemPrompt string `toml:"system_prompt"`
}

// OIDC enables caller authentication when Issuer is set.
type OIDC struct {
	Issuer   string `toml:"issuer"`
	Audience string `toml:"audience"`
	// TokenType is "id" for ID tokens or "access" for JWT access tokens.
	TokenType string `toml:"token_type"`
}

// CORS lists the origins allowed to call the issuer from a browser. An empty
// list allows none; "*" allows every origin.
type CORS struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Enabled reports whether callers must present a bearer token.
func (o OIDC) Enabled() bool { return o.Issuer != "" }

// LoadConfig reads path (when non-empty), applies environment overrides and
// validates the result.
func LoadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := Config{Addr: ":8080", OIDC: OIDC{TokenType: "access"}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config read failed (%s): %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Addr, "ADDR")
	set(&c.Upstream.Endpoint, "LIVEVOICE_ENDPOINT")
	set(&c.Upstream.AuthKey, "LIVEVOICE_AUTH_KEY")
	set(&c.Upstream.Model, "LIVEVOICE_MODEL")
	set(&c.Upstream.Voice, "LIVEVOICE_VOICE")
	set(&c.Upstream.SystemPrompt, "LIVEVOICE_SYSTEM_PROMPT")
	set(&c.OIDC.Issuer, "OIDC_ISSUER")
	set(&c.OIDC.Audience, "OIDC_AUDIENCE")
	set(&c.OIDC.TokenType, "OIDC_TOKEN_TYPE")
	if v := getenv("ALLOW_ANONYMOUS"); v != "" {
		c.AllowAnonymous, _ = strconv.ParseBool(v)
	}
	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = splitCSV(v)
	}
}

// Validate checks that the upstream is usable and the OIDC settings are complete.
func (c Config) Validate() error {
	var errs []error
	if c.Upstream.Endpoint == "" {
		errs = append(errs, errors.New("upstream.endpoint is required"))
	}
	if c.Upstream.AuthKey == "" {
		errs = append(errs, errors.New("upstream.auth_key is required"))
	}
	if c.Upstream.Model == "" {
		errs = append(errs, errors.New("upstream.model is required"))
	}
	if !c.OIDC.Enabled() && !c.AllowAnonymous {
		errs = append(errs, errors.New("oidc.issuer is required unless allow_anonymous is set"))
	}
	if c.OIDC.Enabled() {
		if c.OIDC.Audience == "" {
			errs = append(errs, errors.New("oidc.audience is required when oidc.issuer is set"))
		}
		if c.OIDC.TokenType != "id" && c.OIDC.TokenType != "access" {
			errs = append(errs, fmt.Errorf("oidc.token_type must be \"id\" or \"access\", got %q", c.OIDC.TokenType))
		}
	}
	return errors.Join(errs...)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
