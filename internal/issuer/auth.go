package issuer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	oidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks a caller's bearer token.
type Verifier interface {
	Verify(ctx context.Context, raw string) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, raw string) error

func (f VerifierFunc) Verify(ctx context.Context, raw string) error { return f(ctx, raw) }

// NewVerifier discovers the OIDC provider and returns a verifier for the
// configured token type. It returns nil when OIDC is disabled.
func NewVerifier(ctx context.Context, cfg OIDC) (Verifier, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	prov, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	if cfg.TokenType == "id" {
		return idTokenVerifier{prov.Verifier(&oidc.Config{ClientID: cfg.Audience})}, nil
	}

	var disc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := prov.Claims(&disc); err != nil {
		return nil, fmt.Errorf("discover jwks_uri: %w", err)
	}
	if disc.JWKSURI == "" {
		return nil, errors.New("discover jwks_uri: provider metadata has no jwks_uri")
	}
	jwks, err := keyfunc.Get(disc.JWKSURI, keyfunc.Options{
		RefreshInterval: time.Hour,
		RefreshTimeout:  10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return NewAccessTokenVerifier(jwks, cfg.Issuer, cfg.Audience), nil
}

type idTokenVerifier struct {
	v *oidc.IDTokenVerifier
}

func (v idTokenVerifier) Verify(ctx context.Context, raw string) error {
	_, err := v.v.Verify(ctx, raw)
	return err
}

// AccessTokenVerifier validates JWT access tokens against a key set.
type AccessTokenVerifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
}

// NewAccessTokenVerifier returns a verifier requiring the given issuer and audience.
func NewAccessTokenVerifier(jwks *keyfunc.JWKS, issuer, audience string) *AccessTokenVerifier {
	return &AccessTokenVerifier{jwks: jwks, issuer: issuer, audience: audience}
}

func (v *AccessTokenVerifier) Verify(_ context.Context, raw string) error {
	tok, err := jwt.Parse(raw, v.jwks.Keyfunc, jwt.WithAudience(v.audience), jwt.WithIssuer(v.issuer))
	if err != nil {
		return err
	}
	if !tok.Valid {
		return errors.New("token is not valid")
	}
	return nil
}
