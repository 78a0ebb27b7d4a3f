// Package credentials fetches live-session connection parameters from a token
// endpoint, so the service key is provisioned at runtime instead of being
// compiled into or configured on the client.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/enesunal-m/livevoice"
)

// Params is the token endpoint response.
type Params struct {
	Endpoint     string `json:"endpoint"`
	AuthKey      string `json:"authKey"`
	Model        string `json:"model"`
	VoiceName    string `json:"voiceName,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// Config converts p into a session Config with default timings.
func (p Params) Config() livevoice.Config {
	return livevoice.Config{
		Endpoint:     p.Endpoint,
		AuthKey:      p.AuthKey,
		Model:        p.Model,
		VoiceName:    p.VoiceName,
		SystemPrompt: p.SystemPrompt,
	}
}

// Options configures a fetch.
type Options struct {
	// HTTPClient defaults to a client with a 15 second timeout.
	HTTPClient *http.Client
	// Bearer is sent as "Authorization: Bearer <token>" when set.
	Bearer string
	// Header is added to the request.
	Header http.Header
}

// maxBody bounds how much of an error response is kept.
const maxBody = 4 << 10

// Fetch GETs tokenURL and decodes the connection parameters.
//
// A 4xx response, an undecodable body or a response missing the endpoint or
// auth key is returned as *livevoice.ConfigError. Network failures and 5xx
// responses are returned as *livevoice.ConnectionError.
func Fetch(ctx context.Context, tokenURL string, opts Options) (Params, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return Params{}, livevoice.NewConfigError("tokenURL", tokenURL, "invalid URL format")
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if opts.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Bearer)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Params{}, &livevoice.ConnectionError{URL: tokenURL, Operation: "fetch credentials", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		msg := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		if resp.StatusCode >= 500 {
			return Params{}, &livevoice.ConnectionError{URL: tokenURL, Operation: "fetch credentials", Cause: errors.New(msg)}
		}
		return Params{}, livevoice.NewConfigError("tokenURL", tokenURL, msg)
	}

	var p Params
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Params{}, livevoice.NewConfigError("tokenURL", tokenURL, "invalid response: "+err.Error())
	}
	if p.Endpoint == "" {
		return Params{}, livevoice.NewConfigError("Endpoint", "", "missing from token response")
	}
	if p.AuthKey == "" {
		return Params{}, livevoice.NewConfigError("AuthKey", "", "missing from token response")
	}
	return p, nil
}

// FetchWithRetry calls Fetch under retry. Only connection failures are
// retried; configuration errors return immediately.
func FetchWithRetry(ctx context.Context, tokenURL string, opts Options, retry livevoice.RetryConfig) (Params, error) {
	var p Params
	err := livevoice.WithRetry(ctx, retry, func() error {
		var err error
		p, err = Fetch(ctx, tokenURL, opts)
		return err
	})
	return p, err
}
