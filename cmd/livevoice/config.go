package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/enesunal-m/livevoice"
)

// fileConfig is the TOML form of a session configuration.
type fileConfig struct {
	Endpoint             string        `toml:"endpoint"`
	AuthKey              string        `toml:"auth_key"`
	Model                string        `toml:"model"`
	Voice                string        `toml:"voice"`
	SystemPrompt         string        `toml:"system_prompt"`
	SetupTimeout         time.Duration `toml:"setup_timeout"`
	MaxReconnectAttempts int           `toml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `toml:"reconnect_base_delay"`
}

// loadFileConfig reads a session config from path. LIVEVOICE_AUTH_KEY, when
// set, replaces the file's auth key so keys can stay out of config files.
func loadFileConfig(path string) (livevoice.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return livevoice.Config{}, fmt.Errorf("config read failed (%s): %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return livevoice.Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if v := os.Getenv("LIVEVOICE_AUTH_KEY"); v != "" {
		fc.AuthKey = v
	}
	return livevoice.Config{
		Endpoint:             fc.Endpoint,
		AuthKey:              fc.AuthKey,
		Model:                fc.Model,
		VoiceName:            fc.Voice,
		SystemPrompt:         fc.SystemPrompt,
		SetupTimeout:         fc.SetupTimeout,
		MaxReconnectAttempts: fc.MaxReconnectAttempts,
		ReconnectBaseDelay:   fc.ReconnectBaseDelay,
	}, nil
}
