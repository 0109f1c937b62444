// Package config provides configuration management for the Gemini Code
// Assist translation proxy. It handles loading and parsing YAML
// configuration files, and provides structured access to application
// settings including server port, authentication directory, debug
// settings, proxy configuration, and API keys.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port"`

	// AuthDir is the directory holding the Code Assist OAuth2 credential
	// file (internal/auth.TokenStorage).
	AuthDir string `yaml:"auth-dir"`

	// Debug enables or disables debug-level logging and other debug features.
	Debug bool `yaml:"debug"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url"`

	// APIKeys is a list of keys for authenticating clients to this proxy server.
	APIKeys []string `yaml:"api-keys"`

	// RequestLog enables or disables verbatim request/response audit
	// logging (SPEC_FULL.md §4.4).
	RequestLog bool `yaml:"request-log"`

	// RequestRetry defines how many times the Gemini streaming client
	// retries a failed upstream call before giving up.
	RequestRetry int `yaml:"request-retry"`

	// Fallback configures the fallback controller (spec.md §4.5).
	Fallback Fallback `yaml:"fallback"`

	// Gemini configures the Gemini streaming client's project discovery
	// (SPEC_FULL.md §4.3).
	Gemini Gemini `yaml:"gemini"`

	// AllowLocalhostUnauthenticated allows unauthenticated requests from localhost.
	AllowLocalhostUnauthenticated bool `yaml:"allow-localhost-unauthenticated"`
}

// Fallback holds the cooldown window and enable switch for the fallback
// controller (internal/fallback, internal/cooldown).
type Fallback struct {
	// Enabled turns the fallback chain walk on or off; when false, a 429
	// is surfaced to the client instead of retried against a substitute
	// model.
	Enabled bool `yaml:"enabled"`

	// CooldownSeconds is the rate-limit cooldown window (spec.md §3's
	// default is 10 minutes); zero means "use the package default".
	CooldownSeconds int `yaml:"cooldown-seconds"`

	// PreviewExceededSeconds is the quota-exceeded window for the preview
	// model switch (SPEC_FULL.md §4.1), distinct from CooldownSeconds; zero
	// means "use the package default" (the teacher hardcodes 30 minutes).
	PreviewExceededSeconds int `yaml:"preview-exceeded-seconds"`
}

// CooldownDuration returns f.CooldownSeconds as a time.Duration, or zero
// if unset (the caller should fall back to cooldown.Default).
func (f Fallback) CooldownDuration() time.Duration {
	if f.CooldownSeconds <= 0 {
		return 0
	}
	return time.Duration(f.CooldownSeconds) * time.Second
}

// PreviewExceededDuration returns f.PreviewExceededSeconds as a
// time.Duration, or zero if unset (the caller should fall back to its own
// default window).
func (f Fallback) PreviewExceededDuration() time.Duration {
	if f.PreviewExceededSeconds <= 0 {
		return 0
	}
	return time.Duration(f.PreviewExceededSeconds) * time.Second
}

// Gemini holds the explicit project/tier override for Code Assist project
// discovery (SPEC_FULL.md §4.3): when ProjectID is set, internal/auth.
// Client.SetupUser skips the loadCodeAssist/onboardUser round trip
// entirely.
type Gemini struct {
	// ProjectID is an explicit Cloud project id to use instead of
	// auto-discovery.
	ProjectID string `yaml:"project-id"`

	// Tier is the onboarding tier to request if onboardUser is needed
	// (e.g. "free-tier", "standard-tier"). Empty defaults to "free-tier".
	Tier string `yaml:"tier"`
}

// LoadConfig reads a YAML configuration file from the given path,
// unmarshals it into a Config struct, and returns it.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}
