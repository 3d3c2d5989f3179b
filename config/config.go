// Package config loads the deployment configuration shared by the relay
// surface and the connect tooling: provider application identity, relay base
// URLs, and the completion backend endpoint. Configuration comes from a JSON
// file with environment variables layered on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/instahelp/waconnect/origin"
)

// Environment variable overrides. Each one, when set, wins over the value in
// the config file.
const (
	EnvAppID       = "WACONNECT_APP_ID"
	EnvConfigID    = "WACONNECT_CONFIG_ID"
	EnvAPIVersion  = "WACONNECT_API_VERSION"
	EnvRelayBases  = "WACONNECT_RELAY_BASES" // comma-delimited
	EnvCompleteURL = "WACONNECT_COMPLETE_URL"
	EnvAuthToken   = "WACONNECT_AUTH_TOKEN"
	EnvListenAddr  = "WACONNECT_LISTEN_ADDR"
	EnvLogLevel    = "WACONNECT_LOG_LEVEL"
	EnvLogPath     = "WACONNECT_LOG_PATH"
	EnvSentryDSN   = "WACONNECT_SENTRY_DSN"
	EnvOTLPAddr    = "WACONNECT_OTLP_ADDR"
)

const defaultAPIVersion = "v23.0"

// Config is the full deployment configuration.
type Config struct {
	// Provider application identity for the embedded signup dialog.
	AppID      string `koanf:"app_id"`
	ConfigID   string `koanf:"config_id"`
	APIVersion string `koanf:"api_version"`

	// RelayBases are the base URLs the relay surface is served from. The
	// first entry hosts the popup; the full list derives the origin
	// allowlist on the opener side.
	RelayBases []string `koanf:"relay_bases"`

	// Completion backend.
	CompleteURL string `koanf:"complete_url"`
	AuthToken   string `koanf:"auth_token"`

	// Relay server.
	ListenAddr string `koanf:"listen_addr"`

	LogLevel string `koanf:"log_level"`
	LogPath  string `koanf:"log_path"`

	SentryDSN string `koanf:"sentry_dsn"`
	OTLPAddr  string `koanf:"otlp_addr"`
}

// Load reads the config file at path, applies environment overrides, and
// validates the result. A missing file is not an error; environment
// variables alone can carry a complete configuration.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := k.Load(rawbytes.Provider(raw), json.Parser()); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	override := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	override(EnvAppID, &c.AppID)
	override(EnvConfigID, &c.ConfigID)
	override(EnvAPIVersion, &c.APIVersion)
	override(EnvCompleteURL, &c.CompleteURL)
	override(EnvAuthToken, &c.AuthToken)
	override(EnvListenAddr, &c.ListenAddr)
	override(EnvLogLevel, &c.LogLevel)
	override(EnvLogPath, &c.LogPath)
	override(EnvSentryDSN, &c.SentryDSN)
	override(EnvOTLPAddr, &c.OTLPAddr)
	if v, ok := os.LookupEnv(EnvRelayBases); ok {
		var bases []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				bases = append(bases, b)
			}
		}
		c.RelayBases = bases
	}
}

func (c *Config) applyDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = defaultAPIVersion
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8380"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the fields every deployment needs. Relay bases must parse
// as origins; a base that would be dropped from the allowlist is a
// misconfiguration the deployment should hear about, not a silent hole.
func (c *Config) Validate() error {
	if c.AppID == "" {
		return errors.New("config: app_id is required")
	}
	if c.ConfigID == "" {
		return errors.New("config: config_id is required")
	}
	for _, base := range c.RelayBases {
		if _, err := origin.Parse(base); err != nil {
			return fmt.Errorf("config: relay base %q: %w", base, err)
		}
	}
	return nil
}
