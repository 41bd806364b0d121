// ABOUTME: Engine configuration from TOML file and environment overrides
// ABOUTME: Resolves OAuth credentials, URLs, and server settings at XDG paths
package calsync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

// Config holds the engine's runtime settings.
type Config struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	// RedirectURL is the fixed OAuth callback this engine serves.
	RedirectURL string `toml:"redirect_url"`
	// FrontendURL is where the callback handler sends the browser afterwards.
	FrontendURL string `toml:"frontend_url"`
	// TimeZone is the zone name sent with timed provider events.
	TimeZone string `toml:"timezone"`
	Addr     string `toml:"addr"`
	DBPath   string `toml:"db_path"`
}

// ConfigPath returns the XDG-compliant location of the config file.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "ilouli", "calsync.toml")
}

// LoadConfig reads the TOML config file if present, then applies environment
// variable overrides. A missing file is not an error; env vars alone are a
// complete configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := &Config{
		RedirectURL: "http://localhost:8787/oauth/callback",
		FrontendURL: "http://localhost:3000/calendar",
		TimeZone:    "UTC",
		Addr:        ":8787",
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("google OAuth credentials not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables or %s", path)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		cfg.ClientID = id
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		cfg.ClientSecret = secret
	}
	if u := os.Getenv("CALSYNC_REDIRECT_URL"); u != "" {
		cfg.RedirectURL = u
	}
	if u := os.Getenv("CALSYNC_FRONTEND_URL"); u != "" {
		cfg.FrontendURL = u
	}
	if tz := os.Getenv("CALSYNC_TIMEZONE"); tz != "" {
		cfg.TimeZone = tz
	}
	if addr := os.Getenv("CALSYNC_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if p := os.Getenv("CALSYNC_DB_PATH"); p != "" {
		cfg.DBPath = p
	}
}
