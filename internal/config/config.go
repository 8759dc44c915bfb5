// Package config loads environment-based configuration for diskview.
package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for diskview.
type Config struct {
	// Yandex OAuth application credentials. All three are required;
	// a missing value is a startup error, never a per-request one.
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`

	// HTTP listen address.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Upstream endpoints. Overridable for tests and mirrors.
	DiskAPIURL  string `env:"DISK_API_URL" envDefault:"https://cloud-api.yandex.net"`
	OAuthURL    string `env:"OAUTH_URL" envDefault:"https://oauth.yandex.ru"`
	UserinfoURL string `env:"USERINFO_URL" envDefault:"https://login.yandex.ru"`

	// Path of the bbolt database holding sessions and cache records.
	// Empty means ~/.diskview/state.db.
	StateDBPath string `env:"STATE_DB_PATH"`

	// Listing request page size.
	ListLimit int `env:"LIST_LIMIT" envDefault:"100"`

	// How often expired cache records are purged.
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"5m"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the client secret to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("CLIENT_ID is required")
	}

	if c.ClientSecret == "" {
		return fmt.Errorf("CLIENT_SECRET is required")
	}

	if c.RedirectURI == "" {
		return fmt.Errorf("REDIRECT_URI is required")
	}

	if c.ListLimit <= 0 {
		return fmt.Errorf("LIST_LIMIT must be positive")
	}

	if c.CacheSweepInterval <= 0 {
		return fmt.Errorf("CACHE_SWEEP_INTERVAL must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
