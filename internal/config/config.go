// Package config loads the bot's TOML configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full bot configuration.
type Config struct {
	Log        Log        `toml:"log"`
	Chat       Chat       `toml:"chat"`
	Storefront Storefront `toml:"storefront"`
	Store      Store      `toml:"store"`
	NATS       NATS       `toml:"nats"`
	Redis      Redis      `toml:"redis"`
	Metrics    Metrics    `toml:"metrics"`
}

// Log configures the slog handler.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Chat configures the inbound update source.
type Chat struct {
	// Subject is the NATS subject prefix the gateway publishes updates on.
	Subject string `toml:"subject"`
}

// Storefront configures the catalog client.
type Storefront struct {
	BaseURL string   `toml:"base_url"`
	Hosts   []string `toml:"hosts"`
	// CacheSize bounds the product LRU; CacheTTL expires entries.
	CacheSize int      `toml:"cache_size"`
	CacheTTL  duration `toml:"cache_ttl"`
}

// Store configures order persistence. Backend is one of file, redis, nats.
type Store struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// NATS configures the messaging connection.
type NATS struct {
	URL string `toml:"url"`
}

// Redis configures the optional redis order backend.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log:  Log{Level: "info"},
		Chat: Chat{Subject: "chat.updates"},
		Storefront: Storefront{
			BaseURL:   "https://www.knuspr.de",
			Hosts:     []string{"knuspr.de", "www.knuspr.de"},
			CacheSize: 512,
			CacheTTL:  duration{15 * time.Minute},
		},
		Store:   Store{Backend: "file", Dir: "data"},
		NATS:    NATS{URL: "nats://127.0.0.1:4222"},
		Metrics: Metrics{Listen: ":9102"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "file", "redis", "nats":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if len(c.Storefront.Hosts) == 0 {
		return fmt.Errorf("storefront.hosts must not be empty")
	}
	return nil
}

// ProductCacheTTL returns the configured cache TTL.
func (s Storefront) ProductCacheTTL() time.Duration { return s.CacheTTL.Duration }
