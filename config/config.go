package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	API struct {
		BaseURL string        `koanf:"base_url"`
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"api"`

	Orders struct {
		PollInterval time.Duration `koanf:"poll_interval"`
		StaleAfter   time.Duration `koanf:"stale_after"`
	} `koanf:"orders"`

	Breaker struct {
		Enabled     bool          `koanf:"enabled"`
		MaxFailures uint32        `koanf:"max_failures"`
		OpenFor     time.Duration `koanf:"open_for"`
	} `koanf:"breaker"`

	Storage struct {
		// Empty addr selects the in-memory backend.
		RedisAddr     string `koanf:"redis_addr"`
		RedisPassword string `koanf:"redis_password"`
	} `koanf:"storage"`

	Log struct {
		Level string `koanf:"level"`
		File  string `koanf:"file"`
	} `koanf:"log"`
}

func Default() Config {
	var c Config
	c.API.Timeout = 30 * time.Second
	c.Orders.PollInterval = 10 * time.Second
	c.Orders.StaleAfter = time.Hour
	c.Breaker.Enabled = true
	c.Breaker.MaxFailures = 5
	c.Breaker.OpenFor = 30 * time.Second
	c.Log.Level = "info"
	return c
}

// Load reads an optional yaml file, then overlays BLOOMSOKO_-prefixed
// environment variables (nested keys joined with __, e.g.
// BLOOMSOKO_API__BASE_URL).
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("BLOOMSOKO_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BLOOMSOKO_")
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url required")
	}
	if c.Orders.PollInterval <= 0 {
		return fmt.Errorf("orders.poll_interval must be positive")
	}
	if c.Orders.StaleAfter <= 0 {
		return fmt.Errorf("orders.stale_after must be positive")
	}
	return nil
}
