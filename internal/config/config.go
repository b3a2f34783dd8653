package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Config represents the global ~/.wisp/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	ListenAddr     string `toml:"listen_addr"`
	AuthSecret     string `toml:"auth_secret"`

	// RedisAddr, when set, switches the channel seed cache to Redis.
	// Empty means the in-memory cache.
	RedisAddr string `toml:"redis_addr"`

	// PageSize is the live window size and the pagination page size.
	PageSize int `toml:"page_size"`

	// CacheTTLMinutes bounds how long a cached channel view may seed a
	// freshly opened channel before it is considered stale.
	CacheTTLMinutes int `toml:"cache_ttl_minutes"`

	// FreeDailyMessageLimit caps messages per UTC day for free-plan users.
	FreeDailyMessageLimit int `toml:"free_daily_message_limit"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile:        "main",
		ListenAddr:            "127.0.0.1:8470",
		PageSize:              20,
		CacheTTLMinutes:       20,
		FreeDailyMessageLimit: 100,
	}
}

// GenerateSecret produces a random token signing secret for a fresh
// installation.
func GenerateSecret() string {
	return uuid.NewString() + uuid.NewString()
}

// Load reads config from the given path, filling unset numeric fields
// with defaults. Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	def := Default()
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = def.DefaultProfile
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.CacheTTLMinutes <= 0 {
		cfg.CacheTTLMinutes = def.CacheTTLMinutes
	}
	if cfg.FreeDailyMessageLimit <= 0 {
		cfg.FreeDailyMessageLimit = def.FreeDailyMessageLimit
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
