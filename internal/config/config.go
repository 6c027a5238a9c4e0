package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// AccountConfig describes one configured account in ~/.fastsm/config.toml.
type AccountConfig struct {
	Name     string `toml:"name"`
	Platform string `toml:"platform"` // "mastodon" or "bluesky"

	// Mastodon credentials.
	InstanceURL string `toml:"instance_url,omitempty"`
	AccessToken string `toml:"access_token,omitempty"`

	// Bluesky credentials.
	Handle      string `toml:"handle,omitempty"`
	AppPassword string `toml:"app_password,omitempty"`
}

// Config represents the global ~/.fastsm/config.toml.
type Config struct {
	Accounts []AccountConfig `toml:"accounts"`

	// Minutes between full poll sweeps of all open timelines.
	UpdateMinutes int `toml:"update_minutes"`

	// Oldest-first ordering when true; newest-first otherwise.
	Reversed bool `toml:"reversed"`

	// Items requested per page and how many pages a single load may chain.
	PageSize int `toml:"page_size"`
	MaxPages int `toml:"max_pages"`

	// How many items the cache keeps per timeline snapshot.
	CacheLimit int `toml:"cache_limit"`

	// Sync the home timeline cursor with the server-side read marker
	// (Mastodon only).
	SyncPosition bool `toml:"sync_position"`

	// Suppress sound cues on errors.
	QuietErrors bool `toml:"quiet_errors"`

	// Display template for rendered items. Supports $name, $text, $time.
	Template string `toml:"template"`
}

// Defaults fills in zero-valued fields that have sensible defaults.
func (c *Config) Defaults() {
	if c.UpdateMinutes <= 0 {
		c.UpdateMinutes = 2
	}
	if c.PageSize <= 0 {
		c.PageSize = 40
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 1
	}
	if c.CacheLimit <= 0 {
		c.CacheLimit = 200
	}
	if c.Template == "" {
		c.Template = "$name: $text, $time"
	}
}

// Load reads config from the given path. Returns error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.Defaults()
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
