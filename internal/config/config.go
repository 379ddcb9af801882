// Package config loads and saves the lk configuration file. Saves are atomic
// (temp file + rename) so a crash never leaves a half-written config behind.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const configFile = "config.json"

// Defaults for optional settings.
const (
	DefaultEntityID  = "lock.front_door"
	DefaultCacheFile = "slots.db"
)

// Config is the persisted lk configuration.
type Config struct {
	// HubURL is the websocket endpoint of the lock hub.
	HubURL string `json:"hub_url"`
	// Token authenticates against the hub.
	Token string `json:"token"`
	// EntityID names the lock entity to manage.
	EntityID string `json:"entity_id"`
	// CachePath overrides the default slot cache location.
	CachePath string `json:"cache_path,omitempty"`
}

// DefaultDir returns the per-user config directory for lk.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "lk"), nil
}

// Load reads the config from baseDir and applies environment overrides.
// A missing file yields an empty config, not an error.
func Load(baseDir string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(filepath.Join(baseDir, configFile))
	switch {
	case os.IsNotExist(err):
		// fall through to env overrides
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("LK_HUB_URL"); v != "" {
		cfg.HubURL = v
	}
	if v := os.Getenv("LK_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("LK_ENTITY_ID"); v != "" {
		cfg.EntityID = v
	}
	if cfg.EntityID == "" {
		cfg.EntityID = DefaultEntityID
	}
	return cfg, nil
}

// Save writes the config to baseDir using atomic write (temp file + rename).
func Save(baseDir string, cfg *Config) error {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(baseDir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, filepath.Join(baseDir, configFile))
}

// ResolveCachePath resolves the slot cache location for the config.
func (c *Config) ResolveCachePath(baseDir string) string {
	if c.CachePath != "" {
		return c.CachePath
	}
	return filepath.Join(baseDir, DefaultCacheFile)
}

// Validate checks that the config is usable for hub connections.
func (c *Config) Validate() error {
	if c.HubURL == "" {
		return fmt.Errorf("hub_url is not set; run 'lk init' or set LK_HUB_URL")
	}
	if c.Token == "" {
		return fmt.Errorf("token is not set; run 'lk init' or set LK_TOKEN")
	}
	return nil
}
