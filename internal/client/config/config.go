// Package config handles configuration for the client component, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the Pensieve client.
//
// Fields:
//   - ServerURL: base URL of the sync backend.
//   - DatabasePath: path to the local SQLite file.
//   - WifiOnlySync: restrict automatic syncing to Wi-Fi networks.
//   - SyncTimeout: upper bound for one whole sync cycle.
//   - DaemonInterval: how often the daemon runs a periodic sync.
type Config struct {
	ServerURL      string
	DatabasePath   string
	WifiOnlySync   bool
	SyncTimeout    time.Duration
	DaemonInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "pensieve.db"
	c.WifiOnlySync = false
	c.SyncTimeout = 2 * time.Minute
	c.DaemonInterval = 15 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
