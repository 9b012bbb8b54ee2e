// Package config loads runtime settings for the field client. Sources are
// layered: built-in defaults, then a JSON file (-c/-config), then
// command-line flags, with later sources taking precedence.
package config

import "time"

// Config holds runtime settings for the fieldsync client.
//
// Units: intervals are time.Durations (e.g. 5*time.Minute).
type Config struct {
	// ServerBaseURL is the origin of the electoral office server.
	ServerBaseURL string

	// DatabasePath is the local SQLite file.
	DatabasePath string

	// SyncInterval is the periodic full-sync cadence while online.
	SyncInterval time.Duration

	// OnlineCheckInterval is how often connectivity is probed.
	OnlineCheckInterval time.Duration

	// TransportRetries caps in-cycle re-attempts of a queue item whose
	// request failed at the transport level.
	TransportRetries uint64
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8000"
	c.DatabasePath = "fieldsync.db"
	c.SyncInterval = 5 * time.Minute
	c.OnlineCheckInterval = 3 * time.Second
	c.TransportRetries = 3
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
