// Package config implements TOML configuration loading, validation, and
// environment overrides for runwatch. The override chain is
// defaults -> config file -> environment; CLI flags on top of that are
// handled by the command layer.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Archive     ArchiveConfig      `toml:"archive"`
	Instruments []InstrumentConfig `toml:"instrument"`
	Watch       WatchConfig        `toml:"watch"`
	Store       StoreConfig        `toml:"store"`
	Gateway     GatewayConfig      `toml:"gateway"`
	Logging     LoggingConfig      `toml:"logging"`
}

// ArchiveConfig locates the instrument data archive.
type ArchiveConfig struct {
	// Root is the mount point of the archive on this host.
	Root string `toml:"root"`

	// ReferenceInstrument is the instrument folder whose cycle listing
	// determines the current cycle for every watched instrument. Its naming
	// scheme is free of the century-rollover anomalies older instruments
	// carry, which is why one fixed reference is used.
	ReferenceInstrument string `toml:"reference_instrument"`
}

// InstrumentConfig describes one instrument to watch. Each instrument gets
// its own independent detector.
type InstrumentConfig struct {
	// Folder is the archive folder name, e.g. "NDXMARI".
	Folder string `toml:"folder"`

	// Prefix is the run-file name prefix, e.g. "MAR".
	Prefix string `toml:"prefix"`
}

// WatchConfig controls the poll loop timing. Durations are strings in
// time.ParseDuration syntax, validated at load time.
type WatchConfig struct {
	PollInterval         string `toml:"poll_interval"`
	CycleRecheckInterval string `toml:"cycle_recheck_interval"`
}

// StoreConfig selects and parameterizes the watermark store.
type StoreConfig struct {
	// Driver is "postgres" (shared facility database) or "sqlite"
	// (single-host deployments and development).
	Driver string `toml:"driver"`

	// DSN is the Postgres connection string when driver is "postgres".
	DSN string `toml:"dsn"`

	// Path is the database file when driver is "sqlite".
	Path string `toml:"path"`

	ConnectTimeout string `toml:"connect_timeout"`
}

// GatewayConfig parameterizes the pipeline notification gateway.
type GatewayConfig struct {
	// URL is the WebSocket endpoint runs are produced to.
	URL string `toml:"url"`

	// ProducerName is the base producer identity; a random suffix is
	// appended per connection.
	ProducerName string `toml:"producer_name"`

	ConnectTimeout string `toml:"connect_timeout"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// LogFormat is "text", "json", or "auto" (text on a TTY, JSON otherwise).
	LogFormat string `toml:"log_format"`
}

// PollInterval returns the parsed poll interval. Validate guarantees the
// string parses, so errors cannot occur after a successful load.
func (c *Config) PollInterval() time.Duration {
	return mustDuration(c.Watch.PollInterval)
}

// CycleRecheckInterval returns the parsed cycle recheck interval.
func (c *Config) CycleRecheckInterval() time.Duration {
	return mustDuration(c.Watch.CycleRecheckInterval)
}

// StoreConnectTimeout returns the parsed store connect timeout.
func (c *Config) StoreConnectTimeout() time.Duration {
	return mustDuration(c.Store.ConnectTimeout)
}

// GatewayConnectTimeout returns the parsed gateway connect timeout.
func (c *Config) GatewayConnectTimeout() time.Duration {
	return mustDuration(c.Gateway.ConnectTimeout)
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic("config: duration not validated: " + s)
	}

	return d
}
