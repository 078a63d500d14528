package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the configuration for internal consistency. It is called
// by Load; callers constructing a Config by hand (tests) call it directly.
func (c *Config) Validate() error {
	if c.Archive.Root == "" {
		return fmt.Errorf("config: archive.root must not be empty")
	}

	if c.Archive.ReferenceInstrument == "" {
		return fmt.Errorf("config: archive.reference_instrument must not be empty")
	}

	if len(c.Instruments) == 0 {
		return fmt.Errorf("config: at least one [[instrument]] must be configured")
	}

	seen := make(map[string]bool, len(c.Instruments))
	for i, inst := range c.Instruments {
		if inst.Folder == "" {
			return fmt.Errorf("config: instrument %d: folder must not be empty", i)
		}

		if inst.Prefix == "" {
			return fmt.Errorf("config: instrument %s: prefix must not be empty", inst.Folder)
		}

		if seen[inst.Folder] {
			return fmt.Errorf("config: instrument %s configured twice", inst.Folder)
		}

		seen[inst.Folder] = true
	}

	for name, value := range map[string]string{
		"watch.poll_interval":          c.Watch.PollInterval,
		"watch.cycle_recheck_interval": c.Watch.CycleRecheckInterval,
		"store.connect_timeout":        c.Store.ConnectTimeout,
		"gateway.connect_timeout":      c.Gateway.ConnectTimeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: %s: invalid duration %q", name, value)
		}

		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %q", name, value)
		}
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store.dsn must not be empty for the postgres driver")
		}
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("config: store.path must not be empty for the sqlite driver")
		}
	default:
		return fmt.Errorf("config: store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}

	if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		return fmt.Errorf("config: gateway.url must be a ws:// or wss:// URL, got %q", c.Gateway.URL)
	}

	switch c.Logging.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.log_level must be debug, info, warn or error, got %q", c.Logging.LogLevel)
	}

	switch c.Logging.LogFormat {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("config: logging.log_format must be text, json or auto, got %q", c.Logging.LogFormat)
	}

	return nil
}
