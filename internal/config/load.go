package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/BurntSushi/toml"
)

// Load resolves the effective configuration: defaults, then the TOML file at
// path (if it exists), then environment overrides, then validation. An empty
// path means "defaults plus environment only"; a non-empty path that does
// not exist is an error, because the user asked for a specific file.
func Load(path string, env EnvOverrides, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	if env.ConfigPath != "" {
		path = env.ConfigPath
	}

	if path != "" {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: file %s does not exist", path)
			}

			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}

		for _, key := range meta.Undecoded() {
			logger.Warn("unknown config key ignored", slog.String("key", key.String()))
		}

		logger.Debug("config file loaded", slog.String("path", path))
	}

	env.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
