package config

import "os"

// Environment variable names for overrides. These mirror the knobs the
// container deployment sets per instrument.
const (
	EnvConfig           = "RUNWATCH_CONFIG"
	EnvArchiveRoot      = "RUNWATCH_ARCHIVE_ROOT"
	EnvInstrumentFolder = "RUNWATCH_INSTRUMENT_FOLDER"
	EnvFilePrefix       = "RUNWATCH_FILE_PREFIX"
	EnvStoreDSN         = "RUNWATCH_STORE_DSN"
	EnvGatewayURL       = "RUNWATCH_GATEWAY_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath       string // RUNWATCH_CONFIG: override config file path
	ArchiveRoot      string // RUNWATCH_ARCHIVE_ROOT: archive mount point
	InstrumentFolder string // RUNWATCH_INSTRUMENT_FOLDER: single instrument to watch
	FilePrefix       string // RUNWATCH_FILE_PREFIX: run-file prefix for that instrument
	StoreDSN         string // RUNWATCH_STORE_DSN: watermark database DSN
	GatewayURL       string // RUNWATCH_GATEWAY_URL: pipeline gateway endpoint
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Load applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:       os.Getenv(EnvConfig),
		ArchiveRoot:      os.Getenv(EnvArchiveRoot),
		InstrumentFolder: os.Getenv(EnvInstrumentFolder),
		FilePrefix:       os.Getenv(EnvFilePrefix),
		StoreDSN:         os.Getenv(EnvStoreDSN),
		GatewayURL:       os.Getenv(EnvGatewayURL),
	}
}

// apply layers the environment overrides onto a loaded Config. An instrument
// folder from the environment replaces the configured instrument list: the
// container deployment runs one watcher per instrument and owns the full
// instrument definition.
func (e EnvOverrides) apply(cfg *Config) {
	if e.ArchiveRoot != "" {
		cfg.Archive.Root = e.ArchiveRoot
	}

	if e.StoreDSN != "" {
		cfg.Store.DSN = e.StoreDSN
	}

	if e.GatewayURL != "" {
		cfg.Gateway.URL = e.GatewayURL
	}

	if e.InstrumentFolder != "" {
		cfg.Instruments = []InstrumentConfig{{
			Folder: e.InstrumentFolder,
			Prefix: e.FilePrefix,
		}}
	}
}
