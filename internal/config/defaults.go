package config

// Default values for configuration options. These match the reference
// deployment at the facility: the archive is mounted at /archive and the
// shared watermark database lives alongside the processing pipeline.
const (
	defaultArchiveRoot         = "/archive"
	defaultReferenceInstrument = "NDXWISH"
	defaultPollInterval        = "100ms"
	defaultCycleRecheck        = "6h"
	defaultStoreDriver         = "postgres"
	defaultStoreDSN            = "postgres://localhost:5432/interactive-reduction?sslmode=disable"
	defaultStorePath           = "runwatch.db"
	defaultConnectTimeout      = "10s"
	defaultGatewayURL          = "ws://localhost:9000/produce"
	defaultProducerName        = "runwatch"
	defaultLogLevel            = "info"
	defaultLogFormat           = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is the
// starting point for TOML decoding, so unset fields retain their defaults.
// No instruments are configured by default; at least one must come from the
// config file or the environment.
func DefaultConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			Root:                defaultArchiveRoot,
			ReferenceInstrument: defaultReferenceInstrument,
		},
		Watch: WatchConfig{
			PollInterval:         defaultPollInterval,
			CycleRecheckInterval: defaultCycleRecheck,
		},
		Store: StoreConfig{
			Driver:         defaultStoreDriver,
			DSN:            defaultStoreDSN,
			Path:           defaultStorePath,
			ConnectTimeout: defaultConnectTimeout,
		},
		Gateway: GatewayConfig{
			URL:            defaultGatewayURL,
			ProducerName:   defaultProducerName,
			ConnectTimeout: defaultConnectTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
