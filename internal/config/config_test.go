package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8443, ShutdownTimeout: 10 * time.Second},
		Store: StoreConfig{
			AggregateStorePath:     "/tmp/aggregate.db",
			ObsHistoryPath:         "/tmp/history.db",
			MaxBytesPerObservation: 4096,
			MaxBytesPerEnvelope:    1 << 20,
			MaxBytesTotal:          16 << 20,
		},
		Scheduler: SchedulerConfig{
			BackfillDays:            2,
			AggregateBackupInterval: time.Minute,
			GenerateObsInterval:     time.Hour,
			GCInterval:              time.Hour,
		},
		Shipping: ShippingConfig{
			SendInterval:     10 * time.Minute,
			MinInterval:      time.Second,
			ShufflerEndpoint: "https://shuffler.example.com/v1/ingest",
			RequestTimeout:   30 * time.Second,
		},
		Keys: KeysConfig{
			AnalyzerPublicKeyPath: "/etc/cobalt/analyzer.pub.pem",
			ShufflerPublicKeyPath: "/etc/cobalt/shuffler.pub.pem",
		},
		Registry: RegistryConfig{
			ConfigPath: "/etc/cobalt/cobalt_config.yaml",
			CustomerID: 1,
			ProjectID:  1,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestConfigValidateAcceptsValidConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestServerConfigValidateRejectsBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestStoreConfigValidateRejectsInconsistentBudgets(t *testing.T) {
	cfg := validConfig()
	cfg.Store.MaxBytesPerEnvelope = cfg.Store.MaxBytesPerObservation - 1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Store.MaxBytesTotal = cfg.Store.MaxBytesPerEnvelope - 1
	assert.Error(t, cfg.Validate())
}

func TestSchedulerConfigValidateRejectsBackupLongerThanGenerate(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.AggregateBackupInterval = 2 * time.Hour
	assert.Error(t, cfg.Validate())
}

func TestShippingConfigValidateRejectsMinIntervalExceedingSendInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Shipping.MinInterval = cfg.Shipping.SendInterval + time.Second
	assert.Error(t, cfg.Validate())
}

func TestRegistryConfigValidateRejectsEmptyPath(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.ConfigPath = ""
	assert.Error(t, cfg.Validate())
}

func TestLoggingConfigValidateRejectsUnknownLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestLoggingConfigValidateRejectsUnknownFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}
