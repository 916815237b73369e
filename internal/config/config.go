// Package config provides configuration management for the Cobalt agent.
//
// Configuration is loaded from multiple sources in this order:
//  1. .env file, for local development (sets environment variables not
//     already set)
//  2. Configuration file (YAML)
//  3. Environment variables (COBALT_ prefix, "." replaced with "_"), which
//     override the file
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete agent configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Shipping  ShippingConfig  `mapstructure:"shipping"`
	Keys      KeysConfig      `mapstructure:"keys"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RegistryConfig points at the YAML CobaltConfig this process's Registry is
// built from (spec.md §4.1).
type RegistryConfig struct {
	ConfigPath string `mapstructure:"config_path"`
	CustomerID uint32 `mapstructure:"customer_id"`
	ProjectID  uint32 `mapstructure:"project_id"`
}

func (rc *RegistryConfig) Validate() error {
	if rc.ConfigPath == "" {
		return errors.New("registry.config_path is required")
	}
	return nil
}

// ServerConfig holds host/port for the ingestion endpoint this process
// would expose to local clients. Kept as its own section even though this
// core does not implement a transport of its own yet.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", sc.Port)
	}
	if sc.Host == "" {
		return errors.New("server.host is required")
	}
	if sc.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	return nil
}

// StoreConfig configures the ObservationStore's durable path and byte
// budgets (spec.md §4.3).
type StoreConfig struct {
	AggregateStorePath     string `mapstructure:"aggregate_store_path"`
	ObsHistoryPath         string `mapstructure:"obs_history_path"`
	ObservationStorePath   string `mapstructure:"observation_store_path"`
	MaxBytesPerObservation int    `mapstructure:"max_bytes_per_observation"`
	MaxBytesPerEnvelope    int    `mapstructure:"max_bytes_per_envelope"`
	MaxBytesTotal          int    `mapstructure:"max_bytes_total"`
}

func (sc *StoreConfig) Validate() error {
	if sc.AggregateStorePath == "" {
		return errors.New("store.aggregate_store_path is required")
	}
	if sc.ObsHistoryPath == "" {
		return errors.New("store.obs_history_path is required")
	}
	if sc.MaxBytesPerObservation <= 0 {
		return errors.New("store.max_bytes_per_observation must be positive")
	}
	if sc.MaxBytesPerEnvelope < sc.MaxBytesPerObservation {
		return errors.New("store.max_bytes_per_envelope must be at least max_bytes_per_observation")
	}
	if sc.MaxBytesTotal < sc.MaxBytesPerEnvelope {
		return errors.New("store.max_bytes_total must be at least max_bytes_per_envelope")
	}
	return nil
}

// SchedulerConfig configures the EventAggregator worker's three
// independent schedules and retention window (spec.md §4.7).
type SchedulerConfig struct {
	BackfillDays            uint32        `mapstructure:"backfill_days"`
	AggregateBackupInterval time.Duration `mapstructure:"aggregate_backup_interval"`
	GenerateObsInterval     time.Duration `mapstructure:"generate_obs_interval"`
	GCInterval              time.Duration `mapstructure:"gc_interval"`
}

func (sc *SchedulerConfig) Validate() error {
	if sc.AggregateBackupInterval <= 0 {
		return errors.New("scheduler.aggregate_backup_interval must be positive")
	}
	if sc.GenerateObsInterval <= 0 {
		return errors.New("scheduler.generate_obs_interval must be positive")
	}
	if sc.GCInterval <= 0 {
		return errors.New("scheduler.gc_interval must be positive")
	}
	if sc.AggregateBackupInterval > sc.GenerateObsInterval {
		return errors.New("scheduler.aggregate_backup_interval must not exceed generate_obs_interval")
	}
	if sc.AggregateBackupInterval > sc.GCInterval {
		return errors.New("scheduler.aggregate_backup_interval must not exceed gc_interval")
	}
	return nil
}

// ShippingConfig configures the ShippingManager worker's schedules and
// upload endpoint (spec.md §4.5).
type ShippingConfig struct {
	SendInterval     time.Duration `mapstructure:"send_interval"`
	MinInterval      time.Duration `mapstructure:"min_interval"`
	ShufflerEndpoint string        `mapstructure:"shuffler_endpoint"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

func (sc *ShippingConfig) Validate() error {
	if sc.SendInterval <= 0 {
		return errors.New("shipping.send_interval must be positive")
	}
	if sc.MinInterval <= 0 || sc.MinInterval > sc.SendInterval {
		return errors.New("shipping.min_interval must be positive and not exceed send_interval")
	}
	if sc.ShufflerEndpoint == "" {
		return errors.New("shipping.shuffler_endpoint is required")
	}
	if sc.RequestTimeout <= 0 {
		return errors.New("shipping.request_timeout must be positive")
	}
	return nil
}

// KeysConfig points at the PEM-encoded public keys loaded once at startup
// (spec.md §6: HYBRID_ECDH_V1 envelope encryption to the analyzer, and
// envelope sealing to the shuffler).
type KeysConfig struct {
	AnalyzerPublicKeyPath string `mapstructure:"analyzer_public_key_path"`
	ShufflerPublicKeyPath string `mapstructure:"shuffler_public_key_path"`
	ClientSecretPath      string `mapstructure:"client_secret_path"`
}

func (kc *KeysConfig) Validate() error {
	if kc.AnalyzerPublicKeyPath == "" {
		return errors.New("keys.analyzer_public_key_path is required")
	}
	if kc.ShufflerPublicKeyPath == "" {
		return errors.New("keys.shuffler_public_key_path is required")
	}
	return nil
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	isValid := false
	for _, level := range validLevels {
		if lc.Level == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of %v)", lc.Level, validLevels)
	}

	validFormats := []string{"json", "text"}
	isValid = false
	for _, format := range validFormats {
		if lc.Format == format {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log format: %s (must be one of %v)", lc.Format, validFormats)
	}
	return nil
}

// Validate validates every sub-config in turn.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config validation failed: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler config validation failed: %w", err)
	}
	if err := c.Shipping.Validate(); err != nil {
		return fmt.Errorf("shipping config validation failed: %w", err)
	}
	if err := c.Keys.Validate(); err != nil {
		return fmt.Errorf("keys config validation failed: %w", err)
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config validation failed: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}
	return nil
}

// Load loads a .env file into the environment (for local development),
// reads config.yaml from ./configs, ., or /etc/cobalt (if present), lets
// environment variables prefixed COBALT_ (with "." replaced by "_")
// override it, and returns a validated Config.
func Load() (*Config, error) {
	// Load .env file if it exists (optional, for local development).
	// This sets environment variables that Viper can then read.
	_ = godotenv.Load(".env")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/cobalt")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with defaults and env vars.
	}

	viper.SetEnvPrefix("COBALT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8443)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	viper.SetDefault("store.aggregate_store_path", dataPath("aggregate_store.db"))
	viper.SetDefault("store.obs_history_path", dataPath("obs_history.db"))
	viper.SetDefault("store.observation_store_path", dataPath("observation_store.db"))
	viper.SetDefault("store.max_bytes_per_observation", 4096)
	viper.SetDefault("store.max_bytes_per_envelope", 1<<20)
	viper.SetDefault("store.max_bytes_total", 16<<20)

	viper.SetDefault("scheduler.backfill_days", 2)
	viper.SetDefault("scheduler.aggregate_backup_interval", time.Minute)
	viper.SetDefault("scheduler.generate_obs_interval", time.Hour)
	viper.SetDefault("scheduler.gc_interval", time.Hour)

	viper.SetDefault("shipping.send_interval", 10*time.Minute)
	viper.SetDefault("shipping.min_interval", time.Second)
	viper.SetDefault("shipping.request_timeout", 30*time.Second)

	viper.SetDefault("keys.client_secret_path", dataPath("client_secret.bin"))

	viper.SetDefault("registry.config_path", "./configs/cobalt_config.yaml")
	viper.SetDefault("registry.customer_id", 1)
	viper.SetDefault("registry.project_id", 1)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func dataPath(name string) string {
	dir := os.Getenv("COBALT_DATA_DIR")
	if dir == "" {
		dir = "/var/lib/cobalt-agent"
	}
	return dir + "/" + name
}
