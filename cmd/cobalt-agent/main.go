// Command cobalt-agent is the on-device process that ties every Cobalt
// component together: it resolves the local project's metric registry,
// logs events into local aggregates and immediate observations, and ships
// sealed envelopes to the shuffler on a schedule.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cobalt/internal/config"
	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/core/services/telemetry/aggregate"
	"cobalt/internal/core/services/telemetry/encoder"
	"cobalt/internal/core/services/telemetry/envelope"
	"cobalt/internal/core/services/telemetry/logger"
	"cobalt/internal/infrastructure/protostore"
	"cobalt/internal/infrastructure/shuffler"
	"cobalt/internal/workers"
	"cobalt/pkg/clock"
	"cobalt/pkg/cryptobox"
	"cobalt/pkg/logging"
)

const undatedEventCapacity = 256

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(log)

	reg, err := registry.LoadConfig(cfg.Registry.ConfigPath)
	if err != nil {
		log.Error("failed to load registry config", "error", err)
		os.Exit(1)
	}

	secret, err := loadOrCreateClientSecret(cfg.Keys.ClientSecretPath)
	if err != nil {
		log.Error("failed to load client secret", "error", err)
		os.Exit(1)
	}
	enc := encoder.New(secret)

	analyzerKey, err := cryptobox.LoadPublicKeyPEM(cfg.Keys.AnalyzerPublicKeyPath)
	if err != nil {
		log.Error("failed to load analyzer public key", "error", err)
		os.Exit(1)
	}
	shufflerKey, err := cryptobox.LoadPublicKeyPEM(cfg.Keys.ShufflerPublicKeyPath)
	if err != nil {
		log.Error("failed to load shuffler public key", "error", err)
		os.Exit(1)
	}

	aggregateBackend := protostore.New(cfg.Store.AggregateStorePath)
	historyBackend := protostore.New(cfg.Store.ObsHistoryPath)
	observationBackend := protostore.New(cfg.Store.ObservationStorePath)

	aggStore := aggregate.NewStore(cfg.Scheduler.BackfillDays, aggregateBackend, historyBackend)
	if err := aggStore.Load(); err != nil {
		log.Error("failed to load aggregate store", "error", err)
		os.Exit(1)
	}

	obsStore := envelope.NewStore(envelope.StoreConfig{
		MaxBytesPerObservation: cfg.Store.MaxBytesPerObservation,
		MaxBytesPerEnvelope:    cfg.Store.MaxBytesPerEnvelope,
		MaxBytesTotal:          cfg.Store.MaxBytesTotal,
	}, observationBackend)
	obsStore.SetLogger(log)
	if err := obsStore.LoadFromDisk(); err != nil {
		log.Error("failed to load observation store", "error", err)
		os.Exit(1)
	}

	shufflerClient := shuffler.New(cfg.Shipping.ShufflerEndpoint, cfg.Shipping.RequestTimeout)
	shippingManager := workers.NewShippingManager(obsStore, shufflerClient, log, workers.ShippingManagerConfig{
		SendInterval: cfg.Shipping.SendInterval,
		MinInterval:  cfg.Shipping.MinInterval,
		Scheme:       cryptobox.SchemeHybridECDHV1,
		ShufflerKey:  shufflerKey,
	})

	writer := envelope.NewWriter(obsStore, cryptobox.SchemeHybridECDHV1, analyzerKey, shippingManager, log)

	sysClock := clock.System{}
	eventAggregator := workers.NewEventAggregator(aggStore, enc, writer, sysClock, log, workers.EventAggregatorConfig{
		AggregateBackupInterval: cfg.Scheduler.AggregateBackupInterval,
		GenerateObsInterval:     cfg.Scheduler.GenerateObsInterval,
		GCInterval:              cfg.Scheduler.GCInterval,
	})

	undated := logger.NewUndatedEventManager(undatedEventCapacity, sysClock)
	projectKey := telemetry.ProjectKey{CustomerID: cfg.Registry.CustomerID, ProjectID: cfg.Registry.ProjectID}
	_ = logger.New(reg, projectKey, enc, aggStore, writer, sysClock, clock.AlwaysAccurate{}, undated, log)

	shippingManager.Start()
	eventAggregator.Start()
	log.Info("cobalt-agent started", "customer_id", projectKey.CustomerID, "project_id", projectKey.ProjectID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down cobalt-agent")
	if err := eventAggregator.Shutdown(); err != nil {
		log.Error("error flushing aggregate store on shutdown", "error", err)
	}
	if err := shippingManager.Shutdown(time.Now().Add(cfg.Server.ShutdownTimeout)); err != nil {
		log.Error("error flushing observation store on shutdown", "error", err)
	}
	log.Info("cobalt-agent stopped")
}

// loadOrCreateClientSecret loads the device's persisted ClientSecret from
// path, generating and saving a fresh one on first run. The secret must
// survive restarts: regenerating it would reshuffle cohort assignment and
// PRR masks for every metric on this device (spec.md §3).
func loadOrCreateClientSecret(path string) (encoder.ClientSecret, error) {
	data, err := os.ReadFile(path)
	if err == nil && len(data) == 16 {
		var secret encoder.ClientSecret
		copy(secret[:], data)
		return secret, nil
	}

	secret, err := encoder.NewClientSecret()
	if err != nil {
		return encoder.ClientSecret{}, err
	}
	if err := os.WriteFile(path, secret[:], 0o600); err != nil {
		return encoder.ClientSecret{}, err
	}
	return secret, nil
}
