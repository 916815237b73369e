// Package workers holds the two background loops spec.md §4.5 and §4.7
// describe, built on the ticker+quit-channel convention used throughout
// internal/workers.
package workers

import (
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"cobalt/internal/core/services/telemetry/aggregate"
	"cobalt/internal/core/services/telemetry/encoder"
	"cobalt/internal/core/services/telemetry/envelope"
	"cobalt/pkg/clock"
)

// kMinDay guards generate_observations/garbage_collect against underflowing
// into negative day indices near the Unix epoch (spec.md §4.7 loop: "if
// day_utc < kMinDay or day_local < kMinDay: continue").
const kMinDay = 1

// EventAggregatorConfig carries the three independent schedules the
// EventAggregator's loop runs on (spec.md §4.7).
type EventAggregatorConfig struct {
	AggregateBackupInterval time.Duration
	GenerateObsInterval     time.Duration
	GCInterval              time.Duration
}

// EventAggregator owns the AggregateStore and the single worker goroutine
// that backs it up, generates observations from it, and garbage-collects
// it on independent schedules (spec.md §4.7).
type EventAggregator struct {
	store  *aggregate.Store
	enc    *encoder.Encoder
	writer *envelope.Writer
	clk    clock.Clock
	logger *slog.Logger
	cfg    EventAggregatorConfig

	ticker *time.Ticker
	quit   chan struct{}
	done   chan struct{}
}

// NewEventAggregator builds an EventAggregator. The loop ticks at
// cfg.AggregateBackupInterval and only re-evaluates next_generate/next_gc
// on each tick, so that interval should divide evenly (or closely) into
// cfg's other two intervals.
func NewEventAggregator(store *aggregate.Store, enc *encoder.Encoder, writer *envelope.Writer, clk clock.Clock, logger *slog.Logger, cfg EventAggregatorConfig) *EventAggregator {
	return &EventAggregator{
		store:  store,
		enc:    enc,
		writer: writer,
		clk:    clk,
		logger: logger,
		cfg:    cfg,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs the worker loop in its own goroutine, ticking at
// AggregateBackupInterval (spec.md §4.7's "sleep until next_backup").
func (w *EventAggregator) Start() {
	w.logger.Info("starting event aggregator",
		"aggregate_backup_interval", w.cfg.AggregateBackupInterval,
		"generate_obs_interval", w.cfg.GenerateObsInterval,
		"gc_interval", w.cfg.GCInterval,
	)
	w.ticker = time.NewTicker(w.cfg.AggregateBackupInterval)

	go w.run()
}

// Stop signals the worker and blocks until it has exited.
func (w *EventAggregator) Stop() {
	w.logger.Info("stopping event aggregator")
	close(w.quit)
	<-w.done
}

// Shutdown stops the worker loop, then flushes the aggregate store and its
// observation history backup concurrently before returning, so a process
// exit never leaves one file stale relative to the other.
func (w *EventAggregator) Shutdown() error {
	w.Stop()

	var g errgroup.Group
	g.Go(w.store.BackUp)
	g.Go(w.store.BackUpHistory)
	return g.Wait()
}

func (w *EventAggregator) run() {
	defer close(w.done)

	now := w.clk.Now()
	nextGenerate := now
	nextGC := now.Add(w.cfg.GCInterval)

	for {
		select {
		case <-w.quit:
			w.ticker.Stop()
			return
		case tick := <-w.ticker.C:
			if err := w.store.BackUp(); err != nil {
				w.logger.Error("aggregate store backup failed", "error", err)
			}

			dayUTC := w.clk.DayIndex(tick, clock.UTC)
			dayLocal := w.clk.DayIndex(tick, clock.Local)
			if dayUTC < kMinDay || dayLocal < kMinDay {
				continue
			}

			if !tick.Before(nextGenerate) {
				if err := w.store.GenerateObservations(dayUTC-1, dayLocal-1, w.enc, w.writer); err != nil {
					w.logger.Error("generate_observations failed", "error", err)
				}
				if err := w.store.BackUpHistory(); err != nil {
					w.logger.Error("observation history backup failed", "error", err)
				}
				nextGenerate = nextGenerate.Add(w.cfg.GenerateObsInterval)
			}

			if !tick.Before(nextGC) {
				w.store.GarbageCollect(dayUTC-1, dayLocal-1)
				if err := w.store.BackUp(); err != nil {
					w.logger.Error("aggregate store backup failed", "error", err)
				}
				nextGC = nextGC.Add(w.cfg.GCInterval)
			}
		}
	}
}
