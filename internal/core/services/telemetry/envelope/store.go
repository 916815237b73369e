package envelope

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/infrastructure/protostore"
	"cobalt/pkg/cobalterr"
	"cobalt/pkg/logging"
)

// dropLogWindow/dropLogBurst bound how often this package's drop paths
// (StoreFull, observation write failure) get logged under sustained
// pressure, per spec.md §7's "log first N then suppress" discipline for
// self-amplifying error volumes.
const (
	dropLogWindow = 10 * time.Second
	dropLogBurst  = 3
)

var (
	observationsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobalt_observations_rejected_total",
			Help: "Observations rejected by the ObservationStore, by reason.",
		},
		[]string{"reason"},
	)
	observationsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cobalt_observations_written_total",
			Help: "Observations accepted into the ObservationStore.",
		},
	)
)

func init() {
	prometheus.MustRegister(observationsRejectedTotal, observationsWrittenTotal)
}

// StoreConfig bounds the ObservationStore's three byte budgets
// (spec.md §4.3).
type StoreConfig struct {
	MaxBytesPerObservation int
	MaxBytesPerEnvelope    int
	MaxBytesTotal          int
}

// Store is the append-mostly, size-budgeted buffer spec.md §4.3 describes.
// It groups incoming observations into Envelopes by ObservationMetadata and
// hands completed Envelopes to the shipping layer via TakeNextEnvelope.
type Store struct {
	mu         sync.Mutex
	cfg        StoreConfig
	current    *EnvelopeMaker
	completed  []telemetry.Envelope
	totalUsed  int
	backend    *protostore.ConsistentProtoStore
	dropLogger *logging.RateLimited
}

// NewStore constructs an empty Store. backend may be nil, in which case
// FlushToDisk/LoadFromDisk are no-ops — useful for tests that never exercise
// the durability path.
func NewStore(cfg StoreConfig, backend *protostore.ConsistentProtoStore) *Store {
	return &Store{
		cfg:     cfg,
		current: NewEnvelopeMaker(cfg.MaxBytesPerObservation, cfg.MaxBytesPerEnvelope),
		backend: backend,
	}
}

// SetLogger installs a rate-limited logger for the StoreFull drop path.
// Optional; without it, drops are still counted by
// cobalt_observations_rejected_total but go unlogged.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.dropLogger = logging.NewRateLimited(logger, dropLogWindow, dropLogBurst)
}

// LoadFromDisk restores any envelopes a prior FlushToDisk persisted,
// pushing them onto the front of the completed queue so they ship before
// anything newly written this run.
func (s *Store) LoadFromDisk() error {
	if s.backend == nil {
		return nil
	}
	raw, ok, err := s.backend.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	envs, err := telemetry.UnmarshalEnvelopeList(raw)
	if err != nil {
		return cobalterr.NewOther("failed to restore observation store from disk", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range envs {
		s.totalUsed += env.Size()
	}
	s.completed = append(envs, s.completed...)
	return nil
}

// FlushToDisk persists every pending envelope (completed plus any
// in-progress one) so a clean shutdown doesn't lose buffered observations
// (spec.md §4.5: "shutdown() ... flushes the ObservationStore to disk").
func (s *Store) FlushToDisk() error {
	if s.backend == nil {
		return nil
	}

	s.mu.Lock()
	envs := make([]telemetry.Envelope, 0, len(s.completed)+1)
	envs = append(envs, s.completed...)
	if !s.current.IsEmpty() {
		envs = append(envs, s.current.Take())
	}
	s.mu.Unlock()

	raw, err := telemetry.MarshalEnvelopeList(envs)
	if err != nil {
		return err
	}
	return s.backend.Save(raw)
}

// Write accepts one encrypted observation, closing and enqueueing the
// current envelope if it's full and opening a fresh one to hold the new
// observation. Returns ObservationTooBig if the observation alone exceeds
// MaxBytesPerObservation, or StoreFull if the store's total byte budget is
// exhausted.
func (s *Store) Write(meta telemetry.ObservationMetadata, encObs telemetry.EncryptedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := len(encObs.Ciphertext)
	if size > s.cfg.MaxBytesPerObservation {
		observationsRejectedTotal.WithLabelValues("too_big").Inc()
		return cobalterr.NewObservationTooBig("observation exceeds max_bytes_per_observation")
	}
	if s.totalUsed+size > s.cfg.MaxBytesTotal {
		observationsRejectedTotal.WithLabelValues("store_full").Inc()
		if s.dropLogger != nil {
			s.dropLogger.Warn("observation store full, dropping observation",
				"metric_id", meta.MetricID,
				"report_id", meta.ReportID,
				"total_used", s.totalUsed,
				"max_bytes_total", s.cfg.MaxBytesTotal,
			)
		}
		return cobalterr.NewStoreFull("observation store exceeds max_bytes_total")
	}

	if err := s.current.Accept(meta, encObs); err != nil {
		if e, ok := cobalterr.As(err); ok && e.Kind == cobalterr.StoreFull {
			s.closeCurrent()
			if err := s.current.Accept(meta, encObs); err != nil {
				observationsRejectedTotal.WithLabelValues("write_failed").Inc()
				return cobalterr.NewWriteFailed("observation rejected by fresh envelope maker", err)
			}
		} else {
			observationsRejectedTotal.WithLabelValues("write_failed").Inc()
			return err
		}
	}

	s.totalUsed += size
	observationsWrittenTotal.Inc()
	return nil
}

// closeCurrent moves the current envelope to the completed queue and opens
// a fresh one. Caller must hold s.mu.
func (s *Store) closeCurrent() {
	if !s.current.IsEmpty() {
		s.completed = append(s.completed, s.current.Take())
	} else {
		s.current.Clear()
	}
	s.current = NewEnvelopeMaker(s.cfg.MaxBytesPerObservation, s.cfg.MaxBytesPerEnvelope)
}

// TakeNextEnvelope atomically removes and returns the oldest completed
// envelope, falling back to the in-progress one if no closed envelope is
// queued (spec.md §4.3). Returns false if the store holds nothing.
func (s *Store) TakeNextEnvelope() (telemetry.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.completed) > 0 {
		env := s.completed[0]
		s.completed = s.completed[1:]
		s.totalUsed -= env.Size()
		return env, true
	}
	if !s.current.IsEmpty() {
		env := s.current.Take()
		s.totalUsed -= env.Size()
		return env, true
	}
	return telemetry.Envelope{}, false
}

// Size returns the store's current total observation payload size.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalUsed
}

// Requeue puts env back at the front of the completed queue. The
// ShippingManager's own backoff loop retries a failed upload in-memory
// without calling this; Requeue exists for callers that pull an envelope
// out via TakeNextEnvelope and later decide, outside that retry loop, that
// it still needs to go out.
func (s *Store) Requeue(env telemetry.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append([]telemetry.Envelope{env}, s.completed...)
	s.totalUsed += env.Size()
}
