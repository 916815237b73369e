// Package aggregate implements the AggregateStore spec.md §4.6 describes:
// an in-memory, single-reader/writer-lock-protected map of per-report
// rolling aggregates, with garbage collection and observation generation.
// Built as a repository-behind-a-service-struct, in-memory rather than
// SQL-backed since this core's durable state is a pair of flat proto files
// (spec.md §5), not a relational store.
package aggregate

import (
	"sort"
	"sync"

	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/infrastructure/protostore"
	"cobalt/pkg/cobalterr"
)

// reportConfig is the registry metadata generate_observations and
// garbage_collect need for one report: its metric (for time zone and
// dimension bounds) and the report itself (for windows/aggregation type).
type reportConfig struct {
	metric  registry.Metric
	report  registry.Report
	windows []registry.AggregationWindow
}

// Store is the AggregateStore (spec.md §4.6). All public methods acquire
// mu; generation code should call CopyStore to traverse a snapshot without
// holding the lock for the duration of a (potentially slow) pass.
type Store struct {
	mu      sync.RWMutex
	data    *telemetry.LocalAggregateStore
	history *telemetry.AggregatedObservationHistoryStore

	configs  map[string]reportConfig
	disabled bool

	backfillDays uint32

	aggregateBackend *protostore.ConsistentProtoStore
	historyBackend   *protostore.ConsistentProtoStore
}

// NewStore constructs an empty Store backed by the given durable stores.
func NewStore(backfillDays uint32, aggregateBackend, historyBackend *protostore.ConsistentProtoStore) *Store {
	return &Store{
		data:             telemetry.NewLocalAggregateStore(),
		history:          telemetry.NewAggregatedObservationHistoryStore(),
		configs:          make(map[string]reportConfig),
		backfillDays:     backfillDays,
		aggregateBackend: aggregateBackend,
		historyBackend:   historyBackend,
	}
}

// Load restores state from the durable backends, applying MaybeUpgrade to
// the aggregate store (spec.md §4.6 upgrade procedure) and resetting to
// empty for any history-store version but the current one (spec.md §9).
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok, err := s.aggregateBackend.Load(); err != nil {
		return err
	} else if ok {
		store, err := telemetry.UnmarshalLocalAggregateStore(raw)
		if err != nil {
			store = telemetry.NewLocalAggregateStore()
		}
		upgraded, err := MaybeUpgrade(store)
		if err != nil {
			upgraded = telemetry.NewLocalAggregateStore()
		}
		s.data = upgraded
	}

	if raw, ok, err := s.historyBackend.Load(); err != nil {
		return err
	} else if ok {
		history, err := telemetry.UnmarshalHistoryStore(raw)
		if err != nil {
			history = telemetry.NewAggregatedObservationHistoryStore()
		}
		s.history = history
	}
	return nil
}

// MaybeUpgrade implements spec.md §4.6's upgrade procedure. Version 0 is
// upgraded in place (legacy day-count window_size lists are already stored
// in the sorted AggregationWindowSpec-shaped form by this implementation,
// so the only change is the version stamp — SPEC_FULL.md §C.2); any other
// unrecognized version resets to an empty store.
func MaybeUpgrade(store *telemetry.LocalAggregateStore) (*telemetry.LocalAggregateStore, error) {
	switch store.Version {
	case 1:
		return store, nil
	case 0:
		store.Version = 1
		return store, nil
	default:
		return telemetry.NewLocalAggregateStore(), nil
	}
}

// MaybeInsertReportConfig idempotently creates the zero-valued
// ReportAggregates entry for key, of the type report.Type dictates.
func (s *Store) MaybeInsertReportConfig(key telemetry.ReportAggregationKey, metric registry.Metric, report registry.Report) error {
	for _, w := range report.Windows {
		if err := w.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	encKey := key.Encode()
	if _, ok := s.configs[encKey]; ok {
		return nil
	}

	var ra telemetry.ReportAggregates
	switch report.Type {
	case registry.UniqueNDayActives:
		ra.UniqueActives = telemetry.NewUniqueActivesAggregates()
	case registry.PerDeviceCount, registry.PerDeviceHistogram, registry.PerDeviceNumericStats:
		ra.Numeric = telemetry.NewNumericAggregates()
	default:
		return cobalterr.NewInvalidArguments("report type has no local-aggregate form")
	}

	s.data.Entries[encKey] = &ra
	s.configs[encKey] = reportConfig{metric: metric, report: report, windows: normalizeWindows(report.Windows)}
	return nil
}

// normalizeWindows orders a report's aggregation windows hour-windows first
// (ascending), then day-windows ascending, mirroring the original
// implementation's PopulateAggregationConfig (SPEC_FULL.md §C.1).
func normalizeWindows(windows []registry.AggregationWindow) []registry.AggregationWindow {
	out := make([]registry.AggregationWindow, len(windows))
	copy(out, windows)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Unit != out[j].Unit {
			return out[i].Unit == registry.WindowHours
		}
		return out[i].Count < out[j].Count
	})
	return out
}

// SetActive marks UniqueActives activity for eventCode on dayIndex. No-op
// if the store is disabled or the key has no UniqueActives config.
func (s *Store) SetActive(key telemetry.ReportAggregationKey, eventCode, dayIndex uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return
	}

	encKey := key.Encode()
	ra, ok := s.data.Entries[encKey]
	if !ok || ra.UniqueActives == nil {
		return
	}
	ua := ra.UniqueActives
	if ua.ByDay[dayIndex] == nil {
		ua.ByDay[dayIndex] = make(map[uint32]bool)
	}
	ua.ByDay[dayIndex][eventCode] = true
}

// UpdateNumeric combines value into the per-day cell for
// (component, packedEventCodes) on dayIndex, using the report's
// aggregation_type (spec.md §4.6). No-op if the store is disabled or the
// key has no numeric config.
func (s *Store) UpdateNumeric(key telemetry.ReportAggregationKey, component string, packedEventCodes uint64, dayIndex uint32, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return
	}

	encKey := key.Encode()
	ra, ok := s.data.Entries[encKey]
	if !ok || ra.Numeric == nil {
		return
	}
	cfg, ok := s.configs[encKey]
	if !ok {
		return
	}

	na := ra.Numeric
	nk := telemetry.NumericKey{Component: component, Codes: packedEventCodes}
	if na.ByDay[nk] == nil {
		na.ByDay[nk] = make(map[uint32]int64)
	}

	old, had := na.ByDay[nk][dayIndex]
	switch cfg.report.AggregationType {
	case registry.Sum:
		if had {
			na.ByDay[nk][dayIndex] = old + value
		} else {
			na.ByDay[nk][dayIndex] = value
		}
	case registry.Max:
		if had && old > value {
			na.ByDay[nk][dayIndex] = old
		} else {
			na.ByDay[nk][dayIndex] = value
		}
	case registry.Min:
		if had && old < value {
			na.ByDay[nk][dayIndex] = old
		} else {
			na.ByDay[nk][dayIndex] = value
		}
	default:
		na.ByDay[nk][dayIndex] = value
	}
}

// Disable toggles the disabled flag. While disabled, SetActive and
// UpdateNumeric silently succeed without mutating state.
func (s *Store) Disable(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = disabled
}

// DeleteData replaces the store with an empty template and zeroes the
// observation history.
func (s *Store) DeleteData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = telemetry.NewLocalAggregateStore()
	s.history = telemetry.NewAggregatedObservationHistoryStore()
}

// CopyStore clones the aggregate map under lock for safe read-only
// traversal by generation code outside the lock (spec.md §4.6, §5).
func (s *Store) CopyStore() *telemetry.LocalAggregateStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyLocalAggregateStore(s.data)
}

// BackUp writes the current aggregate map to disk via the
// ConsistentProtoStore (spec.md §4.6 back_up(), §5 write-tmp-then-rename).
func (s *Store) BackUp() error {
	s.mu.RLock()
	data := copyLocalAggregateStore(s.data)
	s.mu.RUnlock()

	raw, err := telemetry.MarshalLocalAggregateStore(data)
	if err != nil {
		return err
	}
	return s.aggregateBackend.Save(raw)
}

// BackUpHistory writes the observation history to disk.
func (s *Store) BackUpHistory() error {
	s.mu.RLock()
	raw, err := telemetry.MarshalHistoryStore(s.history)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return s.historyBackend.Save(raw)
}
