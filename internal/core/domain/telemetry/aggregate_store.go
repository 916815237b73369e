package telemetry

// currentLocalAggregateStoreVersion is bumped whenever the on-disk schema
// of LocalAggregateStore changes. The serialized store carries no
// aggregation windows in either version 0 or version 1 (current); windows
// come from the registry at MaybeInsertReportConfig time, so a version-0
// store is read with the same layout and only restamped
// (spec.md §9 Open Question; SPEC_FULL.md §C.2).
const currentLocalAggregateStoreVersion = 1

// ReportAggregates is the per-(customer,project,metric,report) aggregation
// state held by the AggregateStore (spec.md §4.6). Exactly one of
// UniqueActives or Numeric is populated, per the report's aggregate form.
type ReportAggregates struct {
	UniqueActives *UniqueActivesAggregates
	Numeric       *NumericAggregates
}

// UniqueActivesAggregates tracks per-event-code daily activity indicators
// and the last day generate_observations has already emitted for each
// (event_code, window) pair.
type UniqueActivesAggregates struct {
	// ByDay[day_index][event_code] = true if any activity was recorded.
	ByDay map[uint32]map[uint32]bool
	// LastGenerated[event_code][window_days] = last obs_day generated.
	LastGenerated map[uint32]map[uint32]uint32
}

// NewUniqueActivesAggregates returns an empty aggregates value.
func NewUniqueActivesAggregates() *UniqueActivesAggregates {
	return &UniqueActivesAggregates{
		ByDay:         make(map[uint32]map[uint32]bool),
		LastGenerated: make(map[uint32]map[uint32]uint32),
	}
}

// NumericKey identifies one (component, packed_event_codes) series within a
// NumericAggregates (SPEC_FULL.md §C.4: last_generated keyed per-component,
// not just per-report).
type NumericKey struct {
	Component string
	Codes     uint64
}

// NumericAggregates tracks per-(component, packed_event_codes) daily
// combined values and the last day generated per window.
type NumericAggregates struct {
	// ByDay[key][day_index] = combined value for that single day.
	ByDay map[NumericKey]map[uint32]int64
	// LastGenerated[key][window_days] = last obs_day generated.
	LastGenerated map[NumericKey]map[uint32]uint32
}

// NewNumericAggregates returns an empty aggregates value.
func NewNumericAggregates() *NumericAggregates {
	return &NumericAggregates{
		ByDay:         make(map[NumericKey]map[uint32]int64),
		LastGenerated: make(map[NumericKey]map[uint32]uint32),
	}
}

// LocalAggregateStore is the serializable snapshot of every ReportAggregates
// entry, keyed by the base64-encoded ReportAggregationKey (spec.md §4.6,
// §5 "copy-on-read").
type LocalAggregateStore struct {
	Version int
	Entries map[string]*ReportAggregates
}

// NewLocalAggregateStore returns an empty, current-version store.
func NewLocalAggregateStore() *LocalAggregateStore {
	return &LocalAggregateStore{
		Version: currentLocalAggregateStoreVersion,
		Entries: make(map[string]*ReportAggregates),
	}
}

// AggregatedObservationHistoryStore records, per (report, key), the last
// obs_day_index a ReportParticipation pass has already covered. The
// UniqueActives/Numeric per-window last_generated cursors (above, in
// ReportAggregates) are not duplicated here: they live with the data they
// gate so a restart never re-derives them from a separate file that could
// drift out of sync with LocalAggregateStore. One consequence: spec.md
// §8's "wipe AggregatedObservationHistoryStore and the next run re-emits"
// property holds only for ReportParticipation markers. Wiping this store
// without also wiping LocalAggregateStore does not re-emit UniqueActives
// or numeric observations, since their cursors survive in the other file.
// It has no version-upgrade path (spec.md §9 Open Question; SPEC_FULL.md §C.3).
type AggregatedObservationHistoryStore struct {
	Version int
	// LastGeneratedDay[ReportAggregationKey.Encode()] = last obs_day the
	// ReportParticipation marker was emitted for.
	LastGeneratedDay map[string]uint32
}

// NewAggregatedObservationHistoryStore returns an empty history store.
func NewAggregatedObservationHistoryStore() *AggregatedObservationHistoryStore {
	return &AggregatedObservationHistoryStore{
		LastGeneratedDay: make(map[string]uint32),
	}
}
