package aggregate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/core/services/telemetry/encoder"
	"cobalt/internal/core/services/telemetry/envelope"
	"cobalt/internal/infrastructure/protostore"
	"cobalt/pkg/cryptobox"
)

func newTestStore(t *testing.T, backfillDays uint32) *Store {
	t.Helper()
	dir := t.TempDir()
	aggBackend := protostore.New(filepath.Join(dir, "aggregates.db"))
	histBackend := protostore.New(filepath.Join(dir, "history.db"))
	return NewStore(backfillDays, aggBackend, histBackend)
}

func newTestWriter(t *testing.T) (*envelope.Writer, *envelope.Store) {
	t.Helper()
	store := envelope.NewStore(envelope.StoreConfig{
		MaxBytesPerObservation: 4096,
		MaxBytesPerEnvelope:    1 << 20,
		MaxBytesTotal:          1 << 20,
	}, nil)
	writer := envelope.NewWriter(store, cryptobox.SchemeNone, cryptobox.PublicKey{}, nil, nil)
	return writer, store
}

func countObservations(t *testing.T, store *envelope.Store) int {
	t.Helper()
	total := 0
	for {
		env, ok := store.TakeNextEnvelope()
		if !ok {
			break
		}
		total += env.NumObservations()
	}
	return total
}

var uniqueActivesMetric = registry.Metric{
	ID:         1,
	Dimensions: []registry.Dimension{{MaxEventCode: 2}},
}

var uniqueActivesReport = registry.Report{
	ID:   10,
	Type: registry.UniqueNDayActives,
	Windows: []registry.AggregationWindow{
		{Unit: registry.WindowDays, Count: 1},
	},
}

func TestGenerateUniqueActivesSingleDay(t *testing.T) {
	store := newTestStore(t, 0)
	enc := encoder.New(encoder.ClientSecret{})
	writer, envStore := newTestWriter(t)

	key := telemetry.ReportAggregationKey{
		ProjectKey:     telemetry.ProjectKey{CustomerID: 1, ProjectID: 1},
		MetricReportId: telemetry.MetricReportId{MetricID: 1, ReportID: 10},
	}
	require.NoError(t, store.MaybeInsertReportConfig(key, uniqueActivesMetric, uniqueActivesReport))

	store.SetActive(key, 1, 100)

	require.NoError(t, store.GenerateObservations(100, 100, enc, writer))

	// Three possible event codes (0,1,2), one day-window: exactly 3
	// UniqueActives observations, plus one ReportParticipation marker.
	require.Equal(t, 4, countObservations(t, envStore))
}

func TestGenerateUniqueActivesIdempotent(t *testing.T) {
	store := newTestStore(t, 0)
	enc := encoder.New(encoder.ClientSecret{})
	writer, envStore := newTestWriter(t)

	key := telemetry.ReportAggregationKey{
		ProjectKey:     telemetry.ProjectKey{CustomerID: 1, ProjectID: 1},
		MetricReportId: telemetry.MetricReportId{MetricID: 1, ReportID: 10},
	}
	require.NoError(t, store.MaybeInsertReportConfig(key, uniqueActivesMetric, uniqueActivesReport))
	store.SetActive(key, 1, 100)

	require.NoError(t, store.GenerateObservations(100, 100, enc, writer))
	_ = countObservations(t, envStore) // drain

	require.NoError(t, store.GenerateObservations(100, 100, enc, writer))
	require.Equal(t, 0, countObservations(t, envStore), "repeated call with the same final day must not re-emit")
}

var perDeviceCountMetric = registry.Metric{
	ID:         2,
	Dimensions: []registry.Dimension{{MaxEventCode: 0}},
}

var perDeviceCountReport = registry.Report{
	ID:              20,
	Type:            registry.PerDeviceCount,
	AggregationType: registry.Sum,
	Windows: []registry.AggregationWindow{
		{Unit: registry.WindowDays, Count: 7},
	},
}

func TestGeneratePerDeviceCountSum(t *testing.T) {
	store := newTestStore(t, 0)
	enc := encoder.New(encoder.ClientSecret{})
	writer, envStore := newTestWriter(t)

	key := telemetry.ReportAggregationKey{
		ProjectKey:     telemetry.ProjectKey{CustomerID: 1, ProjectID: 1},
		MetricReportId: telemetry.MetricReportId{MetricID: 2, ReportID: 20},
	}
	require.NoError(t, store.MaybeInsertReportConfig(key, perDeviceCountMetric, perDeviceCountReport))

	packed := telemetry.PackEventCodes([]uint32{0})
	store.UpdateNumeric(key, "comp", packed, 95, 3)
	store.UpdateNumeric(key, "comp", packed, 96, 4)

	require.NoError(t, store.GenerateObservations(96, 96, enc, writer))

	// One obs_day (96) for the single 7-day window, plus one
	// ReportParticipation marker for the one day generated (96, since
	// backfill_days=0 means start=final=96).
	require.Equal(t, 2, countObservations(t, envStore))
}

func TestGenerateBackfill(t *testing.T) {
	store := newTestStore(t, 2)
	enc := encoder.New(encoder.ClientSecret{})
	writer, envStore := newTestWriter(t)

	key := telemetry.ReportAggregationKey{
		ProjectKey:     telemetry.ProjectKey{CustomerID: 1, ProjectID: 1},
		MetricReportId: telemetry.MetricReportId{MetricID: 2, ReportID: 20},
	}
	require.NoError(t, store.MaybeInsertReportConfig(key, perDeviceCountMetric, perDeviceCountReport))

	packed := telemetry.PackEventCodes([]uint32{0})
	store.UpdateNumeric(key, "comp", packed, 100, 1)

	require.NoError(t, store.GenerateObservations(100, 100, enc, writer))

	// backfill_days=2, final=100 means obs_day ranges over [98,100]. Only
	// obs_day 100's 7-day window actually covers the one day with data, so
	// exactly one numeric observation is emitted; ReportParticipation still
	// fires for all three obs_days regardless of activity.
	require.Equal(t, 4, countObservations(t, envStore))
}

func TestGenerateMonotonicLastGenerated(t *testing.T) {
	store := newTestStore(t, 0)
	enc := encoder.New(encoder.ClientSecret{})
	writer, envStore := newTestWriter(t)

	key := telemetry.ReportAggregationKey{
		ProjectKey:     telemetry.ProjectKey{CustomerID: 1, ProjectID: 1},
		MetricReportId: telemetry.MetricReportId{MetricID: 2, ReportID: 20},
	}
	require.NoError(t, store.MaybeInsertReportConfig(key, perDeviceCountMetric, perDeviceCountReport))

	packed := telemetry.PackEventCodes([]uint32{0})
	store.UpdateNumeric(key, "comp", packed, 50, 1)
	require.NoError(t, store.GenerateObservations(50, 50, enc, writer))
	_ = countObservations(t, envStore)

	nk := telemetry.NumericKey{Component: "comp", Codes: packed}
	last := store.data.Entries[key.Encode()].Numeric.LastGenerated[nk][7]
	require.Equal(t, uint32(50), last)

	store.UpdateNumeric(key, "comp", packed, 51, 1)
	require.NoError(t, store.GenerateObservations(51, 51, enc, writer))
	got := countObservations(t, envStore)
	require.Equal(t, 2, got, "only obs_day 51 should be newly generated")

	last = store.data.Entries[key.Encode()].Numeric.LastGenerated[nk][7]
	require.Equal(t, uint32(51), last)
}
