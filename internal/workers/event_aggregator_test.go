package workers

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/core/services/telemetry/aggregate"
	"cobalt/internal/core/services/telemetry/encoder"
	"cobalt/internal/core/services/telemetry/envelope"
	"cobalt/internal/infrastructure/protostore"
	"cobalt/pkg/clock"
	"cobalt/pkg/cryptobox"
)

func newTestAggregateStore(t *testing.T) *aggregate.Store {
	t.Helper()
	dir := t.TempDir()
	aggBackend := protostore.New(filepath.Join(dir, "aggregates.db"))
	histBackend := protostore.New(filepath.Join(dir, "history.db"))
	store := aggregate.NewStore(0, aggBackend, histBackend)
	require.NoError(t, store.Load())
	return store
}

func newTestObservationWriter(t *testing.T) (*envelope.Writer, *envelope.Store) {
	t.Helper()
	store := envelope.NewStore(envelope.StoreConfig{
		MaxBytesPerObservation: 4096,
		MaxBytesPerEnvelope:    1 << 20,
		MaxBytesTotal:          1 << 20,
	}, nil)
	writer := envelope.NewWriter(store, cryptobox.SchemeNone, cryptobox.PublicKey{}, nil, discardLogger())
	return writer, store
}

var eventAggregatorTestMetric = registry.Metric{
	ID:         1,
	Dimensions: []registry.Dimension{{MaxEventCode: 1}},
}

var eventAggregatorTestReport = registry.Report{
	ID:   10,
	Type: registry.UniqueNDayActives,
	Windows: []registry.AggregationWindow{
		{Unit: registry.WindowDays, Count: 1},
	},
}

func TestEventAggregatorStartStopWithFastBackupTicks(t *testing.T) {
	store := newTestAggregateStore(t)
	enc := encoder.New(encoder.ClientSecret{})
	writer, _ := newTestObservationWriter(t)
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))

	w := NewEventAggregator(store, enc, writer, fake, discardLogger(), EventAggregatorConfig{
		AggregateBackupInterval: 10 * time.Millisecond,
		GenerateObsInterval:     time.Hour,
		GCInterval:              time.Hour,
	})
	w.Start()
	time.Sleep(50 * time.Millisecond)
	w.Stop()
}

func TestEventAggregatorGeneratesOnSchedule(t *testing.T) {
	store := newTestAggregateStore(t)
	enc := encoder.New(encoder.ClientSecret{})
	writer, envStore := newTestObservationWriter(t)
	// The ticker always delivers real wall-clock tick times regardless of
	// the injected Clock (only the initial next_generate/next_gc baseline
	// comes from clk.Now()), so the day under test must be computed from
	// the real clock too, or GenerateObservations would never see a
	// matching day's activity.
	sysClock := clock.System{}
	dayUTC := sysClock.DayIndex(sysClock.Now(), clock.UTC)

	key := telemetry.ReportAggregationKey{
		ProjectKey:     telemetry.ProjectKey{CustomerID: 1, ProjectID: 1},
		MetricReportId: telemetry.MetricReportId{MetricID: 1, ReportID: 10},
	}
	require.NoError(t, store.MaybeInsertReportConfig(key, eventAggregatorTestMetric, eventAggregatorTestReport))
	// The worker's loop generates for the day before the tick's day
	// (dayUTC-1), so activity must be recorded there to be picked up.
	store.SetActive(key, 0, dayUTC-1)

	w := NewEventAggregator(store, enc, writer, sysClock, discardLogger(), EventAggregatorConfig{
		AggregateBackupInterval: 10 * time.Millisecond,
		GenerateObsInterval:     10 * time.Millisecond,
		GCInterval:              time.Hour,
	})
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		_, ok := envStore.TakeNextEnvelope()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestEventAggregatorShutdownFlushesBothStores(t *testing.T) {
	store := newTestAggregateStore(t)
	enc := encoder.New(encoder.ClientSecret{})
	writer, _ := newTestObservationWriter(t)
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))

	w := NewEventAggregator(store, enc, writer, fake, discardLogger(), EventAggregatorConfig{
		AggregateBackupInterval: time.Hour,
		GenerateObsInterval:     time.Hour,
		GCInterval:              time.Hour,
	})
	w.Start()
	require.NoError(t, w.Shutdown())
}
