package logger

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

func newTestLogger(t *testing.T, validator clock.Validator, clk clock.Clock) (*Logger, *envelope.Store, *aggregate.Store) {
	t.Helper()

	metric := registry.Metric{
		ID:             1,
		TimeZonePolicy: registry.UTC,
		Dimensions:     []registry.Dimension{{MaxEventCode: 2}},
		Reports: []registry.Report{
			{ID: 10, Type: registry.SimpleOccurrenceCount, Rappor: &registry.RapporParams{P: 0, Q: 1, NumBits: 8, NumHashes: 1, NumCohorts: 1}},
		},
	}
	reg := registry.New([]registry.Customer{
		{ID: 1, Projects: []registry.Project{
			{ID: 1, Metrics: []registry.Metric{metric}},
		}},
	})

	secret, err := encoder.NewClientSecret()
	require.NoError(t, err)
	enc := encoder.New(secret)

	envStore := envelope.NewStore(envelope.StoreConfig{
		MaxBytesPerObservation: 4096,
		MaxBytesPerEnvelope:    1 << 20,
		MaxBytesTotal:          1 << 20,
	}, nil)
	writer := envelope.NewWriter(envStore, cryptobox.SchemeNone, cryptobox.PublicKey{}, nil, nil)

	dir := t.TempDir()
	aggStore := aggregate.NewStore(0,
		protostore.New(filepath.Join(dir, "aggregates.db")),
		protostore.New(filepath.Join(dir, "history.db")),
	)

	undated := NewUndatedEventManager(8, clk)
	key := telemetry.ProjectKey{CustomerID: 1, ProjectID: 1}
	l := New(reg, key, enc, aggStore, writer, clk, validator, undated, nil)
	return l, envStore, aggStore
}

func TestLogEventImmediateReport(t *testing.T) {
	clk := clock.NewFake(time.Unix(100*86400, 0).UTC())
	validator := clock.NewManualValidator(true)
	l, envStore, _ := newTestLogger(t, validator, clk)

	require.NoError(t, l.LogOccurrence(1, []uint32{1}))

	env, ok := envStore.TakeNextEnvelope()
	require.True(t, ok)
	require.Equal(t, 1, env.NumObservations())
}

// TestLogStringBasicRapporDeterministic runs spec.md §8 scenario 1
// end-to-end through Logger.LogString: a metric with no event-code
// dimensions, logging a named string category through a Basic RAPPOR
// report with p=0, q=1. The Logger/Encoder path must reproduce the exact
// one-hot encoding of the category, same as the encoder-level test.
func TestLogStringBasicRapporDeterministic(t *testing.T) {
	metric := registry.Metric{
		ID:             2,
		TimeZonePolicy: registry.UTC,
		Reports: []registry.Report{
			{ID: 20, Type: registry.SimpleOccurrenceCount, BasicRappor: &registry.BasicRapporParams{
				Categories: []string{"Apple", "Banana", "Cantaloupe"},
				P:          0,
				Q:          1,
			}},
		},
	}
	reg := registry.New([]registry.Customer{
		{ID: 1, Projects: []registry.Project{
			{ID: 1, Metrics: []registry.Metric{metric}},
		}},
	})

	secret, err := encoder.NewClientSecret()
	require.NoError(t, err)
	enc := encoder.New(secret)

	envStore := envelope.NewStore(envelope.StoreConfig{
		MaxBytesPerObservation: 4096,
		MaxBytesPerEnvelope:    1 << 20,
		MaxBytesTotal:          1 << 20,
	}, nil)
	writer := envelope.NewWriter(envStore, cryptobox.SchemeNone, cryptobox.PublicKey{}, nil, nil)

	dir := t.TempDir()
	aggStore := aggregate.NewStore(0,
		protostore.New(filepath.Join(dir, "aggregates.db")),
		protostore.New(filepath.Join(dir, "history.db")),
	)

	clk := clock.NewFake(time.Unix(100*86400, 0).UTC())
	validator := clock.NewManualValidator(true)
	undated := NewUndatedEventManager(8, clk)
	key := telemetry.ProjectKey{CustomerID: 1, ProjectID: 1}
	l := New(reg, key, enc, aggStore, writer, clk, validator, undated, nil)

	require.NoError(t, l.LogString(2, "Banana"))

	env, ok := envStore.TakeNextEnvelope()
	require.True(t, ok)
	require.Equal(t, 1, env.NumObservations())
	require.Len(t, env.Batches, 1)
	require.Len(t, env.Batches[0].EncryptedObservations, 1)

	obs, err := telemetry.UnmarshalObservation(env.Batches[0].EncryptedObservations[0].Ciphertext)
	require.NoError(t, err)
	rappor, ok := obs.(telemetry.BasicRapporObservation)
	require.True(t, ok)
	require.Len(t, rappor.Bits, 1)
	require.Equal(t, byte(0b010), rappor.Bits[0])
}

func TestLogEventUnknownMetric(t *testing.T) {
	clk := clock.NewFake(time.Now())
	validator := clock.NewManualValidator(true)
	l, _, _ := newTestLogger(t, validator, clk)

	err := l.LogOccurrence(999, []uint32{0})
	require.Error(t, err)
}

func TestClockAccuracyDiversion(t *testing.T) {
	clk := clock.NewFake(time.Unix(100*86400, 0).UTC())
	validator := clock.NewManualValidator(false)
	l, envStore, _ := newTestLogger(t, validator, clk)

	require.NoError(t, l.LogOccurrence(1, []uint32{1}))

	_, ok := envStore.TakeNextEnvelope()
	require.False(t, ok, "no observation should be written while the clock is inaccurate")
	require.Equal(t, 1, l.undated.Len())

	validator.SetAccurate(true)
	require.NoError(t, l.FlushUndated())

	env, ok := envStore.TakeNextEnvelope()
	require.True(t, ok, "the replayed event should have produced an observation")
	require.Equal(t, 1, env.NumObservations())
	require.Equal(t, 0, l.undated.Len())
}
