package envelope

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/infrastructure/protostore"
	"cobalt/pkg/cobalterr"
)

func testStoreConfig() StoreConfig {
	return StoreConfig{
		MaxBytesPerObservation: 64,
		MaxBytesPerEnvelope:    1 << 20,
		MaxBytesTotal:          1 << 20,
	}
}

func writeTestObservation(t *testing.T, s *Store, dayIndex uint32, payload []byte) {
	t.Helper()
	meta := telemetry.ObservationMetadata{CustomerID: 1, ProjectID: 1, MetricID: 1, ReportID: 1, DayIndex: dayIndex}
	require.NoError(t, s.Write(meta, telemetry.EncryptedMessage{Scheme: telemetry.SchemeNone, Ciphertext: payload}))
}

func TestStoreFlushAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend := protostore.New(filepath.Join(dir, "observations.db"))

	s := NewStore(testStoreConfig(), backend)
	writeTestObservation(t, s, 100, []byte("alpha"))
	writeTestObservation(t, s, 100, []byte("beta"))

	require.NoError(t, s.FlushToDisk())

	restored := NewStore(testStoreConfig(), backend)
	require.NoError(t, restored.LoadFromDisk())

	env, ok := restored.TakeNextEnvelope()
	require.True(t, ok)
	assert.Equal(t, 2, env.NumObservations())

	_, ok = restored.TakeNextEnvelope()
	assert.False(t, ok)
}

func TestStoreLoadFromDiskWithNoPriorFlushIsNoop(t *testing.T) {
	dir := t.TempDir()
	backend := protostore.New(filepath.Join(dir, "observations.db"))

	s := NewStore(testStoreConfig(), backend)
	require.NoError(t, s.LoadFromDisk())
	_, ok := s.TakeNextEnvelope()
	assert.False(t, ok)
}

func TestStoreNilBackendDurabilityIsNoop(t *testing.T) {
	s := NewStore(testStoreConfig(), nil)
	writeTestObservation(t, s, 100, []byte("alpha"))
	require.NoError(t, s.FlushToDisk())
	require.NoError(t, s.LoadFromDisk())

	env, ok := s.TakeNextEnvelope()
	require.True(t, ok)
	assert.Equal(t, 1, env.NumObservations())
}

func TestStoreRequeuePutsEnvelopeBackAtFront(t *testing.T) {
	s := NewStore(testStoreConfig(), nil)
	writeTestObservation(t, s, 100, []byte("first"))
	first, ok := s.TakeNextEnvelope()
	require.True(t, ok)

	writeTestObservation(t, s, 100, []byte("second"))

	s.Requeue(first)

	env, ok := s.TakeNextEnvelope()
	require.True(t, ok)
	assert.Equal(t, first.ID, env.ID)

	_, ok = s.TakeNextEnvelope()
	assert.True(t, ok)
}

func TestStoreRejectsObservationTooBig(t *testing.T) {
	s := NewStore(testStoreConfig(), nil)
	big := make([]byte, testStoreConfig().MaxBytesPerObservation+1)
	meta := telemetry.ObservationMetadata{CustomerID: 1, ProjectID: 1, MetricID: 1, ReportID: 1, DayIndex: 1}
	err := s.Write(meta, telemetry.EncryptedMessage{Scheme: telemetry.SchemeNone, Ciphertext: big})
	require.Error(t, err)
}

func TestStoreRejectsWhenFull(t *testing.T) {
	cfg := StoreConfig{MaxBytesPerObservation: 16, MaxBytesPerEnvelope: 1 << 20, MaxBytesTotal: 20}
	s := NewStore(cfg, nil)
	require.NoError(t, s.Write(telemetry.ObservationMetadata{CustomerID: 1, ProjectID: 1, MetricID: 1, ReportID: 1, DayIndex: 1},
		telemetry.EncryptedMessage{Scheme: telemetry.SchemeNone, Ciphertext: make([]byte, 15)}))

	err := s.Write(telemetry.ObservationMetadata{CustomerID: 1, ProjectID: 1, MetricID: 1, ReportID: 1, DayIndex: 1},
		telemetry.EncryptedMessage{Scheme: telemetry.SchemeNone, Ciphertext: make([]byte, 15)})
	require.Error(t, err)
}

// TestStoreSizeCapScenario runs spec.md §8 scenario 5 verbatim: with
// max_bytes_per_observation=100 and max_bytes_per_envelope=1000, 19
// observations of ~50 bytes fill the store to 950 bytes; a 20th, 101-byte
// observation is rejected as ObservationTooBig without touching totalUsed;
// a following 65-byte observation then overflows max_bytes_total and is
// rejected as StoreFull.
func TestStoreSizeCapScenario(t *testing.T) {
	cfg := StoreConfig{MaxBytesPerObservation: 100, MaxBytesPerEnvelope: 1000, MaxBytesTotal: 1000}
	s := NewStore(cfg, nil)
	meta := telemetry.ObservationMetadata{CustomerID: 1, ProjectID: 1, MetricID: 1, ReportID: 1, DayIndex: 1}

	for i := 0; i < 19; i++ {
		require.NoError(t, s.Write(meta, telemetry.EncryptedMessage{Scheme: telemetry.SchemeNone, Ciphertext: make([]byte, 50)}))
	}
	assert.Equal(t, 950, s.Size())

	err := s.Write(meta, telemetry.EncryptedMessage{Scheme: telemetry.SchemeNone, Ciphertext: make([]byte, 101)})
	require.Error(t, err)
	appErr, ok := cobalterr.As(err)
	require.True(t, ok)
	assert.Equal(t, cobalterr.ObservationTooBig, appErr.Kind)
	assert.Equal(t, 950, s.Size())

	err = s.Write(meta, telemetry.EncryptedMessage{Scheme: telemetry.SchemeNone, Ciphertext: make([]byte, 65)})
	require.Error(t, err)
	appErr, ok = cobalterr.As(err)
	require.True(t, ok)
	assert.Equal(t, cobalterr.StoreFull, appErr.Kind)
}
