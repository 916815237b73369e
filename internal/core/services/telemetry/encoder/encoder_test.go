package encoder

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
)

func testSecret(t *testing.T) ClientSecret {
	t.Helper()
	s, err := NewClientSecret()
	require.NoError(t, err)
	return s
}

// Scenario 1 (spec.md §8): Basic RAPPOR with p=0, q=1 reproduces the
// one-hot encoding of the category exactly.
func TestBasicRapporDeterministic(t *testing.T) {
	params := registry.BasicRapporParams{
		Categories: []string{"Apple", "Banana", "Cantaloupe"},
		P:          0,
		Q:          1,
	}
	obs, err := EncodeBasicRappor(testSecret(t), params, "Banana")
	require.NoError(t, err)
	require.Len(t, obs.Bits, 1)
	assert.Equal(t, byte(0b010), obs.Bits[0])
}

func TestBasicRapporUnknownCategory(t *testing.T) {
	params := registry.BasicRapporParams{Categories: []string{"Apple"}, P: 0, Q: 1}
	_, err := EncodeBasicRappor(testSecret(t), params, "Durian")
	require.Error(t, err)
}

func TestStringRapporCohortDeterministic(t *testing.T) {
	secret := testSecret(t)
	params := registry.RapporParams{P: 0, Q: 1, NumBits: 16, NumHashes: 2, NumCohorts: 4}
	obs1, err := EncodeStringRappor(secret, params, 7, "hello")
	require.NoError(t, err)
	obs2, err := EncodeStringRappor(secret, params, 7, "hello")
	require.NoError(t, err)
	assert.Equal(t, obs1.Cohort, obs2.Cohort)
	assert.Equal(t, obs1.Bits, obs2.Bits)
}

// TestForculusRoundTrip verifies the actual round-trip law spec.md §8
// requires: threshold points on the same degree-(threshold-1) polynomial
// whose constant term is the secret value recover that value exactly via
// Lagrange interpolation. EncodeForculus itself only ever produces one
// point from a fresh polynomial per call (the real per-device behavior),
// so this test builds the shared polynomial directly to exercise
// ReconstructForculusSecret the way a server combining `threshold` devices'
// points would.
func TestForculusRoundTrip(t *testing.T) {
	value := []byte("report-me")
	threshold := uint32(3)
	secret := new(big.Int).SetBytes(value)

	coeffs := make([]*big.Int, threshold)
	coeffs[0] = secret
	for i := uint32(1); i < threshold; i++ {
		c, err := rand.Int(rand.Reader, forculusPrime)
		require.NoError(t, err)
		coeffs[i] = c
	}

	points := make([]ForculusPoint, threshold)
	for i := range points {
		x, err := rand.Int(rand.Reader, forculusPrime)
		require.NoError(t, err)
		points[i] = ForculusPoint{X: x, Y: evalPolynomial(coeffs, x)}
	}

	recovered, err := ReconstructForculusSecret(points)
	require.NoError(t, err)
	assert.Equal(t, secret, new(big.Int).SetBytes(recovered))
}

func TestEncodeUniqueActives(t *testing.T) {
	e := New(testSecret(t))
	metric := registry.Metric{ID: 1}
	report := registry.Report{ID: 2}
	window := registry.AggregationWindow{Unit: registry.WindowDays, Count: 7}

	result, err := e.EncodeUniqueActives(metric, report, 100, 3, true, window)
	require.NoError(t, err)
	obs, ok := result.Observation.(telemetry.UniqueActivesObservation)
	require.True(t, ok)
	assert.Equal(t, uint32(3), obs.EventCode)
	assert.True(t, obs.Active)
	assert.Equal(t, uint32(7), obs.Window.Days)
	assert.Equal(t, uint32(100), result.Metadata.DayIndex)
}

func TestEncodeImmediateRejectsWrongVariant(t *testing.T) {
	e := New(testSecret(t))
	metric := registry.Metric{ID: 1}
	report := registry.Report{ID: 2, Type: registry.Forculus, Forculus: &registry.ForculusParams{Threshold: 2}}

	_, err := e.EncodeImmediate(telemetry.OccurrenceEvent{}, metric, report)
	require.Error(t, err)
}
