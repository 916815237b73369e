package encoder

import (
	"crypto/sha256"

	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
	"cobalt/pkg/cobalterr"
)

// EncodeStringRappor applies a Bloom filter of h hashes over k bits in one
// of m cohorts, then noises each bit with the PRR procedure below
// (spec.md §4.2). The cohort is chosen deterministically from the client
// secret so the same device always reports in the same cohort for a given
// report.
func EncodeStringRappor(secret ClientSecret, params registry.RapporParams, reportID uint32, value string) (telemetry.RapporObservation, error) {
	if params.NumBits == 0 || params.NumHashes == 0 || params.NumCohorts == 0 {
		return telemetry.RapporObservation{}, cobalterr.NewInvalidConfig("RAPPOR report missing bloom filter parameters")
	}
	if params.P < 0 || params.P > 1 || params.Q < 0 || params.Q > 1 {
		return telemetry.RapporObservation{}, cobalterr.NewInvalidConfig("RAPPOR p/q must be in [0,1]")
	}

	cohort := secret.hmacUint32([]byte("cohort"), uint32Bytes(reportID)) % params.NumCohorts

	bloom := make([]bool, params.NumBits)
	for j := uint32(0); j < params.NumHashes; j++ {
		idx := bloomHashIndex(cohort, j, value, params.NumBits)
		bloom[idx] = true
	}

	bits := noiseBits(secret, value, bloom, params.P, params.Q)
	return telemetry.RapporObservation{Bits: bits, Cohort: cohort}, nil
}

// EncodeBasicRappor one-hots value's index among categories, then applies
// the same PRR noise procedure, without cohorts (spec.md §4.2).
func EncodeBasicRappor(secret ClientSecret, params registry.BasicRapporParams, value string) (telemetry.BasicRapporObservation, error) {
	idx := -1
	for i, cat := range params.Categories {
		if cat == value {
			idx = i
			break
		}
	}
	if idx < 0 {
		return telemetry.BasicRapporObservation{}, cobalterr.NewInvalidArguments("value not among Basic RAPPOR categories")
	}

	onehot := make([]bool, len(params.Categories))
	onehot[idx] = true

	bits := noiseBits(secret, value, onehot, params.P, params.Q)
	return telemetry.BasicRapporObservation{Bits: bits}, nil
}

// EncodeBasicRapporIndex one-hots an integer index directly, for metrics
// whose Basic RAPPOR dimension is "indices 0..max_event_code" rather than
// named string categories (spec.md §4.2).
func EncodeBasicRapporIndex(secret ClientSecret, maxIndex uint32, params registry.BasicRapporParams, index uint32) (telemetry.BasicRapporObservation, error) {
	if index > maxIndex {
		return telemetry.BasicRapporObservation{}, cobalterr.NewInvalidArguments("Basic RAPPOR index out of range")
	}
	onehot := make([]bool, maxIndex+1)
	onehot[index] = true
	bits := noiseBits(secret, uint32BytesToString(index), onehot, params.P, params.Q)
	return telemetry.BasicRapporObservation{Bits: bits}, nil
}

func uint32BytesToString(v uint32) string { return string(uint32Bytes(v)) }

// noiseBits implements the PRR procedure spec.md §4.2 describes: "flip
// each bit with probability p if it was 0, keep with probability q if it
// was 1... derives a per-(value, client-secret) mask once and re-uses it".
// The per-bit noise decision is an HMAC-derived deterministic coin, so
// repeated encodings of the same value by the same device always produce
// the same noisy bit string — the PRR "permanence" — while still
// satisfying the p/q distribution spec.md §8 tests (p=0,q=1 ⇒ bits equal
// the clean one-hot/bloom vector exactly).
func noiseBits(secret ClientSecret, value string, clean []bool, p, q float64) []byte {
	out := make([]byte, (len(clean)+7)/8)
	for i, bit := range clean {
		coin := secret.hmacFloat64([]byte("prr"), []byte(value), uint32Bytes(uint32(i)))
		var noisy bool
		if bit {
			noisy = coin < q
		} else {
			noisy = coin < p
		}
		if noisy {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func bloomHashIndex(cohort, hashIndex uint32, value string, numBits uint32) uint32 {
	h := sha256.New()
	h.Write(uint32Bytes(cohort))
	h.Write(uint32Bytes(hashIndex))
	h.Write([]byte(value))
	sum := h.Sum(nil)
	var acc uint32
	for _, b := range sum[:4] {
		acc = acc<<8 | uint32(b)
	}
	return acc % numBits
}
