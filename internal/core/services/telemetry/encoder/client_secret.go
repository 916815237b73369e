// Package encoder implements the pure, stateless-except-for-randomness
// event-to-observation encoding spec.md §4.2 describes: Forculus threshold
// encryption, RAPPOR/Basic RAPPOR randomized response, and unencoded
// passthrough, plus the local-aggregation encodings (UniqueActives,
// PerDeviceNumeric/Histogram, ReportParticipation).
package encoder

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"cobalt/pkg/cobalterr"
)

// ClientSecret is a per-device 128-bit secret created once and reused to
// deterministically derive cohort assignment and PRR masks (spec.md §3).
// It never leaves the device.
type ClientSecret [16]byte

// NewClientSecret generates a fresh, cryptographically random secret.
func NewClientSecret() (ClientSecret, error) {
	var s ClientSecret
	if _, err := io.ReadFull(rand.Reader, s[:]); err != nil {
		return ClientSecret{}, cobalterr.NewOther("failed to generate client secret", err)
	}
	return s, nil
}

// hmacFloat64 derives a deterministic pseudorandom value in [0,1) from the
// secret and an arbitrary label, used for both PRR bit decisions and
// cohort assignment so that repeated calls with the same inputs are
// reproducible ("permanent" in PRR's name).
func (s ClientSecret) hmacFloat64(parts ...[]byte) float64 {
	mac := hmac.New(sha256.New, s[:])
	for _, p := range parts {
		mac.Write(p)
	}
	sum := mac.Sum(nil)
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v) / float64(1<<64)
}

// hmacUint32 derives a deterministic pseudorandom uint32 from the secret
// and an arbitrary label, used for cohort selection.
func (s ClientSecret) hmacUint32(parts ...[]byte) uint32 {
	mac := hmac.New(sha256.New, s[:])
	for _, p := range parts {
		mac.Write(p)
	}
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}

func uint32Bytes(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}
