package encoder

import (
	"crypto/rand"
	"math/big"

	"cobalt/internal/core/domain/telemetry"
	"cobalt/pkg/cobalterr"
)

// forculusPrime is the NIST P-256 field prime, used here purely as a
// well-known large public prime for Shamir polynomial arithmetic — no
// elliptic-curve operations are involved.
var forculusPrime, _ = new(big.Int).SetString(
	"ffffffff00000001000000000000000000000000ffffffffffffffffffffffff", 16)

// maxForculusValueBytes bounds the secret value so it always fits strictly
// below forculusPrime (a 256-bit prime, so 31 bytes is always safe).
const maxForculusValueBytes = 31

// EncodeForculus treats value's bytes as the secret to threshold-encrypt:
// it builds a random degree-(threshold-1) polynomial over GF(forculusPrime)
// whose constant term is the secret, evaluates it at a fresh random point
// x, and emits (x, f(x)) as the observation (spec.md §4.2). Once the
// analyzer collects `threshold` such points (from `threshold` distinct
// devices that encoded the same value), Lagrange interpolation recovers
// the secret; server-side reconstruction is out of this core's scope
// (spec.md §1) but ReconstructForculusSecret below exists for testing the
// round-trip law spec.md §8 requires of the scheme.
func EncodeForculus(threshold uint32, value []byte) (telemetry.ForculusObservation, error) {
	if threshold == 0 {
		return telemetry.ForculusObservation{}, cobalterr.NewInvalidConfig("Forculus threshold must be >= 1")
	}
	if len(value) == 0 || len(value) > maxForculusValueBytes {
		return telemetry.ForculusObservation{}, cobalterr.NewInvalidArguments("Forculus value must be 1..31 bytes")
	}

	secret := new(big.Int).SetBytes(value)

	coeffs := make([]*big.Int, threshold)
	coeffs[0] = secret
	for i := uint32(1); i < threshold; i++ {
		c, err := rand.Int(rand.Reader, forculusPrime)
		if err != nil {
			return telemetry.ForculusObservation{}, cobalterr.NewOther("failed to generate Forculus polynomial coefficient", err)
		}
		coeffs[i] = c
	}

	x, err := randomNonzero()
	if err != nil {
		return telemetry.ForculusObservation{}, cobalterr.NewOther("failed to generate Forculus evaluation point", err)
	}
	y := evalPolynomial(coeffs, x)

	return telemetry.ForculusObservation{
		Ciphertext: y.Bytes(),
		PointX:     x.Bytes(),
	}, nil
}

func randomNonzero() (*big.Int, error) {
	for {
		x, err := rand.Int(rand.Reader, forculusPrime)
		if err != nil {
			return nil, err
		}
		if x.Sign() != 0 {
			return x, nil
		}
	}
}

func evalPolynomial(coeffs []*big.Int, x *big.Int) *big.Int {
	// Horner's method, mod forculusPrime.
	result := new(big.Int)
	for i := len(coeffs) - 1; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, coeffs[i])
		result.Mod(result, forculusPrime)
	}
	return result
}

// ForculusPoint is one device's (x, f(x)) contribution.
type ForculusPoint struct {
	X *big.Int
	Y *big.Int
}

// ReconstructForculusSecret recovers the constant term of the shared
// polynomial via Lagrange interpolation at x=0, given at least `threshold`
// points from distinct devices that encoded the same value.
func ReconstructForculusSecret(points []ForculusPoint) ([]byte, error) {
	if len(points) == 0 {
		return nil, cobalterr.NewInvalidArguments("no Forculus points to reconstruct from")
	}

	secret := new(big.Int)
	for i, pi := range points {
		term := new(big.Int).Set(pi.Y)
		for j, pj := range points {
			if i == j {
				continue
			}
			num := new(big.Int).Neg(pj.X)
			num.Mod(num, forculusPrime)
			den := new(big.Int).Sub(pi.X, pj.X)
			den.Mod(den, forculusPrime)
			denInv := new(big.Int).ModInverse(den, forculusPrime)
			if denInv == nil {
				return nil, cobalterr.NewInvalidArguments("duplicate x-coordinate among Forculus points")
			}
			factor := new(big.Int).Mul(num, denInv)
			factor.Mod(factor, forculusPrime)
			term.Mul(term, factor)
			term.Mod(term, forculusPrime)
		}
		secret.Add(secret, term)
		secret.Mod(secret, forculusPrime)
	}
	return secret.Bytes(), nil
}
