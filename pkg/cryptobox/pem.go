package cryptobox

import (
	"crypto/ecdh"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
)

// LoadPublicKeyPEM reads an X25519 public key from a PEM file at path,
// the only key-management operation this package implements (spec.md §1
// non-goal: "does not implement key management beyond loading a
// PEM-encoded public key at startup"). The PEM block is a standard
// SubjectPublicKeyInfo, parsed with crypto/x509 like any other public key
// file, not a bespoke raw-bytes format.
func LoadPublicKeyPEM(path string) (PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PublicKey{}, err
	}
	return ParsePublicKeyPEM(data)
}

// ParsePublicKeyPEM decodes PEM-encoded bytes into a PublicKey.
func ParsePublicKeyPEM(data []byte) (PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return PublicKey{}, errors.New("cryptobox: no PEM block found")
	}

	raw, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return PublicKey{}, err
	}

	ecdhKey, ok := raw.(*ecdh.PublicKey)
	if !ok || ecdhKey.Curve() != ecdh.X25519() {
		return PublicKey{}, errors.New("cryptobox: PEM block is not an X25519 public key")
	}

	var pub PublicKey
	copy(pub[:], ecdhKey.Bytes())
	return pub, nil
}
