// Package cryptobox implements the HYBRID_ECDH_V1 envelope encryption
// scheme spec.md §6 describes: an ephemeral X25519 key agreement against a
// recipient's static public key, HKDF-derived into an AES-256-GCM key, then
// the recipient's plaintext (an Observation or Envelope, depending on
// caller) is sealed under that key, using the nonce || ciphertext || tag
// AES-256-GCM framing this repo uses for sealed payloads elsewhere, plus
// the X25519 key agreement step a single shared symmetric key wouldn't
// need.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Scheme identifies the encryption scheme of an EncryptedMessage, matching
// spec.md §6's EncryptedMessage.scheme enum.
type Scheme int

const (
	// SchemeNone disables encryption; ciphertext holds the plaintext verbatim.
	SchemeNone Scheme = iota
	// SchemeHybridECDHV1 is the X25519 + HKDF + AES-256-GCM scheme below.
	SchemeHybridECDHV1
)

var (
	ErrInvalidPublicKey  = errors.New("cryptobox: invalid recipient public key")
	ErrCiphertextTooShort = errors.New("cryptobox: ciphertext shorter than ephemeral key + nonce")
	ErrDecryptionFailed  = errors.New("cryptobox: decryption failed: authentication tag mismatch")
)

const (
	keySize   = 32
	nonceSize = 12
)

// PublicKey is a recipient's X25519 public key, loaded once at startup from
// a PEM file per spec.md §1's non-goal ("does not implement key management
// beyond loading a PEM-encoded public key at startup").
type PublicKey [keySize]byte

// PrivateKey is the matching private half, used only in tests to verify the
// round-trip law spec.md §8 requires ("Encrypt-then-decrypt... yields the
// original Observation bytes").
type PrivateKey [keySize]byte

// GenerateKeypair creates a fresh X25519 keypair for tests and tooling.
func GenerateKeypair() (PublicKey, PrivateKey, error) {
	var priv PrivateKey
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return PublicKey{}, PrivateKey{}, err
	}
	// Clamp per RFC 7748.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return PublicKey{}, PrivateKey{}, err
	}
	var pub PublicKey
	copy(pub[:], pubBytes)
	return pub, priv, nil
}

// Seal encrypts plaintext to the recipient's public key using
// HYBRID_ECDH_V1: a fresh ephemeral X25519 keypair agrees a shared secret
// with recipientPub, HKDF-SHA256 (with info binding to the scheme name)
// derives a 256-bit AES key, and the plaintext is sealed under AES-GCM. The
// wire format is: ephemeral_public_key(32) || nonce(12) || ciphertext || tag(16).
func Seal(recipientPub PublicKey, plaintext []byte) ([]byte, error) {
	var ephPriv [keySize]byte
	if _, err := io.ReadFull(rand.Reader, ephPriv[:]); err != nil {
		return nil, err
	}
	ephPriv[0] &= 248
	ephPriv[31] &= 127
	ephPriv[31] |= 64

	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	shared, err := curve25519.X25519(ephPriv[:], recipientPub[:])
	if err != nil {
		return nil, ErrInvalidPublicKey
	}

	key, err := deriveKey(shared, ephPub, recipientPub[:])
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(ephPub)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, ephPub...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Open decrypts a HYBRID_ECDH_V1 message sealed with Seal against the
// matching private key.
func Open(recipientPriv PrivateKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < keySize+nonceSize {
		return nil, ErrCiphertextTooShort
	}
	ephPub := ciphertext[:keySize]
	nonce := ciphertext[keySize : keySize+nonceSize]
	sealed := ciphertext[keySize+nonceSize:]

	shared, err := curve25519.X25519(recipientPriv[:], ephPub)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}

	recipientPub, err := curve25519.X25519(recipientPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	key, err := deriveKey(shared, ephPub, recipientPub)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func deriveKey(shared, ephPub, recipientPub []byte) ([]byte, error) {
	info := make([]byte, 0, len("HYBRID_ECDH_V1")+len(ephPub)+len(recipientPub))
	info = append(info, []byte("HYBRID_ECDH_V1")...)
	info = append(info, ephPub...)
	info = append(info, recipientPub...)

	r := hkdf.New(sha256.New, shared, nil, info)
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Fingerprint returns a short, stable identifier for a public key suitable
// for EncryptedMessage.public_key_fingerprint, so a server with multiple
// active keys can pick the right private key without trial decryption.
func Fingerprint(pub PublicKey) uint64 {
	sum := sha256.Sum256(pub[:])
	return binary.BigEndian.Uint64(sum[:8])
}
