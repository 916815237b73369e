package cryptobox

import (
	"crypto/ecdh"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshalX25519PublicKeyPEM(t *testing.T, pub PublicKey) []byte {
	t.Helper()
	ecdhPub, err := ecdh.X25519().NewPublicKey(pub[:])
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(ecdhPub)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func TestParsePublicKeyPEMRoundTrip(t *testing.T) {
	pub, _, err := GenerateKeypair()
	require.NoError(t, err)

	pemBytes := marshalX25519PublicKeyPEM(t, pub)
	parsed, err := ParsePublicKeyPEM(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, pub, parsed)
}

func TestLoadPublicKeyPEMFromFile(t *testing.T) {
	pub, _, err := GenerateKeypair()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(path, marshalX25519PublicKeyPEM(t, pub), 0o644))

	loaded, err := LoadPublicKeyPEM(path)
	require.NoError(t, err)
	assert.Equal(t, pub, loaded)
}

func TestParsePublicKeyPEMRejectsGarbage(t *testing.T) {
	_, err := ParsePublicKeyPEM([]byte("not a pem block"))
	assert.Error(t, err)
}
