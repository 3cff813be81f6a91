package security

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptor(t *testing.T) (*Encryptor, *Encryptor) {
	t.Helper()
	key := generateTestKey(t)

	issuer := NewEncryptor(NewKeyring(&StaticKeySource{Private: pkcs1PrivatePEM(key)}))
	verifier := NewEncryptor(NewKeyring(&StaticKeySource{Public: pkixPublicPEM(t, &key.PublicKey)}))
	return issuer, verifier
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	issuer, verifier := newTestEncryptor(t)

	large := make([]byte, 32*1024)
	_, err := rand.Read(large)
	require.NoError(t, err)

	testCases := []struct {
		name      string
		plaintext []byte
	}{
		{name: "short text", plaintext: []byte("expires_at: 2026-12-31\ntype: trial\n")},
		{name: "empty payload", plaintext: []byte{}},
		{name: "binary payload", plaintext: []byte{0x00, 0x01, 0xfe, 0xff}},
		{name: "payload larger than one RSA block", plaintext: large},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			blob, err := issuer.Encrypt(tc.plaintext)
			require.NoError(t, err)

			got, err := verifier.Decrypt(blob)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, got)
		})
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	issuer, verifier := newTestEncryptor(t)
	plaintext := []byte("expires_at: 2026-12-31\ntype: trial\n")

	first, err := issuer.Encrypt(plaintext)
	require.NoError(t, err)
	second, err := issuer.Encrypt(plaintext)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(first, second), "two encryptions of the same payload must differ")

	for _, blob := range [][]byte{first, second} {
		got, err := verifier.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	issuer, verifier := newTestEncryptor(t)

	blob, err := issuer.Encrypt([]byte("expires_at: 2026-12-31\ntype: trial\n"))
	require.NoError(t, err)

	// Flip one byte at a time across the whole blob: header, RSA key
	// transport block, and GCM ciphertext must all be covered.
	probes := []int{0, 1, 2, 3, len(blob) / 2, len(blob) - 1}
	for _, i := range probes {
		tampered := make([]byte, len(blob))
		copy(tampered, blob)
		tampered[i] ^= 0x01

		_, err := verifier.Decrypt(tampered)
		var decErr *DecryptionError
		require.ErrorAs(t, err, &decErr, "flipped byte %d must be detected", i)
	}
}

func TestDecryptRejectsTruncation(t *testing.T) {
	issuer, verifier := newTestEncryptor(t)

	blob, err := issuer.Encrypt([]byte("payload"))
	require.NoError(t, err)

	for _, n := range []int{0, 1, 2, 3, 10, len(blob) - 1} {
		_, err := verifier.Decrypt(blob[:n])
		var decErr *DecryptionError
		require.ErrorAs(t, err, &decErr, "truncation to %d bytes must be detected", n)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	issuer, _ := newTestEncryptor(t)
	otherKey := generateTestKey(t)
	verifier := NewEncryptor(NewKeyring(&StaticKeySource{Public: pkixPublicPEM(t, &otherKey.PublicKey)}))

	blob, err := issuer.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = verifier.Decrypt(blob)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
}

func TestEncryptWithoutPrivateKey(t *testing.T) {
	enc := NewEncryptor(NewKeyring(&StaticKeySource{}))
	_, err := enc.Encrypt([]byte("payload"))
	var srcErr *KeySourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, CapabilityPrivate, srcErr.Capability)
}
