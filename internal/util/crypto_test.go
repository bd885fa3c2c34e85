package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoRandomBytes(t *testing.T) {
	t.Run("Generate correct length", func(t *testing.T) {
		bytes, err := CryptoRandomBytes(20)
		require.NoError(t, err)
		assert.Len(t, bytes, 20)
	})

	t.Run("Generate unique values", func(t *testing.T) {
		bytes1, err := CryptoRandomBytes(20)
		require.NoError(t, err)

		bytes2, err := CryptoRandomBytes(20)
		require.NoError(t, err)

		assert.NotEqual(t, bytes1, bytes2, "Random bytes should not be identical")
	})
}

func TestCryptoRandomString(t *testing.T) {
	str, err := CryptoRandomString(21)
	require.NoError(t, err)
	assert.Len(t, str, 21)
}

func TestRandomHex(t *testing.T) {
	code, err := RandomHex(32)
	require.NoError(t, err)
	assert.Len(t, code, 64)

	token, err := RandomHex(48)
	require.NoError(t, err)
	assert.Len(t, token, 96)
}

func TestRandomURLSafe(t *testing.T) {
	verifier, err := RandomURLSafe(32)
	require.NoError(t, err)
	assert.Len(t, verifier, 43)
	assert.NotContains(t, verifier, "=")
	assert.NotContains(t, verifier, "+")
	assert.NotContains(t, verifier, "/")
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(""),
	)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "", Fingerprint(""))
	fp := Fingerprint("secret-token")
	assert.Len(t, fp, 12)
	assert.NotContains(t, fp, "secret")
}
