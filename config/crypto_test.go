package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c := newCipher("server-id-1")

	sealed, err := c.Encrypt("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", sealed)
	assert.Contains(t, sealed, encryptPrefix)

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)
}

func TestCipherEncryptIsIdempotent(t *testing.T) {
	c := newCipher("server-id-1")
	sealed, err := c.Encrypt("s3cret")
	require.NoError(t, err)
	again, err := c.Encrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, sealed, again)
}

func TestCipherPassThroughForPlainValues(t *testing.T) {
	c := newCipher("server-id-1")
	plain, err := c.Decrypt("not encrypted")
	require.NoError(t, err)
	assert.Equal(t, "not encrypted", plain)
}

func TestCipherWrongKey(t *testing.T) {
	sealed, err := newCipher("server-a").Encrypt("s3cret")
	require.NoError(t, err)
	_, err = newCipher("server-b").Decrypt(sealed)
	assert.Error(t, err)
}
