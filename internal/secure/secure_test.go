package secure_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-data-store/internal/secure"
)

func testKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestHashAndVerifyPassword(t *testing.T) {
	digest, err := secure.HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", digest)

	assert.True(t, secure.VerifyPassword("hunter2", digest))
	assert.False(t, secure.VerifyPassword("hunter3", digest))
	assert.False(t, secure.VerifyPassword("hunter2", "not-a-digest"))
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := secure.NewCipher(testKey())
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("Ada Lovelace")
	require.NoError(t, err)
	assert.NotEqual(t, "Ada Lovelace", ciphertext)

	plaintext, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", plaintext)
}

func TestCipher_FreshNonces(t *testing.T) {
	c, err := secure.NewCipher(testKey())
	require.NoError(t, err)

	first, err := c.Encrypt("same value")
	require.NoError(t, err)
	second, err := c.Encrypt("same value")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestNewCipher_RejectsBadKeys(t *testing.T) {
	_, err := secure.NewCipher("not base64 !!!")
	assert.Error(t, err)

	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = secure.NewCipher(short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestCipher_RejectsTamperedCiphertext(t *testing.T) {
	c, err := secure.NewCipher(testKey())
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("secret@example.org")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = c.Decrypt(tampered)
	assert.Error(t, err)

	_, err = c.Decrypt("AAAA")
	assert.Error(t, err)
}
