package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_Disabled(t *testing.T) {
	t.Setenv("SWIMNOTIFY_ENABLE_ENCRYPTION", "")

	enc, err := NewEncryptor()
	require.NoError(t, err)

	out, err := enc.EncryptIfEnabled("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	t.Setenv("SWIMNOTIFY_ENABLE_ENCRYPTION", "true")
	t.Setenv("SWIMNOTIFY_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")

	enc, err := NewEncryptor()
	require.NoError(t, err)

	sealed, err := enc.Encrypt("Jadwal renang")
	require.NoError(t, err)
	assert.NotEqual(t, "Jadwal renang", sealed)

	again, err := enc.Encrypt("Jadwal renang")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "Jadwal renang", plain)

	empty, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEncryptor_SecretValidation(t *testing.T) {
	t.Setenv("SWIMNOTIFY_ENABLE_ENCRYPTION", "true")

	t.Setenv("SWIMNOTIFY_ENCRYPTION_SECRET", "")
	_, err := NewEncryptor()
	assert.Error(t, err)

	t.Setenv("SWIMNOTIFY_ENCRYPTION_SECRET", "short")
	_, err = NewEncryptor()
	assert.Error(t, err)
}

func TestEncryptor_DecryptGarbage(t *testing.T) {
	t.Setenv("SWIMNOTIFY_ENABLE_ENCRYPTION", "true")
	t.Setenv("SWIMNOTIFY_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")

	enc, err := NewEncryptor()
	require.NoError(t, err)

	_, err = enc.Decrypt("!!not-base64!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("YWJj")
	assert.Error(t, err)
}
