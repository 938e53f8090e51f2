package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewCipher(t.TempDir())
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", encrypted)

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", decrypted)
}

func TestEncryptEmptyPassthrough(t *testing.T) {
	cipher, err := NewCipher(t.TempDir())
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, encrypted)

	decrypted, err := cipher.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, decrypted)
}

func TestKeyPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first, err := NewCipher(dir)
	require.NoError(t, err)
	encrypted, err := first.Encrypt("hunter2")
	require.NoError(t, err)

	second, err := NewCipher(dir)
	require.NoError(t, err)
	decrypted, err := second.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", decrypted)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	cipher, err := NewCipher(t.TempDir())
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("hunter2")
	require.NoError(t, err)

	_, err = cipher.Decrypt("x" + encrypted)
	assert.Error(t, err)
}
