package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestBoxRoundTrip(t *testing.T) {
	box, err := NewBox([]byte(testKey))
	require.NoError(t, err)

	sealed, err := box.Encrypt("app-password")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "app-password")

	plain, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "app-password", plain)

	again, err := box.Encrypt("app-password")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")
}

func TestBoxRejectsBadInput(t *testing.T) {
	_, err := NewBox([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	box, err := NewBox([]byte(testKey))
	require.NoError(t, err)

	_, err = box.Decrypt("not base64!")
	assert.Error(t, err)

	_, err = box.Decrypt("AAAA")
	assert.Error(t, err)

	other, err := NewBox([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	sealed, err := other.Encrypt("x")
	require.NoError(t, err)
	_, err = box.Decrypt(sealed)
	assert.Error(t, err)
}
