package services

import (
	"strings"
	"testing"

	"fleet_tracking/models"
	"fleet_tracking/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialCipher_RoundTrip(t *testing.T) {
	c, err := NewCredentialCipher(testutils.TestEncryptionKey)
	require.NoError(t, err)

	sealed, err := c.Encrypt("vendor-secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, credentialPrefix))
	assert.NotContains(t, sealed, "vendor-secret")

	again, err := c.Encrypt("vendor-secret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "vendor-secret", plain)

	// Повторное шифрование не оборачивает значение дважды
	twice, err := c.Encrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, sealed, twice)
}

func TestCredentialCipher_WrongKey(t *testing.T) {
	c, err := NewCredentialCipher(testutils.TestEncryptionKey)
	require.NoError(t, err)
	other, err := NewCredentialCipher("another-key")
	require.NoError(t, err)

	sealed, err := c.Encrypt("vendor-secret")
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.Error(t, err)

	_, err = c.Decrypt(credentialPrefix + "not-base64!")
	assert.Error(t, err)
}

func TestCredentialCipher_NilCipher(t *testing.T) {
	var c *CredentialCipher

	value, err := c.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", value)

	value, err = c.Decrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", value)

	_, err = c.Decrypt(credentialPrefix + "AAAA")
	assert.Error(t, err)
}

func TestNewCredentialCipher_EmptySecret(t *testing.T) {
	_, err := NewCredentialCipher("")
	assert.Error(t, err)
}

func TestCredentialCipher_Endpoint(t *testing.T) {
	c, err := NewCredentialCipher(testutils.TestEncryptionKey)
	require.NoError(t, err)

	cfg := &models.TrackingConfig{
		ID:       5,
		APIURL:   "gps.example.com/api/",
		Username: testutils.TestUsername,
		Password: testutils.TestPassword,
	}
	require.NoError(t, c.SealConfig(cfg))
	assert.NotEqual(t, testutils.TestPassword, cfg.Password)
	assert.Empty(t, cfg.APIKey)

	endpoint, err := c.Endpoint(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint(5), endpoint.ConfigID)
	assert.Equal(t, "https://gps.example.com/api", endpoint.BaseURL)
	assert.Equal(t, models.AuthModeLogin, endpoint.Mode)
	assert.Equal(t, testutils.TestPassword, endpoint.Password)
}
