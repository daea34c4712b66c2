package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.vault")
	v, err := Open(path, "TestPassword123!")
	require.NoError(t, err)
	return v
}

func TestPasswordValidationTooShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.vault")
	_, err := Open(path, "short")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestPasswordValidationNoComplexity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.vault")
	_, err := Open(path, "alllowercaseletters")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestStoreAndGet(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Store("api_key", "secret_value"))

	value, err := v.Get("api_key")
	require.NoError(t, err)
	assert.Equal(t, "secret_value", value)
}

func TestGetNonexistent(t *testing.T) {
	v := newTestVault(t)
	_, err := v.Get("missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestListSecretsNamesOnly(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Store("k1", "v1"))
	require.NoError(t, v.Store("k2", "v2"))

	names, err := v.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"k1", "k2"}, names)
}

func TestRotateBumpsVersionKeepsCreatedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.vault")
	v, err := Open(path, "TestPassword123!")
	require.NoError(t, err)

	require.NoError(t, v.Store("k", "v1"))
	f1, err := loadFile(path)
	require.NoError(t, err)
	created := f1.Secrets["k"].CreatedAt
	require.Equal(t, uint32(1), f1.Secrets["k"].Version)

	require.NoError(t, v.Rotate("k", "v2"))
	f2, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), f2.Secrets["k"].Version)
	assert.Equal(t, created, f2.Secrets["k"].CreatedAt)
	assert.True(t, !f2.Secrets["k"].UpdatedAt.Before(f1.Secrets["k"].UpdatedAt))

	value, err := v.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", value)
}

func TestRotateRequiresExisting(t *testing.T) {
	v := newTestVault(t)
	err := v.Rotate("nope", "v")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestCreateNewSecret(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Create("k", "v1"))

	value, err := v.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v1", value)
}

func TestCreateRejectsExisting(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Create("k", "v1"))

	err := v.Create("k", "v2")
	assert.ErrorIs(t, err, ErrSecretExists)

	value, err := v.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v1", value)
}

func TestRemoveSecret(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Store("temp", "value"))
	require.NoError(t, v.Remove("temp"))

	_, err := v.Get("temp")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestEncryptDecryptRoundTripAndNonceUniqueness(t *testing.T) {
	v := newTestVault(t)

	c1, n1, err := v.encrypt("sensitive-data")
	require.NoError(t, err)
	c2, n2, err := v.encrypt("sensitive-data")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2, "two encryptions of the same plaintext must differ")
	assert.NotEqual(t, n1, n2)

	plain, err := v.decrypt(c1, n1)
	require.NoError(t, err)
	assert.Equal(t, "sensitive-data", plain)
}

func TestVaultPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.vault")

	v1, err := Open(path, "TestPassword123!")
	require.NoError(t, err)
	require.NoError(t, v1.Store("persistent", "value"))
	v1.Close()

	v2, err := Open(path, "TestPassword123!")
	require.NoError(t, err)
	value, err := v2.Get("persistent")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

func TestVaultVersionMismatchIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.vault")
	v, err := Open(path, "TestPassword123!")
	require.NoError(t, err)
	require.NoError(t, v.Store("k", "v"))

	f, err := loadFile(path)
	require.NoError(t, err)
	f.Version = "9.9"
	require.NoError(t, saveFile(path, f))

	_, err = Open(path, "TestPassword123!")
	assert.ErrorIs(t, err, ErrInvalidVersion)
}
