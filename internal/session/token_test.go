package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kite-webtrader/internal/apperrors"
)

func TestStoreSaveLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	require.NoError(t, store.Save("abc123"))

	token, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	// Save replaces prior content.
	require.NoError(t, store.Save("def456"))
	token, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "def456", token)
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := store.Load()
	assert.True(t, errors.Is(err, apperrors.ErrNoToken))
}

func TestStoreLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	store := NewStore(path)
	_, err := store.Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNoToken))
}

func TestStoreStat(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	_, exists, err := store.Stat()
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save("abc123"))

	mtime, exists, err := store.Stat()
	require.NoError(t, err)
	assert.True(t, exists)
	assert.False(t, mtime.IsZero())
}

func TestStoreValidReflectsFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	valid, err := store.Valid()
	require.NoError(t, err)
	assert.False(t, valid, "missing token file must be invalid")

	require.NoError(t, store.Save("abc123"))

	// Written just now: mtime is not before now by more than the check
	// allows, so the token is fresh.
	valid, err = store.Valid()
	require.NoError(t, err)
	assert.True(t, valid)
}
