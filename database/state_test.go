package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePlayerStateCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsurePlayerState(dir))

	data, err := os.ReadFile(filepath.Join(dir, PlayerStateFileName))
	require.NoError(t, err)
	require.Len(t, data, 21)
	assert.Equal(t, byte(0x1D), data[0], "default volume")
}

func TestEnsurePlayerStatePreservesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, PlayerStateFileName)
	existing := []byte{0x30, 1, 2, 3}
	require.NoError(t, os.WriteFile(path, existing, 0644))

	require.NoError(t, EnsurePlayerState(dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, existing, data, "user state must pass through untouched")
}
