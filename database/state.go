package database

import (
	"os"
	"path/filepath"
)

// PlayerStateFileName is the small device-state file holding volume and
// resume position. The engine never interprets it: an existing file is
// passed through untouched, and a fresh device gets safe defaults.
const PlayerStateFileName = "iTunesPState"

// defaultPlayerState: moderate volume, everything else zeroed.
var defaultPlayerState = append([]byte{0x1D}, make([]byte, 20)...)

// EnsurePlayerState writes the default state file if none exists.
func EnsurePlayerState(databaseDir string) error {
	path := filepath.Join(databaseDir, PlayerStateFileName)
	if _, err := os.Stat(path); err == nil {
		return nil // present, pass through unmodified
	} else if !os.IsNotExist(err) {
		return classifyWriteError(err)
	}
	return WriteFileAtomic(path, defaultPlayerState)
}
