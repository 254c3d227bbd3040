package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"shufflegen/types"
)

// WriteFileAtomic writes data to a uniquely named temporary file in the
// destination directory and renames it into place. A failure at any point
// leaves the previous file (if any) untouched.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		_ = os.Remove(tmp)
		return classifyWriteError(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return classifyWriteError(err)
	}
	return nil
}

// classifyWriteError maps a raw write failure to an engine error kind,
// keeping storage exhaustion distinguishable from everything else.
func classifyWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", types.ErrStorageFull, err)
	}
	return fmt.Errorf("%w: %v", types.ErrSerialization, err)
}
