// Package storage holds filesystem helpers shared by the storage backends.
package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// CreateEmpty creates an empty file at path, creating parent directories as
// needed. It fails if the file already exists.
func CreateEmpty(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// WriteAt copies src into the file at path starting at offset and syncs it.
// It returns the number of bytes copied even when the copy fails part way,
// in which case every byte counted has been flushed to disk.
func WriteAt(path string, offset int64, src io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(f, src)

	// NOTE: a previous write may have left bytes past offset that were never
	// recorded. Cut them off so the file never claims more than was counted.
	truncErr := f.Truncate(offset + n)
	syncErr := f.Sync()

	return n, errors.Join(copyErr, truncErr, syncErr)
}

// OpenSection opens the first size bytes of the file at path for reading.
func OpenSection(path string, size int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(f, size), f}, nil
}

// RemoveIfExists removes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
