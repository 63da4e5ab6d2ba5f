// Package filestore keeps upload payloads as files on the local filesystem
// and their records in an index.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"resumable/internal/storage"
	"resumable/internal/storage/index"
	"resumable/internal/storage/lock"
	"resumable/pkg/tus"
)

var (
	// Extensions advertised unless the configuration overrides them.
	Extensions = []string{
		tus.ExtensionCreation,
		tus.ExtensionCreationWithUpload,
		tus.ExtensionCreationDeferLength,
		tus.ExtensionTermination,
	}

	idPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]+$`)
)

// Store is a tus.DataStore that lays payloads out under dir, using the first
// two characters of the id as a subdirectory.
type Store struct {
	*tus.BaseStore

	dir   string
	index index.Index
	locks *lock.Locker
}

// New creates a store rooted at dir. The store takes ownership of idx.
func New(cfg tus.StoreConfig, dir string, idx index.Index) (*Store, error) {
	base, err := tus.NewBaseStore(cfg, Extensions...)
	if err != nil {
		return nil, err
	}

	if dir == "" {
		return nil, errors.New("filestore: dir must not be empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &Store{
		BaseStore: base,
		dir:       dir,
		index:     idx,
		locks:     lock.New(),
	}, nil
}

// Close releases the index.
func (s *Store) Close() error {
	return s.index.Close()
}

// UploadPath computes the payload path of the upload id under directory.
// Ids that could escape directory are rejected as not found.
func UploadPath(directory string, id string) (string, error) {
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("invalid upload id %q: %w", id, tus.ErrFileNotFound)
	}
	return filepath.Join(directory, id[:2], id), nil
}

func (s *Store) Create(ctx context.Context, spec tus.UploadSpec) (*tus.Upload, error) {
	upload, err := s.NewUpload(spec)
	if err != nil {
		return nil, err
	}

	path, err := UploadPath(s.dir, upload.ID)
	if err != nil {
		return nil, err
	}

	if err := storage.CreateEmpty(path); err != nil {
		return nil, fmt.Errorf("create payload file: %w", err)
	}

	if err := s.index.Insert(ctx, upload); err != nil {
		_ = storage.RemoveIfExists(path)
		return nil, err
	}

	slog.Debug("Created upload", "id", upload.ID, "length", upload.Length, "deferred", upload.LengthDeferred)
	s.Created(upload)
	return upload, nil
}

func (s *Store) Write(ctx context.Context, id string, offset int64, src io.Reader) (int64, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return 0, err
	}
	defer unlock()

	upload, err := s.index.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	limit, err := tus.CheckWrite(upload, offset)
	if err != nil {
		return upload.Size, err
	}

	path, err := UploadPath(s.dir, id)
	if err != nil {
		return upload.Size, err
	}

	n, writeErr := storage.WriteAt(path, offset, tus.LimitBody(src, limit))
	if n == 0 {
		return offset, writeErr
	}

	// The bytes are on disk; record them even if the client went away.
	updated, err := s.index.Update(context.WithoutCancel(ctx), id, func(u *tus.Upload) error {
		u.Size = offset + n
		return nil
	})
	if err != nil {
		return offset, errors.Join(writeErr, err)
	}

	s.Written(offset, updated)
	return updated.Size, writeErr
}

func (s *Store) GetOffset(ctx context.Context, id string) (*tus.Upload, error) {
	return s.index.Get(ctx, id)
}

func (s *Store) Read(ctx context.Context, id string) (io.ReadCloser, error) {
	upload, err := s.index.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	path, err := UploadPath(s.dir, id)
	if err != nil {
		return nil, err
	}

	return storage.OpenSection(path, upload.Size)
}

func (s *Store) DeclareLength(ctx context.Context, id string, length int64) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	var wasDeferred bool
	updated, err := s.index.Update(ctx, id, func(u *tus.Upload) error {
		wasDeferred = u.LengthDeferred
		return tus.DeclareLength(u, length)
	})
	if err != nil {
		return err
	}

	if wasDeferred {
		s.LengthDeclared(updated)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.index.Get(ctx, id); err != nil {
		return err
	}

	path, err := UploadPath(s.dir, id)
	if err != nil {
		return err
	}

	if err := storage.RemoveIfExists(path); err != nil {
		return fmt.Errorf("remove payload file: %w", err)
	}

	if err := s.index.Delete(ctx, id); err != nil {
		return err
	}

	slog.Debug("Removed upload", "id", id)
	s.Removed(id)
	return nil
}

// List returns up to limit uploads, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*tus.Upload, error) {
	return s.index.List(ctx, limit)
}
