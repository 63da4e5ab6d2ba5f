// Package memstore keeps uploads in memory. Everything is lost when the
// process exits.
package memstore

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"resumable/internal/storage/lock"
	"resumable/pkg/tus"
)

var Extensions = []string{
	tus.ExtensionCreation,
	tus.ExtensionCreationWithUpload,
	tus.ExtensionCreationDeferLength,
	tus.ExtensionTermination,
}

type entry struct {
	upload tus.Upload
	data   []byte
}

// Store is an in-memory tus.DataStore.
type Store struct {
	*tus.BaseStore

	mu      sync.RWMutex
	uploads map[string]*entry
	locks   *lock.Locker
}

func New(cfg tus.StoreConfig) (*Store, error) {
	base, err := tus.NewBaseStore(cfg, Extensions...)
	if err != nil {
		return nil, err
	}

	return &Store{
		BaseStore: base,
		uploads:   make(map[string]*entry),
		locks:     lock.New(),
	}, nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.uploads[id]
	if !ok {
		return nil, tus.ErrFileNotFound
	}
	return e, nil
}

func (s *Store) snapshot(id string) (*tus.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.uploads[id]
	if !ok {
		return nil, tus.ErrFileNotFound
	}
	upload := e.upload
	return &upload, nil
}

func (s *Store) Create(_ context.Context, spec tus.UploadSpec) (*tus.Upload, error) {
	upload, err := s.NewUpload(spec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.uploads[upload.ID] = &entry{upload: *upload}
	s.mu.Unlock()

	s.Created(upload)
	return upload, nil
}

func (s *Store) Write(ctx context.Context, id string, offset int64, src io.Reader) (int64, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return 0, err
	}
	defer unlock()

	upload, err := s.snapshot(id)
	if err != nil {
		return 0, err
	}

	limit, err := tus.CheckWrite(upload, offset)
	if err != nil {
		return upload.Size, err
	}

	var buf bytes.Buffer
	n, copyErr := io.Copy(&buf, tus.LimitBody(src, limit))

	s.mu.Lock()
	e, ok := s.uploads[id]
	if !ok {
		s.mu.Unlock()
		return offset, tus.ErrFileNotFound
	}
	e.data = append(e.data[:offset], buf.Bytes()...)
	e.upload.Size = offset + n
	updated := e.upload
	s.mu.Unlock()

	s.Written(offset, &updated)
	return updated.Size, copyErr
}

func (s *Store) GetOffset(_ context.Context, id string) (*tus.Upload, error) {
	return s.snapshot(id)
}

func (s *Store) Read(_ context.Context, id string) (io.ReadCloser, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	data := bytes.Clone(e.data[:e.upload.Size])
	s.mu.RUnlock()

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) DeclareLength(ctx context.Context, id string, length int64) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	e, ok := s.uploads[id]
	if !ok {
		s.mu.Unlock()
		return tus.ErrFileNotFound
	}
	wasDeferred := e.upload.LengthDeferred
	if err := tus.DeclareLength(&e.upload, length); err != nil {
		s.mu.Unlock()
		return err
	}
	updated := e.upload
	s.mu.Unlock()

	if wasDeferred {
		s.LengthDeclared(&updated)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	_, ok := s.uploads[id]
	delete(s.uploads, id)
	s.mu.Unlock()

	if !ok {
		return tus.ErrFileNotFound
	}

	s.Removed(id)
	return nil
}

// List returns up to limit uploads, newest first.
func (s *Store) List(_ context.Context, limit int) ([]*tus.Upload, error) {
	s.mu.RLock()
	uploads := make([]*tus.Upload, 0, len(s.uploads))
	for _, e := range s.uploads {
		upload := e.upload
		uploads = append(uploads, &upload)
	}
	s.mu.RUnlock()

	slices.SortFunc(uploads, func(a, b *tus.Upload) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(uploads) > limit {
		uploads = uploads[:limit]
	}
	return uploads, nil
}
