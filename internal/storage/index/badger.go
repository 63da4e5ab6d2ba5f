package index

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"resumable/pkg/tus"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const uploadKeyPrefix = "upload:"

// Badger is an Index backed by a BadgerDB key/value store.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens the database in dir. An empty dir keeps everything in
// memory.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func uploadKey(id string) []byte {
	return []byte(uploadKeyPrefix + id)
}

func getUpload(txn *badger.Txn, id string) (*tus.Upload, error) {
	item, err := txn.Get(uploadKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}

	var upload tus.Upload
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &upload)
	}); err != nil {
		return nil, fmt.Errorf("decode upload %q: %w", id, err)
	}

	return &upload, nil
}

func putUpload(txn *badger.Txn, upload *tus.Upload) error {
	data, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("encode upload %q: %w", upload.ID, err)
	}
	return txn.Set(uploadKey(upload.ID), data)
}

func (b *Badger) Insert(_ context.Context, upload *tus.Upload) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(uploadKey(upload.ID)); err == nil {
			return fmt.Errorf("upload %q already exists", upload.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putUpload(txn, upload)
	})
}

func (b *Badger) Get(_ context.Context, id string) (*tus.Upload, error) {
	var upload *tus.Upload
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		upload, err = getUpload(txn, id)
		return err
	})
	return upload, err
}

func (b *Badger) Update(_ context.Context, id string, fn func(*tus.Upload) error) (*tus.Upload, error) {
	var upload *tus.Upload
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		upload, err = getUpload(txn, id)
		if err != nil {
			return err
		}
		if err := fn(upload); err != nil {
			return err
		}
		return putUpload(txn, upload)
	})
	if err != nil {
		return nil, err
	}
	return upload, nil
}

func (b *Badger) Delete(_ context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(uploadKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return notFound(id)
		} else if err != nil {
			return err
		}
		return txn.Delete(uploadKey(id))
	})
}

func (b *Badger) List(_ context.Context, limit int) ([]*tus.Upload, error) {
	uploads := make([]*tus.Upload, 0)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(uploadKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var upload tus.Upload
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &upload)
			}); err != nil {
				return err
			}
			uploads = append(uploads, &upload)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(uploads, func(i, j int) bool {
		if uploads[i].CreatedAt.Equal(uploads[j].CreatedAt) {
			return uploads[i].ID < uploads[j].ID
		}
		return uploads[i].CreatedAt.After(uploads[j].CreatedAt)
	})

	if limit > 0 && len(uploads) > limit {
		uploads = uploads[:limit]
	}

	return uploads, nil
}
