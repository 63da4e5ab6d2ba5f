// Package index persists upload records for stores that keep payload bytes
// elsewhere.
package index

import (
	"context"
	"fmt"

	"resumable/pkg/tus"
)

// Index stores upload records keyed by id.
type Index interface {
	// Insert adds a new record. It fails if the id is already taken.
	Insert(ctx context.Context, upload *tus.Upload) error

	// Get returns the record for id or an error matching
	// tus.ErrFileNotFound.
	Get(ctx context.Context, id string) (*tus.Upload, error)

	// Update atomically applies fn to the record for id and stores the
	// result. Nothing is stored if fn fails.
	Update(ctx context.Context, id string, fn func(*tus.Upload) error) (*tus.Upload, error)

	// Delete removes the record for id.
	Delete(ctx context.Context, id string) error

	// List returns up to limit records, newest first. A limit of zero
	// returns every record.
	List(ctx context.Context, limit int) ([]*tus.Upload, error)

	Close() error
}

func notFound(id string) error {
	return fmt.Errorf("upload %q: %w", id, tus.ErrFileNotFound)
}
