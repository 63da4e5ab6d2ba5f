package index

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"resumable/pkg/tus"

	_ "github.com/mattn/go-sqlite3"
)

var (
	//go:embed migrations
	migrationsFS embed.FS
)

// SQLite is an Index backed by a SQLite database file.
type SQLite struct {
	Db *sql.DB
}

// initSchema applies all SQL files in the embedded migrations in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Info("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// OpenSQLite opens (creating if needed) the database at dbPath and brings
// its schema up to date.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{Db: db}, nil
}

func (s *SQLite) Close() error {
	return s.Db.Close()
}

// withTransaction runs a function within a database transaction.
func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("error executing transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const selectUpload = `SELECT id, size, upload_length, upload_defer_length, upload_metadata, created_at FROM uploads`

func scanUpload(row rowScanner) (*tus.Upload, error) {
	var upload tus.Upload
	if err := row.Scan(
		&upload.ID,
		&upload.Size,
		&upload.Length,
		&upload.LengthDeferred,
		&upload.Metadata,
		&upload.CreatedAt,
	); err != nil {
		return nil, err
	}
	upload.CreatedAt = upload.CreatedAt.UTC()
	return &upload, nil
}

func (s *SQLite) Insert(ctx context.Context, upload *tus.Upload) error {
	_, err := s.Db.ExecContext(ctx,
		`INSERT INTO uploads(id, size, upload_length, upload_defer_length, upload_metadata, created_at, modified_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		upload.ID, upload.Size, upload.Length, upload.LengthDeferred, upload.Metadata, upload.CreatedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert upload %q: %w", upload.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*tus.Upload, error) {
	upload, err := scanUpload(s.Db.QueryRowContext(ctx, selectUpload+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	return upload, err
}

func (s *SQLite) Update(ctx context.Context, id string, fn func(*tus.Upload) error) (*tus.Upload, error) {
	var updated *tus.Upload

	err := withTransaction(ctx, s.Db, func(tx *sql.Tx) error {
		upload, err := scanUpload(tx.QueryRowContext(ctx, selectUpload+` WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(id)
		}
		if err != nil {
			return err
		}

		if err := fn(upload); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE uploads SET size = ?, upload_length = ?, upload_defer_length = ?, modified_at = ? WHERE id = ?`,
			upload.Size, upload.Length, upload.LengthDeferred, time.Now().UTC(), id,
		); err != nil {
			return err
		}

		updated = upload
		return nil
	})

	return updated, err
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.Db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete upload %q: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, limit int) ([]*tus.Upload, error) {
	query := selectUpload + ` ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.Db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uploads := make([]*tus.Upload, 0)
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}

	return uploads, rows.Err()
}
