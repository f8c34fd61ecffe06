// Package postgres implements vfs.FS against a PostgreSQL table, one row
// per extent object, generalized from the whole-file blob-per-path schema
// used to back a richer POSIX-ish filesystem down to the engine's simpler
// name -> bytes object model.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/jamesmcclain/s3bd-go/internal/vfs"
)

// Backend is a vfs.FS backed by a PostgreSQL table.
type Backend struct {
	db    *sql.DB
	table string
}

// New opens connStr and ensures the backing table exists.
func New(connStr, table string) (*Backend, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres backend: connect: %w", err)
	}

	b := &Backend{db: db, table: table}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres backend: init schema: %w", err)
	}
	return b, nil
}

func (b *Backend) initSchema() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name VARCHAR(4096) PRIMARY KEY,
			data BYTEA NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
	`, b.table)
	_, err := b.db.Exec(query)
	return err
}

// Get implements vfs.FS.
func (b *Backend) Get(ctx context.Context, name string) ([]byte, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE name = $1", b.table)
	var data []byte
	err := b.db.QueryRowContext(ctx, query, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get %s: %w", name, vfs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, vfs.ErrIO)
	}
	return data, nil
}

// Put implements vfs.FS.
func (b *Backend) Put(ctx context.Context, name string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, data, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, b.table)
	if _, err := b.db.ExecContext(ctx, query, name, data); err != nil {
		return fmt.Errorf("put %s: %w", name, vfs.ErrIO)
	}
	return nil
}

// Delete implements vfs.FS.
func (b *Backend) Delete(ctx context.Context, name string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = $1", b.table)
	if _, err := b.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, vfs.ErrIO)
	}
	return nil
}

// Exists implements vfs.FS.
func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE name = $1 LIMIT 1", b.table)
	var one int
	err := b.db.QueryRowContext(ctx, query, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", name, vfs.ErrIO)
	}
	return true, nil
}

// Close implements vfs.FS.
func (b *Backend) Close() error {
	return b.db.Close()
}
