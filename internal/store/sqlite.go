package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/joshdurbin/garmin-wrapped/internal/logging"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteBackend stores blobs in a local SQLite database
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path, configures it for
// single-writer access, and applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	log := logging.Logger

	log.Info().Str("path", path).Msg("opening database")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring SQLite: %w", err)
	}

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		log.Debug().Int64("version", r.Source.Version).Str("path", r.Source.Path).Msg("migration applied")
	}

	return &SQLiteBackend{db: db}, nil
}

// configureSQLite sets up SQLite for concurrent access
func configureSQLite(db *sql.DB) error {
	// WAL allows concurrent reads while a write is in flight
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("setting WAL mode: %w", err)
	}

	// Wait instead of failing immediately on a locked database
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("setting busy timeout: %w", err)
	}

	// NORMAL is safe with WAL and faster than FULL
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("setting synchronous mode: %w", err)
	}

	// SQLite works best with limited connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

// Save upserts the payload under key
func (b *SQLiteBackend) Save(ctx context.Context, key string, payload []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO blobs (key, payload, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, payload)
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Load returns the payload for key, or ErrNotFound
func (b *SQLiteBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx, "SELECT payload FROM blobs WHERE key = ?", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return payload, nil
}

// Delete removes the payload for key. Deleting a missing key is not an error.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM blobs WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
