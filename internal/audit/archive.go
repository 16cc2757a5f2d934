package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ArchiveStore is the Postgres-backed backend for retention_enforcement's
// archive-then-delete branch (spec §4.10). Grounded on the teacher's
// internal/platform database wiring, built on database/sql over the
// pgx/v5/stdlib driver rather than pgxpool so the store can be exercised
// with ordinary sql.DB mocking in unit tests — no live Postgres required.
type ArchiveStore struct {
	db *sql.DB
}

// NewArchiveStore opens a *sql.DB against databaseURL using the pgx
// stdlib driver and verifies reachability.
func NewArchiveStore(ctx context.Context, databaseURL string) (*ArchiveStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: opening archive db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: pinging archive db: %w", err)
	}
	return &ArchiveStore{db: db}, nil
}

// NewArchiveStoreFromDB wraps an already-opened *sql.DB — used by tests
// against DATA-DOG/go-sqlmock.
func NewArchiveStoreFromDB(db *sql.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

// RunMigrations applies schema migrations from migrationsDir.
func RunMigrations(databaseURL, migrationsDir string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsDir), databaseURL)
	if err != nil {
		return fmt.Errorf("audit: creating migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("audit: running migrations: %w", err)
	}
	return nil
}

func (a *ArchiveStore) Close() error {
	return a.db.Close()
}

// Archive persists one aged-out KVS record before deletion (implements
// internal/scheduler.Archiver).
func (a *ArchiveStore) Archive(ctx context.Context, category, key string, payload []byte, recordedAt time.Time) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO archived_records (category, kvs_key, payload, recorded_at, archived_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (kvs_key) DO NOTHING`,
		category, key, payload, recordedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: archiving %s: %w", key, err)
	}
	return nil
}

// ArchivedRecord is one row read back from archived_records.
type ArchivedRecord struct {
	Key        string
	Payload    []byte
	RecordedAt time.Time
	ArchivedAt time.Time
}

// ListArchived retrieves archived records for a category, newest first.
// Used by operational tooling, not by any request-serving path.
func (a *ArchiveStore) ListArchived(ctx context.Context, category string, limit int) ([]ArchivedRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT kvs_key, payload, recorded_at, archived_at FROM archived_records
		 WHERE category = $1 ORDER BY archived_at DESC LIMIT $2`,
		category, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: listing archived %s: %w", category, err)
	}
	defer rows.Close()

	var out []ArchivedRecord
	for rows.Next() {
		var r ArchivedRecord
		if err := rows.Scan(&r.Key, &r.Payload, &r.RecordedAt, &r.ArchivedAt); err != nil {
			return nil, fmt.Errorf("audit: scanning archived record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
