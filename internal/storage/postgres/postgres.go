// Package postgres stores cart snapshots in a single PostgreSQL table.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ctnfastfood/cart/pkg/database"
	apperrors "github.com/ctnfastfood/cart/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	selectSnapshotSQL = `SELECT payload FROM cart_snapshots WHERE key = $1`
	upsertSnapshotSQL = `INSERT INTO cart_snapshots (key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`
	deleteSnapshotSQL = `DELETE FROM cart_snapshots WHERE key = $1`
)

// Storage implements storage.Storage on top of a pgx pool.
type Storage struct {
	db database.DBTX
}

// New creates a PostgreSQL-backed snapshot storage.
func New(db database.DBTX) *Storage {
	return &Storage{db: db}
}

// Migrate creates the cart_snapshots table if it does not exist yet.
func (s *Storage) Migrate(ctx context.Context, logger *slog.Logger) error {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	return database.RunMigrations(ctx, s.db, sub, logger)
}

// Get retrieves the snapshot stored under key.
func (s *Storage) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetSnapshot", selectSnapshotSQL)
	defer func() { end(err) }()

	var payload string
	if err = s.db.QueryRow(ctx, selectSnapshotSQL, key).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("cart snapshot", key)
		}
		return nil, fmt.Errorf("select cart snapshot: %w", err)
	}
	return []byte(payload), nil
}

// Set upserts the snapshot stored under key.
func (s *Storage) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "SetSnapshot", upsertSnapshotSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, upsertSnapshotSQL, key, string(value)); err != nil {
		return fmt.Errorf("upsert cart snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot stored under key.
func (s *Storage) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "DeleteSnapshot", deleteSnapshotSQL)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deleteSnapshotSQL, key); err != nil {
		return fmt.Errorf("delete cart snapshot: %w", err)
	}
	return nil
}

// Ping checks connectivity to the database.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
