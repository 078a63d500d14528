package watermark

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/runwatch/internal/runid"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is a Store backed by an embedded SQLite database. Used for
// single-host deployments without the facility database, and in tests
// (":memory:").
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens the database at dbPath, sets WAL mode, and applies any
// pending schema migrations.
func OpenSQLite(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("watermark: opening sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("watermark: %s: %w", pragma, err)
		}
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("watermark store ready",
		slog.String("driver", "sqlite"),
		slog.String("path", dbPath),
	)

	return &SQLiteStore{db: db, logger: logger}, nil
}

// runMigrations applies all pending schema migrations. Uses the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("watermark: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("watermark: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("watermark: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Get returns the persisted watermark, or found == false when the instrument
// has no record yet.
func (s *SQLiteStore) Get(ctx context.Context, instrument string) (runid.ID, bool, error) {
	var text string

	err := s.db.QueryRowContext(ctx,
		`SELECT latest_run FROM instruments WHERE instrument_name = ?`,
		instrument).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return runid.ID{}, false, nil
	}

	if err != nil {
		return runid.ID{}, false, fmt.Errorf("watermark: reading %s: %w", instrument, err)
	}

	run, err := runid.Parse(text)
	if err != nil {
		return runid.ID{}, false, fmt.Errorf("watermark: stored value for %s: %w", instrument, err)
	}

	return run, true, nil
}

// Set upserts the watermark for the instrument.
func (s *SQLiteStore) Set(ctx context.Context, instrument string, run runid.ID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instruments (instrument_name, latest_run)
		 VALUES (?, ?)
		 ON CONFLICT (instrument_name)
		 DO UPDATE SET latest_run = excluded.latest_run`,
		instrument, run.String())
	if err != nil {
		return fmt.Errorf("watermark: writing %s=%s: %w", instrument, run, err)
	}

	s.logger.Info("watermark persisted",
		slog.String("instrument", instrument),
		slog.String("run", run.String()),
	)

	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
