package watermark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // Postgres driver, registers as "postgres".

	"github.com/tonimelisma/runwatch/internal/runid"
)

// ensureInstrumentsTable creates the watermark table on first use. The shared
// facility database already has it in production; this keeps fresh
// environments working without a separate migration step.
const ensureInstrumentsTable = `
	CREATE TABLE IF NOT EXISTS instruments (
		id SERIAL PRIMARY KEY,
		instrument_name TEXT NOT NULL UNIQUE,
		latest_run TEXT NOT NULL
	)`

// PostgresStore is a Store backed by the shared facility Postgres database.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenPostgres connects to the watermark database, verifies connectivity
// within connectTimeout, and ensures the schema exists. The returned store is
// fully usable; no separate initialization call is needed.
func OpenPostgres(ctx context.Context, dsn string, connectTimeout time.Duration, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("watermark: opening postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("watermark: connecting to postgres: %w", err)
	}

	if _, err := db.ExecContext(pingCtx, ensureInstrumentsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("watermark: ensuring instruments table: %w", err)
	}

	logger.Info("watermark store ready", slog.String("driver", "postgres"))

	return &PostgresStore{db: db, logger: logger}, nil
}

// Get returns the persisted watermark, or found == false when the instrument
// has no record yet.
func (s *PostgresStore) Get(ctx context.Context, instrument string) (runid.ID, bool, error) {
	var text string

	err := s.db.QueryRowContext(ctx,
		`SELECT latest_run FROM instruments WHERE instrument_name = $1`,
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
func (s *PostgresStore) Set(ctx context.Context, instrument string, run runid.ID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instruments (instrument_name, latest_run)
		 VALUES ($1, $2)
		 ON CONFLICT (instrument_name)
		 DO UPDATE SET latest_run = EXCLUDED.latest_run`,
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
