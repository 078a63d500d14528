// Package detector implements last-run detection and gap recovery for one
// instrument. A Detector polls the instrument-maintained lastrun.txt,
// compares it against the last run it has emitted, and notifies the
// downstream pipeline once per newly completed run. Runs missed while the
// watcher was offline are recovered on startup from the persisted watermark.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/runwatch/internal/archive"
	"github.com/tonimelisma/runwatch/internal/notify"
	"github.com/tonimelisma/runwatch/internal/runid"
	"github.com/tonimelisma/runwatch/internal/watermark"
)

// state tracks the detector lifecycle. Reaching stateFailed is terminal; the
// outer supervisor restarts the process, and the restarted instance resumes
// from the persisted watermark.
type state int

const (
	stateInitializing state = iota
	stateSyncing
	stateSteady
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateInitializing:
		return "initializing"
	case stateSyncing:
		return "syncing"
	case stateSteady:
		return "steady"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the inputs for creating a Detector. Store and Notifier are
// the two external collaborators; everything else describes the archive.
type Config struct {
	ArchiveRoot         string
	Instrument          string // archive folder name, e.g. "NDXMARI"
	FilePrefix          string // run-file prefix, e.g. "MAR"
	ReferenceInstrument string // instrument whose folder is used for cycle resolution
	PollInterval        time.Duration
	CycleRecheck        time.Duration

	Store    watermark.Store
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Detector watches a single instrument. One Detector exists per instrument
// for the process lifetime; instances share no mutable state, so running
// several in one process needs no locking.
type Detector struct {
	cfg       Config
	storeName string // stripped instrument name used as the store key
	locator   *archive.Locator
	logger    *slog.Logger

	state    state
	recorded runid.ID // last successfully emitted run

	cycle          string
	lastCycleCheck time.Time // time of the last successful cycle resolution

	// sleepFunc waits between poll iterations. Tests override it to avoid
	// real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a fully initialized Detector. It reads the local watermark,
// resolves the current cycle, and reconciles against the persisted watermark:
// no record seeds the store from the local value, a persisted value behind
// the local one triggers one recovery batch over the gap. The returned
// Detector is already in steady state; there is no separate initialization
// step and no partially constructed instance.
func New(ctx context.Context, cfg Config) (*Detector, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Detector{
		cfg:       cfg,
		storeName: watermark.StoreName(cfg.Instrument),
		locator:   archive.NewLocator(cfg.ArchiveRoot, cfg.Instrument, cfg.FilePrefix),
		logger:    logger.With(slog.String("instrument", cfg.Instrument)),
		state:     stateInitializing,
		sleepFunc: timeSleep,
	}

	local, err := archive.ReadLastRun(archive.LastRunPath(cfg.ArchiveRoot, cfg.Instrument))
	if err != nil {
		d.state = stateFailed
		return nil, fmt.Errorf("detector: reading local watermark: %w", err)
	}

	d.logger.Info("local watermark read", slog.String("run", local.String()))

	cycle, err := archive.LatestCycle(cfg.ArchiveRoot, cfg.ReferenceInstrument)
	if err != nil {
		d.state = stateFailed
		return nil, fmt.Errorf("detector: resolving current cycle: %w", err)
	}

	d.cycle = cycle
	d.lastCycleCheck = time.Now()
	d.logger.Info("current cycle resolved", slog.String("cycle", cycle))

	persisted, found, err := d.cfg.Store.Get(ctx, d.storeName)
	if err != nil {
		d.state = stateFailed
		return nil, fmt.Errorf("detector: reading persisted watermark: %w", err)
	}

	switch {
	case !found:
		// No record: treat the instrument as already caught up.
		d.logger.Info("no persisted watermark, seeding from local",
			slog.String("run", local.String()))

		if err := d.cfg.Store.Set(ctx, d.storeName, local); err != nil {
			d.state = stateFailed
			return nil, fmt.Errorf("detector: seeding persisted watermark: %w", err)
		}

		d.recorded = local

	case persisted.Int() < local.Int():
		d.state = stateSyncing
		d.recorded = persisted
		d.logger.Info("persisted watermark behind local, recovering missed runs",
			slog.String("persisted", persisted.String()),
			slog.String("local", local.String()),
		)

		if err := d.recoverRange(ctx, persisted, local); err != nil {
			d.state = stateFailed
			return nil, err
		}

	default:
		d.recorded = persisted
		d.logger.Info("persisted watermark up to date",
			slog.String("run", persisted.String()))
	}

	d.state = stateSteady

	return d, nil
}

// Recorded returns the in-memory watermark: the last run this instance has
// successfully emitted.
func (d *Detector) Recorded() runid.ID {
	return d.recorded
}

// State reports the lifecycle phase: "initializing" while New runs,
// "syncing" during a recovery batch, "steady" between polls, and "failed"
// after a fatal error.
func (d *Detector) State() string {
	return d.state.String()
}

// observe compares the current local watermark against the recorded one and
// drives emission. Equal is a no-op; a single-step increment takes the direct
// path; a larger gap runs a recovery batch. A local watermark behind the
// recorded one is logged and ignored; the persisted watermark never
// regresses.
func (d *Detector) observe(ctx context.Context, current runid.ID) error {
	diff := current.Int() - d.recorded.Int()

	switch {
	case diff == 0:
		return nil

	case diff == 1:
		d.logger.Info("new run detected", slog.String("run", current.String()))
		return d.directDetect(ctx, current)

	case diff > 1:
		d.state = stateSyncing
		d.logger.Info("new run detected with gap, recovering missed runs",
			slog.String("run", current.String()),
			slog.String("recorded", d.recorded.String()),
		)

		if err := d.recoverRange(ctx, d.recorded, current); err != nil {
			return err
		}

		d.state = stateSteady

		return nil

	default:
		d.logger.Warn("local watermark behind recorded, ignoring",
			slog.String("run", current.String()),
			slog.String("recorded", d.recorded.String()),
		)

		return nil
	}
}

// directDetect handles the single-step path for the newest run. When the run
// file has not materialized yet the event is suppressed (not forwarded with a
// null path) and the watermark stays put, so the next poll retries naturally.
func (d *Detector) directDetect(ctx context.Context, run runid.ID) error {
	path, err := d.locator.Locate(run, d.cycle)
	if errors.Is(err, archive.ErrRunNotFound) {
		d.logger.Warn("run file not found yet, suppressing notification",
			slog.String("run", run.String()))

		return nil
	}

	if err != nil {
		return fmt.Errorf("detector: locating run %s: %w", run, err)
	}

	return d.emit(ctx, run, path)
}

// recoverRange emits every locatable run in (earlier, later], ascending. The
// zero-padding of reconstructed run numbers comes from the earlier boundary's
// text form; when the padded candidate is missing and carries at least two
// zeros, the same number with one zero dropped is tried, covering instruments
// that shrink their padding width at a rollover. A run missing under both
// widths is logged and skipped; the batch continues.
func (d *Detector) recoverRange(ctx context.Context, earlier, later runid.ID) error {
	for n := earlier.Int() + 1; n <= later.Int(); n++ {
		candidate := earlier.Pad(n)

		path, err := d.locator.Locate(candidate, d.cycle)
		if err == nil {
			if err := d.emit(ctx, candidate, path); err != nil {
				return err
			}

			continue
		}

		if !errors.Is(err, archive.ErrRunNotFound) {
			return fmt.Errorf("detector: locating run %s: %w", candidate, err)
		}

		if alt, ok := candidate.DropZero(); ok {
			path, err = d.locator.Locate(alt, d.cycle)
			if err == nil {
				if err := d.emit(ctx, alt, path); err != nil {
					return err
				}

				continue
			}

			if !errors.Is(err, archive.ErrRunNotFound) {
				return fmt.Errorf("detector: locating run %s: %w", alt, err)
			}
		}

		d.logger.Warn("missed run has no file under either padding, skipping",
			slog.String("run", candidate.String()))
	}

	return nil
}

// emit delivers one run downstream and advances both watermarks. The order
// matters: notification first, then the persisted watermark, then the
// in-memory one. A crash between notification and persistence replays the
// run on restart: at-least-once, never at-most-once.
func (d *Detector) emit(ctx context.Context, run runid.ID, path string) error {
	if err := d.cfg.Notifier.Notify(ctx, path); err != nil {
		return fmt.Errorf("detector: notifying run %s: %w", run, err)
	}

	if err := d.cfg.Store.Set(ctx, d.storeName, run); err != nil {
		return fmt.Errorf("detector: persisting watermark %s: %w", run, err)
	}

	d.recorded = run

	return nil
}

// timeSleep waits for d or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
