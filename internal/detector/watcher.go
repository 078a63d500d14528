package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/runwatch/internal/archive"
)

// Watch runs the poll loop until the context is canceled or a fatal error
// occurs. Each iteration re-resolves the current cycle when the recheck
// interval has elapsed, reads the local watermark, and delegates to the
// comparison logic. Iterations never overlap: a recovery batch runs to
// completion before the next sleep, so cancellation mid-batch lets the batch
// finish rather than leaving a run half-recovered.
//
// A malformed lastrun.txt is logged and skipped; the instrument control
// software rewrites the file in place and the next read normally succeeds.
// Store and notification failures are fatal: Watch returns the error, the
// detector enters its terminal state, and the outer supervisor restarts the
// process, which resumes from the persisted watermark.
func (d *Detector) Watch(ctx context.Context) error {
	d.logger.Info("starting watcher",
		slog.String("state", d.state.String()),
		slog.Duration("poll_interval", d.cfg.PollInterval),
		slog.Duration("cycle_recheck", d.cfg.CycleRecheck),
	)

	for {
		if err := ctx.Err(); err != nil {
			d.logger.Info("watcher stopped")
			return nil
		}

		if err := d.PollOnce(ctx); err != nil {
			d.state = stateFailed
			d.logger.Error("watcher failed",
				slog.String("state", d.state.String()),
				slog.String("error", err.Error()),
			)

			return err
		}

		if err := d.sleepFunc(ctx, d.cfg.PollInterval); err != nil {
			d.logger.Info("watcher stopped")
			return nil
		}
	}
}

// PollOnce performs a single poll iteration. Exported so tests can step the
// detector deterministically without the loop.
func (d *Detector) PollOnce(ctx context.Context) error {
	if err := d.refreshCycle(); err != nil {
		return err
	}

	current, err := archive.ReadLastRun(archive.LastRunPath(d.cfg.ArchiveRoot, d.cfg.Instrument))
	if errors.Is(err, archive.ErrBadLastRunFormat) {
		// Half-written file; retry next iteration.
		d.logger.Warn("malformed last run file, skipping iteration",
			slog.String("error", err.Error()))

		return nil
	}

	if err != nil {
		return fmt.Errorf("detector: reading local watermark: %w", err)
	}

	return d.observe(ctx, current)
}

// refreshCycle re-resolves the current cycle folder when the recheck interval
// has elapsed since the last successful resolution. Listing the archive is
// slow over the network mount, so it is amortized rather than done per poll.
func (d *Detector) refreshCycle() error {
	if time.Since(d.lastCycleCheck) < d.cfg.CycleRecheck {
		return nil
	}

	cycle, err := archive.LatestCycle(d.cfg.ArchiveRoot, d.cfg.ReferenceInstrument)
	if err != nil {
		return fmt.Errorf("detector: re-resolving cycle: %w", err)
	}

	if cycle != d.cycle {
		d.logger.Info("cycle rolled over",
			slog.String("previous", d.cycle),
			slog.String("cycle", cycle),
		)
	}

	d.cycle = cycle
	d.lastCycleCheck = time.Now()

	return nil
}
