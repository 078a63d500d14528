// Package watermark persists the last-emitted run number per instrument.
//
// Two store implementations exist: Postgres for the shared facility database
// and SQLite for single-host deployments and tests. Both key records by the
// stripped instrument name (facility "NDX" prefix removed) and store the run
// number as digit text so zero-padding survives a process restart.
package watermark

import (
	"context"
	"strings"

	"github.com/tonimelisma/runwatch/internal/runid"
)

// facilityPrefix is prepended to instrument names in archive folder names
// ("NDXMARI") but stripped in the database ("MARI").
const facilityPrefix = "NDX"

// StoreName converts an instrument's archive folder name to its database
// key. Both reads and writes must go through this one mapping so the two
// representations round-trip consistently.
func StoreName(instrumentFolder string) string {
	return strings.TrimPrefix(instrumentFolder, facilityPrefix)
}

// Store persists per-instrument watermarks. Get distinguishes "no record"
// (found == false) from a recorded run of zero. Implementations do not retry;
// failures propagate to the caller, which treats them as fatal.
type Store interface {
	// Get returns the persisted watermark for the stripped instrument name.
	Get(ctx context.Context, instrument string) (run runid.ID, found bool, err error)

	// Set upserts the persisted watermark for the stripped instrument name.
	Set(ctx context.Context, instrument string, run runid.ID) error

	// Close releases the underlying database handle.
	Close() error
}
