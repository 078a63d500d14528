// Package archive resolves runs and cycles inside an instrument data archive.
//
// The archive is a network-mounted tree with one folder per instrument:
//
//	{root}/{INSTRUMENT}/Instrument/logs/lastrun.txt
//	{root}/{INSTRUMENT}/Instrument/data/{cycle}/{PREFIX}{run}.nxs
//
// Cycle folder names (e.g. "cycle_23_2") sort chronologically as plain
// strings. Expected misses (no cycles yet, run file not materialized) are
// sentinel errors, not panics; callers classify them with errors.Is.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tonimelisma/runwatch/internal/runid"
)

// Fixed subpaths of an instrument folder and the run-file extension.
const (
	dataSubdir     = "Instrument/data"
	lastRunSubpath = "Instrument/logs/lastrun.txt"
	runFileExt     = ".nxs"
)

// cycleGlob matches cycle folder names in the scheme currently in use.
const cycleGlob = "cycle_??_?"

// Sentinel errors for expected misses.
var (
	// ErrNoCycles indicates the reference instrument's data directory holds
	// no cycle folders, so no run paths can resolve at all.
	ErrNoCycles = errors.New("archive: no cycle folders present")

	// ErrRunNotFound indicates neither the direct candidate path nor the
	// cross-cycle fallback search produced a file for the run number.
	ErrRunNotFound = errors.New("archive: run file not found")
)

// LatestCycle returns the most recent cycle folder name under the reference
// instrument. The reference instrument's folder naming is free of the
// century-rollover anomalies older instruments carry, so its listing is used
// for every instrument sharing the archive. Returns ErrNoCycles when the
// listing is empty.
func LatestCycle(root, referenceInstrument string) (string, error) {
	dir := filepath.Join(root, referenceInstrument, dataSubdir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("archive: listing cycles in %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	if len(names) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoCycles, dir)
	}

	sort.Strings(names)

	return names[len(names)-1], nil
}

// Locator resolves run identifiers to concrete run-file paths for one
// instrument.
type Locator struct {
	root       string // archive root
	instrument string // instrument folder name, e.g. "NDXMARI"
	prefix     string // run-file name prefix, e.g. "MAR"
}

// NewLocator creates a Locator for the given instrument folder.
func NewLocator(root, instrument, prefix string) *Locator {
	return &Locator{root: root, instrument: instrument, prefix: prefix}
}

// Locate resolves a run to an absolute file path. The direct candidate in the
// given cycle folder is tried first; on a miss, a glob across all cycle
// folders looks for any file ending in the run number (runs recorded just
// before a cycle rollover land in the previous cycle's folder). Returns
// ErrRunNotFound when neither strategy produces a file.
func (l *Locator) Locate(run runid.ID, cycle string) (string, error) {
	direct := filepath.Join(l.root, l.instrument, dataSubdir, cycle,
		l.prefix+run.String()+runFileExt)

	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	return l.findInDataFolder(run)
}

// findInDataFolder is the slow path: scan every cycle folder for a filename
// suffix match. Returns the first match; duplicates across cycles are not
// expected to occur.
func (l *Locator) findInDataFolder(run runid.ID) (string, error) {
	pattern := filepath.Join(l.root, l.instrument, dataSubdir, cycleGlob,
		"*"+run.String()+runFileExt)

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("archive: searching for run %s: %w", run, err)
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("%w: run %s for %s", ErrRunNotFound, run, l.instrument)
	}

	return matches[0], nil
}

// LastRunPath returns the path of the instrument-maintained lastrun.txt for
// the given instrument folder.
func LastRunPath(root, instrument string) string {
	return filepath.Join(root, instrument, lastRunSubpath)
}
