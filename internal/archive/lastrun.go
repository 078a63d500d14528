package archive

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tonimelisma/runwatch/internal/runid"
)

// ErrBadLastRunFormat indicates lastrun.txt did not contain exactly three
// whitespace-separated tokens. The instrument control software rewrites the
// file in place, so short reads of a half-written line happen routinely; the
// poll loop treats this as transient and retries on the next iteration.
var ErrBadLastRunFormat = errors.New("archive: unexpected lastrun.txt format")

// lastRunTokens is the expected token count: instrument name, run number,
// and a trailing field this system does not use.
const lastRunTokens = 3

// ReadLastRun reads the current run number from an instrument's lastrun.txt.
// The file holds a single line: `<instrument> <run-number> <unused>`. Any
// other token count returns ErrBadLastRunFormat.
func ReadLastRun(path string) (runid.ID, error) {
	f, err := os.Open(path)
	if err != nil {
		return runid.ID{}, fmt.Errorf("archive: opening last run file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return runid.ID{}, fmt.Errorf("archive: reading last run file %s: %w", path, err)
		}

		return runid.ID{}, fmt.Errorf("%w: %s is empty", ErrBadLastRunFormat, path)
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) != lastRunTokens {
		return runid.ID{}, fmt.Errorf("%w: %s has %d tokens, want %d",
			ErrBadLastRunFormat, path, len(parts), lastRunTokens)
	}

	run, err := runid.Parse(parts[1])
	if err != nil {
		return runid.ID{}, fmt.Errorf("%w: %s run field: %v", ErrBadLastRunFormat, path, err)
	}

	return run, nil
}
