package detector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/runwatch/internal/notify"
	"github.com/tonimelisma/runwatch/internal/runid"
	"github.com/tonimelisma/runwatch/internal/watermark"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// journal records the interleaved order of notifications and store writes so
// tests can assert that persistence happens only after delivery.
type journal struct {
	events []string
}

// fakeStore is an in-memory watermark store sharing the journal.
type fakeStore struct {
	j      *journal
	runs   map[string]runid.ID
	setErr error
}

func newFakeStore(j *journal) *fakeStore {
	return &fakeStore{j: j, runs: make(map[string]runid.ID)}
}

func (s *fakeStore) Get(_ context.Context, instrument string) (runid.ID, bool, error) {
	run, ok := s.runs[instrument]
	return run, ok, nil
}

func (s *fakeStore) Set(_ context.Context, instrument string, run runid.ID) error {
	if s.setErr != nil {
		return s.setErr
	}

	s.runs[instrument] = run
	s.j.events = append(s.j.events, fmt.Sprintf("set %s %s", instrument, run))

	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeNotifier records notified paths in the shared journal. The optional
// hook runs on every delivery, letting tests observe the detector mid-batch.
type fakeNotifier struct {
	j     *journal
	paths []string
	err   error
	hook  func()
}

func (n *fakeNotifier) Notify(_ context.Context, path string) error {
	if n.hook != nil {
		n.hook()
	}

	if n.err != nil {
		return n.err
	}

	n.paths = append(n.paths, path)
	n.j.events = append(n.j.events, "notify "+filepath.Base(path))

	return nil
}

// testArchive builds a minimal archive tree: the reference instrument's cycle
// folders plus the watched instrument's lastrun.txt.
func testArchive(t *testing.T, lastRun string, cycles ...string) string {
	t.Helper()

	root := t.TempDir()
	for _, cycle := range cycles {
		dir := filepath.Join(root, "NDXWISH", "Instrument", "data", cycle)
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	logsDir := filepath.Join(root, "NDXMARI", "Instrument", "logs")
	require.NoError(t, os.MkdirAll(logsDir, 0o755))
	writeLastRun(t, root, lastRun)

	return root
}

func writeLastRun(t *testing.T, root, content string) {
	t.Helper()

	path := filepath.Join(root, "NDXMARI", "Instrument", "logs", "lastrun.txt")
	require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0o644))
}

func writeRunFile(t *testing.T, root, cycle, name string) string {
	t.Helper()

	dir := filepath.Join(root, "NDXMARI", "Instrument", "data", cycle)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	return path
}

func testConfig(root string, store *fakeStore, notifier *fakeNotifier, logger *slog.Logger) Config {
	return Config{
		ArchiveRoot:         root,
		Instrument:          "NDXMARI",
		FilePrefix:          "MAR",
		ReferenceInstrument: "NDXWISH",
		PollInterval:        time.Millisecond,
		CycleRecheck:        6 * time.Hour,
		Store:               store,
		Notifier:            notifier,
		Logger:              logger,
	}
}

func TestNew_SeedsStoreWhenAbsent(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 8 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	// Treated as caught up: the store is seeded, nothing is emitted.
	assert.Empty(t, notifier.paths)
	assert.Equal(t, "8", store.runs["MARI"].String())
	assert.Equal(t, "8", d.Recorded().String())
}

func TestNew_RecoversGapFromPersistedWatermark(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 8 0", "cycle_23_2")
	for _, name := range []string{"MAR6.nxs", "MAR7.nxs", "MAR8.nxs"} {
		writeRunFile(t, root, "cycle_23_2", name)
	}

	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("5")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	// Exactly one recovery batch, ascending order.
	require.Len(t, notifier.paths, 3)
	assert.Equal(t, "MAR6.nxs", filepath.Base(notifier.paths[0]))
	assert.Equal(t, "MAR7.nxs", filepath.Base(notifier.paths[1]))
	assert.Equal(t, "MAR8.nxs", filepath.Base(notifier.paths[2]))

	assert.Equal(t, "8", store.runs["MARI"].String())
	assert.Equal(t, "8", d.Recorded().String())
}

func TestNew_UpToDateIsNoOp(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 8 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("8")
	notifier := &fakeNotifier{j: j}

	_, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	assert.Empty(t, notifier.paths)
	assert.Empty(t, j.events)
}

func TestPollOnce_NoChange(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	require.NoError(t, d.PollOnce(context.Background()))

	assert.Empty(t, notifier.paths)
	assert.Empty(t, j.events, "no-op must not touch the store")
}

func TestPollOnce_SingleStepEmitsDirectly(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	writeRunFile(t, root, "cycle_23_2", "MAR4.nxs")
	writeLastRun(t, root, "MARI 4 0")

	require.NoError(t, d.PollOnce(context.Background()))

	require.Len(t, notifier.paths, 1)
	assert.Equal(t, "MAR4.nxs", filepath.Base(notifier.paths[0]))
	assert.Equal(t, "4", store.runs["MARI"].String())
	assert.Equal(t, "4", d.Recorded().String())
}

func TestPollOnce_EmissionOrderIsNotifyThenPersist(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	writeRunFile(t, root, "cycle_23_2", "MAR4.nxs")
	writeLastRun(t, root, "MARI 4 0")
	require.NoError(t, d.PollOnce(context.Background()))

	require.Equal(t, []string{"notify MAR4.nxs", "set MARI 4"}, j.events)
}

func TestPollOnce_GapRecoveryWithPaddingFallback(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 001 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("001")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	// Runs 2..11 become due. Run 2 exists under the inherited padding
	// (candidate "002"), run 10 only with one zero dropped ("010" instead of
	// "0010", the instrument shrank its padding at the rollover), run 11
	// under the inherited padding again, and the rest are missing.
	writeRunFile(t, root, "cycle_23_2", "MAR002.nxs")
	writeRunFile(t, root, "cycle_23_2", "MAR010.nxs") // not MAR0010.nxs
	writeRunFile(t, root, "cycle_23_2", "MAR0011.nxs")
	writeLastRun(t, root, "MARI 0011 0")

	require.NoError(t, d.PollOnce(context.Background()))

	// Missing runs 3..9 are skipped without aborting the batch.
	require.Len(t, notifier.paths, 3)
	assert.Equal(t, "MAR002.nxs", filepath.Base(notifier.paths[0]))
	assert.Equal(t, "MAR010.nxs", filepath.Base(notifier.paths[1]))
	assert.Equal(t, "MAR0011.nxs", filepath.Base(notifier.paths[2]))

	assert.Equal(t, "0011", d.Recorded().String())
	assert.Equal(t, "0011", store.runs["MARI"].String())
}

func TestPollOnce_DirectMissSuppressedThenRetried(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	// lastrun.txt advanced but the run file hasn't materialized yet.
	writeLastRun(t, root, "MARI 4 0")
	require.NoError(t, d.PollOnce(context.Background()))

	assert.Empty(t, notifier.paths, "null-path event must be suppressed")
	assert.Equal(t, "3", d.Recorded().String(), "watermark must not advance past a missing file")

	// Once the file appears the next poll emits it.
	writeRunFile(t, root, "cycle_23_2", "MAR4.nxs")
	require.NoError(t, d.PollOnce(context.Background()))

	require.Len(t, notifier.paths, 1)
	assert.Equal(t, "4", d.Recorded().String())
}

func TestPollOnce_MalformedLastRunIsSkipped(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	writeLastRun(t, root, "garbage")
	require.NoError(t, d.PollOnce(context.Background()), "format error must not kill the loop")
	assert.Empty(t, notifier.paths)

	// The next well-formed read resumes normal detection.
	writeRunFile(t, root, "cycle_23_2", "MAR4.nxs")
	writeLastRun(t, root, "MARI 4 0")
	require.NoError(t, d.PollOnce(context.Background()))
	require.Len(t, notifier.paths, 1)
}

func TestPollOnce_LocalBehindRecordedIsIgnored(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 8 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("8")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	writeLastRun(t, root, "MARI 5 0")
	require.NoError(t, d.PollOnce(context.Background()))

	assert.Empty(t, notifier.paths)
	assert.Equal(t, "8", d.Recorded().String(), "persisted watermark never regresses")
}

func TestPollOnce_NotifierFailureIsFatal(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j, err: fmt.Errorf("gateway unreachable")}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	writeRunFile(t, root, "cycle_23_2", "MAR4.nxs")
	writeLastRun(t, root, "MARI 4 0")

	err = d.PollOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, j.events, "nothing may be persisted when delivery failed")
}

func TestPollOnce_StoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	store.setErr = fmt.Errorf("connection refused")
	writeRunFile(t, root, "cycle_23_2", "MAR4.nxs")
	writeLastRun(t, root, "MARI 4 0")

	require.Error(t, d.PollOnce(context.Background()))
}

func TestRefreshCycle_PicksUpRollover(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_1")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)
	require.Equal(t, "cycle_23_1", d.cycle)

	// A new cycle folder appears; within the recheck interval nothing changes.
	dir := filepath.Join(root, "NDXWISH", "Instrument", "data", "cycle_23_2")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, d.PollOnce(context.Background()))
	assert.Equal(t, "cycle_23_1", d.cycle)

	// Once the interval elapses the resolver runs again.
	d.lastCycleCheck = time.Now().Add(-7 * time.Hour)
	require.NoError(t, d.PollOnce(context.Background()))
	assert.Equal(t, "cycle_23_2", d.cycle)
}

func TestWatch_StopsOnCancel(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, d.Watch(ctx), "cancellation is a clean shutdown, not an error")
}

func TestWatch_EmitsThenStops(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	writeRunFile(t, root, "cycle_23_2", "MAR4.nxs")
	writeLastRun(t, root, "MARI 4 0")

	// Cancel after the first sleep so the loop runs at least one iteration.
	ctx, cancel := context.WithCancel(context.Background())
	d.sleepFunc = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	require.NoError(t, d.Watch(ctx))
	require.Len(t, notifier.paths, 1)
	assert.Equal(t, "MAR4.nxs", filepath.Base(notifier.paths[0]))
}

func TestState_SyncingDuringRecoveryThenSteady(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 5 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("5")
	notifier := &fakeNotifier{j: j}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, "steady", d.State())

	for _, name := range []string{"MAR6.nxs", "MAR7.nxs"} {
		writeRunFile(t, root, "cycle_23_2", name)
	}
	writeLastRun(t, root, "MARI 7 0")

	var observed []string
	notifier.hook = func() { observed = append(observed, d.State()) }

	require.NoError(t, d.PollOnce(context.Background()))
	assert.Equal(t, []string{"syncing", "syncing"}, observed,
		"every delivery of the batch happens while syncing")
	assert.Equal(t, "steady", d.State())
}

func TestState_FailedAfterFatalError(t *testing.T) {
	t.Parallel()

	root := testArchive(t, "MARI 3 0", "cycle_23_2")
	j := &journal{}
	store := newFakeStore(j)
	store.runs["MARI"] = runid.MustParse("3")
	notifier := &fakeNotifier{j: j, err: fmt.Errorf("gateway unreachable")}

	d, err := New(context.Background(), testConfig(root, store, notifier, testLogger(t)))
	require.NoError(t, err)

	writeRunFile(t, root, "cycle_23_2", "MAR4.nxs")
	writeLastRun(t, root, "MARI 4 0")

	require.Error(t, d.Watch(context.Background()))
	assert.Equal(t, "failed", d.State())
}

// Compile-time checks that the fakes satisfy the real interfaces.
var (
	_ notify.Notifier = (*fakeNotifier)(nil)
	_ watermark.Store = (*fakeStore)(nil)
)
