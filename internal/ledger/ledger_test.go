package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/sqlite"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	clock := time.UnixMilli(1_700_000_000_000)
	l.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	n := 0
	l.NewID = func() string {
		n++
		return fmt.Sprintf("run-%03d", n)
	}
	return l
}

func TestBeginFinish(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	id, err := l.Begin(ctx, "alice", "2024-05-02", 3)
	require.NoError(t, err)

	runs, err := l.Recent(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Zero(t, runs[0].FinishedAt)

	require.NoError(t, l.Finish(ctx, id, Summary{Entries: 5, New: 3, Resolved: 3, Downloaded: 3}))

	runs, err = l.Recent(ctx, "alice", 0)
	require.NoError(t, err)
	r := runs[0]
	assert.Equal(t, StatusOK, r.Status)
	assert.Equal(t, 3, r.Attempt)
	assert.Equal(t, "2024-05-02", r.RunDate)
	assert.Equal(t, []int{5, 3, 3, 3}, []int{r.Entries, r.New, r.Resolved, r.Downloaded})
	assert.False(t, r.Mismatch)
	assert.Greater(t, r.FinishedAt, r.StartedAt)
}

func TestFinish_Failure(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	id, err := l.Begin(ctx, "bob", "2024-05-02", 0)
	require.NoError(t, err)
	require.NoError(t, l.Finish(ctx, id, Summary{Entries: 2, New: 2, Mismatch: true, Truncated: true, Err: errors.New("extract: page layout changed")}))

	runs, err := l.Recent(ctx, "bob", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.True(t, runs[0].Mismatch)
	assert.True(t, runs[0].Truncated)
	assert.Equal(t, "extract: page layout changed", runs[0].Error)
}

func TestFinish_UnknownRun(t *testing.T) {
	l := newLedger(t)
	err := l.Finish(context.Background(), "nope", Summary{})
	require.Error(t, err)
}

func TestRecent_OrderAndFilter(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "alice", "alice"} {
		_, err := l.Begin(ctx, u, "2024-05-02", 0)
		require.NoError(t, err)
	}

	all, err := l.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "run-004", all[0].ID)
	assert.Equal(t, "run-001", all[3].ID)

	alice, err := l.Recent(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, []string{"run-004", "run-003"}, []string{alice[0].ID, alice[1].ID})
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Begin(context.Background(), "alice", "2024-05-02", 0)
	require.NoError(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	l := newLedger(t)

	var mode string
	require.NoError(t, l.DB.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, l.DB.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestIsBusy(t *testing.T) {
	assert.False(t, isBusy(nil))
	assert.False(t, isBusy(errors.New("database is locked")))

	l := newLedger(t)
	_, err := l.exec(context.Background(), "INSERT INTO missing VALUES (1)")
	require.Error(t, err)
	var se *sqlite.Error
	assert.True(t, errors.As(err, &se))
	assert.False(t, isBusy(err))
}
