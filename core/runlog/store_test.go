package runlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bhkw/core/schedule"
)

func records(base time.Time) []RunRecord {
	return []RunRecord{
		{ID: "r1", Timestamp: base, Status: "optimal", Objective: -7580, Cost: schedule.Breakdown{Net: decimal.NewFromInt(-7580)}},
		{ID: "r2", Timestamp: base.Add(time.Hour), Status: "infeasible"},
		{ID: "r3", Timestamp: base.Add(2 * time.Hour), Status: "optimal", Objective: -100},
	}
}

func exercise(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	for _, r := range records(base) {
		require.NoError(t, store.Append(ctx, r))
	}

	all, err := store.Query(ctx, RunQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID)
	assert.Equal(t, "-7580", all[2].Cost.Net.String())

	opt, err := store.Query(ctx, RunQuery{Status: "optimal", Limit: 1})
	require.NoError(t, err)
	require.Len(t, opt, 1)
	assert.Equal(t, "r3", opt[0].ID)

	window, err := store.Query(ctx, RunQuery{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "r2", window[0].ID)
}

func TestRotatingJSONLStore_Query(t *testing.T) {
	store, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "runs", "runs.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 3, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	rec := RunRecord{ID: "big", Timestamp: time.Now(), Error: strings.Repeat("x", 64*1024)}
	for i := 0; i < 20; i++ {
		require.NoError(t, store.Append(context.Background(), rec))
	}
	files, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "runs*.jsonl"))
	assert.Greater(t, len(files), 1)

	out, err := store.Query(context.Background(), RunQuery{})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, "big", out[0].ID)
}

func TestRotatingJSONLStore_TruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 1, 1)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), RunRecord{ID: "ok", Timestamp: time.Now()}))
	require.NoError(t, store.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"half","timest`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := store.Query(context.Background(), RunQuery{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].ID)
}

func TestSQLiteStore_PersistQuery(t *testing.T) {
	store, err := NewSQLiteStore("file:runs.db?mode=memory&cache=shared")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)

	err = store.Append(context.Background(), RunRecord{ID: "r1", Timestamp: time.Now()})
	assert.ErrorContains(t, err, "insert run r1")
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	s, err = Open(Config{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Config{Backend: "postgres", Path: "x"})
	assert.Error(t, err)
}
