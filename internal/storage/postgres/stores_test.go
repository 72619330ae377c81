package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

func TestRowStore_RoundTrip(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewRowStore(pool, "btc_discrete")
	require.NoError(t, store.Rebuild(ctx))

	rows := []*domain.Row{
		{Index: 0, Timestamp: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Values: []float64{0.95, -0.05}, Key: "A"},
		{Index: 1, Timestamp: 2000, Open: 1.5, High: 2.5, Low: 1, Close: 2, Values: []float64{0.85, 0.05}, Key: "B"},
		{Index: 2, Timestamp: 3000, Open: 2, High: 3, Low: 1.5, Close: 2.5, Values: []float64{0.75, 0.15}, Key: "A"},
	}
	require.NoError(t, store.InsertBulk(ctx, rows))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, rows[1], got)

	_, err = store.Get(ctx, 9)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	cur, err := store.Iterate(ctx, 1)
	require.NoError(t, err)
	all, err := storage.Collect(cur)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Index)
	assert.Equal(t, 2, all[1].Index)

	idx, err := store.IndicesByKey(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, idx)

	err = store.InsertBulk(ctx, rows[:1])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	require.NoError(t, store.Rebuild(ctx))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRangeStore_Aggregate(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewRangeStore(pool, "btc_ranges")
	require.NoError(t, store.Rebuild(ctx))

	samples := []domain.RangeSample{
		{Feature: "speed_10", Period: 3, Kind: domain.RangeMax, Value: 1, Index: 4},
		{Feature: "speed_10", Period: 5, Kind: domain.RangeMax, Value: 3, Index: 4},
		{Feature: "speed_10", Period: 3, Kind: domain.RangeMin, Value: -2, Index: 9},
		{Feature: "speed_2", Period: 3, Kind: domain.RangeMax, Value: 5, Index: 1},
	}
	require.NoError(t, store.InsertBulk(ctx, samples))

	stats, err := store.Aggregate(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, "speed_10", stats[0].Feature)
	assert.Equal(t, domain.RangeMax, stats[0].Kind)
	assert.InDelta(t, 2.0, stats[0].Mean, 1e-12)
	assert.InDelta(t, 1.0, stats[0].StdDev, 1e-12)
	assert.Equal(t, 2, stats[0].Count)

	assert.Equal(t, domain.RangeMin, stats[1].Kind)
	assert.InDelta(t, 0.0, stats[1].StdDev, 1e-12)

	assert.Equal(t, "speed_2", stats[2].Feature)
}

func TestTransitionStore_EnsureAndResume(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewTransitionStore(pool, "btc_transitions")
	require.NoError(t, store.Ensure(ctx))

	records := []domain.Transition{
		{InputKey: "A", OutputKey: "B", Index: 1},
		{InputKey: "A", OutputKey: "C", Index: 3},
	}
	require.NoError(t, store.InsertBulk(ctx, records))

	// Ensure is idempotent and keeps existing rows.
	require.NoError(t, store.Ensure(ctx))

	ok, err := store.ExistsInput(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ExistsInput(ctx, "B")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetByInput(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, records, got)

	err = store.InsertBulk(ctx, records[1:])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBarStore_InsertAndLoad(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewBarStore(pool, "btc")

	bars := []*domain.Bar{
		{Timestamp: 2000, Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 7},
		{Timestamp: 1000, Open: 1, High: 2, Low: 0, Close: 1.5, Volume: 3},
	}
	require.NoError(t, store.InsertBulk(ctx, bars))
	require.NoError(t, NewBarStore(pool, "eth").InsertBulk(ctx, bars[:1]))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, int64(1000), got[0].Timestamp)
	assert.Equal(t, 1, got[1].Index)

	err = store.InsertBulk(ctx, bars[:1])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunLog_RecordAndList(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	log := NewRunLog(pool)

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	run := domain.StageRun{
		RunID:      uuid.NewString(),
		Series:     "btc",
		Stage:      "features",
		Status:     domain.RunSuccess,
		Rows:       120,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
	}
	require.NoError(t, log.Record(ctx, run))
	assert.ErrorIs(t, log.Record(ctx, run), storage.ErrDuplicateKey)

	runs, err := log.List(ctx, "btc")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)
	assert.Equal(t, 120, runs[0].Rows)
	assert.True(t, runs[0].StartedAt.Equal(start))
	assert.Equal(t, 2*time.Second, runs[0].Duration())
}
