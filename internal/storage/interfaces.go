package storage

import (
	"context"
	"fmt"

	"market-state-lab/internal/domain"
)

// BarSource yields the bars of one series ordered by index 0..n-1.
type BarSource interface {
	Load(ctx context.Context) ([]*domain.Bar, error)
}

// BarStore persists the OHLC bars of one series.
type BarStore interface {
	BarSource

	// InsertBulk adds bars. Returns ErrDuplicateKey if a timestamp already exists.
	InsertBulk(ctx context.Context, bars []*domain.Bar) error

	// Count returns the number of stored bars.
	Count(ctx context.Context) (int, error)
}

// RowCursor iterates rows in ascending index order.
//
//	cur, err := store.Iterate(ctx, 0)
//	defer cur.Close()
//	for cur.Next() { row := cur.Row() }
//	if err := cur.Err(); err != nil { ... }
type RowCursor interface {
	Next() bool
	Row() *domain.Row
	Err() error
	Close()
}

// RowStore is one derived series table: features, continuous or discrete rows.
// A table has a single writer for the duration of a stage.
type RowStore interface {
	// Name returns the table name.
	Name() string

	// Rebuild drops the table and creates it empty.
	Rebuild(ctx context.Context) error

	// InsertBulk adds rows. Returns ErrDuplicateKey if an index already exists.
	InsertBulk(ctx context.Context, rows []*domain.Row) error

	// Count returns the number of rows.
	Count(ctx context.Context) (int, error)

	// Iterate returns a cursor over rows with index >= from, ordered by index ASC.
	Iterate(ctx context.Context, from int) (RowCursor, error)

	// Get returns the row at index. Returns ErrNotFound if absent.
	Get(ctx context.Context, index int) (*domain.Row, error)

	// IndicesByKey returns every index whose Key equals key, ordered ASC.
	IndicesByKey(ctx context.Context, key string) ([]int, error)
}

// RangeStore holds raw range samples and aggregates them into per-feature statistics.
type RangeStore interface {
	Name() string
	Rebuild(ctx context.Context) error
	InsertBulk(ctx context.Context, samples []domain.RangeSample) error
	Count(ctx context.Context) (int, error)

	// Aggregate groups samples by (feature, kind) across every period and returns
	// mean and population standard deviation ordered by feature, kind.
	Aggregate(ctx context.Context) ([]domain.RangeStat, error)
}

// TransitionStore is the additive transition edge list.
type TransitionStore interface {
	Name() string

	// Ensure creates the table if missing. It never drops existing records.
	Ensure(ctx context.Context) error

	// InsertBulk adds records. Returns ErrDuplicateKey if (input key, index) exists.
	InsertBulk(ctx context.Context, records []domain.Transition) error

	// ExistsInput reports whether any record has key as its input.
	ExistsInput(ctx context.Context, key string) (bool, error)

	Count(ctx context.Context) (int, error)

	// GetByInput returns the records of one input key ordered by index ASC.
	GetByInput(ctx context.Context, key string) ([]domain.Transition, error)

	// All returns every record ordered by input key, then index.
	All(ctx context.Context) ([]domain.Transition, error)
}

// Tables bundles the derived tables of one series.
type Tables struct {
	Features    RowStore
	Ranges      RangeStore
	Continuous  RowStore
	Discrete    RowStore
	Transitions TransitionStore
}

// TableNames are the derived table names of one series.
type TableNames struct {
	Features    string
	Ranges      string
	Continuous  string
	Discrete    string
	Transitions string
}

// NamesFor returns the table names derived from a series name.
func NamesFor(series string) TableNames {
	return TableNames{
		Features:    fmt.Sprintf("%s_features", series),
		Ranges:      fmt.Sprintf("%s_ranges", series),
		Continuous:  fmt.Sprintf("%s_continuous", series),
		Discrete:    fmt.Sprintf("%s_discrete", series),
		Transitions: fmt.Sprintf("%s_transitions", series),
	}
}

// Collect drains a cursor into a slice and closes it.
func Collect(cur RowCursor) ([]*domain.Row, error) {
	defer cur.Close()
	var out []*domain.Row
	for cur.Next() {
		out = append(out, cur.Row())
	}
	return out, cur.Err()
}

// RunLog records stage executions.
type RunLog interface {
	// Record stores a finished stage run. Returns ErrDuplicateKey if (run ID, stage) exists.
	Record(ctx context.Context, run domain.StageRun) error

	// List returns the runs of a series ordered by start time, then stage.
	List(ctx context.Context, series string) ([]domain.StageRun, error)
}
