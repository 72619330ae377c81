// Package transition mines the empirical successor states of every discrete state key.
package transition

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/logging"
	"market-state-lab/internal/storage"
	"market-state-lab/internal/task"
)

// Stage is the loop name the miner reports progress under.
const Stage = "transitions"

// Result counts what one mining run did.
type Result struct {
	Rows          int // discrete rows scanned
	KeysProcessed int // keys mined in this run
	KeysSkipped   int // rows whose key was already mined
	Records       int // transition records written in this run
}

// Miner turns the discrete table into the transition edge list. The transition
// table is additive: a key that is already an input is never mined again, so an
// interrupted run can be resumed.
type Miner struct {
	discrete    storage.RowStore
	transitions storage.TransitionStore
	logger      *zap.SugaredLogger
}

// NewMiner creates a miner. A nil logger discards output.
func NewMiner(discrete storage.RowStore, transitions storage.TransitionStore, logger *zap.SugaredLogger) *Miner {
	return &Miner{discrete: discrete, transitions: transitions, logger: logging.OrNop(logger)}
}

// Run scans the discrete table in index order and mines every key not yet present
// as an input. The returned Result is valid even when err is not nil.
func (m *Miner) Run(ctx context.Context, loop *task.Loop) (Result, error) {
	var res Result

	loop.Count(Stage)
	if err := m.transitions.Ensure(ctx); err != nil {
		return res, fmt.Errorf("ensure %s: %w", m.transitions.Name(), err)
	}
	total, err := m.discrete.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("count %s: %w", m.discrete.Name(), err)
	}

	cur, err := m.discrete.Iterate(ctx, 0)
	if err != nil {
		return res, fmt.Errorf("iterate %s: %w", m.discrete.Name(), err)
	}
	defer cur.Close()

	err = loop.Run(ctx, Stage, total, func(step int) error {
		if !cur.Next() {
			if err := cur.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s ended after %d of %d rows", storage.ErrNotFound, m.discrete.Name(), step, total)
		}
		res.Rows++

		row := cur.Row()
		if row.Key == "" {
			return fmt.Errorf("%w: row %d has no state key", storage.ErrInvalidInput, row.Index)
		}
		done, err := m.transitions.ExistsInput(ctx, row.Key)
		if err != nil {
			return err
		}
		if done {
			res.KeysSkipped++
			return nil
		}

		n, err := m.mineKey(ctx, row.Key)
		if err != nil {
			return fmt.Errorf("key %s: %w", row.Key, err)
		}
		res.KeysProcessed++
		res.Records += n
		return nil
	})
	if err != nil {
		return res, err
	}

	m.logger.Infow("transitions mined",
		"rows", res.Rows, "keys", res.KeysProcessed, "skipped", res.KeysSkipped, "records", res.Records)
	return res, nil
}

// mineKey writes one record per occurrence of key that has a successor row.
func (m *Miner) mineKey(ctx context.Context, key string) (int, error) {
	indices, err := m.discrete.IndicesByKey(ctx, key)
	if err != nil {
		return 0, err
	}

	records := make([]domain.Transition, 0, len(indices))
	for _, i := range indices {
		next, err := m.discrete.Get(ctx, i+1)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		records = append(records, domain.Transition{InputKey: key, OutputKey: next.Key, Index: i + 1})
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := m.transitions.InsertBulk(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
