package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// TransitionStore implements storage.TransitionStore using PostgreSQL.
type TransitionStore struct {
	pool  *Pool
	name  string
	ident string
}

// NewTransitionStore creates a TransitionStore for table name.
func NewTransitionStore(pool *Pool, name string) *TransitionStore {
	return &TransitionStore{pool: pool, name: name, ident: quote(name)}
}

// Compile-time interface check.
var _ storage.TransitionStore = (*TransitionStore)(nil)

// Name returns the table name.
func (s *TransitionStore) Name() string { return s.name }

// Ensure creates the table if it does not exist.
func (s *TransitionStore) Ensure(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			input_key   text NOT NULL,
			output_key  text NOT NULL,
			idx         integer NOT NULL,
			PRIMARY KEY (input_key, idx)
		)`, s.ident))
	if err != nil {
		return fmt.Errorf("ensure %s: %w", s.name, err)
	}
	return nil
}

// InsertBulk adds records atomically. Fails entire batch on any duplicate.
func (s *TransitionStore) InsertBulk(ctx context.Context, records []domain.Transition) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.InputKey == "" || r.OutputKey == "" || r.Index <= 0 {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`INSERT INTO %s (input_key, output_key, idx) VALUES ($1, $2, $3)`, s.ident)
	for _, r := range records {
		if _, err := tx.Exec(ctx, query, r.InputKey, r.OutputKey, int32(r.Index)); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert transition: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ExistsInput reports whether key was already mined.
func (s *TransitionStore) ExistsInput(ctx context.Context, key string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE input_key = $1)`, s.ident)
	if err := s.pool.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists input: %w", err)
	}
	return exists, nil
}

// Count returns the number of records.
func (s *TransitionStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return int(n), nil
}

// GetByInput returns the records of one input key ordered by index ASC.
func (s *TransitionStore) GetByInput(ctx context.Context, key string) ([]domain.Transition, error) {
	query := fmt.Sprintf(`
		SELECT input_key, output_key, idx FROM %s
		WHERE input_key = $1
		ORDER BY idx ASC
	`, s.ident)
	return s.query(ctx, query, key)
}

// All returns every record ordered by input key, then index.
func (s *TransitionStore) All(ctx context.Context) ([]domain.Transition, error) {
	query := fmt.Sprintf(`
		SELECT input_key, output_key, idx FROM %s
		ORDER BY input_key COLLATE "C", idx ASC
	`, s.ident)
	return s.query(ctx, query)
}

func (s *TransitionStore) query(ctx context.Context, query string, args ...any) ([]domain.Transition, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.name, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Transition, error) {
		var (
			t   domain.Transition
			idx int32
		)
		err := row.Scan(&t.InputKey, &t.OutputKey, &idx)
		t.Index = int(idx)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan transitions: %w", err)
	}
	return out, nil
}
