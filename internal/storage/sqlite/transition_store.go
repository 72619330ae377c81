package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// TransitionStore implements storage.TransitionStore using SQLite.
type TransitionStore struct {
	db    *DB
	name  string
	ident string
}

// NewTransitionStore creates a TransitionStore for table name.
func NewTransitionStore(db *DB, name string) *TransitionStore {
	return &TransitionStore{db: db, name: name, ident: quote(name)}
}

// Compile-time interface check.
var _ storage.TransitionStore = (*TransitionStore)(nil)

// Name returns the table name.
func (s *TransitionStore) Name() string { return s.name }

// Ensure creates the table if it does not exist.
func (s *TransitionStore) Ensure(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			input_key   TEXT NOT NULL,
			output_key  TEXT NOT NULL,
			idx         INTEGER NOT NULL,
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

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`INSERT INTO %s (input_key, output_key, idx) VALUES (?, ?, ?)`, s.ident)
		for _, r := range records {
			if _, err := tx.ExecContext(ctx, query, r.InputKey, r.OutputKey, r.Index); err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert transition: %w", err)
			}
		}
		return nil
	})
}

// ExistsInput reports whether key was already mined.
func (s *TransitionStore) ExistsInput(ctx context.Context, key string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE input_key = ?)`, s.ident)
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists input: %w", err)
	}
	return exists, nil
}

// Count returns the number of records.
func (s *TransitionStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return n, nil
}

// GetByInput returns the records of one input key ordered by index ASC.
func (s *TransitionStore) GetByInput(ctx context.Context, key string) ([]domain.Transition, error) {
	return s.query(ctx, fmt.Sprintf(`
		SELECT input_key, output_key, idx FROM %s
		WHERE input_key = ? ORDER BY idx
	`, s.ident), key)
}

// All returns every record ordered by input key, then index.
func (s *TransitionStore) All(ctx context.Context) ([]domain.Transition, error) {
	return s.query(ctx, fmt.Sprintf(`
		SELECT input_key, output_key, idx FROM %s
		ORDER BY input_key, idx
	`, s.ident))
}

func (s *TransitionStore) query(ctx context.Context, query string, args ...any) ([]domain.Transition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.name, err)
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		var t domain.Transition
		if err := rows.Scan(&t.InputKey, &t.OutputKey, &t.Index); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
