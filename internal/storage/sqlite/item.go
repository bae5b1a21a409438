package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	taste "github.com/eugener/tasteworker/internal"
)

// ListItemIDs returns the distinct item IDs that have preferences, ascending.
func (s *Store) ListItemIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.read.QueryContext(ctx, `SELECT DISTINCT item_id FROM preferences ORDER BY item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ItemIterator streams item IDs from an open query. It is not safe for
// concurrent use; wrap it in cursor.Locked to share it between workers.
type ItemIterator struct {
	rows *sql.Rows
}

// OpenItemIterator starts streaming distinct item IDs. The caller must Close it.
func (s *Store) OpenItemIterator(ctx context.Context) (*ItemIterator, error) {
	rows, err := s.read.QueryContext(ctx, `SELECT DISTINCT item_id FROM preferences ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("query item ids: %w", err)
	}
	return &ItemIterator{rows: rows}, nil
}

// Next returns the next item ID, or taste.ErrExhausted after the last row.
func (it *ItemIterator) Next() (int64, error) {
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return 0, err
		}
		return 0, taste.ErrExhausted
	}
	var id int64
	if err := it.rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Close releases the underlying rows.
func (it *ItemIterator) Close() error {
	return it.rows.Close()
}
