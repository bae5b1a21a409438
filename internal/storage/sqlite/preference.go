package sqlite

import (
	"context"
	"strings"

	taste "github.com/eugener/tasteworker/internal"
)

// insertChunk bounds the rows per INSERT to stay under SQLite's variable limit.
const insertChunk = 300

// InsertPreferences upserts preferences in multi-row statements inside one transaction.
func (s *Store) InsertPreferences(ctx context.Context, prefs []taste.Preference) error {
	if len(prefs) == 0 {
		return nil
	}
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for start := 0; start < len(prefs); start += insertChunk {
		chunk := prefs[start:min(start+insertChunk, len(prefs))]
		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*3)
		for i, p := range chunk {
			placeholders[i] = "(?, ?, ?)"
			args = append(args, p.UserID, p.ItemID, p.Value)
		}
		query := `INSERT INTO preferences (user_id, item_id, value) VALUES ` +
			strings.Join(placeholders, ", ") +
			` ON CONFLICT(user_id, item_id) DO UPDATE SET value = excluded.value`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListPreferences returns every preference ordered by item then user.
func (s *Store) ListPreferences(ctx context.Context) ([]taste.Preference, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT user_id, item_id, value FROM preferences ORDER BY item_id, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []taste.Preference
	for rows.Next() {
		var p taste.Preference
		if err := rows.Scan(&p.UserID, &p.ItemID, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPreferences returns the number of stored preferences.
func (s *Store) CountPreferences(ctx context.Context) (int, error) {
	var n int
	err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM preferences`).Scan(&n)
	return n, err
}
