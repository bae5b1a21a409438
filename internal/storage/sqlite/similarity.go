package sqlite

import (
	"context"
	"time"

	taste "github.com/eugener/tasteworker/internal"
)

// WriteSimilarItems replaces the stored list of every item in batch within a
// single transaction. Rank is the position in the list, starting at 0.
func (s *Store) WriteSimilarItems(ctx context.Context, batch []taste.SimilarItems) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	del, err := tx.PrepareContext(ctx, `DELETE FROM item_similarities WHERE item_id = ?`)
	if err != nil {
		return err
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx,
		`INSERT INTO item_similarities (item_id, rank, similar_id, value, run_id, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ins.Close()

	for _, si := range batch {
		if _, err := del.ExecContext(ctx, si.ItemID); err != nil {
			return err
		}
		computedAt := si.ComputedAt
		if computedAt.IsZero() {
			computedAt = time.Now()
		}
		ts := computedAt.UTC().Format(time.RFC3339)
		for rank, it := range si.Items {
			if _, err := ins.ExecContext(ctx, si.ItemID, rank, it.ItemID, it.Value, si.RunID, ts); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// GetSimilarItems returns the stored list for itemID in rank order.
// An item with no stored list yields taste.ErrNotFound.
func (s *Store) GetSimilarItems(ctx context.Context, itemID int64) ([]taste.RecommendedItem, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT similar_id, value FROM item_similarities WHERE item_id = ? ORDER BY rank`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []taste.RecommendedItem
	for rows.Next() {
		var it taste.RecommendedItem
		if err := rows.Scan(&it.ItemID, &it.Value); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, taste.ErrNotFound
	}
	return out, nil
}
