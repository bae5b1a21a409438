// Package taste defines domain types and interfaces for the similar-items job.
// This package has no project imports -- it is the dependency root.
package taste

import (
	"context"
	"time"
)

// --- Collaborators ---

// Cursor is a forward-only source of item IDs.
// Next returns ErrExhausted once no more IDs remain. Implementations that are
// shared between workers must deliver each ID to exactly one caller.
type Cursor interface {
	Next() (int64, error)
}

// Engine computes the items most similar to a given item.
type Engine interface {
	// MostSimilarItems returns up to howMany items in rank order, most similar first.
	MostSimilarItems(ctx context.Context, itemID int64, howMany int) ([]RecommendedItem, error)
}

// Writer persists the ranked result list of one item.
type Writer interface {
	Write(ctx context.Context, itemID int64, items []RecommendedItem) error
}

// EngineFunc adapts a plain function to the Engine interface.
type EngineFunc func(ctx context.Context, itemID int64, howMany int) ([]RecommendedItem, error)

// MostSimilarItems calls f.
func (f EngineFunc) MostSimilarItems(ctx context.Context, itemID int64, howMany int) ([]RecommendedItem, error) {
	return f(ctx, itemID, howMany)
}

// WriterFunc adapts a plain function to the Writer interface.
type WriterFunc func(ctx context.Context, itemID int64, items []RecommendedItem) error

// Write calls f.
func (f WriterFunc) Write(ctx context.Context, itemID int64, items []RecommendedItem) error {
	return f(ctx, itemID, items)
}

// --- Data model ---

// RecommendedItem is a single scored entry in a result list.
type RecommendedItem struct {
	ItemID int64   `json:"item_id"`
	Value  float64 `json:"value"`
}

// SimilarItems is the result list computed for one item, as handed to storage.
type SimilarItems struct {
	ItemID     int64             `json:"item_id"`
	Items      []RecommendedItem `json:"items"`
	RunID      string            `json:"run_id,omitempty"`
	ComputedAt time.Time         `json:"computed_at"`
}

// Preference is a user's rating of an item.
type Preference struct {
	UserID int64   `json:"user_id"`
	ItemID int64   `json:"item_id"`
	Value  float64 `json:"value"`
}

// Run records one execution of the similar-items job.
type Run struct {
	ID         string     `json:"id"`
	Workers    int        `json:"workers"`
	HowMany    int        `json:"how_many"`
	Processed  int64      `json:"processed"`
	Failed     int64      `json:"failed"`
	Abandoned  int64      `json:"abandoned"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// --- Context keys ---

type contextKey int

const ctxKeyRunID contextKey = 0

// ContextWithRunID returns a context carrying the job run ID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, id)
}

// RunIDFromContext extracts the job run ID from context.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRunID).(string)
	return id
}
