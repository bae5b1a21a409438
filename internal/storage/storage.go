// Package storage defines persistence interfaces for the similar-items job.
package storage

import (
	"context"

	taste "github.com/eugener/tasteworker/internal"
)

// PreferenceStore manages user/item preference persistence.
type PreferenceStore interface {
	InsertPreferences(ctx context.Context, prefs []taste.Preference) error
	ListPreferences(ctx context.Context) ([]taste.Preference, error)
	CountPreferences(ctx context.Context) (int, error)
}

// ItemStore lists the items that have preferences.
type ItemStore interface {
	ListItemIDs(ctx context.Context) ([]int64, error)
}

// SimilarityStore manages computed similar-item lists.
type SimilarityStore interface {
	WriteSimilarItems(ctx context.Context, batch []taste.SimilarItems) error
	GetSimilarItems(ctx context.Context, itemID int64) ([]taste.RecommendedItem, error)
}

// RunStore manages job run bookkeeping.
type RunStore interface {
	CreateRun(ctx context.Context, run *taste.Run) error
	FinishRun(ctx context.Context, run *taste.Run) error
	GetRun(ctx context.Context, id string) (*taste.Run, error)
}

// Store combines all storage interfaces.
type Store interface {
	PreferenceStore
	ItemStore
	SimilarityStore
	RunStore
	Ping(ctx context.Context) error
	Close() error
}
