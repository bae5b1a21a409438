package testutil

import (
	"cmp"
	"context"
	"slices"
	"sync"

	taste "github.com/eugener/tasteworker/internal"
)

// FakeStore is an in-memory implementation of storage.Store for testing.
type FakeStore struct {
	mu      sync.RWMutex
	prefs   map[[2]int64]float64
	similar map[int64][]taste.RecommendedItem
	runs    map[string]*taste.Run
	batches int

	// WriteErr, when set, is returned from WriteSimilarItems.
	WriteErr error
}

// NewFakeStore returns a FakeStore with empty collections.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		prefs:   make(map[[2]int64]float64),
		similar: make(map[int64][]taste.RecommendedItem),
		runs:    make(map[string]*taste.Run),
	}
}

// --- PreferenceStore ---

// InsertPreferences upserts preferences.
func (s *FakeStore) InsertPreferences(_ context.Context, prefs []taste.Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range prefs {
		s.prefs[[2]int64{p.UserID, p.ItemID}] = p.Value
	}
	return nil
}

// ListPreferences returns all preferences ordered by item then user.
func (s *FakeStore) ListPreferences(context.Context) ([]taste.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]taste.Preference, 0, len(s.prefs))
	for k, v := range s.prefs {
		out = append(out, taste.Preference{UserID: k[0], ItemID: k[1], Value: v})
	}
	slices.SortFunc(out, func(a, b taste.Preference) int {
		if a.ItemID != b.ItemID {
			return cmp.Compare(a.ItemID, b.ItemID)
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out, nil
}

// CountPreferences returns the number of preferences.
func (s *FakeStore) CountPreferences(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prefs), nil
}

// --- ItemStore ---

// ListItemIDs returns distinct item IDs ascending.
func (s *FakeStore) ListItemIDs(context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	for k := range s.prefs {
		seen[k[1]] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// --- SimilarityStore ---

// WriteSimilarItems stores every list in batch.
func (s *FakeStore) WriteSimilarItems(_ context.Context, batch []taste.SimilarItems) error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	for _, si := range batch {
		s.similar[si.ItemID] = si.Items
	}
	return nil
}

// GetSimilarItems returns the stored list for itemID.
func (s *FakeStore) GetSimilarItems(_ context.Context, itemID int64) ([]taste.RecommendedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, ok := s.similar[itemID]
	if !ok {
		return nil, taste.ErrNotFound
	}
	return items, nil
}

// SimilarCount returns how many items have a stored list.
func (s *FakeStore) SimilarCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.similar)
}

// Batches returns how many WriteSimilarItems calls succeeded.
func (s *FakeStore) Batches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches
}

// --- RunStore ---

// CreateRun stores a run.
func (s *FakeStore) CreateRun(_ context.Context, run *taste.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// FinishRun updates a stored run.
func (s *FakeStore) FinishRun(_ context.Context, run *taste.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return taste.ErrNotFound
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

// GetRun returns a stored run.
func (s *FakeStore) GetRun(_ context.Context, id string) (*taste.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, taste.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Ping always succeeds.
func (s *FakeStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }
