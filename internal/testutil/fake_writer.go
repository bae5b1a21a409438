package testutil

import (
	"context"
	"sync"

	taste "github.com/eugener/tasteworker/internal"
)

// FakeWriter is an in-memory taste.Writer that records every write.
type FakeWriter struct {
	mu     sync.Mutex
	order  []int64
	writes map[int64][]taste.RecommendedItem

	// Err, when set, is returned from every Write.
	Err error
}

// NewFakeWriter returns an empty FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{writes: make(map[int64][]taste.RecommendedItem)}
}

// Write implements taste.Writer.
func (w *FakeWriter) Write(_ context.Context, itemID int64, items []taste.RecommendedItem) error {
	if w.Err != nil {
		return w.Err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.order = append(w.order, itemID)
	w.writes[itemID] = items
	return nil
}

// Order returns the written item IDs in write order.
func (w *FakeWriter) Order() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int64(nil), w.order...)
}

// Get returns the items written for itemID.
func (w *FakeWriter) Get(itemID int64) ([]taste.RecommendedItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	items, ok := w.writes[itemID]
	return items, ok
}

// Len returns the number of writes.
func (w *FakeWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}
