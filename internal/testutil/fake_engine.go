package testutil

import (
	"context"
	"errors"
	"sync"

	taste "github.com/eugener/tasteworker/internal"
)

// ErrFakeEngine is returned by FakeEngine for items listed in Fail.
var ErrFakeEngine = errors.New("fake engine failure")

// FakeEngine is a configurable taste.Engine for testing.
// By default it returns howMany items with IDs itemID+1..itemID+howMany.
type FakeEngine struct {
	mu    sync.Mutex
	fail  map[int64]error
	calls []int64

	// Hook, when set, runs before each computation. Returning an error fails the item.
	Hook func(ctx context.Context, itemID int64) error
}

// NewFakeEngine returns a FakeEngine that succeeds for every item.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{fail: make(map[int64]error)}
}

// FailOn makes the engine return err (or ErrFakeEngine when nil) for itemID.
func (e *FakeEngine) FailOn(itemID int64, err error) {
	if err == nil {
		err = ErrFakeEngine
	}
	e.mu.Lock()
	e.fail[itemID] = err
	e.mu.Unlock()
}

// MostSimilarItems implements taste.Engine.
func (e *FakeEngine) MostSimilarItems(ctx context.Context, itemID int64, howMany int) ([]taste.RecommendedItem, error) {
	e.mu.Lock()
	e.calls = append(e.calls, itemID)
	err := e.fail[itemID]
	e.mu.Unlock()

	if e.Hook != nil {
		if herr := e.Hook(ctx, itemID); herr != nil {
			return nil, herr
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]taste.RecommendedItem, howMany)
	for i := range out {
		out[i] = taste.RecommendedItem{ItemID: itemID + int64(i) + 1, Value: 1 / float64(i+1)}
	}
	return out, nil
}

// Calls returns the item IDs the engine was asked about, in call order.
func (e *FakeEngine) Calls() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.calls...)
}
