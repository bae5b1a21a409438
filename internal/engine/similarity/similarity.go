// Package similarity implements an in-process item-based similarity engine
// over a preference data model.
package similarity

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/cache"
)

// Engine ranks the neighbours of an item by similarity. It implements
// taste.Engine and is safe for concurrent use.
type Engine struct {
	model   *DataModel
	measure Measure
	cache   cache.Cache
}

// New creates an engine over model. c may be nil to disable caching.
func New(model *DataModel, measure Measure, c cache.Cache) *Engine {
	if measure == "" {
		measure = Cosine
	}
	return &Engine{model: model, measure: measure, cache: c}
}

// Model returns the engine's data model.
func (e *Engine) Model() *DataModel { return e.model }

// MostSimilarItems implements taste.Engine. Candidates are the items sharing
// at least one user with itemID; the result is ordered by descending
// similarity, ties by ascending item ID, and never contains itemID.
func (e *Engine) MostSimilarItems(ctx context.Context, itemID int64, howMany int) ([]taste.RecommendedItem, error) {
	if !e.model.HasItem(itemID) {
		return nil, fmt.Errorf("item %d: %w", itemID, taste.ErrItemNotFound)
	}
	if howMany <= 0 {
		return nil, nil
	}

	candidates := e.model.neighbours(itemID)
	scored := make([]taste.RecommendedItem, 0, len(candidates))
	for i, other := range candidates {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v, err := e.similarity(ctx, itemID, other)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) {
			continue
		}
		scored = append(scored, taste.RecommendedItem{ItemID: other, Value: v})
	}

	slices.SortFunc(scored, func(a, b taste.RecommendedItem) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemID, b.ItemID)
	})
	if len(scored) > howMany {
		scored = scored[:howMany]
	}
	return scored, nil
}

// ItemSimilarity returns the similarity of a and b, NaN when undefined.
func (e *Engine) ItemSimilarity(ctx context.Context, a, b int64) (float64, error) {
	return e.similarity(ctx, a, b)
}

func (e *Engine) similarity(ctx context.Context, a, b int64) (float64, error) {
	if e.cache == nil {
		return e.model.compute(e.measure, a, b), nil
	}
	return e.cache.GetOrCompute(ctx, cache.NewPair(a, b), func() (float64, error) {
		return e.model.compute(e.measure, a, b), nil
	})
}
