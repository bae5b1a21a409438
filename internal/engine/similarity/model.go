package similarity

import (
	"context"
	"fmt"
	"math"
	"slices"

	taste "github.com/eugener/tasteworker/internal"
)

// PreferenceLister is the storage dependency of LoadDataModel.
type PreferenceLister interface {
	ListPreferences(ctx context.Context) ([]taste.Preference, error)
}

// DataModel is an immutable item/user preference matrix. It is safe for
// concurrent reads.
type DataModel struct {
	itemUsers map[int64]map[int64]float64 // item -> user -> value
	userItems map[int64][]int64           // user -> items, ascending
	norms     map[int64]float64           // item -> L2 norm of its preference vector
	items     []int64                     // ascending
}

// NewDataModel indexes prefs. A later preference for the same user and item
// replaces an earlier one.
func NewDataModel(prefs []taste.Preference) *DataModel {
	m := &DataModel{
		itemUsers: make(map[int64]map[int64]float64),
		userItems: make(map[int64][]int64),
		norms:     make(map[int64]float64),
	}
	for _, p := range prefs {
		users, ok := m.itemUsers[p.ItemID]
		if !ok {
			users = make(map[int64]float64)
			m.itemUsers[p.ItemID] = users
		}
		users[p.UserID] = p.Value
	}

	for item, users := range m.itemUsers {
		m.items = append(m.items, item)
		var sum float64
		for user, v := range users {
			sum += v * v
			m.userItems[user] = append(m.userItems[user], item)
		}
		m.norms[item] = math.Sqrt(sum)
	}
	slices.Sort(m.items)
	for _, items := range m.userItems {
		slices.Sort(items)
	}
	return m
}

// LoadDataModel reads every preference from s.
func LoadDataModel(ctx context.Context, s PreferenceLister) (*DataModel, error) {
	prefs, err := s.ListPreferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return NewDataModel(prefs), nil
}

// ItemIDs returns all items with at least one preference, ascending.
func (m *DataModel) ItemIDs() []int64 {
	return slices.Clone(m.items)
}

// NumItems returns the number of distinct items.
func (m *DataModel) NumItems() int { return len(m.items) }

// NumUsers returns the number of distinct users.
func (m *DataModel) NumUsers() int { return len(m.userItems) }

// HasItem reports whether item has any preference.
func (m *DataModel) HasItem(item int64) bool {
	_, ok := m.itemUsers[item]
	return ok
}

// neighbours returns the items that share at least one user with item,
// excluding item itself, ascending.
func (m *DataModel) neighbours(item int64) []int64 {
	seen := make(map[int64]struct{})
	for user := range m.itemUsers[item] {
		for _, other := range m.userItems[user] {
			if other != item {
				seen[other] = struct{}{}
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
