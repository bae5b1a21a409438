package similarity

import (
	"fmt"
	"math"
)

// Measure names an item-item similarity function.
type Measure string

const (
	// Cosine is the cosine of the angle between two items' preference vectors.
	Cosine Measure = "cosine"
	// Tanimoto is the Jaccard coefficient of the sets of users who rated each item.
	Tanimoto Measure = "tanimoto"
)

// ParseMeasure validates s.
func ParseMeasure(s string) (Measure, error) {
	switch m := Measure(s); m {
	case Cosine, Tanimoto:
		return m, nil
	case "":
		return Cosine, nil
	default:
		return "", fmt.Errorf("unknown similarity measure %q", s)
	}
}

// compute returns the similarity of a and b, or NaN when undefined.
func (m *DataModel) compute(measure Measure, a, b int64) float64 {
	ua, ub := m.itemUsers[a], m.itemUsers[b]
	if len(ua) > len(ub) {
		ua, ub = ub, ua
	}

	switch measure {
	case Tanimoto:
		shared := 0
		for user := range ua {
			if _, ok := ub[user]; ok {
				shared++
			}
		}
		union := len(ua) + len(ub) - shared
		if union == 0 {
			return math.NaN()
		}
		return float64(shared) / float64(union)

	default:
		var dot float64
		for user, va := range ua {
			if vb, ok := ub[user]; ok {
				dot += va * vb
			}
		}
		denom := m.norms[a] * m.norms[b]
		if denom == 0 {
			return math.NaN()
		}
		return dot / denom
	}
}
