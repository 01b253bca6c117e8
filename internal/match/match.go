// Package match decides which enrolled identity, if any, a probe embedding belongs to.
package match

import (
	"math"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/types"
)

// Unknown is the label reported when no enrolled identity is close enough.
const Unknown = "Unknown"

// DefaultThreshold is the maximum Euclidean distance accepted as a match.
// 0.6 is the usual separation point for 128-d dlib encodings.
const DefaultThreshold = 0.6

// Distance returns the Euclidean distance between a and b.
func Distance(a, b types.Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, &gallery.DimensionMismatchError{Want: len(b), Got: len(a)}
	}
	return euclidean(a, b), nil
}

func euclidean(a, b types.Embedding) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Identify returns the label of the enrolled embedding nearest to probe, or
// Unknown when the nearest distance exceeds threshold. An empty gallery is not
// an error: it yields (Unknown, +Inf).
func Identify(probe types.Embedding, g gallery.Gallery, threshold float64) (string, float64, error) {
	return Nearest(probe, g.Entries(), threshold)
}

// Nearest is Identify over pre-sorted gallery entries. Entries with equal
// distance resolve to the first one in the slice, which for gallery.Entries
// is the lexicographically smallest label.
func Nearest(probe types.Embedding, entries []gallery.Entry, threshold float64) (string, float64, error) {
	if len(entries) == 0 {
		return Unknown, math.Inf(1), nil
	}

	best := -1
	minDist := math.Inf(1)
	for i, e := range entries {
		if len(e.Embedding) != len(probe) {
			return "", 0, &gallery.DimensionMismatchError{Label: e.Label, Want: len(e.Embedding), Got: len(probe)}
		}
		if d := euclidean(probe, e.Embedding); d < minDist || best == -1 {
			minDist = d
			best = i
		}
	}

	if minDist <= threshold {
		return entries[best].Label, minDist, nil
	}
	return Unknown, minDist, nil
}
