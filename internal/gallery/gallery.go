package gallery

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/andresmejia3/vigil/internal/types"
)

var (
	// ErrCorruptStore is returned when persisted gallery data cannot be decoded.
	ErrCorruptStore = errors.New("gallery store is corrupt")
	// ErrStoreWrite is returned when the gallery cannot be durably written.
	ErrStoreWrite = errors.New("failed to write gallery store")
)

// DimensionMismatchError reports an embedding whose length differs from the
// one it is being compared or stored against.
type DimensionMismatchError struct {
	Label string // gallery entry involved, if any
	Want  int
	Got   int
}

func (e *DimensionMismatchError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("embedding dimension mismatch against %q: want %d, got %d", e.Label, e.Want, e.Got)
	}
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// Gallery maps an identity label to its enrolled embedding.
type Gallery map[string]types.Embedding

// Entry is a single (label, embedding) pair.
type Entry struct {
	Label     string          `json:"label"`
	Embedding types.Embedding `json:"embedding"`
}

// New returns an empty gallery.
func New() Gallery {
	return make(Gallery)
}

// Labels returns the enrolled labels in lexicographic order.
func (g Gallery) Labels() []string {
	labels := make([]string, 0, len(g))
	for l := range g {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Entries returns the gallery sorted by label, so callers iterate in a stable order
// regardless of map layout.
func (g Gallery) Entries() []Entry {
	entries := make([]Entry, 0, len(g))
	for _, l := range g.Labels() {
		entries = append(entries, Entry{Label: l, Embedding: g[l]})
	}
	return entries
}

// Dim returns the shared dimensionality of the gallery, or 0 when it is empty.
func (g Gallery) Dim() int {
	for _, e := range g {
		return len(e)
	}
	return 0
}

// Clone returns a deep copy.
func (g Gallery) Clone() Gallery {
	out := make(Gallery, len(g))
	for l, e := range g {
		out[l] = append(types.Embedding(nil), e...)
	}
	return out
}

// Put inserts or overwrites label. The embedding must match the dimensionality
// of every other entry.
func (g Gallery) Put(label string, emb types.Embedding) error {
	for l, e := range g {
		if l == label {
			continue
		}
		if len(e) != len(emb) {
			return &DimensionMismatchError{Label: l, Want: len(e), Got: len(emb)}
		}
		break
	}
	g[label] = append(types.Embedding(nil), emb...)
	return nil
}

// Delete removes label and reports whether it was present.
func (g Gallery) Delete(label string) bool {
	if _, ok := g[label]; !ok {
		return false
	}
	delete(g, label)
	return true
}

// Validate checks the gallery invariants: non-empty labels, non-empty finite
// embeddings and a single dimensionality.
func (g Gallery) Validate() error {
	dim := -1
	for _, l := range g.Labels() {
		e := g[l]
		if l == "" {
			return errors.New("empty identity label")
		}
		if len(e) == 0 {
			return fmt.Errorf("identity %q has an empty embedding", l)
		}
		for i, v := range e {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("identity %q has a non-finite value at index %d", l, i)
			}
		}
		if dim == -1 {
			dim = len(e)
		} else if len(e) != dim {
			return &DimensionMismatchError{Label: l, Want: dim, Got: len(e)}
		}
	}
	return nil
}

// Equal reports whether two galleries hold the same labels and embeddings.
func Equal(a, b Gallery) bool {
	if len(a) != len(b) {
		return false
	}
	for l, ea := range a {
		eb, ok := b[l]
		if !ok || len(ea) != len(eb) {
			return false
		}
		for i := range ea {
			if ea[i] != eb[i] {
				return false
			}
		}
	}
	return true
}
