package match

import (
	"math"
	"math/rand"
	"testing"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomEmbedding(r *rand.Rand, dim int) types.Embedding {
	e := make(types.Embedding, dim)
	for i := range e {
		e[i] = r.Float64()*2 - 1
	}
	return e
}

// offset returns a copy of e moved by d along axis.
func offset(e types.Embedding, axis int, d float64) types.Embedding {
	out := append(types.Embedding(nil), e...)
	out[axis] += d
	return out
}

func TestDistanceProperties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		a := randomEmbedding(r, 128)
		b := randomEmbedding(r, 128)

		ab, err := Distance(a, b)
		require.NoError(t, err)
		ba, err := Distance(b, a)
		require.NoError(t, err)
		assert.Equal(t, ab, ba, "distance must be symmetric")

		aa, err := Distance(a, a)
		require.NoError(t, err)
		assert.Zero(t, aa)
	}
}

func TestDistanceKnownValue(t *testing.T) {
	d, err := Distance(types.Embedding{0, 0}, types.Embedding{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-12)
}

func TestDistanceDimensionMismatch(t *testing.T) {
	_, err := Distance(make(types.Embedding, 64), make(types.Embedding, 128))
	var dimErr *gallery.DimensionMismatchError
	assert.ErrorAs(t, err, &dimErr)
}

func TestIdentifyScenarios(t *testing.T) {
	bob := make(types.Embedding, 128)
	bob[0] = 0.5
	g := gallery.Gallery{"Bob": bob}

	tests := []struct {
		name      string
		probe     types.Embedding
		wantLabel string
		wantDist  float64
	}{
		{"close probe matches", offset(bob, 1, 0.3), "Bob", 0.3},
		{"far probe is unknown", offset(bob, 1, 0.9), Unknown, 0.9},
		{"exact match", bob, "Bob", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, dist, err := Identify(tt.probe, g, DefaultThreshold)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, label)
			assert.InDelta(t, tt.wantDist, dist, 1e-9)
		})
	}
}

func TestIdentifyThresholdIsInclusive(t *testing.T) {
	g := gallery.Gallery{"Bob": {0, 0, 0}}

	label, dist, err := Identify(types.Embedding{0, 0.5, 0}, g, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "Bob", label)
	assert.Equal(t, 0.5, dist)

	label, _, err = Identify(types.Embedding{0, 0.5, 0}, g, 0.4999)
	require.NoError(t, err)
	assert.Equal(t, Unknown, label)
}

func TestIdentifyEmptyGallery(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, g := range []gallery.Gallery{nil, gallery.New()} {
		for _, dim := range []int{0, 64, 128} {
			label, dist, err := Identify(randomEmbedding(r, dim), g, DefaultThreshold)
			require.NoError(t, err)
			assert.Equal(t, Unknown, label)
			assert.True(t, math.IsInf(dist, 1))
		}
	}
}

func TestIdentifyDimensionMismatch(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	g := gallery.Gallery{
		"Alice": randomEmbedding(r, 128),
		"Bob":   randomEmbedding(r, 128),
	}

	_, _, err := Identify(randomEmbedding(r, 64), g, DefaultThreshold)
	var dimErr *gallery.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 128, dimErr.Want)
	assert.Equal(t, 64, dimErr.Got)
}

func TestIdentifyPicksMinimum(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		g := gallery.New()
		for _, l := range []string{"a", "b", "c", "d", "e"} {
			require.NoError(t, g.Put(l, randomEmbedding(r, 16)))
		}
		probe := randomEmbedding(r, 16)
		threshold := r.Float64() * 4

		wantLabel, wantDist := "", math.Inf(1)
		for _, l := range g.Labels() {
			d, _ := Distance(probe, g[l])
			if d < wantDist {
				wantLabel, wantDist = l, d
			}
		}
		if wantDist > threshold {
			wantLabel = Unknown
		}

		label, dist, err := Identify(probe, g, threshold)
		require.NoError(t, err)
		assert.Equal(t, wantLabel, label)
		assert.Equal(t, wantDist, dist)
	}
}

func TestIdentifyTieBreakIsLexicographic(t *testing.T) {
	probe := types.Embedding{0, 0}
	// Both entries are exactly 0.5 away from the probe.
	g := gallery.Gallery{
		"zoe":  {0.5, 0},
		"adam": {0, -0.5},
	}

	for i := 0; i < 20; i++ {
		label, dist, err := Identify(probe, g, DefaultThreshold)
		require.NoError(t, err)
		assert.Equal(t, "adam", label)
		assert.Equal(t, 0.5, dist)
	}
}

func TestNearestEmptyEntries(t *testing.T) {
	label, dist, err := Nearest(types.Embedding{1}, nil, DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, Unknown, label)
	assert.True(t, math.IsInf(dist, 1))
}
