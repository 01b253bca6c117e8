package annotate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/match"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func embedding(r *rand.Rand, dim int) types.Embedding {
	e := make(types.Embedding, dim)
	for i := range e {
		e[i] = r.Float64()
	}
	return e
}

func detection(i int, e types.Embedding) types.Detection {
	return types.Detection{
		Box:       types.Box{Top: i * 10, Right: i*10 + 40, Bottom: i*10 + 40, Left: i * 10},
		Embedding: e,
	}
}

func TestAnnotatePreservesOrderAndCardinality(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	alice := embedding(r, 128)
	bob := embedding(r, 128)
	g := gallery.Gallery{"Alice": alice, "Bob": bob}

	dets := []types.Detection{
		detection(0, bob),
		detection(1, embedding(r, 128)),
		detection(2, alice),
		detection(3, bob),
	}

	got := Annotate(dets, g, match.DefaultThreshold)
	require.Len(t, got, len(dets))

	wantLabels := []string{"Bob", match.Unknown, "Alice", "Bob"}
	for i, res := range got {
		assert.NoError(t, res.Err)
		assert.Equal(t, dets[i].Box, res.Detection.Box, "result %d is out of order", i)
		assert.Equal(t, wantLabels[i], res.Label)
	}
	assert.True(t, got[0].Known())
	assert.False(t, got[1].Known())
}

func TestAnnotateEmptyFrame(t *testing.T) {
	got := Annotate(nil, gallery.Gallery{"Alice": {1, 2}}, match.DefaultThreshold)
	assert.Empty(t, got)
}

func TestAnnotateEmptyGalleryIsUnknown(t *testing.T) {
	r := rand.New(rand.NewSource(12))
	dets := []types.Detection{detection(0, embedding(r, 128)), detection(1, embedding(r, 64))}

	for _, res := range Annotate(dets, gallery.New(), match.DefaultThreshold) {
		require.NoError(t, res.Err)
		assert.Equal(t, match.Unknown, res.Label)
		assert.True(t, math.IsInf(res.Distance, 1))
	}
}

func TestAnnotateIsolatesFailures(t *testing.T) {
	r := rand.New(rand.NewSource(13))
	alice := embedding(r, 128)
	g := gallery.Gallery{"Alice": alice}

	dets := []types.Detection{
		detection(0, alice),
		detection(1, embedding(r, 64)), // wrong dimensionality
		detection(2, alice),
	}

	got := Annotate(dets, g, match.DefaultThreshold)
	require.Len(t, got, 3)

	assert.Equal(t, "Alice", got[0].Label)
	var dimErr *gallery.DimensionMismatchError
	assert.ErrorAs(t, got[1].Err, &dimErr)
	assert.Empty(t, got[1].Label)
	assert.False(t, got[1].Known())
	assert.Equal(t, "Alice", got[2].Label)
}

func TestAnnotateParallelMatchesSequential(t *testing.T) {
	r := rand.New(rand.NewSource(14))
	g := gallery.New()
	for _, l := range []string{"a", "b", "c", "d"} {
		require.NoError(t, g.Put(l, embedding(r, 32)))
	}

	dets := make([]types.Detection, 40)
	for i := range dets {
		if i%5 == 0 {
			dets[i] = detection(i, g["c"])
		} else {
			dets[i] = detection(i, embedding(r, 32))
		}
	}

	seq := Annotator{Threshold: 1.2}.Annotate(dets, g)
	par := Annotator{Threshold: 1.2, Workers: 8}.Annotate(dets, g)
	assert.Equal(t, seq, par)
}
