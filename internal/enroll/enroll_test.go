package enroll

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/match"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor returns canned detections and counts calls.
type fakeExtractor struct {
	dets  []types.Detection
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, image []byte) ([]types.Detection, error) {
	f.calls++
	return f.dets, f.err
}

// failingStore loads fine but can never save.
type failingStore struct {
	gallery.MemoryStore
}

func (f *failingStore) Save(ctx context.Context, g gallery.Gallery) error {
	return fmt.Errorf("%w: disk full", gallery.ErrStoreWrite)
}

func emb(v ...float64) types.Embedding { return types.Embedding(v) }

func TestEnrollOverwrite(t *testing.T) {
	ctx := context.Background()
	store := gallery.NewFileStore(filepath.Join(t.TempDir(), "faces.json"))

	_, err := Enroll(ctx, "Alice", emb(1, 2, 3), store)
	require.NoError(t, err)
	_, err = Enroll(ctx, "Alice", emb(4, 5, 6), store)
	require.NoError(t, err)

	g, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, g, 1)
	assert.Equal(t, emb(4, 5, 6), g["Alice"])
}

func TestEnrollNormalizesLabel(t *testing.T) {
	ctx := context.Background()
	store := gallery.NewMemoryStore(nil)

	// Decomposed "Jiri" with combining caron and acute, padded with whitespace.
	label, err := Enroll(ctx, "  Jir\u030ci\u0301 \t", emb(1), store)
	require.NoError(t, err)
	assert.Equal(t, "Ji\u0159\u00ed", label)

	g, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, g, "Ji\u0159\u00ed")
}

func TestEnrollValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		label   string
		emb     types.Embedding
		wantErr error
	}{
		{"empty label", "", emb(1), ErrEmptyLabel},
		{"blank label", "   \n", emb(1), ErrEmptyLabel},
		{"nil embedding", "Alice", nil, ErrNoFaceDetected},
		{"empty embedding", "Alice", emb(), ErrNoFaceDetected},
		{"no-match label", "Unknown", emb(1), ErrReservedLabel},
		{"padded no-match label", "  Unknown ", emb(1), ErrReservedLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := gallery.NewMemoryStore(nil)
			_, err := Enroll(ctx, tt.label, tt.emb, store)
			assert.ErrorIs(t, err, tt.wantErr)

			g, _ := store.Load(ctx)
			assert.Empty(t, g, "a rejected enrollment must not touch the store")
		})
	}
}

func TestEnrollRejectsMismatchedDimension(t *testing.T) {
	ctx := context.Background()
	store := gallery.NewMemoryStore(gallery.Gallery{"Bob": emb(1, 2, 3)})

	_, err := Enroll(ctx, "Alice", emb(1, 2), store)
	var dimErr *gallery.DimensionMismatchError
	assert.ErrorAs(t, err, &dimErr)
}

func TestEnrollPropagatesStoreWriteError(t *testing.T) {
	_, err := Enroll(context.Background(), "Alice", emb(1, 2), &failingStore{})
	assert.ErrorIs(t, err, gallery.ErrStoreWrite)
}

func TestEnrollImagePicksFirstFace(t *testing.T) {
	ctx := context.Background()
	store := gallery.NewMemoryStore(nil)
	ex := &fakeExtractor{dets: []types.Detection{
		{Box: types.Box{Top: 1, Right: 2, Bottom: 3, Left: 4}, Embedding: emb(0.1, 0.2)},
		{Box: types.Box{Top: 5, Right: 6, Bottom: 7, Left: 8}, Embedding: emb(0.9, 0.8)},
	}}

	label, det, err := EnrollImage(ctx, "Alice", []byte("jpeg"), ex, store)
	require.NoError(t, err)
	assert.Equal(t, "Alice", label)
	assert.Equal(t, ex.dets[0].Box, det.Box)
	assert.Equal(t, 1, ex.calls)

	g, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, emb(0.1, 0.2), g["Alice"])
}

func TestEnrollImageNoFace(t *testing.T) {
	ex := &fakeExtractor{}
	_, _, err := EnrollImage(context.Background(), "Alice", []byte("jpeg"), ex, gallery.NewMemoryStore(nil))
	assert.ErrorIs(t, err, ErrNoFaceDetected)
}

func TestEnrollImageValidatesLabelFirst(t *testing.T) {
	ex := &fakeExtractor{dets: []types.Detection{{Embedding: emb(1)}}}
	_, _, err := EnrollImage(context.Background(), " ", []byte("jpeg"), ex, gallery.NewMemoryStore(nil))
	assert.ErrorIs(t, err, ErrEmptyLabel)
	assert.Zero(t, ex.calls)
}

func TestEnrollImageExtractorError(t *testing.T) {
	boom := errors.New("python worker error: boom")
	ex := &fakeExtractor{err: boom}
	_, _, err := EnrollImage(context.Background(), "Alice", []byte("jpeg"), ex, gallery.NewMemoryStore(nil))
	assert.ErrorIs(t, err, boom)
}

func TestForgetAndRename(t *testing.T) {
	ctx := context.Background()
	store := gallery.NewMemoryStore(gallery.Gallery{"Alice": emb(1), "Bob": emb(2)})

	require.NoError(t, Rename(ctx, "Alice", "Alicia", store))
	require.NoError(t, Forget(ctx, "Bob", store))

	g, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, gallery.Gallery{"Alicia": emb(1)}, g)

	assert.ErrorIs(t, Forget(ctx, "Bob", store), ErrUnknownLabel)
	assert.ErrorIs(t, Rename(ctx, "Nobody", "X", store), ErrUnknownLabel)
	assert.ErrorIs(t, Rename(ctx, "Alicia", "", store), ErrEmptyLabel)
}

func TestReservedLabelCannotBeMatched(t *testing.T) {
	ctx := context.Background()
	store := gallery.NewMemoryStore(gallery.Gallery{"Alice": emb(1, 0)})

	_, err := Enroll(ctx, match.Unknown, emb(1, 0), store)
	require.ErrorIs(t, err, ErrReservedLabel)
	assert.ErrorIs(t, Rename(ctx, "Alice", match.Unknown, store), ErrReservedLabel)

	g, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, gallery.Gallery{"Alice": emb(1, 0)}, g)
}

func TestLegacyReservedEntryCanBeRemoved(t *testing.T) {
	ctx := context.Background()
	store := gallery.NewMemoryStore(gallery.Gallery{match.Unknown: emb(1), "Bob": emb(2)})

	require.NoError(t, Rename(ctx, match.Unknown, "Carol", store))
	require.NoError(t, Forget(ctx, "Bob", store))

	g, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, gallery.Gallery{"Carol": emb(1)}, g)
}
