// Package enroll registers named faces in a gallery store.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/match"
	"github.com/andresmejia3/vigil/internal/types"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyLabel means the label was blank after trimming.
	ErrEmptyLabel = errors.New("label must not be empty")
	// ErrNoFaceDetected means the image (or embedding) carried no face to enroll.
	ErrNoFaceDetected = errors.New("no face detected, use a clear photo with one visible face")
	// ErrUnknownLabel means a maintenance operation referenced a label that is not enrolled.
	ErrUnknownLabel = errors.New("label is not enrolled")
	// ErrReservedLabel means the label collides with the one reported for unmatched faces.
	ErrReservedLabel = fmt.Errorf("%q is reserved for unmatched faces, choose another name", match.Unknown)
)

// NormalizeLabel trims surrounding whitespace and converts the label to NFC so
// that "Jiří" typed on different keyboards maps to one gallery key.
// The label reported for unmatched faces cannot be enrolled.
func NormalizeLabel(label string) (string, error) {
	label, err := normalize(label)
	if err != nil {
		return "", err
	}
	if label == match.Unknown {
		return "", ErrReservedLabel
	}
	return label, nil
}

// normalize is NormalizeLabel without the reserved check, so entries written
// before the check existed can still be removed or renamed.
func normalize(label string) (string, error) {
	label = norm.NFC.String(strings.TrimSpace(label))
	if label == "" {
		return "", ErrEmptyLabel
	}
	return label, nil
}

// Enroll stores emb under label, replacing any previous embedding for it.
// It returns the normalized label that was written.
func Enroll(ctx context.Context, label string, emb types.Embedding, store gallery.Store) (string, error) {
	label, err := NormalizeLabel(label)
	if err != nil {
		return "", err
	}
	if len(emb) == 0 {
		return "", ErrNoFaceDetected
	}

	err = gallery.Update(ctx, store, func(g gallery.Gallery) error {
		return g.Put(label, emb)
	})
	if err != nil {
		return "", fmt.Errorf("enrolling %q: %w", label, err)
	}
	return label, nil
}

// EnrollImage extracts faces from image and enrolls the first one the
// extractor reports. The label is validated before extraction runs.
func EnrollImage(ctx context.Context, label string, image []byte, ex types.Extractor, store gallery.Store) (string, types.Detection, error) {
	label, err := NormalizeLabel(label)
	if err != nil {
		return "", types.Detection{}, err
	}

	dets, err := ex.Extract(ctx, image)
	if err != nil {
		return "", types.Detection{}, fmt.Errorf("extracting faces: %w", err)
	}
	if len(dets) == 0 {
		return "", types.Detection{}, ErrNoFaceDetected
	}

	first := dets[0]
	label, err = Enroll(ctx, label, first.Embedding, store)
	if err != nil {
		return "", types.Detection{}, err
	}
	return label, first, nil
}

// Forget removes label from the store.
func Forget(ctx context.Context, label string, store gallery.Store) error {
	label, err := normalize(label)
	if err != nil {
		return err
	}
	return gallery.Update(ctx, store, func(g gallery.Gallery) error {
		if !g.Delete(label) {
			return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
		}
		return nil
	})
}

// Rename moves the embedding stored under from to to. An existing entry under
// to is overwritten.
func Rename(ctx context.Context, from, to string, store gallery.Store) error {
	from, err := normalize(from)
	if err != nil {
		return err
	}
	to, err = NormalizeLabel(to)
	if err != nil {
		return err
	}
	return gallery.Update(ctx, store, func(g gallery.Gallery) error {
		emb, ok := g[from]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownLabel, from)
		}
		delete(g, from)
		g[to] = emb
		return nil
	})
}
