package types

import (
	"context"
	"image"
)

// Embedding is a face encoding produced by the extractor (128-d for dlib).
// Treat it as read-only once produced.
type Embedding []float64

// Dim returns the dimensionality of the embedding.
func (e Embedding) Dim() int { return len(e) }

// Box is a face location in source frame pixels, in the extractor's
// [top, right, bottom, left] order.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Rect converts the box to an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Detection is one located face plus its embedding within a single frame.
type Detection struct {
	Box       Box
	Embedding Embedding
}

// Extractor finds faces in an encoded image and returns one Detection per face,
// in the order the detector reports them.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]Detection, error)
}

// FrameError is a failure confined to one image. The extractor that returned
// it can keep serving further images.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string { return e.Reason }
