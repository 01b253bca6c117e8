// Package render turns annotate results into pixels and ships annotated frames
// to their destinations.
package render

import (
	"image"
	"image/color"

	"github.com/andresmejia3/vigil/internal/annotate"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	BorderWidth = 2
	LabelHeight = 35
	textInset   = 6
)

var (
	KnownColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	UnknownColor = color.RGBA{R: 220, G: 0, B: 0, A: 255}
	FailedColor  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// ColorFor picks the box colour of a result.
func ColorFor(r annotate.Result) color.RGBA {
	switch {
	case r.Err != nil:
		return FailedColor
	case r.Known():
		return KnownColor
	default:
		return UnknownColor
	}
}

// Text returns what is printed in the label bar.
func Text(r annotate.Result) string {
	if r.Err != nil {
		return "?"
	}
	return r.Label
}

// Draw paints a box and a filled label bar for every result. Boxes that fall
// partly outside the frame are clipped; boxes entirely outside are skipped.
func Draw(img *image.RGBA, results []annotate.Result) {
	bounds := img.Bounds()
	for _, r := range results {
		box := r.Detection.Box.Rect().Canon()
		if box.Intersect(bounds).Empty() {
			continue
		}
		c := ColorFor(r)
		src := &image.Uniform{C: c}

		// Outline
		edges := []image.Rectangle{
			image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+BorderWidth),
			image.Rect(box.Min.X, box.Max.Y-BorderWidth, box.Max.X, box.Max.Y),
			image.Rect(box.Min.X, box.Min.Y, box.Min.X+BorderWidth, box.Max.Y),
			image.Rect(box.Max.X-BorderWidth, box.Min.Y, box.Max.X, box.Max.Y),
		}
		for _, e := range edges {
			fill(img, e.Intersect(bounds), src)
		}

		bar := image.Rect(box.Min.X, box.Max.Y-LabelHeight, box.Max.X, box.Max.Y).Intersect(bounds)
		if bar.Empty() {
			continue
		}
		fill(img, bar, src)
		drawLabel(img.SubImage(bar).(*image.RGBA), box.Min.X+textInset, box.Max.Y-textInset, Text(r))
	}
}

func fill(img *image.RGBA, rect image.Rectangle, src image.Image) {
	if rect.Empty() {
		return
	}
	draw.Draw(img, rect, src, image.Point{}, draw.Src)
}

// drawLabel writes text onto dst with its baseline at (x, y). dst bounds clip the glyphs.
func drawLabel(dst *image.RGBA, x, y int, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
