// Package annotate turns the detections of one frame into labelled results.
// It performs no drawing; rendering belongs to the caller.
package annotate

import (
	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/match"
	"github.com/andresmejia3/vigil/internal/types"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome for a single detection. When Err is set the match
// failed for this detection only and Label is empty.
type Result struct {
	Detection types.Detection
	Label     string
	Distance  float64
	Err       error
}

// Known reports whether the detection resolved to an enrolled identity.
func (r Result) Known() bool {
	return r.Err == nil && r.Label != "" && r.Label != match.Unknown
}

// Annotator matches every detection of a frame against a gallery.
type Annotator struct {
	Threshold float64
	// Workers bounds how many detections are matched concurrently. Values
	// below 2 match sequentially.
	Workers int
}

// Annotate matches each detection independently and sequentially. The output
// has the same length and order as detections.
func Annotate(detections []types.Detection, g gallery.Gallery, threshold float64) []Result {
	return Annotator{Threshold: threshold}.Annotate(detections, g)
}

// Annotate matches detections against g. One failing detection never affects
// the others. The call runs to completion once started.
func (a Annotator) Annotate(detections []types.Detection, g gallery.Gallery) []Result {
	results := make([]Result, len(detections))
	if len(detections) == 0 {
		return results
	}
	entries := g.Entries()

	if a.Workers < 2 || len(detections) == 1 {
		for i, d := range detections {
			results[i] = a.one(d, entries)
		}
		return results
	}

	var eg errgroup.Group
	eg.SetLimit(a.Workers)
	for i, d := range detections {
		eg.Go(func() error {
			results[i] = a.one(d, entries)
			return nil
		})
	}
	_ = eg.Wait() // workers never return errors; failures live in Result.Err
	return results
}

func (a Annotator) one(d types.Detection, entries []gallery.Entry) Result {
	label, dist, err := match.Nearest(d.Embedding, entries, a.Threshold)
	if err != nil {
		return Result{Detection: d, Err: err}
	}
	return Result{Detection: d, Label: label, Distance: dist}
}
