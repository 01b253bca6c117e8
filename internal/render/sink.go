package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/vigil/internal/annotate"
	"github.com/andresmejia3/vigil/internal/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// JPEGSink draws the results onto each frame and writes the annotated JPEG to
// Dir (one file per frame) and/or Stream (a concatenated MJPEG stream that
// ffplay can read from a pipe).
type JPEGSink struct {
	Dir     string
	Stream  io.Writer
	Quality int
	// OnlyFaces skips writing frames to Dir when nothing was detected.
	OnlyFaces bool
}

// Emit implements session.Sink.
func (s *JPEGSink) Emit(ctx context.Context, f session.Frame, results []annotate.Result) error {
	data := f.Data
	if len(results) > 0 {
		var err error
		if data, err = Annotate(f.Data, results, s.Quality); err != nil {
			return err
		}
	}

	if s.Dir != "" && (len(results) > 0 || !s.OnlyFaces) {
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		name := filepath.Join(s.Dir, fmt.Sprintf("frame_%06d.jpg", f.Index))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if s.Stream != nil {
		if _, err := s.Stream.Write(data); err != nil {
			return fmt.Errorf("failed to write frame %d to stream: %w", f.Index, err)
		}
	}
	return nil
}

// Annotate decodes a JPEG frame, draws results on it and re-encodes it.
func Annotate(frame []byte, results []annotate.Result, quality int) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	b := src.Bounds()
	img := image.NewRGBA(b)
	draw.Draw(img, b, src, b.Min, draw.Src)

	Draw(img, results)

	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// LogSink reports every result as a structured log line.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) Emit(ctx context.Context, f session.Frame, results []annotate.Result) error {
	for _, r := range results {
		if r.Err != nil {
			// already reported by the session
			continue
		}
		s.Log.WithFields(logrus.Fields{
			"frame":    f.Index,
			"label":    r.Label,
			"distance": fmt.Sprintf("%.4f", r.Distance),
			"box":      r.Detection.Box,
		}).Info("face")
	}
	return nil
}

// Multi fans a frame out to several sinks, stopping at the first error.
func Multi(sinks ...session.Sink) session.Sink {
	return session.SinkFunc(func(ctx context.Context, f session.Frame, results []annotate.Result) error {
		for _, s := range sinks {
			if err := s.Emit(ctx, f, results); err != nil {
				return err
			}
		}
		return nil
	})
}
