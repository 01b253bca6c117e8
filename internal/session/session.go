// Package session runs the live identification loop: pull a frame, extract
// faces, match them, hand the results to a sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/vigil/internal/annotate"
	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Frame is one encoded (JPEG) frame of the video source.
type Frame struct {
	Index int
	Data  []byte
}

// FrameSource supplies frames on demand. Next returns io.EOF when the stream ends.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Sink receives the match results of each frame for rendering.
type Sink interface {
	Emit(ctx context.Context, f Frame, results []annotate.Result) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, f Frame, results []annotate.Result) error

func (fn SinkFunc) Emit(ctx context.Context, f Frame, results []annotate.Result) error {
	return fn(ctx, f, results)
}

// Stats summarises a finished session.
type Stats struct {
	Frames  int
	Faces   int
	Known   int
	Unknown int
	Failed  int

	// FailedFrames counts frames the extractor could not process; they are
	// emitted without results.
	FailedFrames int
}

// Session wires the collaborators of one live run.
type Session struct {
	ID        string
	Source    FrameSource
	Extractor types.Extractor
	Annotator annotate.Annotator
	Sink      Sink
	Log       logrus.FieldLogger

	gallery gallery.Gallery
}

// New loads the gallery once from store and returns a session ready to Run.
// An empty gallery is allowed; every face will then be reported as Unknown.
func New(ctx context.Context, store gallery.Store, src FrameSource, ex types.Extractor, a annotate.Annotator, sink Sink, log logrus.FieldLogger) (*Session, error) {
	g, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	id := uuid.NewString()
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("session", id[:8])

	if len(g) == 0 {
		log.Warn("gallery is empty, every face will be reported as Unknown; enroll someone first")
	} else {
		log.WithFields(logrus.Fields{"identities": len(g), "dim": g.Dim()}).Info("gallery loaded")
	}

	return &Session{
		ID:        id,
		Source:    src,
		Extractor: ex,
		Annotator: a,
		Sink:      sink,
		Log:       log,
		gallery:   g,
	}, nil
}

// Gallery returns the snapshot the session matches against.
func (s *Session) Gallery() gallery.Gallery { return s.gallery }

// Run processes frames until the source is exhausted or ctx is cancelled.
// A *types.FrameError from the extractor skips that frame; any other extractor
// error ends the run. Cancellation is only observed between frames; a frame that has started is
// always fully annotated and emitted. Source exhaustion is not an error.
func (s *Session) Run(ctx context.Context) (Stats, error) {
	var st Stats
	for {
		if err := ctx.Err(); err != nil {
			s.Log.WithField("frames", st.Frames).Info("session stopped")
			return st, err
		}

		frame, err := s.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.Log.WithField("frames", st.Frames).Info("video source exhausted")
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("reading frame %d: %w", st.Frames+1, err)
		}

		results, err := s.ProcessFrame(ctx, frame)
		var frameErr *types.FrameError
		switch {
		case errors.As(err, &frameErr):
			s.Log.WithField("frame", frame.Index).WithError(err).Warn("frame skipped")
			st.FailedFrames++
			results = nil
		case err != nil:
			return st, err
		}

		st.Frames++
		st.Faces += len(results)
		for _, r := range results {
			switch {
			case r.Err != nil:
				st.Failed++
			case r.Known():
				st.Known++
			default:
				st.Unknown++
			}
		}

		if s.Sink != nil {
			if err := s.Sink.Emit(ctx, frame, results); err != nil {
				return st, fmt.Errorf("emitting frame %d: %w", frame.Index, err)
			}
		}
	}
}

// ProcessFrame extracts and matches the faces of a single frame.
func (s *Session) ProcessFrame(ctx context.Context, frame Frame) ([]annotate.Result, error) {
	dets, err := s.Extractor.Extract(ctx, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("extracting faces from frame %d: %w", frame.Index, err)
	}

	results := s.Annotator.Annotate(dets, s.gallery)
	for _, r := range results {
		if r.Err != nil {
			s.Log.WithFields(logrus.Fields{
				"frame": frame.Index,
				"box":   r.Detection.Box,
			}).WithError(r.Err).Error("face match failed")
		}
	}
	return results, nil
}
