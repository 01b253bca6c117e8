// Package video pulls encoded frames from ffmpeg for the live session.
package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/andresmejia3/vigil/internal/session"
	"github.com/andresmejia3/vigil/internal/utils"
)

const megabyte = 1024 * 1024

// Source yields every NthFrame-th JPEG frame from a stream.
type Source struct {
	scanner  *bufio.Scanner
	nthFrame int
	read     int

	// OnFrame, if set, is called for every decoded frame including skipped ones.
	OnFrame func()
}

// NewSource reads MJPEG frames from r and keeps every nth one.
func NewSource(r io.Reader, nth int) *Source {
	if nth < 1 {
		nth = 1
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)
	return &Source{scanner: scanner, nthFrame: nth}
}

// Next returns the next kept frame, or io.EOF at the end of the stream.
// Frame indices are 1-based positions in the original stream.
func (s *Source) Next(ctx context.Context) (session.Frame, error) {
	for s.scanner.Scan() {
		s.read++
		if s.OnFrame != nil {
			s.OnFrame()
		}
		if s.read%s.nthFrame != 0 {
			continue
		}
		data := make([]byte, len(s.scanner.Bytes()))
		copy(data, s.scanner.Bytes())
		return session.Frame{Index: s.read, Data: data}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return session.Frame{}, fmt.Errorf("frame scanner failed: %w", err)
	}
	return session.Frame{}, io.EOF
}

// Read returns the number of frames decoded so far, kept or not.
func (s *Source) Read() int { return s.read }

// FFmpegSource decodes a file or capture device through an ffmpeg subprocess.
type FFmpegSource struct {
	*Source
	cmd    *exec.Cmd
	stderr bytes.Buffer
	eof    bool
	once   sync.Once
	err    error
}

// StartFFmpeg launches ffmpeg for input. The process is killed when ctx ends.
func StartFFmpeg(ctx context.Context, input, format string, nth int) (*FFmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	f := &FFmpegSource{cmd: utils.NewFFmpegCmd(ctx, input, format)}
	// -loglevel error keeps this buffer small
	f.cmd.Stderr = &f.stderr

	out, err := f.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := f.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}
	f.Source = NewSource(out, nth)
	return f, nil
}

// Next wraps Source.Next and surfaces ffmpeg failures once the stream ends.
func (f *FFmpegSource) Next(ctx context.Context) (session.Frame, error) {
	frame, err := f.Source.Next(ctx)
	if errors.Is(err, io.EOF) {
		f.eof = true
		if werr := f.Close(); werr != nil {
			return session.Frame{}, werr
		}
	}
	return frame, err
}

// Close waits for ffmpeg to exit, killing it first if it is still running.
func (f *FFmpegSource) Close() error {
	f.once.Do(func() {
		if !f.eof {
			// Still streaming: the caller stopped early.
			_ = f.cmd.Process.Kill()
			_ = f.cmd.Wait()
			return
		}
		if err := f.cmd.Wait(); err != nil {
			f.err = fmt.Errorf("FFmpeg execution failed: %w: %s", err, bytes.TrimSpace(f.stderr.Bytes()))
		}
	})
	return f.err
}
