package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils" // Using the SafeCommand wrapper
)

const (
	statusOK    = 0
	statusError = 1

	// maxFaces and maxDim bound allocations driven by the worker's header.
	maxFaces = 1024
	maxDim   = 4096
)

// Config controls how the embedding engine is launched.
type Config struct {
	Python      string        // interpreter, e.g. python3
	Script      string        // path to the face_recognition worker script
	ReadTimeout time.Duration // max time to wait for one frame's answer; 0 disables
}

// PythonWorker drives one embedding engine process. It is not safe for
// concurrent use; calls are serialised internally.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	timeout time.Duration
	mu      sync.Mutex
}

func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	// 1. Initialize the SafeCommand we built
	py := utils.NewSafeCommandContext(ctx, cfg.Python, "-u", cfg.Script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		timeout:  cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and returns the raw response body.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	// Read Result
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends an encoded image and decodes the detections.
//
// Response body: [Status u8], then on success [NumFaces u32] followed by
// NumFaces × ([Top Right Bottom Left int32] [Dim u32] [Dim × float32]);
// on failure [MsgLen u32][Msg].
func (w *PythonWorker) ProcessFrame(data []byte) ([]types.Detection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.Communicate(data)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

// Extract implements types.Extractor. If the worker does not answer within the
// read timeout (or ctx ends first) the process is killed, since its pipe can no
// longer be trusted to be in sync.
func (w *PythonWorker) Extract(ctx context.Context, image []byte) ([]types.Detection, error) {
	if w.timeout <= 0 && ctx.Done() == nil {
		return w.ProcessFrame(image)
	}

	type reply struct {
		dets []types.Detection
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		dets, err := w.ProcessFrame(image)
		done <- reply{dets, err}
	}()

	var timeout <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		return r.dets, r.err
	case <-timeout:
		w.kill()
		return nil, fmt.Errorf("worker %d timed out after %s", w.ID, w.timeout)
	case <-ctx.Done():
		w.kill()
		return nil, ctx.Err()
	}
}

func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		_ = w.Cmd.Process.Kill()
	}
	w.DataPipe.Close()
}

func decodeResponse(resp []byte) ([]types.Detection, error) {
	r := bytes.NewReader(resp)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response: %w", err)
	}

	switch status {
	case statusOK:
	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		if int64(msgLen) > int64(r.Len()) {
			return nil, errors.New("malformed worker error: message truncated")
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		return nil, &types.FrameError{Reason: "python worker error: " + string(msg)}
	default:
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var numFaces uint32
	if err := binary.Read(r, binary.BigEndian, &numFaces); err != nil {
		return nil, fmt.Errorf("reading face count: %w", err)
	}
	if numFaces > maxFaces {
		return nil, fmt.Errorf("worker reported %d faces, limit is %d", numFaces, maxFaces)
	}

	dets := make([]types.Detection, 0, numFaces)
	for i := uint32(0); i < numFaces; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("reading box of face %d: %w", i, err)
		}
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("reading dim of face %d: %w", i, err)
		}
		if dim == 0 || dim > maxDim {
			return nil, fmt.Errorf("face %d has invalid dimension %d", i, dim)
		}
		raw := make([]float32, dim)
		if err := binary.Read(r, binary.BigEndian, raw); err != nil {
			return nil, fmt.Errorf("reading embedding of face %d: %w", i, err)
		}

		emb := make(types.Embedding, dim)
		for j, v := range raw {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("face %d has a non-finite embedding value", i)
			}
			emb[j] = float64(v)
		}
		dets = append(dets, types.Detection{
			Box:       types.Box{Top: int(box[0]), Right: int(box[1]), Bottom: int(box[2]), Left: int(box[3])},
			Embedding: emb,
		})
	}
	return dets, nil
}

func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
