package video

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mjpegStream(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write([]byte{0xFF, 0xD8, byte(i), 0xFF, 0xD9})
	}
	return buf.Bytes()
}

func TestSourceEveryFrame(t *testing.T) {
	src := NewSource(bytes.NewReader(mjpegStream(3)), 1)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, f.Index)
		assert.Equal(t, []byte{0xFF, 0xD8, byte(i - 1), 0xFF, 0xD9}, f.Data)
	}
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSourceNthFrame(t *testing.T) {
	src := NewSource(bytes.NewReader(mjpegStream(10)), 3)
	var decoded int
	src.OnFrame = func() { decoded++ }

	var indices []int
	for {
		f, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		indices = append(indices, f.Index)
	}
	assert.Equal(t, []int{3, 6, 9}, indices)
	assert.Equal(t, 10, decoded)
	assert.Equal(t, 10, src.Read())
}

func TestSourceFrameDataIsOwned(t *testing.T) {
	src := NewSource(bytes.NewReader(mjpegStream(2)), 1)
	first, err := src.Next(context.Background())
	require.NoError(t, err)
	snapshot := append([]byte(nil), first.Data...)

	_, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot, first.Data, "scanner reuse must not clobber an emitted frame")
}
