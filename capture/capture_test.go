package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) image.Image {
	return imaging.New(w, h, c)
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, imaging.Save(img, path))
}

func TestFrameJPEG(t *testing.T) {
	frame := &Frame{Image: solid(64, 32, color.White)}
	data, err := frame.JPEG(RequestQuality)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, decoded.Bounds().Dx())
	assert.Equal(t, 32, decoded.Bounds().Dy())
}

func TestFrameJPEGEmpty(t *testing.T) {
	var frame *Frame
	_, err := frame.JPEG(RequestQuality)
	assert.Error(t, err)
}

func TestFrameFit(t *testing.T) {
	frame := &Frame{Image: solid(400, 200, color.Black), Name: "f"}

	same := frame.Fit(800, 0)
	assert.Same(t, frame, same)

	small := frame.Fit(100, 0)
	w, h := small.Size()
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
	assert.Equal(t, "f", small.Name)
}

func TestStatic(t *testing.T) {
	frame, err := Static{Image: solid(2, 2, color.White)}.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", frame.Name)

	_, err = Static{}.Capture(context.Background())
	assert.Error(t, err)
}

func TestDirReplaysInOrder(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "b", "002.png"), solid(10, 10, color.White))
	writeImage(t, filepath.Join(root, "a", "001.png"), solid(20, 10, color.White))
	writeImage(t, filepath.Join(root, "notes.txt.png"), solid(30, 10, color.White))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("x"), 0o644))

	dir, err := NewDir(root, DirOptions{Pattern: "*/*.png"})
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Len())

	ctx := context.Background()
	first, err := dir.Capture(ctx)
	require.NoError(t, err)
	w, _ := first.Size()
	assert.Equal(t, 20, w)

	second, err := dir.Capture(ctx)
	require.NoError(t, err)
	w, _ = second.Size()
	assert.Equal(t, 10, w)

	_, err = dir.Capture(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDirLoopsAndDownscales(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "only.jpg"), solid(200, 100, color.White))

	dir, err := NewDir(root, DirOptions{Loop: true, MaxWidth: 50})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		frame, err := dir.Capture(context.Background())
		require.NoError(t, err)
		w, h := frame.Size()
		assert.Equal(t, 50, w)
		assert.Equal(t, 25, h)
	}
}

func TestNewDirErrors(t *testing.T) {
	_, err := NewDir(t.TempDir(), DirOptions{})
	assert.Error(t, err)

	_, err = NewDir(t.TempDir(), DirOptions{Pattern: "[unterminated"})
	assert.Error(t, err)
}
