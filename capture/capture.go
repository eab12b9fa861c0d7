// Package capture holds the still images the agent reasons about and the
// sources that produce them.
package capture

import (
	"bytes"
	"context"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/m4xw311/playtest/errors"
)

const (
	// RequestQuality is the JPEG quality used when sending a frame to a provider.
	RequestQuality = 75
	// ArchiveQuality is the JPEG quality used when saving a frame with a report.
	ArchiveQuality = 85
)

// Frame is one capture of the application's visual state.
type Frame struct {
	Image image.Image
	Taken time.Time
	// Name identifies where the frame came from (a file path for replayed
	// captures). Informational only.
	Name string
}

// Size returns the frame's pixel dimensions.
func (f *Frame) Size() (int, int) {
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}

// JPEG encodes the frame at the given quality.
func (f *Frame) JPEG(quality int) ([]byte, error) {
	if f == nil || f.Image == nil {
		return nil, errors.New("empty frame")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, f.Image, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, errors.Wrapf(err, "encoding frame as JPEG")
	}
	return buf.Bytes(), nil
}

// Fit returns a copy of the frame scaled down to fit within maxWidth x
// maxHeight, preserving aspect ratio. Non-positive bounds leave that
// dimension unconstrained; frames already small enough are returned as is.
func (f *Frame) Fit(maxWidth, maxHeight int) *Frame {
	w, h := f.Size()
	if maxWidth <= 0 {
		maxWidth = w
	}
	if maxHeight <= 0 {
		maxHeight = h
	}
	if w <= maxWidth && h <= maxHeight {
		return f
	}
	return &Frame{
		Image: imaging.Fit(f.Image, maxWidth, maxHeight, imaging.Lanczos),
		Taken: f.Taken,
		Name:  f.Name,
	}
}

// Source produces one frame per call. Each frame is consumed once.
type Source interface {
	Capture(ctx context.Context) (*Frame, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Frame, error)

func (fn SourceFunc) Capture(ctx context.Context) (*Frame, error) { return fn(ctx) }

// Static returns the same image on every call.
type Static struct {
	Image image.Image
}

func (s Static) Capture(ctx context.Context) (*Frame, error) {
	if s.Image == nil {
		return nil, errors.New("static capture source has no image")
	}
	return &Frame{Image: s.Image, Taken: time.Now(), Name: "static"}, nil
}
