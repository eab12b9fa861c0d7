package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/m4xw311/playtest/capture"
	"github.com/m4xw311/playtest/errors"
)

// CaptureStore saves the frame behind each step next to the report so the
// Markdown and HTML renderings can reference it by file name.
type CaptureStore struct {
	Dir string
}

// CaptureName is the file name used for a step's capture.
func CaptureName(session string, index int) string {
	return fmt.Sprintf("%s_step%03d.jpg", session, index)
}

// Save writes the frame and returns the file name to record as the step's
// capture reference.
func (c CaptureStore) Save(session string, index int, frame *capture.Frame) (string, error) {
	data, err := frame.JPEG(capture.ArchiveQuality)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create capture directory")
	}
	name := CaptureName(session, index)
	if err := os.WriteFile(filepath.Join(c.Dir, name), data, 0644); err != nil {
		return "", errors.Wrapf(err, "failed to save capture")
	}
	return name, nil
}
