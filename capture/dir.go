package capture

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/disintegration/imaging"
	"github.com/m4xw311/playtest/errors"
)

// Dir replays image files from a directory, in lexical order, as if they
// were live captures. It is used for offline runs against recorded sessions.
type Dir struct {
	root      string
	files     []string
	loop      bool
	maxWidth  int
	maxHeight int

	mu   sync.Mutex
	next int
}

// DirOptions configures NewDir.
type DirOptions struct {
	// Pattern is a doublestar glob relative to the root, "**/*.{jpg,jpeg,png}"
	// when empty.
	Pattern string
	// Loop restarts from the first file after the last one instead of
	// returning io.EOF.
	Loop bool
	// MaxWidth and MaxHeight downscale frames that exceed them.
	MaxWidth  int
	MaxHeight int
}

const defaultPattern = "**/*.{jpg,jpeg,png}"

// NewDir lists the files under root matching opts.Pattern. It fails when the
// pattern is invalid or nothing matches.
func NewDir(root string, opts DirOptions) (*Dir, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = defaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.New("invalid capture pattern '%s'", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "listing captures in '%s'", root)
	}
	if len(matches) == 0 {
		return nil, errors.New("no captures in '%s' match '%s'", root, pattern)
	}
	sort.Strings(matches)
	return &Dir{
		root:      root,
		files:     matches,
		loop:      opts.Loop,
		maxWidth:  opts.MaxWidth,
		maxHeight: opts.MaxHeight,
	}, nil
}

// Len returns the number of files being replayed.
func (d *Dir) Len() int { return len(d.files) }

// Capture decodes the next file. Without looping it returns io.EOF once every
// file has been served.
func (d *Dir) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.next >= len(d.files) {
		if !d.loop {
			d.mu.Unlock()
			return nil, io.EOF
		}
		d.next = 0
	}
	name := d.files[d.next]
	d.next++
	d.mu.Unlock()

	path := filepath.Join(d.root, filepath.FromSlash(name))
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding capture '%s'", path)
	}
	frame := &Frame{Image: img, Taken: time.Now(), Name: path}
	return frame.Fit(d.maxWidth, d.maxHeight), nil
}
