package session

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/errors"
	"go.uber.org/zap"
)

// Recorder accumulates the steps of one session at a time and exports it.
// It is owned by a single controller and is not safe for concurrent use.
type Recorder struct {
	logger  *zap.Logger
	now     func() time.Time
	current *Session
}

// NewRecorder returns a recorder with no open session. A nil now uses
// time.Now.
func NewRecorder(logger *zap.Logger, now func() time.Time) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Recorder{logger: logger.Named("session"), now: now}
}

// StartSession opens a new session, replacing any previous one. An empty
// name is derived from the start time.
func (r *Recorder) StartSession(name string) *Session {
	start := r.now()
	if name == "" {
		name = DefaultName(start)
	}
	r.current = &Session{
		ID:        uuid.New(),
		Name:      name,
		StartTime: start,
		Steps:     []Step{},
	}
	r.logger.Info("Started new session", zap.String("name", name), zap.Stringer("id", r.current.ID))
	return r.current
}

// Session returns the current session, open or finalized, or nil.
func (r *Recorder) Session() *Session {
	return r.current
}

// Open reports whether steps can be logged.
func (r *Recorder) Open() bool {
	return r.current != nil && !r.current.Ended()
}

// NextIndex is the index the next logged step will get.
func (r *Recorder) NextIndex() int {
	if r.current == nil {
		return 1
	}
	return len(r.current.Steps) + 1
}

// LogStep appends a step. Without an open session it logs a warning and
// does nothing.
func (r *Recorder) LogStep(thought string, act action.Action, captureRef string) (Step, bool) {
	if !r.Open() {
		r.logger.Warn("No open session, step not recorded", zap.String("action", string(act.Type)))
		return Step{}, false
	}
	step := Step{
		Index:      len(r.current.Steps) + 1,
		Timestamp:  r.now(),
		Thought:    thought,
		Action:     act,
		CaptureRef: captureRef,
	}
	r.current.Steps = append(r.current.Steps, step)
	return step, true
}

// EndSession freezes the step count and end time. Ending an already ended
// session does nothing.
func (r *Recorder) EndSession(note string, failed bool) {
	if !r.Open() {
		return
	}
	r.current.EndTime = r.now()
	r.current.TotalSteps = len(r.current.Steps)
	r.current.EndedOnFailure = failed
	r.current.Note = note
	r.logger.Info("Session ended",
		zap.String("name", r.current.Name),
		zap.Int("total_steps", r.current.TotalSteps),
		zap.Bool("failed", failed))
}

// Export renders the finalized session.
func (r *Recorder) Export() (Report, error) {
	if r.current == nil {
		return Report{}, errors.New("no session to export")
	}
	if !r.current.Ended() {
		return Report{}, errors.New("session '%s' is still open", r.current.Name)
	}
	return Export(r.current)
}

// WriteReport exports the finalized session into dir as <name>.md,
// <name>.html and <name>.json and returns the paths written.
func (r *Recorder) WriteReport(dir string) ([]string, error) {
	report, err := r.Export()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create report directory")
	}
	base := filepath.Join(dir, r.current.Name)
	paths := []string{base + ".md", base + ".html", base + ".json"}
	if err := os.WriteFile(paths[0], []byte(report.Markdown), 0644); err != nil {
		return nil, errors.Wrapf(err, "failed to write markdown report")
	}
	if err := os.WriteFile(paths[1], []byte(report.HTML), 0644); err != nil {
		return nil, errors.Wrapf(err, "failed to write html report")
	}
	if err := r.current.Save(paths[2]); err != nil {
		return nil, errors.Wrapf(err, "failed to write session json")
	}
	r.logger.Info("Report saved", zap.String("dir", dir), zap.String("name", r.current.Name))
	return paths, nil
}
