package session

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/playtest/action"
)

// Step is one successful decision, recorded once and never changed.
type Step struct {
	Index      int           `json:"index"`
	Timestamp  time.Time     `json:"timestamp"`
	Thought    string        `json:"thought"`
	Action     action.Action `json:"action"`
	CaptureRef string        `json:"capture_ref,omitempty"`
}

// Session is the record of one run. Only the owning recorder appends to it,
// and it is frozen once EndTime is set.
type Session struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Steps          []Step    `json:"steps"`
	TotalSteps     int       `json:"total_steps"`
	EndedOnFailure bool      `json:"ended_on_failure"`
	Note           string    `json:"note,omitempty"`
}

// Ended reports whether the session has been finalized.
func (s *Session) Ended() bool {
	return !s.EndTime.IsZero()
}

// DefaultName derives a session name from its start time.
func DefaultName(t time.Time) string {
	return "Test_" + t.Format("20060102_150405")
}

// Save writes the session as indented JSON.
func (s *Session) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a session previously written by Save.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read session file %s: %w", path, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	return &s, nil
}
