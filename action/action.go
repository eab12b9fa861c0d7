// Package action defines the decision record exchanged between decision
// providers, the agent loop and executors, and the tolerant parser that turns
// raw model output into one.
package action

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type selects which Action fields are meaningful.
type Type string

const (
	Click    Type = "Click"
	Drag     Type = "Drag"
	Wait     Type = "Wait"
	KeyPress Type = "KeyPress"
	TypeText Type = "Type"
)

// Types lists the recognized action types.
var Types = []Type{Click, Drag, Wait, KeyPress, TypeText}

// Valid reports whether t is one of the recognized action types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// canonicalType maps a provider-supplied name onto a recognized type.
// Unknown names become Wait.
func canonicalType(name string) Type {
	name = strings.TrimSpace(name)
	for _, known := range Types {
		if strings.EqualFold(name, string(known)) {
			return known
		}
	}
	return Wait
}

// Point is a normalized screen coordinate in [0,1]x[0,1]. Y is measured from
// the top edge of the capture.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Origin is the pixel-space convention of the host that receives input.
type Origin string

const (
	OriginTopLeft    Origin = "top-left"
	OriginBottomLeft Origin = "bottom-left"
)

// Pixels maps p onto a width x height screen. Coordinates outside [0,1] are
// clamped; a bottom-left origin inverts y.
func (p Point) Pixels(width, height int, origin Origin) (int, int) {
	x := clamp01(p.X)
	y := clamp01(p.Y)
	if origin == OriginBottomLeft {
		y = 1 - y
	}
	return int(math.Round(x * float64(width))), int(math.Round(y * float64(height)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// DefaultDuration is the Wait duration used when a decision omits one.
const DefaultDuration = 1.0

// Action is one decision: the model's rationale and the UI action to take.
// Fields irrelevant to Type are carried through unchanged.
type Action struct {
	Thought        string  `json:"thought"`
	Type           Type    `json:"actionType"`
	ScreenPosition Point   `json:"screenPosition"`
	TargetPosition Point   `json:"targetPosition"`
	KeyName        string  `json:"keyName"`
	TextToType     string  `json:"textToType"`
	Duration       float64 `json:"duration"`
}

// Default returns the Action every missing field falls back to.
func Default() Action {
	return Action{Type: Wait, Duration: DefaultDuration}
}

// Summary describes the type-relevant fields of a for reports and logs.
func (a Action) Summary() string {
	switch a.Type {
	case Click:
		return fmt.Sprintf("Position (%.2f, %.2f)", a.ScreenPosition.X, a.ScreenPosition.Y)
	case Drag:
		return fmt.Sprintf("From (%.2f, %.2f) to (%.2f, %.2f)",
			a.ScreenPosition.X, a.ScreenPosition.Y, a.TargetPosition.X, a.TargetPosition.Y)
	case KeyPress:
		return "Key: " + a.KeyName
	case TypeText:
		return fmt.Sprintf("Text: %q", a.TextToType)
	case Wait:
		return "Duration: " + strconv.FormatFloat(a.Duration, 'f', -1, 64) + "s"
	default:
		return ""
	}
}

func (a Action) String() string {
	return fmt.Sprintf("%s (%s)", a.Type, a.Summary())
}
