package action

import (
	"regexp"
	"strings"

	"github.com/m4xw311/playtest/errors"
	"github.com/titanous/json5"
)

const (
	msgNoObject  = "no JSON object found"
	msgMalformed = "malformed JSON"
)

// fencedBlockRegex matches the first ``` fenced block. Any info string
// (json, JSON5, javascript...) is dropped. \x60 is a backtick.
var fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[\\w+.-]*\\s*(.*?)\\s*\x60\x60\x60")

// Parse turns arbitrary provider text into an Action. It fails only when no
// JSON object can be located or the located text does not parse; missing or
// mistyped fields take their defaults.
func Parse(text string) (Action, error) {
	candidate, err := Extract(text)
	if err != nil {
		return Action{}, err
	}
	return Decode(candidate)
}

// Extract returns the JSON candidate embedded in text: the contents of the
// first fenced code block, else the span from the first '{' to the last '}'.
func Extract(text string) (string, error) {
	if m := fencedBlockRegex.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", errors.E(errors.KindParse, msgNoObject)
	}
	return text[start : end+1], nil
}

// Decode validates a JSON candidate field by field.
func Decode(candidate string) (Action, error) {
	var obj map[string]interface{}
	if err := json5.Unmarshal([]byte(candidate), &obj); err != nil {
		return Action{}, errors.Wrap(errors.KindParse, err, msgMalformed)
	}
	if obj == nil {
		return Action{}, errors.E(errors.KindParse, msgMalformed)
	}

	a := Default()
	a.Thought = stringField(obj, "thought")
	if name, ok := obj["actionType"].(string); ok {
		a.Type = canonicalType(name)
	}
	a.ScreenPosition = pointField(obj, "screenPosition")
	a.TargetPosition = pointField(obj, "targetPosition")
	a.KeyName = stringField(obj, "keyName")
	a.TextToType = stringField(obj, "textToType")
	if d, ok := number(obj["duration"]); ok {
		a.Duration = d
	}
	return a, nil
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}

func pointField(obj map[string]interface{}, key string) Point {
	var p Point
	sub, ok := obj[key].(map[string]interface{})
	if !ok {
		return p
	}
	if x, ok := number(sub["x"]); ok {
		p.X = x
	}
	if y, ok := number(sub["y"]); ok {
		p.Y = y
	}
	return p
}

func number(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
