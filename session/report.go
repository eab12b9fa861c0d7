package session

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/m4xw311/playtest/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	stepLayout = "15:04:05"
)

// Report holds the two renderings of a session.
type Report struct {
	Markdown string
	HTML     string
}

var (
	markdownOnce     sync.Once
	markdownRenderer goldmark.Markdown
)

func renderer() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownRenderer
}

var htmlPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>AI Test Report: {{.Name}}</title>
  <style>
    body { font-family: 'Segoe UI', Arial, sans-serif; margin: 40px; background: #1a1a2e; color: #eee; }
    h1 { color: #00d9ff; border-bottom: 2px solid #00d9ff; padding-bottom: 10px; }
    h2 { color: #ff6b6b; }
    h3 { color: #00d9ff; background: #0f3460; padding: 10px 20px; border-radius: 8px 8px 0 0; margin-bottom: 0; }
    code { color: #ff6b6b; }
    hr { border: 0; border-top: 1px solid #16213e; }
    img { max-width: 100%; border-radius: 8px; margin-top: 10px; box-shadow: 0 4px 6px rgba(0,0,0,0.3); }
    .failed { color: #ff6b6b; }
  </style>
</head>
<body>
{{.Body}}</body>
</html>
`))

// Export renders a finalized session as Markdown and as a styled HTML page.
// Both are pure functions of the session.
func Export(s *Session) (Report, error) {
	if s == nil || !s.Ended() {
		return Report{}, errors.New("session is not finalized")
	}
	md := Markdown(s)

	var body bytes.Buffer
	if err := renderer().Convert([]byte(md), &body); err != nil {
		return Report{}, errors.Wrapf(err, "failed to render report")
	}
	var page bytes.Buffer
	err := htmlPage.Execute(&page, struct {
		Name string
		Body template.HTML
	}{s.Name, template.HTML(body.String())})
	if err != nil {
		return Report{}, errors.Wrapf(err, "failed to render report page")
	}
	return Report{Markdown: md, HTML: page.String()}, nil
}

// Markdown renders the session header followed by one block per step.
func Markdown(s *Session) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# AI Test Report: %s\n\n", s.Name)
	fmt.Fprintf(&sb, "- **Session ID**: %s\n", s.ID)
	fmt.Fprintf(&sb, "- **Start Time**: %s\n", s.StartTime.Format(timeLayout))
	fmt.Fprintf(&sb, "- **End Time**: %s\n", s.EndTime.Format(timeLayout))
	fmt.Fprintf(&sb, "- **Total Steps**: %d\n", s.TotalSteps)
	if s.EndedOnFailure {
		sb.WriteString("- **Result**: ended on failure\n")
	}
	if s.Note != "" {
		fmt.Fprintf(&sb, "- **Note**: %s\n", s.Note)
	}
	sb.WriteString("\n---\n\n## Test Steps\n\n")

	for _, step := range s.Steps {
		fmt.Fprintf(&sb, "### Step %d [%s]\n\n", step.Index, step.Timestamp.Format(stepLayout))
		fmt.Fprintf(&sb, "**Thought**: %s\n\n", oneLine(step.Thought))
		fmt.Fprintf(&sb, "**Action**: `%s` - %s\n\n", step.Action.Type, step.Action.Summary())
		if step.CaptureRef != "" {
			fmt.Fprintf(&sb, "![Screenshot Step %d](%s)\n\n", step.Index, step.CaptureRef)
		}
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

// oneLine keeps a multi-line thought inside its paragraph.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
