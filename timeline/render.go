package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/maastricht-university/meetsync/meeting"
)

// Transcript flattens the timeline into "speaker: text" turns separated by spaces.
func Transcript(tl meeting.Timeline) string {
	parts := make([]string, 0, len(tl))
	for _, s := range tl {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		parts = append(parts, s.Speaker+": "+text)
	}
	return strings.Join(parts, " ")
}

type Metadata struct {
	Title        string
	Participants []string
	RunID        string
	Generated    string
}

// RenderMarkdown writes a header, the summary and one line per segment.
func RenderMarkdown(meta Metadata, tl meeting.Timeline, summary string) string {
	var b strings.Builder
	if meta.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	} else {
		b.WriteString("# Meeting Transcript\n\n")
	}
	if len(meta.Participants) > 0 {
		fmt.Fprintf(&b, "- Participants: %s\n", strings.Join(meta.Participants, ", "))
	}
	if meta.RunID != "" {
		fmt.Fprintf(&b, "- Run: `%s`\n", meta.RunID)
	}
	if meta.Generated != "" {
		fmt.Fprintf(&b, "- Generated: %s\n", meta.Generated)
	}
	if n := len(tl); n > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", SecToTS(tl[n-1].End-tl[0].Start))
	}
	b.WriteString("\n")
	if s := strings.TrimSpace(summary); s != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", s)
	}
	b.WriteString("## Transcript\n\n")

	for _, s := range tl {
		fmt.Fprintf(&b, "[%s-%s] %s: %s _(lip sync %.2f, confidence %.2f)_\n\n",
			SecToTS(s.Start), SecToTS(s.End), s.Speaker, strings.TrimSpace(s.Text), s.LipSyncScore, s.LipSyncConfidence)
	}
	return b.String()
}

// SecToTS formats seconds as mm:ss, or hh:mm:ss past the hour.
func SecToTS(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	d := time.Duration(sec*1000) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
