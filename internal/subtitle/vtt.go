// Package subtitle composes caption-track artifacts from timed
// segments.
package subtitle

import (
	"fmt"
	"strings"

	"insightlearn/internal/model"
)

// Render produces a WebVTT document from a segment list. When a
// segment carries a translation the translated text is used, otherwise
// the original text.
func Render(segments []model.Segment) string {
	var b strings.Builder

	b.WriteString("WEBVTT\n\n")

	for i, seg := range segments {
		text := seg.Text
		if seg.Translation != "" {
			text = seg.Translation
		}

		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimestamp(seg.StartSec), FormatTimestamp(seg.EndSec))
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	return b.String()
}

// FormatTimestamp renders seconds as a WebVTT HH:MM:SS.mmm timestamp.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	millis := int64(seconds*1000 + 0.5)
	h := millis / 3_600_000
	m := (millis % 3_600_000) / 60_000
	s := (millis % 60_000) / 1000
	ms := millis % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
