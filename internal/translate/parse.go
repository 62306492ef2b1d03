package translate

import (
	"regexp"
	"strings"
)

var (
	// [12], 12., 12), 12: and similar leading position markers
	markerRe = regexp.MustCompile(`^\s*(\[\d+\]|\d+[.):])\s*`)

	// - and * bullets some engines insist on adding
	bulletRe = regexp.MustCompile(`^\s*[-*]\s+`)
)

// ParseChunkResponse splits a raw chunk response into candidate
// translation lines. Positional markers, bullets and markdown noise
// are stripped; lines that look like headers, separators or code
// fences are dropped. The caller pads any shortfall.
func ParseChunkResponse(raw string) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isNoiseLine(line) {
			continue
		}

		line = markerRe.ReplaceAllString(line, "")
		line = bulletRe.ReplaceAllString(line, "")
		line = strings.Trim(line, "`")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		out = append(out, line)
	}

	return out
}

// isNoiseLine detects separators, code fences and chatty headers that
// are not translations.
func isNoiseLine(line string) bool {
	if strings.HasPrefix(line, "```") {
		return true
	}

	trimmed := strings.Trim(line, "-=_* \t")
	if trimmed == "" {
		// A line made only of separator characters.
		return true
	}

	lower := strings.ToLower(line)
	headerPrefixes := []string{
		"here are",
		"here is",
		"translation:",
		"translations:",
		"translated lines:",
		"sure,",
		"sure!",
	}
	for _, prefix := range headerPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}

	return false
}
