package docupie

import "strings"

// FormatMarkdown trims a completion and unwraps it when the model wrapped the
// whole page in a code fence such as ```markdown ... ```.
func FormatMarkdown(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}

	// Only a fence with a language tag or nothing after it opens a wrapper.
	info := strings.TrimSpace(strings.TrimPrefix(lines[0], "```"))
	if strings.Contains(info, "`") || strings.Contains(info, " ") {
		return trimmed
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
