package ocr

import (
	"strings"
	"unicode"
)

// snippet returns a shortened version of text for logging.
func snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// normalizeOCRText collapses whitespace and replaces newlines/tabs.
func normalizeOCRText(t string) string {
	return strings.Join(strings.Fields(t), " ")
}

// foldText is the comparison key used when merging fragments: lowercase
// letters and digits separated by single spaces.
func foldText(t string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(t) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// splitLines turns a free-form engine transcript into trimmed, non-empty
// lines, dropping markdown fences and list bullets chat models like to add.
func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimLeft(line, "-*• ")
		line = normalizeOCRText(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
