package ocr

import (
	"sort"
	"strings"
)

// readingOrder sorts fragments that carry boxes top-to-bottom, grouping
// words whose vertical centres sit within half a line height into one line
// and ordering each line left-to-right. Fragments without layout data keep
// their extraction order and follow the laid-out text. It also returns the
// transcript: words of a line joined by spaces, lines by newlines.
func readingOrder(frags []Fragment) ([]Fragment, string) {
	var boxed, loose []Fragment
	for _, f := range frags {
		if f.Box != nil && !f.Box.Empty() {
			boxed = append(boxed, f)
		} else {
			loose = append(loose, f)
		}
	}

	sort.SliceStable(boxed, func(i, j int) bool {
		return boxed[i].Box.Min.Y < boxed[j].Box.Min.Y
	})

	var lines [][]Fragment
	var lineCentre, lineHeight float64
	for _, f := range boxed {
		c := float64(f.Box.Min.Y+f.Box.Max.Y) / 2
		h := float64(f.Box.Dy())
		if len(lines) > 0 {
			tol := max(lineHeight, h) / 2
			if d := c - lineCentre; d <= tol && d >= -tol {
				cur := &lines[len(lines)-1]
				*cur = append(*cur, f)
				n := float64(len(*cur))
				lineCentre += (c - lineCentre) / n
				lineHeight += (h - lineHeight) / n
				continue
			}
		}
		lines = append(lines, []Fragment{f})
		lineCentre, lineHeight = c, h
	}

	out := make([]Fragment, 0, len(frags))
	var text []string
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool {
			return line[i].Box.Min.X < line[j].Box.Min.X
		})
		words := make([]string, len(line))
		for i, f := range line {
			words[i] = f.Text
		}
		out = append(out, line...)
		text = append(text, strings.Join(words, " "))
	}
	for _, f := range loose {
		out = append(out, f)
		text = append(text, f.Text)
	}
	return out, strings.Join(text, "\n")
}
