package ocr

import (
	"recipelens/pkg/strdist"
)

// mergeFragments collapses fragments that describe the same text.
//
// Fragments from different engines merge when the normalised edit distance of
// their folded text is at most threshold; the higher-confidence fragment wins
// and a classical fragment wins a tie. Repeats of the same text from one engine
// (the same word read off several variants) keep only their best reading.
// Everything else is kept, in first-seen order.
func mergeFragments(frags []Fragment, threshold float64) []Fragment {
	type slot struct {
		frag Fragment
		key  string
	}
	var merged []slot
	for _, f := range frags {
		key := foldText(f.Text)
		if key == "" {
			continue
		}
		hit := -1
		for i := range merged {
			m := &merged[i]
			if m.frag.Engine == f.Engine {
				if m.key == key {
					hit = i
					break
				}
				continue
			}
			if strdist.Normalized(m.key, key) <= threshold {
				hit = i
				break
			}
		}
		if hit < 0 {
			merged = append(merged, slot{frag: f, key: key})
			continue
		}
		m := &merged[hit]
		if better(f, m.frag) {
			if f.Box == nil && m.frag.Box != nil {
				f.Box = m.frag.Box
			}
			m.frag, m.key = f, key
		}
	}
	out := make([]Fragment, len(merged))
	for i, m := range merged {
		out[i] = m.frag
	}
	return out
}

func better(a, b Fragment) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Kind == Classical && b.Kind != Classical
}
