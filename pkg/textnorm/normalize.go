// Package textnorm cleans OCR transcripts into lowercase word and phrase
// tokens for ingredient lookup.
package textnorm

import (
	"strings"
	"unicode"

	"recipelens/pkg/ocr"
)

// MaxPhrase is the longest n-gram Tokens emits.
const MaxPhrase = 3

// Token is a normalized word or phrase. Pos is the index of its first word
// in the normalized stream; Confidence is inherited from the fragment(s) it
// was read from.
type Token struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Pos        int     `json:"pos"`
}

// wordCorrections are whole-word OCR misreads that glyph repair alone
// cannot fix. An empty value drops the word.
var wordCorrections = map[string]string{
	"t0mat0":    "tomato",
	"t0mat0es":  "tomatoes",
	"t0matoes":  "tomatoes",
	"0ni0n":     "onion",
	"0nions":    "onions",
	"p0tat0":    "potato",
	"p0tat0es":  "potatoes",
	"chick3n":   "chicken",
	"ch33s3":    "cheese",
	"ch0c0lat3": "chocolate",
	"ch0c0late": "chocolate",
	"011":       "oil",
	"0i1":       "oil",
	"0il":       "oil",
	"01l":       "oil",
	"chionira":  "onion tomato",
	"ch10nira":  "onion tomato",
	"tamatar":   "tomato",
	"pyaj":      "onion",
	"lehsun":    "garlic",
	"adrak":     "ginger",
	"karotte":   "carrot",
	"zwiebel":   "onion",
	"knoblauch": "garlic",
}

// glyphs maps characters OCR commonly reads in place of letters.
var glyphs = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'3': 'e',
	'5': 's',
	'8': 'b',
	'@': 'a',
	'|': 'l',
}

var quotes = strings.NewReplacer(
	"‘", "'", "’", "'", "‛", "'", "`", "'", "´", "'",
	"“", `"`, "”", `"`, "„", `"`,
)

// Normalize lowercases text, repairs glyph confusions inside words, applies
// the word correction table, strips punctuation (apostrophes between letters
// survive) and collapses whitespace.
func Normalize(text string) string {
	return strings.Join(words(text), " ")
}

func words(text string) []string {
	text = quotes.Replace(strings.ToLower(text))
	var out []string
	for _, raw := range strings.Fields(text) {
		core := strings.TrimFunc(raw, func(r rune) bool { return !keepRune(r) })
		if core == "" {
			continue
		}
		if fixed, ok := wordCorrections[core]; ok {
			out = append(out, strings.Fields(fixed)...)
			continue
		}
		out = append(out, strings.Fields(stripPunct(repairGlyphs(core)))...)
	}
	return out
}

func keepRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
		return true
	}
	_, ok := glyphs[r]
	return ok
}

// repairGlyphs swaps confusable digits and symbols for letters, but only in
// words that are mostly letters: "br3ad" becomes "bread", "250g" is left
// alone.
func repairGlyphs(w string) string {
	letters, confusable := 0, 0
	for _, r := range w {
		if _, ok := glyphs[r]; ok {
			confusable++
		} else if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters == 0 || confusable == 0 || letters <= confusable {
		return w
	}
	return strings.Map(func(r rune) rune {
		if g, ok := glyphs[r]; ok {
			return g
		}
		return r
	}, w)
}

// stripPunct replaces everything but letters, digits and intra-word
// apostrophes with spaces.
func stripPunct(w string) string {
	rs := []rune(w)
	var b strings.Builder
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' && i > 0 && i < len(rs)-1 && unicode.IsLetter(rs[i-1]) && unicode.IsLetter(rs[i+1]):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

type word struct {
	text string
	conf float64
}

// Tokens normalizes every fragment of an OCR result, in reading order, and
// returns the distinct words and 2- and 3-word phrases of the combined
// stream.
func Tokens(res *ocr.Result) []Token {
	if res == nil {
		return nil
	}
	var ws []word
	for _, f := range res.Fragments {
		for _, w := range words(f.Text) {
			ws = append(ws, word{w, f.Confidence})
		}
	}
	return build(ws)
}

// TokensFromText tokenizes plain text with a single confidence.
func TokensFromText(text string, confidence float64) []Token {
	var ws []word
	for _, w := range words(text) {
		ws = append(ws, word{w, confidence})
	}
	return build(ws)
}

// build emits n-grams ordered by first position. A repeated phrase keeps its
// first position and the highest confidence seen. Phrases containing an
// apostrophe are also emitted without it ("lay's" and "lays").
func build(ws []word) []Token {
	var out []Token
	seen := make(map[string]int)
	add := func(text string, conf float64, pos int) {
		if i, ok := seen[text]; ok {
			if conf > out[i].Confidence {
				out[i].Confidence = conf
			}
			return
		}
		seen[text] = len(out)
		out = append(out, Token{Text: text, Confidence: conf, Pos: pos})
	}
	for i := range ws {
		conf := ws[i].conf
		parts := make([]string, 0, MaxPhrase)
		for n := 0; n < MaxPhrase && i+n < len(ws); n++ {
			parts = append(parts, ws[i+n].text)
			if ws[i+n].conf < conf {
				conf = ws[i+n].conf
			}
			text := strings.Join(parts, " ")
			add(text, conf, i)
			if strings.Contains(text, "'") {
				add(strings.ReplaceAll(text, "'", ""), conf, i)
			}
		}
	}
	return out
}
