package ingredient

import (
	"crypto/sha256"
	"encoding/binary"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"recipelens/pkg/logging"
	"recipelens/pkg/strdist"
	"recipelens/pkg/textnorm"
)

// Tier names the cascade stage that produced a match.
type Tier string

const (
	TierVariation Tier = "variation"
	TierDirect    Tier = "direct"
	TierFuzzy     Tier = "fuzzy"
	TierKeyword   Tier = "keyword"
	TierFallback  Tier = "fallback"
)

// Tier confidences. Keyword evidence outranks fuzzy similarity on purpose.
const (
	ConfidenceVariation   = 0.95
	ConfidenceDirect      = 0.90
	ConfidenceKeyword     = 0.80
	ConfidenceFuzzy       = 0.75
	ConfidenceFallbackMin = 0.60
	ConfidenceFallbackMax = 0.75
)

const (
	fuzzyMinLen        = 3
	fuzzyMaxLenDiff    = 2
	fuzzySimilarity    = 0.85
	fuzzySimilarityLen = 4
)

// Match is one resolved ingredient.
type Match struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Tier       Tier    `json:"tier"`
	SourceText string  `json:"source_text"`
}

// Resolver runs the tier cascade over a token stream. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	cat *Catalog
	log *slog.Logger
}

// NewResolver returns a resolver over cat. A nil logger uses slog.Default().
func NewResolver(cat *Catalog, log *slog.Logger) *Resolver {
	return &Resolver{cat: cat, log: logging.OrDefault(log)}
}

// Catalog returns the catalog the resolver was built with.
func (r *Resolver) Catalog() *Catalog { return r.cat }

type ranked struct {
	Match
	pos int
}

// Resolve classifies every distinct token and merges the results: one match
// per canonical name keeping the best confidence, ordered by confidence and
// then by where the name first appeared. When no token resolves, a single
// fallback guess derived from imageBytes is returned, so the result is never
// empty.
func (r *Resolver) Resolve(tokens []textnorm.Token, imageBytes []byte) []Match {
	best := make(map[string]*ranked)
	seen := make(map[string]struct{}, len(tokens))
	for _, tk := range tokens {
		if _, dup := seen[tk.Text]; dup {
			continue
		}
		seen[tk.Text] = struct{}{}

		m, ok := r.classify(tk.Text)
		if !ok {
			continue
		}
		cur, exists := best[m.Name]
		if !exists {
			best[m.Name] = &ranked{Match: m, pos: tk.Pos}
			continue
		}
		if m.Confidence > cur.Confidence || (m.Confidence == cur.Confidence && tk.Pos < cur.pos) {
			cur.Match = m
			cur.pos = tk.Pos
		}
	}

	if len(best) == 0 {
		fb := r.Fallback(imageBytes)
		r.log.Info("no ingredient text resolved, using fallback",
			"tokens", len(tokens), "ingredient", fb.Name, "confidence", fb.Confidence)
		return []Match{fb}
	}

	list := make([]ranked, 0, len(best))
	for _, m := range best {
		list = append(list, *m)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Confidence != list[j].Confidence {
			return list[i].Confidence > list[j].Confidence
		}
		if list[i].pos != list[j].pos {
			return list[i].pos < list[j].pos
		}
		return list[i].Name < list[j].Name
	})
	out := make([]Match, len(list))
	for i, m := range list {
		out[i] = m.Match
	}
	return out
}

// ResolveText is Resolve over plain text at full token confidence.
func (r *Resolver) ResolveText(text string, imageBytes []byte) []Match {
	return r.Resolve(textnorm.TokensFromText(text, 1), imageBytes)
}

// classify runs the tiers in order; the first hit wins.
func (r *Resolver) classify(tok string) (Match, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Match{}, false
	}
	if to, ok := r.cat.lookupExact(tok); ok {
		return Match{Name: to, Confidence: ConfidenceVariation, Tier: TierVariation, SourceText: tok}, true
	}
	if r.cat.IsCanonical(tok) {
		return Match{Name: tok, Confidence: ConfidenceDirect, Tier: TierDirect, SourceText: tok}, true
	}
	if !r.approximable(tok) {
		return Match{}, false
	}
	if name, ok := r.fuzzy(tok); ok {
		return Match{Name: name, Confidence: ConfidenceFuzzy, Tier: TierFuzzy, SourceText: tok}, true
	}
	if name, ok := r.keyword(tok); ok {
		return Match{Name: name, Confidence: ConfidenceKeyword, Tier: TierKeyword, SourceText: tok}, true
	}
	return Match{}, false
}

// approximable filters what the fuzzy and keyword tiers may look at: no
// short tokens, no numbers, and no phrases that start or end on a stop word.
// Digits OCR reads in place of letters ("brocc0li") are allowed when they
// are a minority and glyph folding turns them back into letters.
func (r *Resolver) approximable(tok string) bool {
	if len([]rune(tok)) < fuzzyMinLen {
		return false
	}
	letters, digits := 0, 0
	for _, c := range tok {
		switch {
		case unicode.IsLetter(c):
			letters++
		case unicode.IsDigit(c):
			digits++
		}
	}
	// "100g" is a quantity, not a misread word
	if digits >= letters {
		return false
	}
	if strings.IndexFunc(foldGlyphs(tok), unicode.IsDigit) >= 0 {
		return false
	}
	words := strings.Fields(tok)
	return !r.cat.IsStopWord(words[0]) && !r.cat.IsStopWord(words[len(words)-1])
}

// fuzzy returns the most similar canonical name that passes one of the
// approximate rules. Ties go to the earlier catalog entry.
func (r *Resolver) fuzzy(tok string) (string, bool) {
	ft := foldGlyphs(tok)
	stems := pluralStems(tok)
	bestName, bestSim := "", -1.0
	for _, name := range r.cat.names {
		if !fuzzyHit(tok, ft, stems, name) {
			continue
		}
		if sim := strdist.Similarity(ft, foldGlyphs(name)); sim > bestSim {
			bestName, bestSim = name, sim
		}
	}
	return bestName, bestName != ""
}

func fuzzyHit(tok, folded string, stems []string, name string) bool {
	lt, ln := len([]rune(tok)), len([]rune(name))
	diff := lt - ln
	if diff < 0 {
		diff = -diff
	}
	if diff <= fuzzyMaxLenDiff && (strings.Contains(tok, name) || strings.Contains(name, tok)) {
		return true
	}
	for _, s := range stems {
		if s == name {
			return true
		}
	}
	if lt >= fuzzySimilarityLen && ln >= fuzzySimilarityLen &&
		strdist.Similarity(folded, foldGlyphs(name)) >= fuzzySimilarity {
		return true
	}
	return false
}

// keyword matches a token that is a keyword, or a phrase whose last word is
// one ("instant noodles", "tortilla chips").
func (r *Resolver) keyword(tok string) (string, bool) {
	if name, ok := r.cat.keywords[tok]; ok {
		return name, true
	}
	words := strings.Fields(tok)
	if len(words) < 2 {
		return "", false
	}
	head := words[len(words)-1]
	if name, ok := r.cat.keywords[head]; ok {
		return name, true
	}
	if r.cat.IsCanonical(head) {
		return head, true
	}
	return "", false
}

// Fallback picks a deterministic guess from the catalog's fallback pool:
// the first eight bytes of the image's SHA-256 select the ingredient and
// the ninth sets a confidence in [0.60, 0.75].
func (r *Resolver) Fallback(imageBytes []byte) Match {
	sum := sha256.Sum256(imageBytes)
	pool := r.cat.fallback
	idx := binary.BigEndian.Uint64(sum[:8]) % uint64(len(pool))
	conf := ConfidenceFallbackMin + (ConfidenceFallbackMax-ConfidenceFallbackMin)*float64(sum[8])/255
	return Match{Name: pool[idx], Confidence: conf, Tier: TierFallback}
}

var glyphFolds = strings.NewReplacer("rn", "m", "vv", "w", "cl", "d", "0", "o", "1", "l", "5", "s")

// foldGlyphs collapses letter sequences OCR confuses so that "brocc0li" and
// "rnushroom" compare close to their catalog spellings.
func foldGlyphs(s string) string {
	return glyphFolds.Replace(s)
}
