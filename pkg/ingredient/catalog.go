// Package ingredient resolves normalized OCR tokens into canonical
// ingredient names with a tiered confidence cascade.
package ingredient

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"recipelens/pkg/textnorm"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Entry is one canonical ingredient as written in the catalog file.
type Entry struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Synonyms []string `yaml:"synonyms"`
}

type catalogFile struct {
	Ingredients  []Entry           `yaml:"ingredients"`
	Variations   map[string]string `yaml:"variations"`
	StopWords    []string          `yaml:"stop_words"`
	Descriptors  []string          `yaml:"descriptors"`
	FallbackPool []string          `yaml:"fallback_pool"`
}

// Catalog is the immutable lookup data behind the resolver and recipe-side
// canonicalization. Build one with LoadCatalog or ParseCatalog and share it.
type Catalog struct {
	names       []string
	canonical   map[string]struct{}
	variations  map[string]string
	synonyms    map[string]string
	keywords    map[string]string
	stopWords   map[string]struct{}
	descriptors map[string]struct{}
	fallback    []string
}

// DefaultCatalog parses the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog override from path, or the built-in catalog
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog decodes and validates catalog YAML. Every surface form is
// passed through textnorm.Normalize so lookups see the same spelling the
// token stream does.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Ingredients) == 0 {
		return nil, fmt.Errorf("catalog has no ingredients")
	}

	c := &Catalog{
		canonical:   make(map[string]struct{}, len(f.Ingredients)),
		variations:  make(map[string]string, len(f.Variations)),
		synonyms:    make(map[string]string),
		keywords:    make(map[string]string),
		stopWords:   make(map[string]struct{}, len(f.StopWords)),
		descriptors: make(map[string]struct{}, len(f.Descriptors)),
	}
	for _, e := range f.Ingredients {
		name := textnorm.Normalize(e.Name)
		if name == "" {
			return nil, fmt.Errorf("ingredient with empty name")
		}
		if _, dup := c.canonical[name]; dup {
			return nil, fmt.Errorf("duplicate ingredient %q", name)
		}
		c.canonical[name] = struct{}{}
		c.names = append(c.names, name)
	}
	for _, e := range f.Ingredients {
		name := textnorm.Normalize(e.Name)
		for _, kw := range e.Keywords {
			kw = textnorm.Normalize(kw)
			if prev, ok := c.keywords[kw]; ok && prev != name {
				return nil, fmt.Errorf("keyword %q claimed by %q and %q", kw, prev, name)
			}
			c.keywords[kw] = name
		}
		for _, s := range e.Synonyms {
			key := textnorm.Normalize(s)
			if _, ok := c.canonical[key]; ok {
				// a canonical name always resolves as itself
				continue
			}
			c.synonyms[key] = name
		}
	}
	for from, to := range f.Variations {
		to = textnorm.Normalize(to)
		if _, ok := c.canonical[to]; !ok {
			return nil, fmt.Errorf("variation %q targets unknown ingredient %q", from, to)
		}
		// word corrections can turn a spelling ("tamatar") into the
		// canonical name itself; those entries add nothing
		key := textnorm.Normalize(from)
		if _, ok := c.canonical[key]; ok {
			continue
		}
		c.variations[key] = to
	}
	for _, w := range f.StopWords {
		c.stopWords[textnorm.Normalize(w)] = struct{}{}
	}
	for _, d := range f.Descriptors {
		c.descriptors[textnorm.Normalize(d)] = struct{}{}
	}
	for _, p := range f.FallbackPool {
		p = textnorm.Normalize(p)
		if _, ok := c.canonical[p]; !ok {
			return nil, fmt.Errorf("fallback pool entry %q is not an ingredient", p)
		}
		c.fallback = append(c.fallback, p)
	}
	if len(c.fallback) == 0 {
		c.fallback = append(c.fallback, c.names...)
	}
	return c, nil
}

// Names returns the canonical ingredient names in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Len is the number of canonical ingredients.
func (c *Catalog) Len() int { return len(c.names) }

// IsCanonical reports whether name is a canonical ingredient.
func (c *Catalog) IsCanonical(name string) bool {
	_, ok := c.canonical[name]
	return ok
}

// IsStopWord reports whether w is ignored by the approximate tiers.
func (c *Catalog) IsStopWord(w string) bool {
	_, ok := c.stopWords[w]
	return ok
}

// lookupExact resolves a surface form through the variation table and then
// the synonym table.
func (c *Catalog) lookupExact(s string) (string, bool) {
	if to, ok := c.variations[s]; ok {
		return to, true
	}
	to, ok := c.synonyms[s]
	return to, ok
}

var (
	parenRe    = regexp.MustCompile(`\([^)]*\)`)
	quantityRe = regexp.MustCompile(`\b\d+\s*(?:cups?|tbsps?|tsps?|tablespoons?|teaspoons?|oz|ounces?|lbs?|pounds?|g|grams?|kg|ml|l|liters?|litres?|quarts?|pinch(?:es)?|pieces?|cans?)\b`)
	numberRe   = regexp.MustCompile(`\b\d+\b`)
)

// Canonical maps a recipe-side ingredient name ("2 cups chopped Tomatoes")
// to its catalog form ("tomato"). Quantities, units and preparation words
// are dropped, then the name is looked up directly, through variations and
// synonyms, with simple plural stripping, and finally by its trailing words
// or any single canonical word it contains. Names that match nothing come
// back cleaned but otherwise unchanged.
func (c *Catalog) Canonical(name string) string {
	s := textnorm.Normalize(parenRe.ReplaceAllString(strings.ToLower(name), " "))
	s = quantityRe.ReplaceAllString(s, " ")
	s = numberRe.ReplaceAllString(s, " ")
	s = c.stripDescriptors(strings.Fields(s))
	if s == "" {
		return ""
	}

	if out, ok := c.resolveName(s); ok {
		return out
	}
	words := strings.Fields(s)
	for i := 1; i < len(words); i++ {
		if out, ok := c.resolveName(strings.Join(words[i:], " ")); ok {
			return out
		}
	}
	for _, w := range words {
		if out, ok := c.resolveName(w); ok {
			return out
		}
	}
	return s
}

func (c *Catalog) resolveName(s string) (string, bool) {
	if c.IsCanonical(s) {
		return s, true
	}
	if to, ok := c.lookupExact(s); ok {
		return to, true
	}
	for _, stem := range pluralStems(s) {
		if c.IsCanonical(stem) {
			return stem, true
		}
		if to, ok := c.lookupExact(stem); ok {
			return to, true
		}
	}
	return "", false
}

// stripDescriptors drops two-word and one-word preparation descriptors.
func (c *Catalog) stripDescriptors(words []string) string {
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); i++ {
		if i+1 < len(words) {
			if _, ok := c.descriptors[words[i]+" "+words[i+1]]; ok {
				i++
				continue
			}
		}
		if _, ok := c.descriptors[words[i]]; ok {
			continue
		}
		out = append(out, words[i])
	}
	return strings.Join(out, " ")
}

// pluralStems returns singular candidates for s: "berries" gives "berry",
// "tomatoes" gives "tomato" and "tomatoe", "eggs" gives "egg".
func pluralStems(s string) []string {
	var out []string
	if strings.HasSuffix(s, "ies") && len(s) > 4 {
		out = append(out, strings.TrimSuffix(s, "ies")+"y")
	}
	if strings.HasSuffix(s, "es") && len(s) > 3 {
		out = append(out, strings.TrimSuffix(s, "es"))
	}
	if strings.HasSuffix(s, "s") && len(s) > 3 {
		out = append(out, strings.TrimSuffix(s, "s"))
	}
	return out
}
