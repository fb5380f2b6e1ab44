package ingredient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipelens/pkg/textnorm"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	return NewResolver(cat, nil)
}

func TestDefaultCatalog(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cat.Len(), 60)
	assert.True(t, cat.IsCanonical("bell pepper"))
	assert.True(t, cat.IsCanonical("soy sauce"))
	assert.False(t, cat.IsCanonical("lays"), "brands resolve through variations")
	assert.True(t, cat.IsStopWord("calories"))
}

func TestResolveBrandVariation(t *testing.T) {
	r := newResolver(t)
	got := r.ResolveText("Lay's Classic Potato Chips", []byte("img"))
	require.NotEmpty(t, got)

	assert.Equal(t, "chips", got[0].Name)
	assert.Equal(t, TierVariation, got[0].Tier)
	assert.InDelta(t, 0.95, got[0].Confidence, 1e-9)
	assert.Equal(t, "lay's", got[0].SourceText)

	names := map[string]bool{}
	for _, m := range got {
		assert.False(t, names[m.Name], "duplicate %s", m.Name)
		names[m.Name] = true
		assert.NotEqual(t, TierFallback, m.Tier)
	}
	assert.True(t, names["potato"])
}

func TestResolveTiers(t *testing.T) {
	r := newResolver(t)
	tests := []struct {
		text string
		name string
		tier Tier
		conf float64
	}{
		{"tomato", "tomato", TierDirect, 0.90},
		{"soy sauce", "soy sauce", TierDirect, 0.90},
		{"potatoes", "potato", TierVariation, 0.95},
		{"salmon", "fish", TierVariation, 0.95},
		{"tomatoe", "tomato", TierFuzzy, 0.75},
		{"mushrom", "mushroom", TierFuzzy, 0.75},
		{"rnushroom", "mushroom", TierFuzzy, 0.75},
		{"avocadoes", "avocado", TierFuzzy, 0.75},
		{"snack", "chips", TierKeyword, 0.80},
		{"seafood", "fish", TierKeyword, 0.80},
		{"instant noodles", "pasta", TierKeyword, 0.80},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := r.ResolveText(tt.text, nil)
			require.Len(t, got, 1)
			assert.Equal(t, tt.name, got[0].Name)
			assert.Equal(t, tt.tier, got[0].Tier)
			assert.InDelta(t, tt.conf, got[0].Confidence, 1e-9)
		})
	}
}

func TestResolveDirectBeatsFuzzy(t *testing.T) {
	r := newResolver(t)
	m, ok := r.classify("onion")
	require.True(t, ok)
	assert.Equal(t, TierDirect, m.Tier)
	assert.InDelta(t, 0.90, m.Confidence, 1e-9)
}

func TestEveryCanonicalNameResolvesDirect(t *testing.T) {
	r := newResolver(t)
	for _, name := range r.Catalog().Names() {
		m, ok := r.classify(name)
		require.True(t, ok, name)
		assert.Equal(t, name, m.Name)
		assert.Equal(t, TierDirect, m.Tier, name)
		assert.InDelta(t, 0.90, m.Confidence, 1e-9, name)
	}
}

func TestParseCatalogDropsCanonicalSpellings(t *testing.T) {
	// "tamatar" normalizes to "tomato", which must stay a direct hit
	data := "ingredients:\n  - name: tomato\n    synonyms: [tomato, roma]\nvariations:\n  tamatar: tomato\n  tamater: tomato\n"
	cat, err := ParseCatalog([]byte(data))
	require.NoError(t, err)

	r := NewResolver(cat, nil)
	got := r.ResolveText("tamatar", nil)
	require.Len(t, got, 1)
	assert.Equal(t, TierDirect, got[0].Tier)

	got = r.ResolveText("tamater", nil)
	require.Len(t, got, 1)
	assert.Equal(t, TierVariation, got[0].Tier)

	got = r.ResolveText("roma", nil)
	require.Len(t, got, 1)
	assert.Equal(t, TierVariation, got[0].Tier)
}

func TestResolveFoldsDigitMisreads(t *testing.T) {
	r := newResolver(t)
	m, ok := r.classify("brocc0li")
	require.True(t, ok)
	assert.Equal(t, "broccoli", m.Name)
	assert.Equal(t, TierFuzzy, m.Tier)

	for _, tok := range []string{"100g", "120", "2kg"} {
		_, ok := r.classify(tok)
		assert.False(t, ok, tok)
	}
}

func TestResolveDedupKeepsHighestTier(t *testing.T) {
	r := newResolver(t)
	toks := []textnorm.Token{
		{Text: "tomato", Confidence: 0.5, Pos: 0},
		{Text: "tomatoe", Confidence: 0.5, Pos: 3},
		{Text: "tomatoes", Confidence: 0.5, Pos: 5},
		{Text: "basil", Confidence: 0.5, Pos: 1},
	}
	got := r.Resolve(toks, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "tomato", got[0].Name)
	assert.Equal(t, TierVariation, got[0].Tier)
	assert.Equal(t, "basil", got[1].Name)
	assert.Equal(t, TierDirect, got[1].Tier)
}

func TestResolveOrderTiesByPosition(t *testing.T) {
	r := newResolver(t)
	got := r.ResolveText("garlic rice onion", nil)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"garlic", "rice", "onion"}, []string{got[0].Name, got[1].Name, got[2].Name})
}

func TestResolveStopWordsFallBack(t *testing.T) {
	r := newResolver(t)
	got := r.ResolveText("Nutrition: fat protein calories per serving 120", []byte("label"))
	require.Len(t, got, 1)
	assert.Equal(t, TierFallback, got[0].Tier)
}

func TestFallbackDeterministic(t *testing.T) {
	r := newResolver(t)
	img := []byte("a blank white image")
	a := r.Resolve(nil, img)
	b := r.Resolve(nil, img)
	require.Len(t, a, 1)
	assert.Equal(t, a, b)
	assert.Equal(t, TierFallback, a[0].Tier)
	assert.GreaterOrEqual(t, a[0].Confidence, 0.60)
	assert.LessOrEqual(t, a[0].Confidence, 0.75)
	assert.True(t, r.Catalog().IsCanonical(a[0].Name))

	for i := 0; i < 50; i++ {
		m := r.Fallback([]byte{byte(i), byte(i * 7)})
		assert.GreaterOrEqual(t, m.Confidence, 0.60)
		assert.LessOrEqual(t, m.Confidence, 0.75)
	}
}

func TestCanonical(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	tests := []struct {
		in   string
		want string
	}{
		{"tomato", "tomato"},
		{"2 cups chopped Tomatoes", "tomato"},
		{"Extra Virgin Olive Oil", "oil"},
		{"boneless skinless chicken breasts", "chicken"},
		{"Parmesan cheese (grated)", "cheese"},
		{"1 lb ground beef", "beef"},
		{"Baby Spinach", "spinach"},
		{"salt to taste", "salt"},
		{"250g spaghetti", "pasta"},
		{"Lay's", "chips"},
		{"strawberries", "strawberry"},
		{"Quinoa", "quinoa"},
		{"  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cat.Canonical(tt.in))
		})
	}
}

func TestParseCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "ingredients: []"},
		{"bad yaml", "ingredients: ["},
		{"duplicate", "ingredients:\n  - name: egg\n  - name: Egg\n"},
		{"unknown variation", "ingredients:\n  - name: egg\nvariations:\n  eggs: eggplant\n"},
		{"unknown fallback", "ingredients:\n  - name: egg\nfallback_pool: [milk]\n"},
		{"shared keyword", "ingredients:\n  - name: egg\n    keywords: [breakfast]\n  - name: bread\n    keywords: [breakfast]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := "ingredients:\n  - name: kimchi\n    keywords: [fermented]\nvariations:\n  kim chi: kimchi\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"kimchi"}, cat.Names())

	r := NewResolver(cat, nil)
	got := r.ResolveText("Kim Chi", nil)
	require.Len(t, got, 1)
	assert.Equal(t, TierVariation, got[0].Tier)
	assert.Equal(t, "kimchi", r.Fallback(nil).Name, "pool defaults to every ingredient")

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
