package textnorm

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipelens/pkg/ocr"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and punctuation", "Lay's Classic Potato Chips!", "lay's classic potato chips"},
		{"curly apostrophe", "Lay’s", "lay's"},
		{"curly quotes dropped", "“Fresh” Basil", "fresh basil"},
		{"outer apostrophes stripped", "'quoted'", "quoted"},
		{"whitespace collapsed", "  soy \t sauce\n\nhoney ", "soy sauce honey"},
		{"correction table", "T0MAT0, 0ni0n & 011", "tomato onion oil"},
		{"multi word correction", "chionira", "onion tomato"},
		{"glyph repair", "br3ad m@ngo |ettuce", "bread mango lettuce"},
		{"numbers untouched", "250g 5 100", "250g 5 100"},
		{"mixed digits stay when not mostly letters", "v8 a1", "v8 a1"},
		{"hyphen splits", "sugar-free", "sugar free"},
		{"empty", "  ..  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestTokensFromTextNgrams(t *testing.T) {
	toks := TokensFromText("Lay's Classic Potato Chips", 0.9)
	byText := map[string]Token{}
	for _, tk := range toks {
		byText[tk.Text] = tk
	}

	for _, want := range []string{"lay's", "lays", "classic", "potato", "chips", "potato chips", "classic potato chips", "lays classic"} {
		assert.Contains(t, byText, want)
	}
	assert.Equal(t, 0, byText["lays"].Pos)
	assert.Equal(t, 2, byText["potato chips"].Pos)
	assert.Equal(t, 1, byText["classic potato chips"].Pos)
	assert.NotContains(t, byText, "lay's classic potato chips", "phrases are capped at three words")

	for i := 1; i < len(toks); i++ {
		assert.LessOrEqual(t, toks[i-1].Pos, toks[i].Pos, "tokens ordered by first position")
	}
}

func TestTokensDedupKeepsFirstPositionAndBestConfidence(t *testing.T) {
	res := &ocr.Result{Fragments: []ocr.Fragment{
		{Text: "Tomato", Confidence: 0.4},
		{Text: "basil", Confidence: 0.8},
		{Text: "TOMATO", Confidence: 0.9},
	}}
	toks := Tokens(res)
	require.NotEmpty(t, toks)

	var tomato *Token
	for i := range toks {
		if toks[i].Text == "tomato" {
			tomato = &toks[i]
		}
	}
	require.NotNil(t, tomato)
	assert.Equal(t, 0, tomato.Pos)
	assert.InDelta(t, 0.9, tomato.Confidence, 1e-9)

	for _, tk := range toks {
		if tk.Text == "tomato basil" {
			assert.InDelta(t, 0.4, tk.Confidence, 1e-9, "phrase takes its weakest word")
		}
	}
}

func TestTokensAcrossWordFragments(t *testing.T) {
	box := image.Rect(0, 0, 10, 10)
	res := &ocr.Result{Fragments: []ocr.Fragment{
		{Text: "Potato", Confidence: 0.7, Box: &box},
		{Text: "Chips", Confidence: 0.6, Box: &box},
	}}
	var texts []string
	for _, tk := range Tokens(res) {
		texts = append(texts, tk.Text)
	}
	assert.Contains(t, texts, "potato chips")
}

func TestTokensNil(t *testing.T) {
	assert.Nil(t, Tokens(nil))
	assert.Empty(t, Tokens(&ocr.Result{NoText: true}))
}
