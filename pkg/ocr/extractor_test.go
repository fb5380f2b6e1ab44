package ocr

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"recipelens/pkg/imageprep"
)

type mockEngine struct {
	mock.Mock
	name string
	kind EngineKind
}

func (m *mockEngine) Name() string     { return m.name }
func (m *mockEngine) Kind() EngineKind { return m.kind }

func (m *mockEngine) Extract(ctx context.Context, v imageprep.Variant) ([]Fragment, error) {
	args := m.Called(ctx, v)
	frags, _ := args.Get(0).([]Fragment)
	return frags, args.Error(1)
}

// stallEngine never answers before its deadline.
type stallEngine struct{}

func (stallEngine) Name() string     { return "stall" }
func (stallEngine) Kind() EngineKind { return Neural }
func (stallEngine) Extract(ctx context.Context, _ imageprep.Variant) ([]Fragment, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testVariants(n int) []imageprep.Variant {
	out := make([]imageprep.Variant, n)
	for i := range out {
		out[i] = imageprep.Variant{ID: i, Technique: imageprep.Techniques[i], Image: image.NewGray(image.Rect(0, 0, 4, 4))}
	}
	return out
}

func rect(x0, y0, x1, y1 int) *image.Rectangle {
	r := image.Rect(x0, y0, x1, y1)
	return &r
}

func TestExtractorMergesEnginesAndOrders(t *testing.T) {
	classical := &mockEngine{name: "tesseract", kind: Classical}
	classical.On("Extract", mock.Anything, mock.Anything).Return([]Fragment{
		{Text: "Chips", Confidence: 0.7, Box: rect(0, 40, 50, 60)},
		{Text: "Classic", Confidence: 0.9, Box: rect(0, 0, 60, 20)},
		{Text: "Potato", Confidence: 0.6, Box: rect(70, 2, 130, 22)},
	}, nil)
	neural := &mockEngine{name: "gemini", kind: Neural}
	neural.On("Extract", mock.Anything, mock.Anything).Return([]Fragment{
		{Text: "potato", Confidence: 0.85},
		{Text: "Salted", Confidence: 0.85},
	}, nil)

	ex := NewExtractor([]Engine{classical, neural}, Options{Workers: 2, EngineTimeout: time.Second})
	res, err := ex.Extract(context.Background(), testVariants(3))
	require.NoError(t, err)

	classical.AssertNumberOfCalls(t, "Extract", 3)
	neural.AssertNumberOfCalls(t, "Extract", 3)

	assert.False(t, res.NoText)
	assert.Empty(t, res.Conditions)
	assert.Equal(t, "Classic potato\nChips\nSalted", res.Text)
	require.Len(t, res.Fragments, 4)
	// the neural reading of "potato" won on confidence but kept the word's box
	assert.Equal(t, "gemini", res.Fragments[1].Engine)
	assert.NotNil(t, res.Fragments[1].Box)
}

func TestExtractorTimeoutDegrades(t *testing.T) {
	classical := &mockEngine{name: "tesseract", kind: Classical}
	classical.On("Extract", mock.Anything, mock.Anything).Return([]Fragment{{Text: "rice", Confidence: 0.8}}, nil)

	ex := NewExtractor([]Engine{classical, stallEngine{}}, Options{Workers: 4, EngineTimeout: 20 * time.Millisecond})
	res, err := ex.Extract(context.Background(), testVariants(2))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Timeouts)
	assert.Contains(t, res.Conditions, ConditionEngineTimeout)
	assert.Equal(t, "rice", res.Text)
}

func TestExtractorNoText(t *testing.T) {
	a := &mockEngine{name: "tesseract", kind: Classical}
	a.On("Extract", mock.Anything, mock.Anything).Return(nil, nil)
	b := &mockEngine{name: "gemini", kind: Neural}
	b.On("Extract", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	res, err := NewExtractor([]Engine{a, b}, Options{}).Extract(context.Background(), testVariants(5))
	require.NoError(t, err)
	assert.True(t, res.NoText)
	assert.ErrorIs(t, res.Err(), ErrNoText)
	assert.Equal(t, []string{ConditionNoText}, res.Conditions)
}

func TestExtractorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractor([]Engine{stallEngine{}}, Options{}).Extract(ctx, testVariants(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeFragments(t *testing.T) {
	tests := []struct {
		name  string
		in    []Fragment
		texts []string
		eng   []string
	}{
		{
			name: "cross engine keeps higher confidence",
			in: []Fragment{
				{Text: "Tomat0", Engine: "tesseract", Kind: Classical, Confidence: 0.5},
				{Text: "Tomato", Engine: "gemini", Kind: Neural, Confidence: 0.85},
			},
			texts: []string{"Tomato"},
			eng:   []string{"gemini"},
		},
		{
			name: "tie goes to classical",
			in: []Fragment{
				{Text: "onion", Engine: "gemini", Kind: Neural, Confidence: 0.85},
				{Text: "Onion", Engine: "tesseract", Kind: Classical, Confidence: 0.85},
			},
			texts: []string{"Onion"},
			eng:   []string{"tesseract"},
		},
		{
			name: "distinct text survives",
			in: []Fragment{
				{Text: "garlic", Engine: "tesseract", Kind: Classical, Confidence: 0.9},
				{Text: "ginger", Engine: "gemini", Kind: Neural, Confidence: 0.85},
			},
			texts: []string{"garlic", "ginger"},
			eng:   []string{"tesseract", "gemini"},
		},
		{
			name: "same engine repeats collapse",
			in: []Fragment{
				{Text: "rice", Engine: "tesseract", Kind: Classical, Confidence: 0.4, VariantID: 0},
				{Text: "RICE", Engine: "tesseract", Kind: Classical, Confidence: 0.9, VariantID: 3},
			},
			texts: []string{"RICE"},
			eng:   []string{"tesseract"},
		},
		{
			name: "punctuation only is dropped",
			in: []Fragment{
				{Text: "--", Engine: "tesseract", Kind: Classical, Confidence: 0.9},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeFragments(tt.in, 0.25)
			require.Len(t, got, len(tt.texts))
			for i := range got {
				assert.Equal(t, tt.texts[i], got[i].Text)
				assert.Equal(t, tt.eng[i], got[i].Engine)
			}
		})
	}
}

func TestReadingOrderFallsBackToExtractionOrder(t *testing.T) {
	frags := []Fragment{{Text: "second line"}, {Text: "first"}}
	out, text := readingOrder(frags)
	assert.Equal(t, frags, out)
	assert.Equal(t, "second line\nfirst", text)
}

func TestVisionChatEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Contains(t, req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "```\n- Lay's Classic\n\nPotato Chips\n```"}}},
		})
	}))
	defer srv.Close()

	eng := NewVisionChatEngine(srv.URL+"/v1/", "sk-test", "")
	frags, err := eng.Extract(context.Background(), testVariants(1)[0])
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "Lay's Classic", frags[0].Text)
	assert.Equal(t, "Potato Chips", frags[1].Text)
	assert.Equal(t, Neural, frags[1].Kind)
	assert.InDelta(t, neuralConfidence, frags[1].Confidence, 1e-9)
}

func TestVisionChatEngineStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewVisionChatEngine(srv.URL, "", "m").Extract(context.Background(), testVariants(1)[0])
	assert.ErrorContains(t, err, "429")
}
