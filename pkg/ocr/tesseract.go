package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/otiai10/gosseract/v2"

	"recipelens/pkg/imageprep"
	"recipelens/pkg/logging"
)

// TesseractEngine is the classical recogniser. A fresh gosseract client is
// created per call because a client is not safe for concurrent use.
type TesseractEngine struct {
	Language      string
	PageSegMode   gosseract.PageSegMode
	MinConfidence float64 // word confidence in [0,1] below which words are dropped
	Logger        *slog.Logger
}

// tesseractSetting is one optional client tweak. Tesseract still reads a
// page when a tweak is refused, only less well.
type tesseractSetting struct {
	name  string
	apply func() error
}

func (t *TesseractEngine) configure(settings ...tesseractSetting) {
	for _, s := range settings {
		if err := s.apply(); err != nil {
			logging.OrDefault(t.Logger).Warn("tesseract setting ignored",
				"setting", s.name, "language", t.Language, "err", err)
		}
	}
}

// NewTesseractEngine returns an engine reading the given tesseract language.
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{
		Language:      language,
		PageSegMode:   gosseract.PSM_SPARSE_TEXT,
		MinConfidence: 0.30,
	}
}

func (t *TesseractEngine) Name() string     { return "tesseract" }
func (t *TesseractEngine) Kind() EngineKind { return Classical }

// Extract returns one fragment per recognised word, with its bounding box.
// Tesseract cannot be interrupted mid-page, so ctx is only checked up front;
// the extractor enforces the deadline around the call.
func (t *TesseractEngine) Extract(ctx context.Context, v imageprep.Variant) ([]Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := imageprep.EncodePNG(v.Image)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.Language); err != nil {
		return nil, fmt.Errorf("tesseract language: %w", err)
	}
	t.configure(
		tesseractSetting{"page_seg_mode", func() error { return client.SetPageSegMode(t.PageSegMode) }},
		tesseractSetting{"user_defined_dpi", func() error { return client.SetVariable("user_defined_dpi", "300") }},
	)
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("tesseract image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract boxes: %w", err)
	}
	out := make([]Fragment, 0, len(boxes))
	for _, b := range boxes {
		word := normalizeOCRText(b.Word)
		conf := b.Confidence / 100
		if word == "" || conf < t.MinConfidence {
			continue
		}
		box := b.Box
		out = append(out, Fragment{
			Text:       word,
			Engine:     t.Name(),
			Kind:       Classical,
			VariantID:  v.ID,
			Confidence: clamp01(conf),
			Box:        &box,
			Seq:        len(out),
		})
	}
	return out, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
