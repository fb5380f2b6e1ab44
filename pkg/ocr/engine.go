// Package ocr runs several text recognition engines over preprocessed image
// variants and merges what they read into one ordered transcript.
package ocr

import (
	"context"
	"image"

	"recipelens/pkg/imageprep"
)

// EngineKind separates fast classical recognisers from slower neural ones.
type EngineKind int

const (
	Classical EngineKind = iota
	Neural
)

func (k EngineKind) String() string {
	if k == Neural {
		return "neural"
	}
	return "classical"
}

// Fragment is one piece of recognised text.
type Fragment struct {
	Text       string           `json:"text"`
	Engine     string           `json:"engine"`
	Kind       EngineKind       `json:"-"`
	VariantID  int              `json:"variant_id"`
	Confidence float64          `json:"confidence"`
	Box        *image.Rectangle `json:"box,omitempty"` // nil when the engine has no layout data
	Seq        int              `json:"-"`             // position within the engine call
}

// Engine is a text extraction capability. Implementations must be safe for
// concurrent use and should honour ctx where the backend allows it.
type Engine interface {
	Name() string
	Kind() EngineKind
	Extract(ctx context.Context, v imageprep.Variant) ([]Fragment, error)
}
