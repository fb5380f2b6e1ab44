// Package imageprep turns an uploaded photo into a fixed set of filtered
// grayscale variants tuned for text recognition.
package imageprep

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// Technique names the filter that produced a variant.
type Technique string

const (
	TechniqueCLAHE             Technique = "clahe"
	TechniqueBilateral         Technique = "bilateral"
	TechniqueAdaptiveThreshold Technique = "adaptive_threshold"
	TechniqueMorphClose        Technique = "morph_close"
	TechniqueUnsharp           Technique = "unsharp"
)

// Techniques lists every variant in the order Preprocess returns them.
var Techniques = []Technique{
	TechniqueCLAHE,
	TechniqueBilateral,
	TechniqueAdaptiveThreshold,
	TechniqueMorphClose,
	TechniqueUnsharp,
}

// Variant is one filtered rendition of the input image.
type Variant struct {
	ID        int
	Technique Technique
	Image     image.Image
}

// Options tunes the filters. Zero fields take the defaults from DefaultOptions.
type Options struct {
	MinHeight    int // images shorter than this are upscaled
	TargetHeight int
	MaxDimension int // larger images are shrunk to fit
	MaxPixels    int // uploads with more pixels are rejected before decoding

	CLAHEClip  float64
	CLAHETiles int

	BilateralDiameter int
	SigmaColor        float64
	SigmaSpace        float64

	ThresholdWindow int
	ThresholdBias   int
	MorphRadius     int

	UnsharpSigma  float64
	UnsharpAmount float64
}

// DefaultOptions mirrors the parameters the recogniser was tuned with.
func DefaultOptions() Options {
	return Options{
		MinHeight:         900,
		TargetHeight:      1300,
		MaxDimension:      2000,
		MaxPixels:         DefaultMaxPixels,
		CLAHEClip:         3.0,
		CLAHETiles:        8,
		BilateralDiameter: 9,
		SigmaColor:        75,
		SigmaSpace:        75,
		ThresholdWindow:   11,
		ThresholdBias:     2,
		MorphRadius:       1,
		UnsharpSigma:      1.0,
		UnsharpAmount:     1.5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinHeight == 0 {
		o.MinHeight = d.MinHeight
	}
	if o.TargetHeight == 0 {
		o.TargetHeight = d.TargetHeight
	}
	if o.MaxDimension == 0 {
		o.MaxDimension = d.MaxDimension
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = d.MaxPixels
	}
	if o.CLAHEClip == 0 {
		o.CLAHEClip = d.CLAHEClip
	}
	if o.CLAHETiles == 0 {
		o.CLAHETiles = d.CLAHETiles
	}
	if o.BilateralDiameter == 0 {
		o.BilateralDiameter = d.BilateralDiameter
	}
	if o.SigmaColor == 0 {
		o.SigmaColor = d.SigmaColor
	}
	if o.SigmaSpace == 0 {
		o.SigmaSpace = d.SigmaSpace
	}
	if o.ThresholdWindow == 0 {
		o.ThresholdWindow = d.ThresholdWindow
	}
	if o.ThresholdBias == 0 {
		o.ThresholdBias = d.ThresholdBias
	}
	if o.MorphRadius == 0 {
		o.MorphRadius = d.MorphRadius
	}
	if o.UnsharpSigma == 0 {
		o.UnsharpSigma = d.UnsharpSigma
	}
	if o.UnsharpAmount == 0 {
		o.UnsharpAmount = d.UnsharpAmount
	}
	return o
}

// Preprocessor produces variants. It holds no per-request state and is safe
// for concurrent use.
type Preprocessor struct {
	opts Options
}

// New returns a Preprocessor using opts (zero values fall back to defaults).
func New(opts Options) *Preprocessor {
	return &Preprocessor{opts: opts.withDefaults()}
}

// Decode is DecodeLimit with the configured pixel cap.
func (p *Preprocessor) Decode(data []byte) (image.Image, error) {
	return DecodeLimit(data, p.opts.MaxPixels)
}

// Preprocess always returns all five variants in Techniques order. The
// filters run concurrently; cancelling ctx abandons the result.
func (p *Preprocessor) Preprocess(ctx context.Context, img image.Image) ([]Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := toGray(p.rescale(img))
	o := p.opts

	out := make([]Variant, len(Techniques))
	set := func(t Technique, g image.Image) {
		for i, tt := range Techniques {
			if tt == t {
				out[i] = Variant{ID: i, Technique: t, Image: g}
			}
		}
	}

	jobs := []func(){
		func() { set(TechniqueCLAHE, clahe(base, o.CLAHEClip, o.CLAHETiles)) },
		func() {
			set(TechniqueBilateral, bilateral(base, o.BilateralDiameter, o.SigmaColor, o.SigmaSpace))
		},
		func() {
			bin := adaptiveThreshold(base, o.ThresholdWindow, o.ThresholdBias)
			set(TechniqueAdaptiveThreshold, bin)
			if ctx.Err() != nil {
				return
			}
			set(TechniqueMorphClose, closeStrokes(bin, o.MorphRadius))
		},
		func() { set(TechniqueUnsharp, unsharp(base, o.UnsharpSigma, o.UnsharpAmount)) },
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(run func()) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			run()
		}(job)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// rescale upsizes small photos (Lanczos, like the OCR passes always did) and
// shrinks oversized ones so the filters stay affordable.
func (p *Preprocessor) rescale(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() > p.opts.MaxDimension || b.Dy() > p.opts.MaxDimension {
		return imaging.Fit(img, p.opts.MaxDimension, p.opts.MaxDimension, imaging.Lanczos)
	}
	if b.Dy() < p.opts.MinHeight {
		target := p.opts.TargetHeight
		// keep the width bounded too for very wide strips
		if w := b.Dx() * target / b.Dy(); w > p.opts.MaxDimension {
			return imaging.Resize(img, p.opts.MaxDimension, 0, imaging.Lanczos)
		}
		return imaging.Resize(img, 0, target, imaging.Lanczos)
	}
	return img
}
