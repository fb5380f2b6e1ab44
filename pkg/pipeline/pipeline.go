// Package pipeline wires the recognition stages together for one image:
// decode, preprocess, OCR, normalise, resolve ingredients and match recipes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"recipelens/pkg/config"
	"recipelens/pkg/imageprep"
	"recipelens/pkg/ingredient"
	"recipelens/pkg/logging"
	"recipelens/pkg/ocr"
	"recipelens/pkg/recipe"
	"recipelens/pkg/textnorm"
)

// Store states reported in Result.DatabaseStatus.
const (
	DatabaseConnected   = "connected"
	DatabaseUnavailable = "unavailable"
)

// Result is what one processed image yields.
type Result struct {
	OCRText         string               `json:"ocr_text"`
	Ingredients     []ingredient.Match   `json:"ingredients"`
	MatchingRecipes []recipe.MatchResult `json:"matching_recipes"`
	DatabaseStatus  string               `json:"database_status"`
	Conditions      []string             `json:"conditions"`
}

// IngredientNames returns the resolved names in rank order.
func (r *Result) IngredientNames() []string {
	names := make([]string, len(r.Ingredients))
	for i, m := range r.Ingredients {
		names[i] = m.Name
	}
	return names
}

// Pipeline is safe for concurrent use; all per-request state lives on the
// stack of Run.
type Pipeline struct {
	prep      *imageprep.Preprocessor
	extractor *ocr.Extractor
	resolver  *ingredient.Resolver
	matcher   *recipe.Matcher
	limit     int
	log       *slog.Logger
	closers   []io.Closer
}

// New assembles a pipeline from ready stages. matchLimit caps the recipes
// returned per image (<= 0 means all).
func New(prep *imageprep.Preprocessor, ex *ocr.Extractor, res *ingredient.Resolver, m *recipe.Matcher, matchLimit int, log *slog.Logger) *Pipeline {
	return &Pipeline{
		prep:      prep,
		extractor: ex,
		resolver:  res,
		matcher:   m,
		limit:     matchLimit,
		log:       logging.OrDefault(log),
	}
}

// FromConfig builds every stage from cfg over the given catalog and store.
// Close the pipeline to release engine clients.
func FromConfig(ctx context.Context, cfg *config.Config, cat *ingredient.Catalog, store recipe.Store, log *slog.Logger) (*Pipeline, error) {
	log = logging.OrDefault(log)
	engines, closers, err := Engines(ctx, cfg.OCR, log)
	if err != nil {
		return nil, err
	}
	ex := ocr.NewExtractor(engines, ocr.Options{
		Workers:        cfg.OCR.Workers,
		EngineTimeout:  cfg.OCR.EngineTimeout,
		MergeThreshold: cfg.OCR.MergeThreshold,
		Logger:         log,
	})
	p := New(
		imageprep.New(imageprep.Options{MaxPixels: cfg.Upload.MaxPixels}),
		ex,
		ingredient.NewResolver(cat, log),
		recipe.NewMatcher(store, cat),
		cfg.Match.ProcessImageLimit,
		log,
	)
	p.closers = closers
	log.Info("pipeline ready", "engines", strings.Join(ex.Engines(), ","), "catalog", cat.Len())
	return p, nil
}

// Engines builds the OCR engines enabled in cfg: tesseract first, then the
// neural provider. Returned closers must be closed on shutdown.
func Engines(ctx context.Context, cfg config.OCRConfig, log *slog.Logger) ([]ocr.Engine, []io.Closer, error) {
	var (
		engines []ocr.Engine
		closers []io.Closer
	)
	if cfg.Tesseract {
		te := ocr.NewTesseractEngine(cfg.Language)
		te.Logger = log
		engines = append(engines, te)
	}
	switch strings.ToLower(cfg.Neural.Provider) {
	case "gemini":
		g, err := ocr.NewGeminiEngine(ctx, cfg.Neural.APIKey, cfg.Neural.Model)
		if err != nil {
			return nil, nil, err
		}
		engines = append(engines, g)
		closers = append(closers, g)
	case "openai":
		engines = append(engines, ocr.NewVisionChatEngine(cfg.Neural.BaseURL, cfg.Neural.APIKey, cfg.Neural.Model))
	}
	if len(engines) == 0 {
		return nil, nil, fmt.Errorf("no OCR engine enabled: set ocr.tesseract or ocr.neural.provider")
	}
	logging.OrDefault(log).Debug("OCR engines configured", "count", len(engines), "provider", cfg.Neural.Provider)
	return engines, closers, nil
}

// Close releases engine clients.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Run processes one uploaded image. Only a malformed image or a cancelled
// ctx fail the call: missing text falls back to a guessed ingredient and a
// store outage leaves MatchingRecipes empty with DatabaseStatus
// "unavailable".
func (p *Pipeline) Run(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()
	img, err := p.prep.Decode(data)
	if err != nil {
		return nil, err
	}
	variants, err := p.prep.Preprocess(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	text, err := p.extractor.Extract(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	res := &Result{
		OCRText:         text.Text,
		Ingredients:     p.resolver.Resolve(textnorm.Tokens(text), data),
		MatchingRecipes: []recipe.MatchResult{},
		DatabaseStatus:  DatabaseConnected,
		Conditions:      append([]string{}, text.Conditions...),
	}

	matches, err := p.matcher.Match(ctx, res.IngredientNames(), p.limit)
	switch {
	case err == nil:
		res.MatchingRecipes = matches
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		p.log.Warn("recipe matching failed", "error", err)
		res.DatabaseStatus = DatabaseUnavailable
	}

	p.log.Info("image processed",
		"bytes", len(data),
		"ingredients", len(res.Ingredients),
		"recipes", len(res.MatchingRecipes),
		"conditions", res.Conditions,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}
