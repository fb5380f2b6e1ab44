package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"recipelens/pkg/imageprep"
	"recipelens/pkg/logging"
)

// Conditions recorded on a Result when extraction degraded.
const (
	ConditionNoText        = "ocr_no_text"
	ConditionEngineTimeout = "engine_timeout"
)

// Options tunes an Extractor.
type Options struct {
	Workers        int           // <= 0 means runtime.NumCPU()
	EngineTimeout  time.Duration // per engine/variant call
	MergeThreshold float64       // normalised edit distance at or below which fragments merge
	Logger         *slog.Logger
}

// Result is the merged outcome of every engine over every variant.
type Result struct {
	Text       string     `json:"text"`
	Fragments  []Fragment `json:"fragments"`
	Conditions []string   `json:"conditions,omitempty"`
	NoText     bool       `json:"no_text"`
	Timeouts   int        `json:"timeouts"`
}

// Err reports ErrNoText when nothing was recognised. Callers that can carry
// on without text should inspect NoText instead of failing.
func (r *Result) Err() error {
	if r.NoText {
		return ErrNoText
	}
	return nil
}

// Extractor fans engine calls out over a bounded worker pool.
type Extractor struct {
	engines []Engine
	opts    Options
	log     *slog.Logger
}

// NewExtractor returns an extractor over engines (order matters for tie-breaks
// and extraction order).
func NewExtractor(engines []Engine, opts Options) *Extractor {
	if opts.EngineTimeout <= 0 {
		opts.EngineTimeout = 20 * time.Second
	}
	if opts.MergeThreshold <= 0 {
		opts.MergeThreshold = 0.25
	}
	return &Extractor{engines: engines, opts: opts, log: logging.OrDefault(opts.Logger)}
}

// Engines returns the configured engine names, in order.
func (e *Extractor) Engines() []string {
	names := make([]string, len(e.engines))
	for i, eng := range e.engines {
		names[i] = eng.Name()
	}
	return names
}

type job struct {
	engine  int
	variant int
}

type callResult struct {
	frags   []Fragment
	timeout bool
}

// Extract runs every engine on every variant. Engine failures and timeouts
// degrade to empty output; only cancellation of ctx is returned as an error.
func (e *Extractor) Extract(ctx context.Context, variants []imageprep.Variant) (*Result, error) {
	start := time.Now()
	nj := len(e.engines) * len(variants)
	results := make([]callResult, nj)

	workers := effectiveWorkers(e.opts.Workers)
	if workers > nj {
		workers = nj
	}
	jobCh := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				results[j.variant*len(e.engines)+j.engine] = e.run(ctx, e.engines[j.engine], variants[j.variant])
			}
		}()
	}
feed:
	for v := range variants {
		for en := range e.engines {
			select {
			case jobCh <- job{engine: en, variant: v}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobCh)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	var raw []Fragment
	for _, r := range results {
		if r.timeout {
			res.Timeouts++
		}
		raw = append(raw, r.frags...)
	}
	merged := mergeFragments(raw, e.opts.MergeThreshold)
	res.Fragments, res.Text = readingOrder(merged)
	if res.Timeouts > 0 {
		res.Conditions = append(res.Conditions, ConditionEngineTimeout)
	}
	if len(res.Fragments) == 0 {
		res.NoText = true
		res.Conditions = append(res.Conditions, ConditionNoText)
	}

	e.log.Info("OCR passes summary",
		"engines", len(e.engines),
		"variants", len(variants),
		"raw_fragments", len(raw),
		"merged_fragments", len(res.Fragments),
		"timeouts", res.Timeouts,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"text", snippet(normalizeOCRText(res.Text), 120),
	)
	return res, nil
}

// run executes one engine call under its own deadline. Some engines (cgo
// tesseract) cannot be interrupted, so the call runs in its own goroutine
// and is abandoned when the deadline passes.
func (e *Extractor) run(ctx context.Context, eng Engine, v imageprep.Variant) callResult {
	if ctx.Err() != nil {
		return callResult{}
	}
	callCtx, cancel := context.WithTimeout(ctx, e.opts.EngineTimeout)
	defer cancel()

	type out struct {
		frags []Fragment
		err   error
	}
	done := make(chan out, 1)
	go func() {
		frags, err := eng.Extract(callCtx, v)
		done <- out{frags, err}
	}()

	var o out
	select {
	case o = <-done:
	case <-callCtx.Done():
		o = out{err: callCtx.Err()}
	}

	if o.err != nil {
		if ctx.Err() != nil {
			return callResult{}
		}
		if errors.Is(o.err, context.DeadlineExceeded) {
			e.log.Warn("OCR engine timed out",
				"engine", eng.Name(), "variant", v.Technique, "timeout", e.opts.EngineTimeout,
				"error", fmt.Errorf("%w: %s on %s", ErrEngineTimeout, eng.Name(), v.Technique))
			return callResult{timeout: true}
		}
		e.log.Warn("OCR engine failed", "engine", eng.Name(), "variant", v.Technique, "error", o.err)
		return callResult{}
	}

	frags := make([]Fragment, 0, len(o.frags))
	for i, f := range o.frags {
		f.Engine = eng.Name()
		f.Kind = eng.Kind()
		f.VariantID = v.ID
		f.Seq = i
		f.Confidence = clamp01(f.Confidence)
		frags = append(frags, f)
	}
	return callResult{frags: frags}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}
