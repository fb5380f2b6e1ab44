// Package process runs the recognition pipeline over an inbox folder: every
// image gets a <name>.<ext>.json result next to it in the processed folder, and
// the image is moved there together with a thumbnail.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"

	"recipelens/pkg/logging"
	"recipelens/pkg/pipeline"
)

// Runner is the part of the pipeline the processor needs.
type Runner interface {
	Run(ctx context.Context, data []byte) (*pipeline.Result, error)
}

// Options configures a Processor.
type Options struct {
	Dir          string
	ProcessedDir string        // default <Dir>/processed
	Workers      int           // <= 0 means runtime.NumCPU()
	Debounce     time.Duration // quiet period before a new file is picked up
	MaxBytes     int64         // larger inputs are rejected without running the pipeline
	StoredBytes  int64         // moved images above this size are downscaled
	ThumbSize    int
	Logger       *slog.Logger
}

// Summary counts what one scan did.
type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Outcome is the JSON document written for each image.
type Outcome struct {
	File        string           `json:"file"`
	ProcessedAt time.Time        `json:"processed_at"`
	Result      *pipeline.Result `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Processor scans and watches one inbox folder.
type Processor struct {
	run  Runner
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// New returns a processor feeding files from opts.Dir into r.
func New(r Runner, opts Options) *Processor {
	if opts.ProcessedDir == "" {
		opts.ProcessedDir = filepath.Join(opts.Dir, "processed")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	if opts.StoredBytes <= 0 {
		opts.StoredBytes = 1_000_000
	}
	if opts.ThumbSize <= 0 {
		opts.ThumbSize = 256
	}
	return &Processor{run: r, opts: opts, log: logging.OrDefault(opts.Logger), now: time.Now}
}

// ScanOnce processes every supported image currently in the inbox.
func (p *Processor) ScanOnce(ctx context.Context) (Summary, error) {
	if err := os.MkdirAll(p.opts.ProcessedDir, 0o755); err != nil {
		return Summary{}, err
	}
	files, err := listImageFiles(p.opts.Dir)
	if err != nil {
		return Summary{}, err
	}
	p.log.Info("scanning inbox", "dir", p.opts.Dir, "files", len(files), "workers", p.opts.Workers)

	fileCh := make(chan string)
	var sum counters
	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				sum.add(p.processFile(ctx, name))
			}
		}()
	}
feed:
	for _, f := range files {
		select {
		case fileCh <- f:
		case <-ctx.Done():
			break feed
		}
	}
	close(fileCh)
	wg.Wait()
	return sum.summary(), ctx.Err()
}

// Watch starts watching the inbox, runs an initial scan and then processes
// new files as they settle, until ctx is cancelled.
func (p *Processor) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// registered before the scan so files arriving during it raise events
	if err := w.Add(p.opts.Dir); err != nil {
		return err
	}
	if _, err := p.ScanOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	p.log.Info("watching inbox", "dir", p.opts.Dir, "debounce", p.opts.Debounce)

	fileCh := make(chan string, 256)
	var wg sync.WaitGroup
	var sum counters
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				sum.add(p.processFile(ctx, name))
			}
		}()
	}
	defer func() {
		close(fileCh)
		wg.Wait()
		s := sum.summary()
		p.log.Info("watch stopped", "processed", s.Processed, "failed", s.Failed, "skipped", s.Skipped)
	}()

	// a file is handed over once no event touched it for the debounce period
	pending := map[string]time.Time{}
	tick := p.opts.Debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if isSupportedExt(name) {
				pending[name] = time.Now()
			}
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) >= p.opts.Debounce {
					delete(pending, name)
					select {
					case fileCh <- name:
					case <-ctx.Done():
						return nil
					}
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.log.Warn("watch error", "error", err)
		}
	}
}

type status int

const (
	statusProcessed status = iota
	statusFailed
	statusSkipped
)

type counters struct{ processed, failed, skipped atomic.Int64 }

func (c *counters) add(s status) {
	switch s {
	case statusProcessed:
		c.processed.Add(1)
	case statusFailed:
		c.failed.Add(1)
	default:
		c.skipped.Add(1)
	}
}

func (c *counters) summary() Summary {
	return Summary{
		Processed: int(c.processed.Load()),
		Failed:    int(c.failed.Load()),
		Skipped:   int(c.skipped.Load()),
	}
}

// processFile runs one image through the pipeline. Files that already have
// a result are skipped so a folder can be rescanned safely. A cancelled ctx
// leaves the file in place for the next run.
func (p *Processor) processFile(ctx context.Context, name string) status {
	src := filepath.Join(p.opts.Dir, name)
	resultPath := filepath.Join(p.opts.ProcessedDir, resultName(name))
	if _, err := os.Stat(resultPath); err == nil {
		p.log.Debug("skip, result exists", "file", name)
		return statusSkipped
	}
	fi, err := os.Stat(src)
	if err != nil {
		// picked up by both the scan and the watcher, or removed meanwhile
		return statusSkipped
	}

	out := Outcome{File: name}
	var runErr error
	if fi.Size() > p.opts.MaxBytes {
		runErr = fmt.Errorf("file too large: %d bytes (max %d)", fi.Size(), p.opts.MaxBytes)
	} else {
		data, err := os.ReadFile(src)
		if err != nil {
			p.log.Warn("read failed", "file", name, "error", err)
			return statusFailed
		}
		out.Result, runErr = p.run.Run(ctx, data)
	}
	if runErr != nil && ctx.Err() != nil {
		return statusSkipped
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	out.ProcessedAt = p.now().UTC()

	if err := writeJSON(resultPath, out); err != nil {
		p.log.Error("write result failed", "file", name, "error", err)
		return statusFailed
	}
	if err := p.moveToProcessed(src, name); err != nil {
		p.log.Warn("failed to move processed file", "file", name, "error", err)
	}
	if runErr != nil {
		p.log.Warn("image failed", "file", name, "error", runErr)
		return statusFailed
	}
	p.log.Info("image processed", "file", name,
		"ingredients", strings.Join(out.Result.IngredientNames(), ","),
		"recipes", len(out.Result.MatchingRecipes))
	return statusProcessed
}

// resultName keeps the source extension so a.png and a.jpg never share a
// result.
func resultName(name string) string {
	return name + ".json"
}

func thumbName(name string) string {
	return name + ".thumb.jpg"
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func isSupportedExt(name string) bool {
	// never pick up our own thumbnails
	if strings.Contains(name, ".thumb.") || strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

// moveToProcessed moves src into the processed folder, downscaling images
// above StoredBytes, and writes a thumbnail when the image decodes.
func (p *Processor) moveToProcessed(src, name string) error {
	dst := filepath.Join(p.opts.ProcessedDir, name)
	img, decErr := imaging.Open(src, imaging.AutoOrientation(true))
	if decErr == nil {
		thumb := imaging.Fit(img, p.opts.ThumbSize, p.opts.ThumbSize, imaging.Lanczos)
		if err := imaging.Save(thumb, filepath.Join(p.opts.ProcessedDir, thumbName(name)), imaging.JPEGQuality(80)); err != nil {
			p.log.Warn("thumbnail failed", "file", name, "error", err)
		}
	}

	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.Size() <= p.opts.StoredBytes || decErr != nil {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		return copyRemove(src, dst)
	}

	// size roughly scales with area
	scale := math.Sqrt(float64(p.opts.StoredBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	small := imaging.Resize(img, w, 0, imaging.Lanczos)
	if err := imaging.Save(small, dst); err != nil {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		return copyRemove(src, dst)
	}
	return os.Remove(src)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return errors.Join(err, os.Remove(dst))
	}
	return os.Remove(src)
}
