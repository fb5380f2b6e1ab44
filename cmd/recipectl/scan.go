package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"recipelens/pkg/database"
	"recipelens/pkg/pipeline"
	"recipelens/process"
)

// scanResult is one line of scan output.
type scanResult struct {
	File   string           `json:"file"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// withPipeline builds the pipeline over the configured store and hands it to
// fn, releasing everything afterwards.
func (a *app) withPipeline(ctx context.Context, fn func(*pipeline.Pipeline) error) error {
	cat, err := a.catalog()
	if err != nil {
		return err
	}
	store, closeStore, err := database.OpenStore(ctx, a.cfg.DB, a.log)
	if err != nil {
		return err
	}
	defer closeStore()
	p, err := pipeline.FromConfig(ctx, a.cfg, cat, store, a.log)
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(p)
}

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan IMAGE...",
		Short: "Run the recognition pipeline on image files and print the results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
				var failed int
				for _, path := range args {
					out := scanResult{File: filepath.Base(path)}
					data, err := os.ReadFile(path)
					if err == nil {
						out.Result, err = p.Run(cmd.Context(), data)
					}
					if err != nil {
						if ctxErr := cmd.Context().Err(); ctxErr != nil {
							return ctxErr
						}
						out.Error = err.Error()
						failed++
					}
					if err := printJSON(cmd.OutOrStdout(), out); err != nil {
						return err
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d images failed", failed, len(args))
				}
				return nil
			})
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		dir          string
		processedDir string
		workers      int
		debounce     time.Duration
		once         bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process images dropped into an inbox folder",
		Long: `Runs every image in the inbox folder through the recognition pipeline and
writes <name>.<ext>.json next to the moved image in the processed folder. Keeps
watching for new files until interrupted, unless --once is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := a.cfg.Watch
			if dir != "" {
				w.Dir = dir
			}
			if processedDir != "" {
				w.ProcessedDir = processedDir
			}
			if workers > 0 {
				w.Workers = workers
			}
			if debounce > 0 {
				w.Debounce = debounce
			}
			if err := os.MkdirAll(w.Dir, 0o755); err != nil {
				return err
			}
			return a.withPipeline(cmd.Context(), func(p *pipeline.Pipeline) error {
				proc := process.New(p, process.Options{
					Dir:          w.Dir,
					ProcessedDir: w.ProcessedDir,
					Workers:      w.Workers,
					Debounce:     w.Debounce,
					MaxBytes:     a.cfg.Upload.MaxBytes,
					Logger:       a.log,
				})
				if once {
					sum, err := proc.ScanOnce(cmd.Context())
					if err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return printJSON(cmd.OutOrStdout(), sum)
				}
				return proc.Watch(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Inbox folder (default from RECIPELENS_WATCH_DIR)")
	cmd.Flags().StringVar(&processedDir, "processed-dir", "", "Where results and processed images go (default <dir>/processed)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent images (default number of CPUs)")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before a new file is picked up")
	cmd.Flags().BoolVar(&once, "once", false, "Process the current inbox and exit")
	return cmd
}
