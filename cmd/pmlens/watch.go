package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/logflow/pmlens/pkg/report"
	"github.com/logflow/pmlens/pkg/source"
	"github.com/logflow/pmlens/pkg/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		format   string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <file>...",
		Short: "Re-run the analysis whenever an event log changes",
		Long: `Watch analyzes each local file once and again every time it is written.
Reports are printed to stdout; stop with Ctrl+C.

Examples:
  pmlens watch events.csv
  pmlens watch exports/*.xlsx --format markdown --debounce 2s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			return runWatch(cmd, a, args, f, debounce)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Report format (text, markdown, json)")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before re-running")

	return cmd
}

func runWatch(cmd *cobra.Command, a *app, paths []string, format report.Format, debounce time.Duration) error {
	for _, p := range paths {
		loc, err := source.Parse(p)
		if err != nil {
			return err
		}
		if loc.Scheme != source.SchemeFile {
			return fmt.Errorf("watch only supports local files, got %s", p)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer, err := a.analyzer(ctx, nil)
	if err != nil {
		return err
	}

	w, err := watch.NewWatcher(debounce, a.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	opts := a.reportOptions()
	var mu sync.Mutex
	run := func(ctx context.Context, path string) error {
		r, err := analyzer.Analyze(ctx, path)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "\n== %s (%s) ==\n", path, r.GeneratedAt.Format(time.RFC3339))
		return report.Write(out, r, format, opts)
	}

	w.OnChange = run
	w.OnError = func(path string, err error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
	}

	for _, p := range paths {
		abs, err := w.Watch(p)
		if err != nil {
			return err
		}
		if err := run(ctx, abs); err != nil {
			w.OnError(abs, err)
		}
	}

	a.logger.Info("watching", zap.Strings("paths", w.Paths()))
	fmt.Fprintln(cmd.ErrOrStderr(), "Watching for changes. Press Ctrl+C to stop.")

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
