package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"omnitool/internal/bus"
	"omnitool/internal/chain"
	"omnitool/internal/domain"
	"omnitool/internal/history"
	"omnitool/internal/suggest"
)

func watchCmd() *cobra.Command {
	var (
		stepArgs  []string
		input     string
		inputFile string
		follow    bool
		interval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a chain live: re-run on input changes and watch the clipboard",
		Long: `Holds one chain open. Every edit (a change to --input-file, or a new
suggestion accepted with --follow) schedules a debounced re-run, and the
results are printed when a run completes. The clipboard is polled for tool
suggestions, which are printed as they change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			specs, err := parseStepSpecs(stepArgs)
			if err != nil {
				return err
			}
			// Validate up front; AddStep itself drops unknown tools silently.
			if _, err := buildSteps(cat, specs); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			events := bus.NewEventBus(logger)
			out := &syncWriter{w: cmd.OutOrStdout()}

			if cfg.History.Enabled {
				store, err := history.Open(cfg.History.DBPath, logger)
				if err != nil {
					return fmt.Errorf("open history: %w", err)
				}
				defer store.Close()
				cutoff := time.Now().AddDate(0, 0, -cfg.History.RetentionDays)
				if _, err := store.Prune(ctx, cutoff); err != nil {
					logger.Warn("history prune failed", "err", err)
				}
				detach := store.Attach(events)
				defer detach()
			}

			events.On(bus.EventRunCompleted, func(e bus.Event) {
				steps, _ := e.Payload["steps"].([]domain.ChainStep)
				results, _ := e.Payload["results"].([]domain.StepResult)
				took, _ := e.Payload["duration"].(time.Duration)
				out.do(func(w io.Writer) {
					fmt.Fprintf(w, "--- run at %s (%s)\n", e.Timestamp.Format("15:04:05"), took.Round(time.Millisecond))
					printResults(w, steps, results)
				})
			})

			ctrl := chain.NewController(chain.ControllerConfig{
				Runner:   newEngine(cfg, events),
				Catalog:  cat,
				Debounce: cfg.Chain.Debounce(),
				Input:    input,
				Events:   events,
				Logger:   logger,
			})

			var bridge *suggest.Bridge
			if cfg.Suggest.Enabled && cfg.Suggest.Source != "none" {
				bridge = newBridge(cfg, textSource(cfg, false, ""), events)
				events.On(bus.EventSuggestionChanged, func(e bus.Event) {
					if active, _ := e.Payload["active"].(bool); !active {
						out.do(func(w io.Writer) { fmt.Fprintln(w, "--- suggestion cleared") })
						return
					}
					out.do(func(w io.Writer) {
						fmt.Fprintf(w, "--- suggestion: %v (confidence %.2f)\n", e.Payload["tool"], e.Payload["confidence"])
					})
					if !follow {
						return
					}
					s := bridge.Current()
					if s == nil {
						return
					}
					if text, opts, ok := suggest.Prefill(s, s.Result.ToolID); ok {
						ctrl.Start(s.Result.ToolID, text, opts)
					}
				})
			}

			for _, s := range specs {
				ctrl.AddStep(s.Tool, s.Options)
			}

			g, gctx := errgroup.WithContext(ctx)

			if inputFile != "" {
				g.Go(func() error {
					return watchInputFile(gctx, inputFile, ctrl.SetInput)
				})
			}

			if bridge != nil {
				bridge.Trigger(gctx, suggest.ReasonStart)
				poll := cfg.Suggest.PollInterval()
				if interval > 0 {
					poll = interval
				}
				g.Go(func() error {
					bridge.Poll(gctx, poll, nil)
					return nil
				})
			}

			g.Go(func() error {
				<-gctx.Done()
				ctrl.Close()
				return nil
			})

			logger.Info("watching. Press Ctrl+C to stop.", "steps", len(ctrl.Steps()), "input_file", inputFile)
			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("watch stopped")
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&stepArgs, "step", "s", nil, "step as tool[:key=value,...] (repeatable)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "initial input text")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "use this file's contents as input and re-run when it changes")
	cmd.Flags().BoolVar(&follow, "follow", false, "replace the chain with each new suggestion")
	cmd.Flags().DurationVar(&interval, "interval", 0, "clipboard poll interval (default: suggest.pollIntervalMs)")
	return cmd
}

// watchInputFile calls set with path's contents now and after every change.
// The parent directory is watched so editors that replace the file on save
// are still seen. Blocks until ctx is cancelled.
func watchInputFile(ctx context.Context, path string, set func(string)) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve input file: %w", err)
	}
	read := func() {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read input file", "path", path, "err", err)
			return
		}
		set(strings.TrimSuffix(string(data), "\n"))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	read()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Debug("input file changed", "path", path, "op", event.Op.String())
				read()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "err", err)
		}
	}
}

// syncWriter serializes output from event handlers running on different goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) do(fn func(io.Writer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.w)
}
