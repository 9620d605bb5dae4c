package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"omnitool/internal/clipboard"
	"omnitool/internal/config"
	"omnitool/internal/domain"
	"omnitool/internal/history"
	"omnitool/internal/metrics"
)

func runCmd() *cobra.Command {
	var (
		stepArgs    []string
		chainPath   string
		input       string
		asJSON      bool
		showMetrics bool
		copyOut     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a chain once and print each step's result",
		Long: `Runs a chain of tools over the input. Each step receives the previous
step's output. Steps come from --step flags (repeatable, in order) and/or a
YAML --chain file; flag steps are appended after file steps.

  omnitool run --input eyJhIjogMX0= --step base64:action=decode --step json_formatter:indent=4
  echo 'a b&c' | omnitool run --input - --step url_encoder`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}

			var specs []stepSpec
			if chainPath != "" {
				cf, err := loadChainFile(chainPath)
				if err != nil {
					return err
				}
				specs = append(specs, cf.Steps...)
				if !cmd.Flags().Changed("input") {
					input = cf.Input
				}
			}
			flagSpecs, err := parseStepSpecs(stepArgs)
			if err != nil {
				return err
			}
			specs = append(specs, flagSpecs...)
			if len(specs) == 0 {
				return fmt.Errorf("no steps given (use --step or --chain)")
			}
			steps, err := buildSteps(cat, specs)
			if err != nil {
				return err
			}

			if input == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = strings.TrimSuffix(string(data), "\n")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			results := newEngine(cfg, nil).Run(ctx, input, steps)
			took := time.Since(start)
			logger.Debug("chain run complete", "steps", len(steps), "results", len(results), "duration", took)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeRunJSON(out, input, steps, results); err != nil {
					return err
				}
			} else {
				printResults(out, steps, results)
			}

			if cfg.History.Enabled {
				recordRun(ctx, cfg, history.NewRun(input, steps, results, took))
			}

			if copyOut {
				if final, ok := finalOutput(steps, results); ok {
					if err := clipboard.WriteText(final); err != nil {
						logger.Warn("could not copy result", "err", err)
					} else {
						logger.Info("result copied to clipboard", "bytes", len(final))
					}
				} else {
					logger.Warn("chain did not complete, nothing copied")
				}
			}

			if showMetrics {
				fmt.Fprintln(out)
				if err := metrics.Collector.WritePrometheus(out); err != nil {
					return err
				}
			}

			if err := abortError(steps, results); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&stepArgs, "step", "s", nil, "step as tool[:key=value,...] (repeatable)")
	cmd.Flags().StringVar(&chainPath, "chain", "", "YAML chain file with input and steps")
	cmd.Flags().StringVarP(&input, "input", "i", "", "input text, or - to read stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print input, steps and results as JSON")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print metrics in Prometheus text format after the run")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the final output to the clipboard")
	return cmd
}

// recordRun stores run in the history database. Failures are logged only.
func recordRun(ctx context.Context, cfg *config.Config, run history.Run) {
	store, err := history.Open(cfg.History.DBPath, logger)
	if err != nil {
		logger.Warn("history unavailable", "err", err)
		return
	}
	defer store.Close()
	if _, err := store.Record(ctx, run); err != nil {
		logger.Warn("failed to record chain run", "err", err)
	}
}

// abortError reports a run cut short by a transport failure, numbering the
// failed step from 1 like printResults does.
func abortError(steps []domain.ChainStep, results []domain.StepResult) error {
	if len(results) == 0 || len(results) >= len(steps) {
		return nil
	}
	return fmt.Errorf("chain aborted at step %d of %d: %s", len(results), len(steps), results[len(results)-1].Error)
}

func writeRunJSON(w io.Writer, input string, steps []domain.ChainStep, results []domain.StepResult) error {
	data, err := json.MarshalIndent(map[string]any{
		"input":   input,
		"steps":   steps,
		"results": results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
