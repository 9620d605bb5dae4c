package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"omnitool/internal/bus"
	"omnitool/internal/clipboard"
	"omnitool/internal/config"
	"omnitool/internal/detect"
	"omnitool/internal/domain"
	"omnitool/internal/suggest"
)

func detectCmd() *cobra.Command {
	var (
		text string
		run  bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Suggest a tool for the clipboard (or --text)",
		Long: `Classifies the clipboard contents, or the text given with --text, and
prints the suggested tool with its initial options. With --run the suggested
tool is applied to the text as a one-step chain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}

			src := textSource(cfg, cmd.Flags().Changed("text"), text)
			bridge := newBridge(cfg, src, nil)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			if bridge.Trigger(ctx, suggest.ReasonStart) == nil {
				fmt.Fprintln(out, "No suggestion.")
				return nil
			}
			s := bridge.Current()

			name := s.Result.ToolID
			if desc, ok := cat.Get(s.Result.ToolID); ok {
				name = desc.Name
			}
			fmt.Fprintf(out, "Suggested: %s (%s)\n", name, s.Result.ToolID)
			fmt.Fprintf(out, "Confidence: %.2f\n", s.Result.Confidence)
			if len(s.Result.InitialOptions) > 0 {
				fmt.Fprintf(out, "Options: %s\n", formatOptions(s.Result.InitialOptions))
			}

			if !run {
				return nil
			}
			input, opts, ok := suggest.Prefill(s, s.Result.ToolID)
			if !ok {
				return nil
			}
			steps, err := buildSteps(cat, []stepSpec{{Tool: s.Result.ToolID, Options: opts}})
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			results := newEngine(cfg, nil).Run(ctx, input, steps)
			printResults(out, steps, results)
			return nil
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "classify this text instead of the clipboard")
	cmd.Flags().BoolVar(&run, "run", false, "run the suggested tool on the text")
	return cmd
}

// textSource picks the suggestion source: fixed text when given, otherwise
// the clipboard unless suggest.source is "none".
func textSource(cfg *config.Config, useText bool, text string) domain.TextSource {
	if useText {
		return clipboard.NewStatic(text)
	}
	if cfg.Suggest.Source == "none" {
		return clipboard.NewStatic("")
	}
	return clipboard.System{}
}

func newBridge(cfg *config.Config, src domain.TextSource, events *bus.EventBus) *suggest.Bridge {
	return suggest.NewBridge(suggest.BridgeConfig{
		Detector:      detect.New(),
		Source:        src,
		MinConfidence: cfg.Suggest.MinConfidence,
		Events:        events,
		Logger:        logger,
	})
}
