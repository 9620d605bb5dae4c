package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"omnitool/internal/clipboard"
	"omnitool/internal/config"
	"omnitool/internal/domain"
	"omnitool/internal/history"
	"omnitool/internal/toolexec"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your omnitool setup",
		Long: `Verifies that omnitool's configuration, tool catalog, clipboard access and
history database are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("omnitool doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file
			var cfg *config.Config
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				warned++
				cfg = config.Defaults()
				cfg.History.DBPath = config.ExpandPath(cfg.History.DBPath)
			} else {
				printPass("Config file", cfgPath)
				passed++

				// 2. Config loads and validates
				loaded, err := config.Load(cfgPath)
				if err != nil {
					printFail("Config validation", err.Error())
					failed++
					fmt.Printf("\n%d passed, %d failed\n", passed, failed)
					return fmt.Errorf("config is invalid")
				}
				printPass("Config validation", "valid")
				passed++
				cfg = loaded
			}

			// 3. Catalog
			cat, err := loadCatalog(cfg)
			if err != nil {
				printFail("Tool catalog", err.Error())
				failed++
			} else {
				source := "embedded"
				if cfg.Catalog.Path != "" {
					source = cfg.Catalog.Path
				}
				printPass("Tool catalog", fmt.Sprintf("%d tools (%s)", len(cat.List()), source))
				passed++

				// 4. Every catalog tool has a builtin executor
				exec := toolexec.New(logger)
				var missing []string
				for _, t := range cat.List() {
					if exec.Get(t.ID) == nil {
						missing = append(missing, t.ID)
					}
				}
				if len(missing) > 0 {
					printWarn("Executors", "no builtin executor for: "+strings.Join(missing, ", "))
					warned++
				} else {
					printPass("Executors", "all catalog tools runnable")
					passed++
				}
			}

			// 5. Engine self-test
			if err := checkEngine(cfg); err != nil {
				printFail("Chain engine", err.Error())
				failed++
			} else {
				printPass("Chain engine", "base64 > json_formatter ok")
				passed++
			}

			// 6. Clipboard
			if cfg.Suggest.Enabled && cfg.Suggest.Source == "clipboard" {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_, err := clipboard.System{}.ReadText(ctx)
				cancel()
				switch {
				case errors.Is(err, clipboard.ErrUnsupported):
					printWarn("Clipboard", "no clipboard utility found (install xclip, xsel or wl-clipboard)")
					warned++
				case err != nil:
					printWarn("Clipboard", err.Error())
					warned++
				default:
					printPass("Clipboard", "readable")
					passed++
				}
			}

			// 7. History database writable
			if cfg.History.Enabled {
				if n, err := checkHistory(cfg.History.DBPath); err != nil {
					printFail("History database", err.Error())
					failed++
				} else {
					printPass("History database", fmt.Sprintf("%s (%d runs)", cfg.History.DBPath, n))
					passed++
				}
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before using omnitool.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nomnitool should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed!\n")
			}
			return nil
		},
	}
}

// checkEngine runs a known two-step chain through the builtin executor.
func checkEngine(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	steps := []domain.ChainStep{
		{ToolID: "base64", Options: domain.Options{"action": "decode"}},
		{ToolID: "json_formatter", Options: domain.Options{"indent": 2}},
	}
	results := newEngine(cfg, nil).Run(ctx, "eyJhIjogMX0=", steps)
	if len(results) != len(steps) {
		return fmt.Errorf("run aborted: %s", results[len(results)-1].Error)
	}
	for i, r := range results {
		if r.Failed() {
			return fmt.Errorf("step %d: %s", i+1, r.Error)
		}
	}
	if want := "{\n  \"a\": 1\n}"; results[1].Output != want {
		return fmt.Errorf("unexpected output %q", results[1].Output)
	}
	return nil
}

func checkHistory(dbPath string) (int, error) {
	store, err := history.Open(dbPath, logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.Count(ctx)
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
