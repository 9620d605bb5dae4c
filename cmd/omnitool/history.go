package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"omnitool/internal/config"
	"omnitool/internal/history"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded chain runs (requires history.enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return nil
			}
			defer store.Close()

			runs, err := store.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			out := cmd.OutOrStdout()
			for _, r := range runs {
				tools := make([]string, len(r.Steps))
				for i, s := range r.Steps {
					tools[i] = s.ToolID
				}
				status := "ok"
				switch {
				case r.TransportFailed:
					status = "aborted"
				case r.FailedStep >= 0:
					status = fmt.Sprintf("error at step %d", r.FailedStep+1)
				}
				fmt.Fprintf(out, "%s  %s  %-24s %-16s %q\n",
					shortID(r.ID), r.CreatedAt.Format("2006-01-02 15:04:05"),
					strings.Join(tools, " > "), status, truncateInput(r.Input, 40))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Print a recorded run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return nil
			}
			defer store.Close()

			run, err := findRun(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(run, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	var days int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				return nil
			}
			defer store.Close()

			if days <= 0 {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				days = cfg.History.RetentionDays
			}
			n, err := store.Prune(cmd.Context(), time.Now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d run(s) older than %d day(s).\n", n, days)
			return nil
		},
	}
	prune.Flags().IntVar(&days, "older-than-days", 0, "age cutoff in days (default: history.retentionDays)")
	cmd.AddCommand(prune)

	return cmd
}

// openHistory opens the history database. It returns nil, nil when history
// has never been enabled and no database exists yet.
func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dbPath := config.ExpandPath(cfg.History.DBPath)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if !cfg.History.Enabled {
			fmt.Println("History is disabled. Enable it with: omnitool config set history.enabled true")
		} else {
			fmt.Println("No runs recorded.")
		}
		return nil, nil
	}
	return history.Open(dbPath, logger)
}

// findRun resolves a full run ID or a unique prefix of one, as printed by history.
func findRun(ctx context.Context, store *history.Store, id string) (*history.Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	run, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}

	runs, err := store.Recent(ctx, 1000)
	if err != nil {
		return nil, err
	}
	var match *history.Run
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("run id %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return match, nil
}

func truncateInput(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
