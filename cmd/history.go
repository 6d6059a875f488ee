package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatdock/chatdock/internal/history"
	"github.com/chatdock/chatdock/internal/observability"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent template executions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.History.DSN == "" {
			return fmt.Errorf("history is disabled; set history.dsn to enable it")
		}
		ctx := cmd.Context()
		store, closer, err := history.Connect(ctx, cfg.History.DSN, observability.GetLogger())
		if err != nil {
			return err
		}
		defer closer()

		entries, err := store.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no executions recorded")
			return nil
		}
		for _, e := range entries {
			outcome := "ok"
			if !e.Success {
				outcome = e.ErrorKind
				if outcome == "" {
					outcome = "failed"
				}
			}
			fmt.Printf("%s  %-10s %-8s %-18s %4d actions  %6dms\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				e.PlatformID, e.TemplateName, outcome, e.ActionsExecuted, e.DurationMs)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum entries to list")
	rootCmd.AddCommand(historyCmd)
}
