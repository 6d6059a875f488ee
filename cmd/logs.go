package cmd

import (
	"fmt"
	"os"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the engine's log file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Logging.File
		if path == "" {
			return fmt.Errorf("no log file configured; set logging.file")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("log file %s is not readable: %w", path, err)
		}

		t, err := tail.TailFile(path, tail.Config{
			Follow:    logsFollow,
			ReOpen:    logsFollow,
			MustExist: true,
			Logger:    tail.DiscardingLogger,
		})
		if err != nil {
			return fmt.Errorf("failed to tail log file: %w", err)
		}
		defer func() {
			_ = t.Stop()
			t.Cleanup()
		}()

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case line, ok := <-t.Lines:
				if !ok {
					return nil
				}
				if line.Err != nil {
					return line.Err
				}
				fmt.Println(line.Text)
			}
		}
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow the log as it grows")
	rootCmd.AddCommand(logsCmd)
}
