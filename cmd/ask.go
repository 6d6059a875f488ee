package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chatdock/chatdock/internal/observability"
	"github.com/chatdock/chatdock/internal/quickask"
)

var (
	askPlatform string
	askTemplate string
)

var askCmd = &cobra.Command{
	Use:   "ask <text>...",
	Short: "Send one prompt and print the extracted answer.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := newEngine(ctx, cfg, observability.GetLogger())
		if err != nil {
			return err
		}
		defer eng.Close(context.Background())

		answer, err := eng.ask.Ask(ctx, quickask.Request{
			Platform: askPlatform,
			Template: askTemplate,
			Text:     strings.Join(args, " "),
		})
		if err != nil {
			return err
		}
		printAnswer(answer)
		if answer.Result != nil && !answer.Result.Success {
			return fmt.Errorf("execution failed")
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askPlatform, "platform", "p", "",
		"platform id (default from quickask.default_platform)")
	askCmd.Flags().StringVarP(&askTemplate, "template", "t", "",
		"template name (default \"ask\")")
	rootCmd.AddCommand(askCmd)
}
