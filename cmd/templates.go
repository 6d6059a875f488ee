package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/internal/observability"
	"github.com/chatdock/chatdock/internal/registry"
	"github.com/chatdock/chatdock/internal/script"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and validate automation templates.",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered templates.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry(cfg, observability.GetLogger())
		if err != nil {
			return err
		}
		templates := reg.All()
		if len(templates) == 0 {
			fmt.Println("no templates registered")
			return nil
		}
		for _, tmpl := range templates {
			fmt.Printf("%-10s %-8s %2d actions  %s\n",
				tmpl.PlatformID, tmpl.Name, len(tmpl.Actions), tmpl.Description)
		}
		return nil
	},
}

var templatesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a templates file without loading it into the engine.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		reg := registry.New(logger, script.ValidateJS)
		n, err := registry.LoadFile(reg, args[0])
		if err != nil {
			return err
		}
		logger.Info("Templates file is valid.", zap.String("file", args[0]), zap.Int("templates", n))
		fmt.Printf("ok: %d template(s)\n", n)
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesListCmd, templatesValidateCmd)
	rootCmd.AddCommand(templatesCmd)
}
