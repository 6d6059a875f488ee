package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/internal/config"
	"github.com/chatdock/chatdock/internal/observability"
)

var (
	cfgFile string
	// cfg is populated by PersistentPreRunE and shared by every subcommand.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chatdock",
	Short: "Chatdock drives embedded chat sites through injected automation templates.",
	Long: `Chatdock embeds third-party chat platforms in isolated browsing contexts,
injects generated scripts to fill prompts and click controls, and extracts
the rendered answers back out.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if err := initializeViper(v); err != nil {
			return err
		}
		built, err := config.New(v)
		if err != nil {
			observability.InitializeLogger(config.LoggingConfig{
				Level: "info", Format: "console", ServiceName: "chatdock",
			})
			return err
		}
		cfg = built
		observability.InitializeLogger(cfg.Logging)
		observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command. It is the only entry point main uses.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command failed.", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default is ~/.chatdock/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeViper layers defaults, the config file and CHATDOCK_* environment
// variables, lowest precedence first.
func initializeViper(v *viper.Viper) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if dir, err := config.DefaultConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CHATDOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
