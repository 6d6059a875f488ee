package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"run", "ask", "templates", "proxy", "history", "logs", "version"}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, have[name], "subcommand %q must be registered", name)
	}
}

func TestInitializeViperPrecedence(t *testing.T) {
	t.Run("defaults apply", func(t *testing.T) {
		v := viper.New()
		require.NoError(t, initializeViper(v))
		assert.Equal(t, "info", v.GetString("logging.level"))
		assert.Equal(t, "350ms", v.GetString("quickask.throttle"))
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("CHATDOCK_LOGGING_LEVEL", "debug")
		v := viper.New()
		require.NoError(t, initializeViper(v))
		assert.Equal(t, "debug", v.GetString("logging.level"))
	})

	t.Run("config file overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "chatdock.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644))

		old := cfgFile
		cfgFile = path
		t.Cleanup(func() { cfgFile = old })

		v := viper.New()
		require.NoError(t, initializeViper(v))
		assert.Equal(t, "warn", v.GetString("logging.level"))
	})
}

func TestTemplatesValidateCommand(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file passes", func(t *testing.T) {
		path := filepath.Join(dir, "valid.json")
		payload := `[{
			"platformId": "example",
			"name": "send",
			"urlPattern": "^https://chat\\.example\\.com/.*",
			"actions": [
				{"kind": "fill", "selector": {"selector": "#in"}, "content": "{{text}}"},
				{"kind": "click", "selector": {"selector": "#go"}}
			]
		}]`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
		require.NoError(t, templatesValidateCmd.RunE(templatesValidateCmd, []string{path}))
	})

	t.Run("broken action kind is rejected", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		payload := `[{
			"platformId": "example",
			"name": "bad",
			"urlPattern": ".*",
			"actions": [{"kind": "teleport"}]
		}]`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
		err := templatesValidateCmd.RunE(templatesValidateCmd, []string{path})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown action kind")
	})

	t.Run("broken javascript is rejected", func(t *testing.T) {
		path := filepath.Join(dir, "badjs.json")
		payload := `[{
			"platformId": "example",
			"name": "badjs",
			"urlPattern": ".*",
			"actions": [{"kind": "extract", "extractCode": "() => {"}]
		}]`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
		err := templatesValidateCmd.RunE(templatesValidateCmd, []string{path})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "syntax error")
	})

	t.Run("missing file errors", func(t *testing.T) {
		err := templatesValidateCmd.RunE(templatesValidateCmd, []string{filepath.Join(dir, "nope.json")})
		require.Error(t, err)
	})
}
