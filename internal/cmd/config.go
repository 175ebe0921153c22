package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmgilman/oceanctl/internal/config"
	"github.com/jmgilman/oceanctl/internal/exec"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "View and modify configuration",
	Long: `View and modify oceanctl configuration.

With no arguments, displays all configuration.
With one argument, displays the value for the specified key.
With two arguments, sets the value for the specified key.`,
	Example: `  # Show all config
  oceanctl config

  # Show value for a specific key
  oceanctl config api.base_url

  # Set a value
  oceanctl config jobs.poll_interval 10s

  # List settable keys
  oceanctl config --keys

  # Open config file in editor
  oceanctl config --edit`,
	Args: cobra.RangeArgs(0, 2),
	// Config does not need the service clients.
	PersistentPreRunE: setupConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := LoaderFromContext(cmd.Context())
		if loader == nil {
			return fmt.Errorf("config loader not initialized")
		}
		out := cmd.OutOrStdout()

		if edit, _ := cmd.Flags().GetBool("edit"); edit {
			return runEdit(cmd, loader)
		}
		if keys, _ := cmd.Flags().GetBool("keys"); keys {
			for _, k := range config.Keys() {
				fmt.Fprintln(out, k)
			}
			return nil
		}

		switch len(args) {
		case 0:
			return runShowAll(out, ConfigFromContext(cmd.Context()))
		case 1:
			return runShowKey(out, loader, args[0])
		case 2:
			return runSetKey(out, loader, args[0], args[1])
		}
		return nil
	},
}

// editor is replaced in tests.
var editor = exec.New()

func runEdit(cmd *cobra.Command, loader *config.Loader) error {
	return exec.Edit(cmd.Context(), editor, os.Getenv, loader.Path(), exec.Streams{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
		Err: cmd.ErrOrStderr(),
	})
}

func runShowAll(out io.Writer, cfg *config.Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = out.Write(b)
	return err
}

func runShowKey(out io.Writer, loader *config.Loader, key string) error {
	value, err := loader.Get(key)
	if err != nil {
		return err
	}

	switch v := value.(type) {
	case nil:
		_, err = fmt.Fprintln(out)
	case string:
		_, err = fmt.Fprintln(out, v)
	case map[string]any, []any:
		var b []byte
		b, err = yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal value: %w", err)
		}
		_, err = out.Write(b)
	default:
		_, err = fmt.Fprintln(out, value)
	}
	return err
}

func runSetKey(out io.Writer, loader *config.Loader, key, value string) error {
	if err := loader.Set(key, value); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "Set %s = %s\n", key, value)
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().Bool("edit", false, "open config file in $VISUAL or $EDITOR")
	configCmd.Flags().Bool("keys", false, "list settable keys")
}
