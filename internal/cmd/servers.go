package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmgilman/oceanctl/internal/keychain"
	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/prompt"
	"github.com/jmgilman/oceanctl/internal/validate"
)

var serversCmd = &cobra.Command{
	Use:     "servers",
	Aliases: []string{"server"},
	Short:   "Manage THREDDS data servers",
	Long: `Manage the THREDDS data servers registered with the analysis service.

Server passwords are sent to the service when a server is added and are also
kept in the local keyring so catalogs can be browsed directly.`,
}

var serversListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List configured servers",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		h := app.Catalog(false).ListServers()
		defer h.Release()

		servers, err := h.Wait(cmd.Context())
		if err != nil {
			return err
		}

		return render(cmd, servers, func(w io.Writer) error {
			if len(servers) == 0 {
				_, err := fmt.Fprintln(w, "No servers configured")
				return err
			}
			if err := row(w, "ID", "NAME", "URL", "USER"); err != nil {
				return err
			}
			for _, s := range servers {
				user := "-"
				if s.Credentials != nil {
					user = orDash(s.Credentials.Username)
				}
				if err := row(w, s.ID, s.Name, s.BaseURL, user); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var serversAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a server",
	Long: `Register a THREDDS server with the analysis service.

Missing values are prompted for when running in a terminal.`,
	Example: `  # Add the NOAA NCEI server
  oceanctl servers add --name "NOAA NCEI" --url https://www.ncei.noaa.gov/thredds/

  # Add a server that requires a login
  echo "$PASSWORD" | oceanctl servers add --name internal --url https://thredds.example.org/thredds/ --username analyst --password-stdin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		cfg, password, err := serverConfigFromFlags(cmd, true)
		if err != nil {
			return err
		}

		srv, err := app.Catalog(false).AddServer(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if err := storeServerPassword(app, srv.ID, password); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Added server %s (%s)\n", srv.ID, srv.Name)
		return nil
	},
}

var serversReplaceCmd = &cobra.Command{
	Use:   "replace <id>",
	Short: "Replace a server's configuration",
	Long: `Replace the full configuration of a server. Values not given are cleared,
so pass every field the server should keep.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		cfg, password, err := serverConfigFromFlags(cmd, false)
		if err != nil {
			return err
		}

		srv, err := app.Catalog(false).ReplaceServer(cmd.Context(), args[0], cfg)
		if err != nil {
			return err
		}
		if cfg.Credentials == nil {
			if err := app.Keys.Delete(keychain.ServerAccount(srv.ID)); err != nil {
				return err
			}
		} else if err := storeServerPassword(app, srv.ID, password); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Replaced server %s (%s)\n", srv.ID, srv.Name)
		return nil
	},
}

var serversRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a server",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}
		id := args[0]

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := prompter.Confirm("Remove server "+id+"?", "Cached catalogs of this server are discarded.")
			if err != nil {
				return fmt.Errorf("%w (pass --yes to skip confirmation)", err)
			}
			if !ok {
				return prompt.ErrCanceled
			}
		}

		if err := app.Catalog(false).RemoveServer(cmd.Context(), id); err != nil {
			return err
		}
		if err := app.Keys.Delete(keychain.ServerAccount(id)); err != nil {
			app.Logger.Warn("delete server password", "id", id, "error", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed server %s\n", id)
		return nil
	},
}

// serverConfigFromFlags builds a ServerConfig from flags, prompting for
// missing required values when ask is set and a terminal is attached.
func serverConfigFromFlags(cmd *cobra.Command, ask bool) (model.ServerConfig, string, error) {
	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	url, _ := flags.GetString("url")
	description, _ := flags.GetString("description")
	username, _ := flags.GetString("username")
	passwordStdin, _ := flags.GetBool("password-stdin")

	if ask {
		if err := askIfEmpty(&name, "Server name", "NOAA NCEI", nil); err != nil {
			return model.ServerConfig{}, "", err
		}
		check := func(s string) error {
			if !validate.IsAbsoluteURL(s) {
				return errors.New("enter an absolute http(s) URL")
			}
			return nil
		}
		if err := askIfEmpty(&url, "Base URL", "https://www.ncei.noaa.gov/thredds/", check); err != nil {
			return model.ServerConfig{}, "", err
		}
	}

	cfg := model.ServerConfig{Name: name, BaseURL: url, Description: description}

	var (
		password string
		err      error
	)
	if username != "" {
		switch {
		case passwordStdin:
			password, err = readSecret(cmd.InOrStdin())
		default:
			password, err = prompter.Secret("Password for " + username)
		}
		if err != nil {
			return model.ServerConfig{}, "", fmt.Errorf("read password: %w", err)
		}
		cfg.Credentials = &model.Credentials{Username: username, Password: password}
	}
	return cfg, password, nil
}

// askIfEmpty prompts for *value when it is empty. Without a terminal the
// value stays empty and validation reports it.
func askIfEmpty(value *string, title, placeholder string, check func(string) error) error {
	if *value != "" {
		return nil
	}
	v, err := prompter.Input(title, placeholder, check)
	if errors.Is(err, prompt.ErrNotInteractive) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", strings.ToLower(title), err)
	}
	*value = v
	return nil
}

func storeServerPassword(app *App, id, password string) error {
	if password == "" {
		return nil
	}
	if err := app.Keys.Set(keychain.ServerAccount(id), password); err != nil {
		return fmt.Errorf("store server password: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serversCmd)
	serversCmd.AddCommand(serversListCmd, serversAddCmd, serversReplaceCmd, serversRemoveCmd)

	addOutputFlag(serversListCmd)

	for _, c := range []*cobra.Command{serversAddCmd, serversReplaceCmd} {
		c.Flags().String("name", "", "display name")
		c.Flags().String("url", "", "base URL of the THREDDS server")
		c.Flags().String("description", "", "free-form description")
		c.Flags().String("username", "", "username for servers that require a login")
		c.Flags().Bool("password-stdin", false, "read the password from stdin")
	}

	serversRemoveCmd.Flags().BoolP("yes", "y", false, "skip confirmation")
}
