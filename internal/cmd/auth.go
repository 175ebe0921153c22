package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmgilman/oceanctl/internal/auth"
	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/prompt"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Log in to the analysis service",
	Long: `Log in to and out of the analysis service.

The session token is stored in the system keyring and sent with every
request.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store a session token",
	Example: `  # Log in interactively
  oceanctl auth login

  # Log in from a script
  echo "$PASSWORD" | oceanctl auth login --username analyst --password-stdin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		req, err := loginRequest(cmd)
		if err != nil {
			return err
		}

		user, err := app.Session.Login(cmd.Context(), req)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the stored session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}
		if err := app.Session.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored login state",
	Long: `Show the stored login state without contacting the service. Use
"oceanctl auth whoami" to check the token against the service.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		st, err := app.Session.Status()
		if err != nil {
			return err
		}

		return render(cmd, st, func(w io.Writer) error {
			switch {
			case !st.LoggedIn:
				_, err = fmt.Fprintln(w, "Not logged in")
			case st.Expired:
				_, err = fmt.Fprintf(w, "Logged in as %s, token expired at %s\n", orDash(st.Username), formatTimePtr(st.ExpiresAt))
			case st.ExpiresAt != nil:
				_, err = fmt.Fprintf(w, "Logged in as %s until %s\n", orDash(st.Username), formatTimePtr(st.ExpiresAt))
			default:
				_, err = fmt.Fprintf(w, "Logged in as %s\n", orDash(st.Username))
			}
			return err
		})
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the account of the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		h := app.Session.CurrentUser()
		defer h.Release()

		user, err := h.Wait(cmd.Context())
		if errors.Is(err, auth.ErrNotLoggedIn) {
			return fmt.Errorf("%w: run \"oceanctl auth login\"", err)
		}
		if err != nil {
			return err
		}

		return render(cmd, user, func(w io.Writer) error {
			for _, l := range [][]any{
				{"Username:", user.Username},
				{"Name:", orDash(user.FullName)},
				{"Email:", orDash(user.Email)},
				{"Role:", user.Role},
			} {
				if err := row(w, l...); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

// loginRequest reads credentials from flags, stdin or prompts.
func loginRequest(cmd *cobra.Command) (model.LoginRequest, error) {
	username, _ := cmd.Flags().GetString("username")
	passwordStdin, _ := cmd.Flags().GetBool("password-stdin")

	if passwordStdin && username == "" {
		return model.LoginRequest{}, errors.New("--password-stdin requires --username")
	}

	if username == "" {
		v, err := prompter.Input("Username", "", nil)
		if err != nil {
			return model.LoginRequest{}, loginPromptError(err)
		}
		username = v
	}

	var (
		password string
		err      error
	)
	if passwordStdin {
		password, err = readSecret(cmd.InOrStdin())
	} else {
		password, err = prompter.Secret("Password")
	}
	if err != nil {
		return model.LoginRequest{}, loginPromptError(err)
	}

	return model.LoginRequest{Username: username, Password: password}, nil
}

func loginPromptError(err error) error {
	if errors.Is(err, prompt.ErrNotInteractive) {
		return fmt.Errorf("%w: pass --username and --password-stdin", err)
	}
	return fmt.Errorf("read credentials: %w", err)
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd, authWhoamiCmd)

	authLoginCmd.Flags().StringP("username", "u", "", "account username")
	authLoginCmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	addOutputFlag(authStatusCmd)
	addOutputFlag(authWhoamiCmd)
}
