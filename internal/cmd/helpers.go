package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmgilman/oceanctl/internal/prompt"
)

// ErrNoServer is returned when a catalog command has no server to work on.
var ErrNoServer = errors.New("no server given: pass --server or set catalog.default_server")

// prompter is replaced in tests.
var prompter prompt.Prompter = prompt.New()

func requireApp(ctx context.Context) (*App, error) {
	app := AppFromContext(ctx)
	if app == nil {
		return nil, errors.New("application not initialized")
	}
	return app, nil
}

// resolveServer returns the --server flag, falling back to the configured
// default.
func resolveServer(cmd *cobra.Command, app *App) (string, error) {
	id, err := cmd.Flags().GetString("server")
	if err != nil {
		return "", fmt.Errorf("get server flag: %w", err)
	}
	if id == "" {
		id = app.Config.Catalog.DefaultServer
	}
	if id == "" {
		return "", ErrNoServer
	}
	return id, nil
}

// readSecret reads one line from r, for --password-stdin.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// formatTime renders t for tables, or "-" when t is unset.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatList joins strings with commas and "and" before the last item.
func formatList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}
