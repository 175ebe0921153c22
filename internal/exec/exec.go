// Package exec runs external programs attached to the caller's streams,
// such as the user's editor.
package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ErrNoEditor is returned when neither $VISUAL nor $EDITOR is set.
var ErrNoEditor = errors.New("$EDITOR environment variable not set")

// Streams are the standard streams handed to a program.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Runner runs external programs.
//
//go:generate go run github.com/matryer/moq@latest -pkg mocks -out mocks/runner.go . Runner
type Runner interface {
	// Run runs name with args until it exits. A non-zero exit is returned
	// as an *os/exec.ExitError.
	Run(ctx context.Context, name string, args []string, s Streams) error

	// LookPath searches for an executable in PATH.
	LookPath(name string) (string, error)
}

type runner struct{}

// New returns a Runner backed by os/exec.
func New() Runner {
	return runner{}
}

func (runner) Run(ctx context.Context, name string, args []string, s Streams) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // runs the user's chosen program
	cmd.Stdin = s.In
	cmd.Stdout = s.Out
	cmd.Stderr = s.Err
	return cmd.Run()
}

func (runner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Editor returns the command line of the user's editor, preferring $VISUAL
// over $EDITOR. Values such as "code --wait" are split into words.
func Editor(getenv func(string) string) ([]string, error) {
	for _, key := range []string{"VISUAL", "EDITOR"} {
		if fields := strings.Fields(getenv(key)); len(fields) > 0 {
			return fields, nil
		}
	}
	return nil, ErrNoEditor
}

// Edit opens path in the user's editor and waits for it to exit.
func Edit(ctx context.Context, r Runner, getenv func(string) string, path string, s Streams) error {
	editor, err := Editor(getenv)
	if err != nil {
		return err
	}

	bin, err := r.LookPath(editor[0])
	if err != nil {
		return fmt.Errorf("find editor %q: %w", editor[0], err)
	}

	args := append(editor[1:len(editor):len(editor)], path)
	if err := r.Run(ctx, bin, args, s); err != nil {
		return fmt.Errorf("run editor: %w", err)
	}
	return nil
}
