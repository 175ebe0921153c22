// Package prompt provides user interaction primitives using charmbracelet/huh.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// Sentinel errors for prompts.
var (
	ErrCanceled       = errors.New("canceled by user")
	ErrNotInteractive = errors.New("prompt requires an interactive terminal")
)

// Prompter abstracts user interaction for testability.
//
//go:generate go run github.com/matryer/moq@latest -pkg mocks -out mocks/prompter.go . Prompter
type Prompter interface {
	// Print outputs text to the user.
	Print(message string)

	// Confirm prompts for yes/no confirmation.
	Confirm(title, description string) (bool, error)

	// Input prompts for a line of text. check, when non-nil, rejects values
	// before the prompt is accepted.
	Input(title, placeholder string, check func(string) error) (string, error)

	// Secret prompts for secret input (no echo).
	Secret(prompt string) (string, error)

	// Choice prompts user to select from options, returns 0-based index.
	Choice(prompt string, options []string) (int, error)
}

// HuhPrompter implements Prompter using charmbracelet/huh for interactive forms.
type HuhPrompter struct {
	out io.Writer
	fd  int
}

// New creates a new HuhPrompter for interactive terminal prompts.
func New() *HuhPrompter {
	return &HuhPrompter{out: os.Stdout, fd: int(os.Stdin.Fd())}
}

// Interactive reports whether stdin is a terminal.
func (p *HuhPrompter) Interactive() bool {
	return term.IsTerminal(p.fd)
}

// Print outputs text to the user.
func (p *HuhPrompter) Print(message string) {
	fmt.Fprintln(p.out, message)
}

// Confirm prompts for yes/no confirmation.
func (p *HuhPrompter) Confirm(title, description string) (bool, error) {
	if !p.Interactive() {
		return false, ErrNotInteractive
	}

	var confirmed bool

	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed).
		Run()

	if err != nil {
		return false, wrap("confirm prompt", err)
	}

	return confirmed, nil
}

// Input prompts for a line of text.
func (p *HuhPrompter) Input(title, placeholder string, check func(string) error) (string, error) {
	if !p.Interactive() {
		return "", ErrNotInteractive
	}

	var value string

	input := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&value)
	if check != nil {
		input = input.Validate(func(s string) error { return check(strings.TrimSpace(s)) })
	}

	if err := input.Run(); err != nil {
		return "", wrap("input prompt", err)
	}

	return strings.TrimSpace(value), nil
}

// Secret prompts for secret input with masked display.
func (p *HuhPrompter) Secret(prompt string) (string, error) {
	if !p.Interactive() {
		return "", ErrNotInteractive
	}

	var value string

	err := huh.NewInput().
		Title(prompt).
		EchoMode(huh.EchoModePassword).
		Value(&value).
		Run()

	if err != nil {
		return "", wrap("secret prompt", err)
	}

	return strings.TrimSpace(value), nil
}

// Choice prompts user to select from options and returns the 0-based index.
func (p *HuhPrompter) Choice(prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options provided")
	}
	if !p.Interactive() {
		return 0, ErrNotInteractive
	}

	huhOptions := make([]huh.Option[int], len(options))
	for i, opt := range options {
		huhOptions[i] = huh.NewOption(opt, i)
	}

	var selected int

	err := huh.NewSelect[int]().
		Title(prompt).
		Options(huhOptions...).
		Value(&selected).
		Run()

	if err != nil {
		return 0, wrap("choice prompt", err)
	}

	return selected, nil
}

func wrap(op string, err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrCanceled
	}
	return fmt.Errorf("%s: %w", op, err)
}
