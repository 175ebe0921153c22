// Package spinner provides a terminal spinner with a single status line,
// updated in place while a long-running operation such as a job watch runs.
package spinner

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Spinner displays a spinner next to the latest status.
type Spinner struct {
	program *tea.Program
	lineCh  chan string
	done    chan struct{}
	once    sync.Once
	output  io.Writer
	ready   chan struct{}
}

// New creates a new Spinner that writes to the given output (typically os.Stderr).
// If output is nil, os.Stderr is used.
func New(output io.Writer) *Spinner {
	if output == nil {
		output = os.Stderr
	}

	return &Spinner{
		lineCh: make(chan string, 16),
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
		output: output,
	}
}

// Enabled reports whether output is a terminal the spinner can draw on.
func Enabled(output io.Writer) bool {
	f, ok := output.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Update replaces the status shown next to the spinner. Updates sent faster
// than they are drawn are dropped in favor of later ones.
func (s *Spinner) Update(status string) {
	select {
	case s.lineCh <- status:
	case <-s.done:
	default:
	}
}

// Start begins the spinner display. This blocks until Stop() is called.
// Call this in a goroutine if you need to do work while the spinner runs.
func (s *Spinner) Start() error {
	width := 80
	if f, ok := s.output.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	s.program = tea.NewProgram(newModel(s.lineCh, s.done, width),
		tea.WithOutput(s.output),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	close(s.ready)

	_, err := s.program.Run()
	return err
}

// Stop stops the spinner and clears its line. It is safe to call more than
// once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		select {
		case <-s.ready:
			s.program.Quit()
		default:
		}
	})
}

// model is the bubbletea model for the spinner.
type model struct {
	spinner    spinner.Model
	statusLine string
	width      int
	lineCh     <-chan string
	done       <-chan struct{}
	quitting   bool
}

// lineMsg is sent when a new status arrives.
type lineMsg string

func newModel(lineCh <-chan string, done <-chan struct{}, width int) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return model{
		spinner: s,
		width:   width,
		lineCh:  lineCh,
		done:    done,
	}
}

// Init implements tea.Model.
//
//nolint:gocritic // hugeParam: tea.Model interface requires value receiver
func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForLine(m.lineCh, m.done),
	)
}

// Update implements tea.Model.
//
//nolint:gocritic // hugeParam: tea.Model interface requires value receiver
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case lineMsg:
		m.statusLine = string(msg)
		return m, waitForLine(m.lineCh, m.done)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.QuitMsg:
		m.quitting = true
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
//
//nolint:gocritic // hugeParam: tea.Model interface requires value receiver
func (m model) View() string {
	if m.quitting {
		return ""
	}

	// Spinner glyph plus one space.
	maxLineWidth := m.width - 3
	if maxLineWidth < 10 {
		maxLineWidth = 10
	}

	return m.spinner.View() + " " + truncate(m.statusLine, maxLineWidth)
}

func waitForLine(lineCh <-chan string, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case line := <-lineCh:
			return lineMsg(line)
		case <-done:
			return tea.Quit()
		}
	}
}

// truncate shortens a string to fit within maxWidth.
// If truncated, it adds "..." at the end.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return ""
	}
	if len(s) <= maxWidth {
		return s
	}
	return s[:maxWidth-3] + "..."
}
