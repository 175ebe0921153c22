package exec_test

import (
	"bytes"
	"context"
	"errors"
	osexec "os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/oceanctl/internal/exec"
	"github.com/jmgilman/oceanctl/internal/exec/mocks"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestRunner_Run(t *testing.T) {
	r := exec.New()

	t.Run("attaches streams", func(t *testing.T) {
		var out, errOut bytes.Buffer
		err := r.Run(context.Background(), "sh", []string{"-c", "cat; echo oops >&2"}, exec.Streams{
			In:  strings.NewReader("input"),
			Out: &out,
			Err: &errOut,
		})

		require.NoError(t, err)
		assert.Equal(t, "input", out.String())
		assert.Equal(t, "oops\n", errOut.String())
	})

	t.Run("non-zero exit", func(t *testing.T) {
		err := r.Run(context.Background(), "sh", []string{"-c", "exit 3"}, exec.Streams{})

		var exitErr *osexec.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 3, exitErr.ExitCode())
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := r.Run(ctx, "sleep", []string{"10"}, exec.Streams{})
		require.Error(t, err)
	})
}

func TestRunner_LookPath(t *testing.T) {
	r := exec.New()

	path, err := r.LookPath("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	_, err = r.LookPath("nonexistent_command_12345")
	var execErr *osexec.Error
	assert.ErrorAs(t, err, &execErr)
}

func TestEditor(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    []string
		wantErr error
	}{
		{name: "editor", vars: map[string]string{"EDITOR": "vim"}, want: []string{"vim"}},
		{name: "visual wins", vars: map[string]string{"VISUAL": "code --wait", "EDITOR": "vim"}, want: []string{"code", "--wait"}},
		{name: "blank visual is skipped", vars: map[string]string{"VISUAL": "  ", "EDITOR": "nano"}, want: []string{"nano"}},
		{name: "none", vars: map[string]string{}, wantErr: exec.ErrNoEditor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := exec.Editor(env(tt.vars))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEdit(t *testing.T) {
	t.Run("runs the editor on the file", func(t *testing.T) {
		r := &mocks.RunnerMock{
			LookPathFunc: func(name string) (string, error) { return "/usr/bin/" + name, nil },
			RunFunc:      func(context.Context, string, []string, exec.Streams) error { return nil },
		}

		err := exec.Edit(context.Background(), r, env(map[string]string{"EDITOR": "code --wait"}), "/tmp/config.yaml", exec.Streams{})
		require.NoError(t, err)

		require.Len(t, r.RunCalls(), 1)
		assert.Equal(t, "/usr/bin/code", r.RunCalls()[0].Name)
		assert.Equal(t, []string{"--wait", "/tmp/config.yaml"}, r.RunCalls()[0].Args)
	})

	t.Run("missing editor binary", func(t *testing.T) {
		r := &mocks.RunnerMock{
			LookPathFunc: func(string) (string, error) { return "", errors.New("not found") },
		}

		err := exec.Edit(context.Background(), r, env(map[string]string{"EDITOR": "vim"}), "f", exec.Streams{})
		assert.ErrorContains(t, err, `find editor "vim"`)
		assert.Empty(t, r.RunCalls())
	})

	t.Run("no editor configured", func(t *testing.T) {
		err := exec.Edit(context.Background(), &mocks.RunnerMock{}, env(nil), "f", exec.Streams{})
		assert.ErrorIs(t, err, exec.ErrNoEditor)
	})

	t.Run("editor failure is wrapped", func(t *testing.T) {
		r := &mocks.RunnerMock{
			LookPathFunc: func(name string) (string, error) { return name, nil },
			RunFunc:      func(context.Context, string, []string, exec.Streams) error { return errors.New("exit status 1") },
		}

		err := exec.Edit(context.Background(), r, env(map[string]string{"EDITOR": "vim"}), "f", exec.Streams{})
		assert.ErrorContains(t, err, "run editor: exit status 1")
	})
}
