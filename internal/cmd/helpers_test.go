package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/config"
	"github.com/jmgilman/oceanctl/internal/jobs"
	jobmocks "github.com/jmgilman/oceanctl/internal/jobs/mocks"
	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/prompt"
	"github.com/jmgilman/oceanctl/internal/prompt/mocks"
)

func usePrompter(t *testing.T, p prompt.Prompter) {
	t.Helper()
	old := prompter
	prompter = p
	t.Cleanup(func() { prompter = old })
}

func TestFormatList(t *testing.T) {
	tests := []struct {
		items []string
		want  string
	}{
		{nil, ""},
		{[]string{"a"}, "a"},
		{[]string{"a", "b"}, "a and b"},
		{[]string{"a", "b", "c"}, "a, b, and c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatList(tt.items))
	}
}

func TestReadSecret(t *testing.T) {
	t.Run("first line without newline", func(t *testing.T) {
		got, err := readSecret(strings.NewReader("s3cret\r\nignored\n"))
		require.NoError(t, err)
		assert.Equal(t, "s3cret", got)
	})

	t.Run("input without newline", func(t *testing.T) {
		got, err := readSecret(strings.NewReader("s3cret"))
		require.NoError(t, err)
		assert.Equal(t, "s3cret", got)
	})
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
	assert.Equal(t, "-", formatTime(time.Time{}))
	assert.Equal(t, "-", formatTimePtr(nil))

	assert.Equal(t, "-", formatValue(nil))
	assert.Equal(t, "text", formatValue("text"))
	assert.Equal(t, "0.5", formatValue(0.5))
	assert.Equal(t, `{"a":[1,2]}`, formatValue(map[string]any{"a": []any{1, 2}}))

	assert.Equal(t, []string{"a", "b", "c"}, sortedKeys(map[string]any{"c": 1, "a": 2, "b": 3}))
}

func TestResolveServer(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "test"}
		c.Flags().String("server", "", "")
		return c
	}
	app := &App{Config: &config.Config{}}

	t.Run("flag wins", func(t *testing.T) {
		c := newCmd()
		require.NoError(t, c.Flags().Set("server", "ncei"))
		app.Config.Catalog.DefaultServer = "other"

		id, err := resolveServer(c, app)
		require.NoError(t, err)
		assert.Equal(t, "ncei", id)
	})

	t.Run("falls back to the default", func(t *testing.T) {
		app.Config.Catalog.DefaultServer = "other"
		id, err := resolveServer(newCmd(), app)
		require.NoError(t, err)
		assert.Equal(t, "other", id)
	})

	t.Run("no server", func(t *testing.T) {
		app.Config.Catalog.DefaultServer = ""
		_, err := resolveServer(newCmd(), app)
		assert.ErrorIs(t, err, ErrNoServer)
	})
}

func TestSubmitParams(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		c := &cobra.Command{Use: "submit"}
		c.Flags().String("dataset", "", "")
		c.Flags().String("name", "", "")
		c.Flags().StringArrayP("param", "p", nil, "")
		require.NoError(t, c.Flags().Parse(args))
		return c
	}

	t.Run("collects flags", func(t *testing.T) {
		got, err := submitParams(newCmd("--dataset", "ds-1", "--name", "tc", "-p", "minGradient=0.5", "-p", "note=a=b"))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"datasetId":   "ds-1",
			"name":        "tc",
			"minGradient": "0.5",
			"note":        "a=b",
		}, got)
	})

	t.Run("rejects pairs without a key", func(t *testing.T) {
		_, err := submitParams(newCmd("-p", "=1"))
		assert.ErrorContains(t, err, "expected key=value")

		_, err = submitParams(newCmd("-p", "minGradient"))
		assert.ErrorContains(t, err, "expected key=value")
	})
}

func TestAskIfEmpty(t *testing.T) {
	t.Run("keeps a given value", func(t *testing.T) {
		m := &mocks.PrompterMock{}
		usePrompter(t, m)

		v := "given"
		require.NoError(t, askIfEmpty(&v, "Server name", "", nil))
		assert.Equal(t, "given", v)
		assert.Empty(t, m.InputCalls())
	})

	t.Run("prompts for an empty value", func(t *testing.T) {
		m := &mocks.PrompterMock{
			InputFunc: func(string, string, func(string) error) (string, error) { return "typed", nil },
		}
		usePrompter(t, m)

		var v string
		require.NoError(t, askIfEmpty(&v, "Server name", "", nil))
		assert.Equal(t, "typed", v)
	})

	t.Run("leaves the value empty without a terminal", func(t *testing.T) {
		usePrompter(t, &mocks.PrompterMock{
			InputFunc: func(string, string, func(string) error) (string, error) { return "", prompt.ErrNotInteractive },
		})

		var v string
		require.NoError(t, askIfEmpty(&v, "Server name", "", nil))
		assert.Empty(t, v)
	})

	t.Run("cancellation is returned", func(t *testing.T) {
		usePrompter(t, &mocks.PrompterMock{
			InputFunc: func(string, string, func(string) error) (string, error) { return "", prompt.ErrCanceled },
		})

		var v string
		err := askIfEmpty(&v, "Server name", "", nil)
		assert.ErrorIs(t, err, prompt.ErrCanceled)
		assert.ErrorContains(t, err, "read server name")
	})
}

func TestLoginRequest(t *testing.T) {
	newCmd := func(stdin string, args ...string) *cobra.Command {
		c := &cobra.Command{Use: "login"}
		c.Flags().StringP("username", "u", "", "")
		c.Flags().Bool("password-stdin", false, "")
		c.SetIn(strings.NewReader(stdin))
		require.NoError(t, c.Flags().Parse(args))
		return c
	}

	t.Run("password from stdin", func(t *testing.T) {
		usePrompter(t, &mocks.PrompterMock{})

		req, err := loginRequest(newCmd("secret\n", "-u", "analyst", "--password-stdin"))
		require.NoError(t, err)
		assert.Equal(t, model.LoginRequest{Username: "analyst", Password: "secret"}, req)
	})

	t.Run("stdin requires a username", func(t *testing.T) {
		_, err := loginRequest(newCmd("secret\n", "--password-stdin"))
		assert.ErrorContains(t, err, "requires --username")
	})

	t.Run("prompts for missing values", func(t *testing.T) {
		m := &mocks.PrompterMock{
			InputFunc:  func(string, string, func(string) error) (string, error) { return "analyst", nil },
			SecretFunc: func(string) (string, error) { return "secret", nil },
		}
		usePrompter(t, m)

		req, err := loginRequest(newCmd(""))
		require.NoError(t, err)
		assert.Equal(t, model.LoginRequest{Username: "analyst", Password: "secret"}, req)
		assert.Len(t, m.SecretCalls(), 1)
	})

	t.Run("no terminal suggests flags", func(t *testing.T) {
		usePrompter(t, &mocks.PrompterMock{
			InputFunc: func(string, string, func(string) error) (string, error) { return "", prompt.ErrNotInteractive },
		})

		_, err := loginRequest(newCmd(""))
		assert.ErrorIs(t, err, prompt.ErrNotInteractive)
		assert.ErrorContains(t, err, "--password-stdin")
	})
}

func TestPollJob(t *testing.T) {
	newTracker := func(t *testing.T, fn func(ctx context.Context, id string) (*model.Job, error)) *jobs.Tracker {
		t.Helper()
		store := cache.New()
		t.Cleanup(store.Close)
		return jobs.New(store, &jobmocks.ServiceMock{JobFunc: fn})
	}

	t.Run("stops at a terminal status", func(t *testing.T) {
		var reads atomic.Int32
		statuses := []model.JobStatus{model.JobPending, model.JobRunning, model.JobCompleted}
		tr := newTracker(t, func(_ context.Context, id string) (*model.Job, error) {
			n := int(reads.Add(1)) - 1
			return &model.Job{ID: id, Status: statuses[min(n, len(statuses)-1)]}, nil
		})

		var seen []model.JobStatus
		job, err := pollJob(context.Background(), tr, "j1", time.Millisecond, func(j model.Job) {
			seen = append(seen, j.Status)
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobCompleted, job.Status)
		assert.Equal(t, model.JobCompleted, seen[len(seen)-1])
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		tr := newTracker(t, func(_ context.Context, id string) (*model.Job, error) {
			return &model.Job{ID: id, Status: model.JobRunning}, nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := pollJob(ctx, tr, "j1", 5*time.Millisecond, func(model.Job) {})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("fetch errors are returned", func(t *testing.T) {
		tr := newTracker(t, func(context.Context, string) (*model.Job, error) {
			return nil, errors.New("connection refused")
		})

		_, err := pollJob(context.Background(), tr, "j1", time.Millisecond, func(model.Job) {})
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "oceanctl dev (commit none, built unknown)\n", out.String())
}
