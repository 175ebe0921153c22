package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmgilman/oceanctl/internal/jobs"
	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/spinner"
)

// ErrJobFailed is returned by watch when the job ends in failure.
var ErrJobFailed = errors.New("job failed")

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"job"},
	Short:   "Submit and track diagnostic jobs",
	Long: `Submit diagnostic computations to the analysis service and track them.

Jobs submitted from this machine are recorded in a local journal so their
progress is remembered between runs.`,
}

var jobsTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List diagnostic types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		type entry struct {
			Type     model.DiagnosticType `json:"type" yaml:"type"`
			Endpoint string               `json:"endpoint" yaml:"endpoint"`
		}
		entries := make([]entry, 0, len(model.DiagnosticTypes))
		for _, t := range model.DiagnosticTypes {
			ep, err := jobs.Endpoint(t)
			if err != nil {
				return err
			}
			entries = append(entries, entry{Type: t, Endpoint: ep})
		}

		return render(cmd, entries, func(w io.Writer) error {
			if err := row(w, "TYPE", "ENDPOINT"); err != nil {
				return err
			}
			for _, e := range entries {
				if err := row(w, e.Type, e.Endpoint); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var jobsSchemaCmd = &cobra.Command{
	Use:   "schema <type>",
	Short: "Print the JSON Schema of a diagnostic's parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := model.ParseDiagnosticType(args[0])
		if err != nil {
			return err
		}
		s, err := jobs.Schema(t)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	},
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit <type>",
	Short: "Submit a diagnostic job",
	Long: `Submit a diagnostic job. Parameters are validated locally before anything
is sent; run "oceanctl jobs schema <type>" to see what a type accepts.`,
	Example: `  # Detect the thermocline of a dataset
  oceanctl jobs submit thermocline --dataset ds-1 \
    --param minGradient=0.05 --param smoothingWindow=5 --param detectionMethod=gradient

  # Name the job
  oceanctl jobs submit ocean_front --dataset ds-1 --name gulf-stream \
    --param variable=temperature --param threshold=0.5 --param minLength=50 --param method=gradient`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}
		t, err := model.ParseDiagnosticType(args[0])
		if err != nil {
			return err
		}

		params, err := submitParams(cmd)
		if err != nil {
			return err
		}

		id, err := app.Jobs.Submit(cmd.Context(), t, params)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var jobsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List jobs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			if _, err := app.Jobs.RefreshActive(cmd.Context()); err != nil {
				return err
			}
		}

		h := app.Jobs.ListJobs()
		defer h.Release()

		list, err := h.Wait(cmd.Context())
		if err != nil {
			return err
		}

		return render(cmd, list, func(w io.Writer) error {
			if len(list) == 0 {
				_, err := fmt.Fprintln(w, "No jobs found")
				return err
			}
			if err := row(w, "ID", "NAME", "TYPE", "STATUS", "DATASET", "CREATED"); err != nil {
				return err
			}
			for _, j := range list {
				if err := row(w, j.ID, j.Name, j.DiagnosticType, j.Status, orDash(j.DatasetID), formatTime(j.CreatedAt)); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the current state of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		job, err := app.Jobs.Refresh(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		return render(cmd, job, func(w io.Writer) error {
			return jobTable(w, job)
		})
	},
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Poll a job until it completes or fails",
	Long: `Poll a job until it completes or fails. The poll interval and timeout
default to jobs.poll_interval and jobs.poll_timeout.

With --metrics-addr, cache and job metrics are served in Prometheus format
while the job is watched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}
		id := args[0]

		interval := app.Config.Jobs.PollInterval
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}
		if interval <= 0 {
			return fmt.Errorf("poll interval must be positive, got %s", interval)
		}
		timeout := app.Config.Jobs.PollTimeout
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetDuration("timeout")
		}
		addr, _ := cmd.Flags().GetString("metrics-addr")
		if addr == "" {
			addr = app.Config.Metrics.Addr
		}

		ctx := cmd.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if addr != "" {
			stop := serveMetrics(app, addr)
			defer stop()
		}

		errOut := cmd.ErrOrStderr()
		var sp *spinner.Spinner
		if spinner.Enabled(errOut) {
			sp = spinner.New(errOut)
			if err := sp.Start(); err != nil {
				app.Logger.Debug("start spinner", "error", err)
				sp = nil
			} else {
				defer sp.Stop()
			}
		}

		job, err := pollJob(ctx, app.Jobs, id, interval, func(j model.Job) {
			if sp != nil {
				sp.Update(fmt.Sprintf("%s (%s) %s", j.Name, j.ID, j.Status))
			}
		})
		if sp != nil {
			sp.Stop()
		}
		if err != nil {
			return err
		}

		if err := render(cmd, job, func(w io.Writer) error { return jobTable(w, job) }); err != nil {
			return err
		}
		if job.Status == model.JobFailed {
			return fmt.Errorf("%w: %s", ErrJobFailed, orDash(job.ErrorMessage))
		}
		return nil
	},
}

var jobsResultCmd = &cobra.Command{
	Use:   "result <id>",
	Short: "Show the result of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		h := app.Jobs.Job(args[0])
		defer h.Release()

		job, err := h.Wait(cmd.Context())
		if err != nil {
			return err
		}
		if !jobs.CanViewResult(job) {
			return fmt.Errorf("job %s has no result: status is %s", job.ID, job.Status)
		}

		return render(cmd, job.Result, func(w io.Writer) error {
			for _, k := range sortedKeys(job.Result) {
				if err := row(w, k+":", formatValue(job.Result[k])); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var jobsForgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Drop a job from the local journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp(cmd.Context())
		if err != nil {
			return err
		}

		ok, err := app.Jobs.Forget(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", jobs.ErrUnknownJob, args[0])
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Forgot job %s\n", args[0])
		return nil
	},
}

// pollJob refreshes job id every interval until it reaches a terminal
// status or ctx ends. update is called with every observed state.
func pollJob(ctx context.Context, tracker *jobs.Tracker, id string, interval time.Duration, update func(model.Job)) (model.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := tracker.Refresh(ctx, id)
		if err != nil {
			return model.Job{}, err
		}
		update(job)
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, fmt.Errorf("watch job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// serveMetrics serves app metrics on addr until the returned func is
// called.
func serveMetrics(app *App, addr string) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Warn("serve metrics", "addr", addr, "error", err)
		}
	}()
	app.Logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// submitParams collects --dataset, --name and --param flags into the
// parameter map of a submission.
func submitParams(cmd *cobra.Command) (map[string]any, error) {
	pairs, _ := cmd.Flags().GetStringArray("param")
	params := make(map[string]any, len(pairs)+2)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", p)
		}
		params[k] = v
	}

	if dataset, _ := cmd.Flags().GetString("dataset"); dataset != "" {
		params["datasetId"] = dataset
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		params["name"] = name
	}
	return params, nil
}

func jobTable(w io.Writer, j model.Job) error {
	lines := [][]any{
		{"ID:", j.ID},
		{"Name:", j.Name},
		{"Type:", j.DiagnosticType},
		{"Status:", j.Status},
		{"Dataset:", orDash(j.DatasetID)},
		{"Created:", formatTime(j.CreatedAt)},
		{"Started:", formatTimePtr(j.StartedAt)},
		{"Completed:", formatTimePtr(j.CompletedAt)},
	}
	if j.ErrorMessage != "" {
		lines = append(lines, []any{"Error:", j.ErrorMessage})
	}
	if len(j.Parameters) > 0 {
		parts := make([]string, 0, len(j.Parameters))
		for _, k := range sortedKeys(j.Parameters) {
			parts = append(parts, k+"="+formatValue(j.Parameters[k]))
		}
		lines = append(lines, []any{"Parameters:", strings.Join(parts, " ")})
	}
	for _, l := range lines {
		if err := row(w, l...); err != nil {
			return err
		}
	}
	return nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

// formatValue renders scalars as is and anything nested as compact JSON.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case string:
		return v
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsTypesCmd, jobsSchemaCmd, jobsSubmitCmd, jobsListCmd,
		jobsStatusCmd, jobsWatchCmd, jobsResultCmd, jobsForgetCmd)

	for _, c := range []*cobra.Command{jobsTypesCmd, jobsListCmd, jobsStatusCmd, jobsWatchCmd, jobsResultCmd} {
		addOutputFlag(c)
	}

	jobsSubmitCmd.Flags().String("dataset", "", "dataset id")
	jobsSubmitCmd.Flags().String("name", "", "job name (default generated)")
	jobsSubmitCmd.Flags().StringArrayP("param", "p", nil, "parameter as key=value (repeatable)")

	jobsListCmd.Flags().Bool("refresh", false, "refresh unfinished jobs first")

	jobsWatchCmd.Flags().Duration("interval", 0, "poll interval (default jobs.poll_interval)")
	jobsWatchCmd.Flags().Duration("timeout", 0, "give up after this long, 0 for never (default jobs.poll_timeout)")
	jobsWatchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while watching")
}
