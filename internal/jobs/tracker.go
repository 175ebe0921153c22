package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmgilman/oceanctl/internal/api"
	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/names"
	"github.com/jmgilman/oceanctl/internal/validate"
)

// refreshLimit bounds concurrent requests in RefreshActive.
const refreshLimit = 4

// Tracker submits diagnostic jobs and keeps a local record of every job it
// has observed. Status in the local record only moves forward along
// pending -> running -> completed|failed.
type Tracker struct {
	store    *cache.Store
	svc      Service
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	name     func(kind string, exists names.ExistsFn) (string, error)
	journal  Journal

	mu   sync.Mutex
	jobs map[string]model.Job
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRecorder sets the recorder notified of status transitions.
func WithRecorder(r Recorder) Option {
	return func(t *Tracker) {
		if r != nil {
			t.recorder = r
		}
	}
}

// WithClock sets the clock used to stamp locally created jobs.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithNamer sets the generator of names for jobs submitted without one.
func WithNamer(fn func(kind string) string) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.name = func(kind string, _ names.ExistsFn) (string, error) { return fn(kind), nil }
		}
	}
}

// WithJournal persists local records to j. Call Restore to load them.
func WithJournal(j Journal) Option {
	return func(t *Tracker) {
		t.journal = j
	}
}

// New creates a Tracker.
func New(store *cache.Store, svc Service, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		svc:      svc,
		logger:   slog.New(slog.DiscardHandler),
		recorder: nopRecorder{},
		now:      time.Now,
		name: func(kind string, exists names.ExistsFn) (string, error) {
			return names.UniqueJob(kind, exists, 0)
		},
		jobs: make(map[string]model.Job),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Restore loads the journal into the local record. Records already held
// locally win over journal records at an earlier status.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.journal == nil {
		return nil
	}
	saved, err := t.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range saved {
		if cur, ok := t.jobs[j.ID]; ok && cur.Status.Rank() >= j.Status.Rank() {
			continue
		}
		t.jobs[j.ID] = j
	}
	t.logger.Debug("restored jobs", "count", len(saved))
	return nil
}

// Submit validates params against the schema of typ and submits the job. An
// optional "name" entry names the job. Invalid parameters are reported as a
// *validate.ValidationError before any request is made. On success the job is
// recorded locally as pending and job lists are invalidated.
func (t *Tracker) Submit(ctx context.Context, typ model.DiagnosticType, params map[string]any) (string, error) {
	endpoint, err := Endpoint(typ)
	if err != nil {
		return "", err
	}

	raw := make(map[string]any, len(params))
	var name string
	nameErr := &validate.ValidationError{}
	for k, v := range params {
		if k != "name" {
			raw[k] = v
			continue
		}
		s, ok := v.(string)
		if !ok && v != nil {
			nameErr.Add("name", "string", "", "must be a string")
		}
		name = s
	}

	decoded, err := Decode(typ, raw)
	if len(nameErr.Fields) > 0 {
		if verr, ok := validate.AsValidation(err); ok {
			nameErr.Fields = append(nameErr.Fields, verr.Fields...)
		} else if err != nil {
			return "", err
		}
		return "", nameErr
	}
	if err != nil {
		return "", err
	}

	if name == "" {
		name, err = t.name(string(typ), t.nameTaken)
		if err != nil {
			return "", fmt.Errorf("name job: %w", err)
		}
	}

	req, err := body(typ, name, decoded)
	if err != nil {
		return "", err
	}

	res, err := t.store.Mutate(ctx, func(ctx context.Context) (any, error) {
		id, err := t.svc.Submit(ctx, endpoint, req)
		if err != nil {
			return nil, fmt.Errorf("submit %s: %w", typ, err)
		}

		datasetID, _ := req["datasetId"].(string)
		job := model.Job{
			ID:             id,
			Name:           name,
			DiagnosticType: typ,
			Status:         model.JobPending,
			DatasetID:      datasetID,
			Parameters:     req,
			CreatedAt:      t.now().UTC(),
		}
		t.mu.Lock()
		t.jobs[id] = job
		t.mu.Unlock()
		t.persist(ctx, job)

		t.logger.Debug("submitted job", "id", id, "type", typ, "name", name)
		return id, nil
	}, TagJobs)
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// ListJobs queries every job, newest first. Server state is merged with the
// local record so that no job is reported in an earlier state than one
// already observed.
func (t *Tracker) ListJobs() *cache.Handle[[]model.Job] {
	return cache.Watch(t.store, cache.NewKey(opJobs, nil), []cache.Tag{TagJobs}, t.fetchJobs)
}

// Job queries one job. A job already known to be terminal is served from
// the local record without contacting the service.
func (t *Tracker) Job(id string) *cache.Handle[model.Job] {
	key := cache.NewKey(opJob, id)
	return cache.Watch(t.store, key, []cache.Tag{cache.Scoped(TagJobs, id)}, func(ctx context.Context) (model.Job, error) {
		return t.fetchJob(ctx, id)
	})
}

// Refresh re-fetches job id and returns its reconciled state. Polling callers
// should stop once the returned status is terminal.
func (t *Tracker) Refresh(ctx context.Context, id string) (model.Job, error) {
	h := t.Job(id)
	defer h.Release()

	h.Refetch()
	return h.Wait(ctx)
}

// RefreshActive refreshes every locally known job that is not yet terminal
// and returns their reconciled states ordered newest first.
func (t *Tracker) RefreshActive(ctx context.Context) ([]model.Job, error) {
	ids := t.active()

	out := make([]model.Job, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshLimit)
	for i, id := range ids {
		g.Go(func() error {
			j, err := t.Refresh(ctx, id)
			if err != nil {
				return fmt.Errorf("refresh job %s: %w", id, err)
			}
			out[i] = j
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortJobs(out)
	return out, nil
}

// Local returns the local record of job id.
func (t *Tracker) Local(id string) (model.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	return j, ok
}

// Forget drops the local record of job id and evicts its cached queries.
func (t *Tracker) Forget(ctx context.Context, id string) (bool, error) {
	t.mu.Lock()
	_, ok := t.jobs[id]
	delete(t.jobs, id)
	t.mu.Unlock()

	if t.journal != nil {
		if err := t.journal.Remove(ctx, id); err != nil {
			return ok, fmt.Errorf("forget job %s: %w", id, err)
		}
	}

	scoped := cache.Scoped(TagJobs, id)
	n := t.store.Evict(func(s cache.Snapshot) bool { return s.HasTag(scoped) })
	return ok || n > 0, nil
}

func (t *Tracker) fetchJobs(ctx context.Context) ([]model.Job, error) {
	remote, err := t.svc.Jobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	seen := make(map[string]bool, len(remote))
	out := make([]model.Job, 0, len(remote))
	for _, r := range remote {
		j, terminal, changed := t.reconcile(r)
		if changed {
			t.persist(ctx, j)
		}
		if terminal {
			t.store.Invalidate(cache.Scoped(TagJobs, j.ID))
		}
		seen[j.ID] = true
		out = append(out, j)
	}

	// Jobs submitted here that the service does not list yet.
	t.mu.Lock()
	for id, j := range t.jobs {
		if !seen[id] {
			out = append(out, j)
		}
	}
	t.mu.Unlock()

	sortJobs(out)
	return out, nil
}

func (t *Tracker) fetchJob(ctx context.Context, id string) (model.Job, error) {
	if j, ok := t.Local(id); ok && j.Status.Terminal() {
		return j, nil
	}

	remote, err := t.svc.Job(ctx, id)
	if errors.Is(err, api.ErrNotFound) {
		return model.Job{}, fmt.Errorf("%w %s: %w", ErrUnknownJob, id, err)
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	if remote.ID == "" {
		remote.ID = id
	}

	j, terminal, changed := t.reconcile(*remote)
	if changed {
		t.persist(ctx, j)
	}
	if terminal {
		t.store.Invalidate(TagJobs)
	}
	return j, nil
}

// reconcile merges a server-reported job into the local record and returns
// the merged job. Reports that would move the status backwards, or out of a
// terminal state, are ignored. terminal is true when this report is the
// first observation of a terminal state; changed is true when the local
// record was modified.
func (t *Tracker) reconcile(remote model.Job) (job model.Job, terminal, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	local, known := t.jobs[remote.ID]
	if !known {
		t.jobs[remote.ID] = remote
		return remote, remote.Status.Terminal(), true
	}

	if local.Status.Terminal() || remote.Status.Rank() < local.Status.Rank() {
		if remote.Status != local.Status {
			t.logger.Debug("ignored stale job status",
				"id", remote.ID, "local", local.Status, "remote", remote.Status)
		}
		return local, false, false
	}

	merged := remote
	if merged.Name == "" {
		merged.Name = local.Name
	}
	if merged.DatasetID == "" {
		merged.DatasetID = local.DatasetID
	}
	if len(merged.Parameters) == 0 {
		merged.Parameters = local.Parameters
	}
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = local.CreatedAt
	}
	t.jobs[remote.ID] = merged

	if merged.Status != local.Status {
		t.logger.Debug("job transition", "id", merged.ID, "from", local.Status, "to", merged.Status)
		t.recorder.Transition(local.Status, merged.Status)
	}
	return merged, merged.Status.Terminal() && !local.Status.Terminal(), merged.Status != local.Status
}

// persist writes j to the journal. Failures are logged; the in-memory record
// stays authoritative for this process.
func (t *Tracker) persist(ctx context.Context, j model.Job) {
	if t.journal == nil {
		return
	}
	if err := t.journal.Put(ctx, j); err != nil {
		t.logger.Warn("persist job", "id", j.ID, "error", err)
	}
}

func (t *Tracker) active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	for id, j := range t.jobs {
		if !j.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) nameTaken(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.Name == name {
			return true
		}
	}
	return false
}

// sortJobs orders jobs newest first; ties are broken by id.
func sortJobs(jobs []model.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})
}
