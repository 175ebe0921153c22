// Package apitest runs an in-memory fake of the analysis service for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmgilman/oceanctl/internal/model"
)

// Prefix is the path every route is mounted under.
const Prefix = "/api/v1"

// Request is one request recorded by the fake.
type Request struct {
	Method    string
	Path      string
	Query     string
	Auth      string
	RequestID string
	Body      []byte
}

// Server is a fake analysis service.
type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	datasets  []model.Dataset
	servers   []model.Server
	catalogs  map[string]map[string][]model.Node
	metadata  map[string]map[string]model.DatasetMetadata
	jobs      map[string]*model.Job
	jobOrder  []string
	users     map[string]userRecord
	tokens    map[string]string
	failures  map[string]failure
	holds     map[string]chan struct{}
	requests  []Request
	nextID    int
	now       func() time.Time
	advance   bool
	needsAuth bool
}

type userRecord struct {
	password string
	user     model.User
}

type failure struct {
	status  int
	message string
}

// Option configures a Server.
type Option func(*Server)

// WithAdvanceOnRead makes every read of a job move it one step along
// pending, running, completed.
func WithAdvanceOnRead() Option {
	return func(s *Server) { s.advance = true }
}

// WithRequireAuth rejects requests without a valid bearer token, except login.
func WithRequireAuth() Option {
	return func(s *Server) { s.needsAuth = true }
}

// WithClock sets the time source for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New starts a fake service. Callers must Close it.
func New(opts ...Option) *Server {
	s := &Server{
		catalogs: make(map[string]map[string][]model.Node),
		metadata: make(map[string]map[string]model.DatasetMetadata),
		jobs:     make(map[string]*model.Job),
		users:    make(map[string]userRecord),
		tokens:   make(map[string]string),
		failures: make(map[string]failure),
		holds:    make(map[string]chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

// URL returns the API root, suitable for api.New.
func (s *Server) URL() string {
	return s.srv.URL + Prefix + "/"
}

// Close shuts the server down, releasing any held requests.
func (s *Server) Close() {
	s.mu.Lock()
	for key, ch := range s.holds {
		close(ch)
		delete(s.holds, key)
	}
	s.mu.Unlock()
	s.srv.Close()
}

// AddDataset registers a dataset.
func (s *Server) AddDataset(ds model.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = append(s.datasets, ds)
}

// AddServer registers a THREDDS server and returns it with its assigned id
// when it has none.
func (s *Server) AddServer(srv model.Server) model.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv.ID == "" {
		srv.ID = s.newID()
	}
	s.servers = append(s.servers, srv)
	return srv
}

// SetCatalog sets the children of path on serverID.
func (s *Server) SetCatalog(serverID, path string, children ...model.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalogs[serverID] == nil {
		s.catalogs[serverID] = make(map[string][]model.Node)
	}
	s.catalogs[serverID][path] = append([]model.Node{}, children...)
}

// SetMetadata sets the metadata of the leaf at path on serverID.
func (s *Server) SetMetadata(serverID, path string, md model.DatasetMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metadata[serverID] == nil {
		s.metadata[serverID] = make(map[string]model.DatasetMetadata)
	}
	s.metadata[serverID][path] = md
}

// AddUser registers an account that can log in.
func (s *Server) AddUser(u model.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.newID()
	}
	s.users[u.Username] = userRecord{password: password, user: u}
}

// IssueToken registers a bearer token for username without a login call.
func (s *Server) IssueToken(username, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = username
}

// SetJobStatus moves job id to status, setting timestamps and a result the way
// the service does.
func (s *Server) SetJobStatus(id string, status model.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		s.transition(j, status)
	}
}

// PutJob stores a job verbatim.
func (s *Server) PutJob(j model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		s.jobOrder = append(s.jobOrder, j.ID)
	}
	cp := j
	s.jobs[j.ID] = &cp
}

// Job returns the stored state of job id.
func (s *Server) Job(id string) (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *j, true
}

// Fail makes every request for method and path (relative to the API root,
// e.g. "thredds/servers") answer with status.
func (s *Server) Fail(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, message: message}
}

// Recover removes every failure registered with Fail.
func (s *Server) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// Hold blocks requests for method and path until the returned function is
// called.
func (s *Server) Hold(method, path string) (release func()) {
	ch := make(chan struct{})
	key := method + " " + path
	s.mu.Lock()
	s.holds[key] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[key] == ch {
				delete(s.holds, key)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request{}, s.requests...)
}

// Count returns how many requests matched method and path. A query string in
// path must match exactly.
func (s *Server) Count(method, path string) int {
	p, q, _ := strings.Cut(path, "?")
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == p && (q == "" || r.Query == q) {
			n++
		}
	}
	return n
}

// ResetRequests forgets recorded requests.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

// transition applies status to j. Must hold s.mu.
func (s *Server) transition(j *model.Job, status model.JobStatus) {
	now := s.now()
	j.Status = status
	switch status {
	case model.JobRunning:
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	case model.JobCompleted:
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
		j.CompletedAt = &now
		if j.Result == nil {
			j.Result = map[string]any{"summary": fmt.Sprintf("%s analysis of %s", j.DiagnosticType, j.DatasetID)}
		}
	case model.JobFailed:
		j.CompletedAt = &now
		if j.ErrorMessage == "" {
			j.ErrorMessage = "diagnostic failed"
		}
	}
}

func (s *Server) sortedJobs() []model.Job {
	out := make([]model.Job, 0, len(s.jobOrder))
	for _, id := range s.jobOrder {
		out = append(out, *s.jobs[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
