package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmgilman/oceanctl/internal/model"
)

var signingKey = []byte("apitest")

// endpointTypes maps the non-profile submission endpoints to their type.
var endpointTypes = map[string]model.DiagnosticType{
	"eddy":          model.DiagnosticMesoscaleEddy,
	"front":         model.DiagnosticOceanFront,
	"internal-wave": model.DiagnosticInternalWave,
}

// profileTypes maps the thermocline endpoint's parameterType to a type.
var profileTypes = map[string]model.DiagnosticType{
	"temperature": model.DiagnosticThermocline,
	"salinity":    model.DiagnosticHalocline,
	"density":     model.DiagnosticPycnocline,
	"sound_speed": model.DiagnosticSoundSpeed,
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+Prefix+"/datasets", s.listDatasets)
	mux.HandleFunc("GET "+Prefix+"/datasets/{id}", s.getDataset)
	mux.HandleFunc("GET "+Prefix+"/thredds/servers", s.listServers)
	mux.HandleFunc("POST "+Prefix+"/thredds/servers", s.createServer)
	mux.HandleFunc("PUT "+Prefix+"/thredds/servers/{id}", s.replaceServer)
	mux.HandleFunc("DELETE "+Prefix+"/thredds/servers/{id}", s.deleteServer)
	mux.HandleFunc("GET "+Prefix+"/thredds/catalog", s.getCatalog)
	mux.HandleFunc("GET "+Prefix+"/thredds/metadata", s.getMetadata)
	mux.HandleFunc("GET "+Prefix+"/diagnostics", s.listJobs)
	mux.HandleFunc("GET "+Prefix+"/diagnostics/jobs/{id}", s.getJob)
	mux.HandleFunc("POST "+Prefix+"/diagnostics/{endpoint}", s.submit)
	mux.HandleFunc("POST "+Prefix+"/auth/login", s.login)
	mux.HandleFunc("GET "+Prefix+"/users/me", s.me)
	return s.intercept(mux)
}

// intercept records each request and applies holds, failures and auth.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		rel := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, Prefix), "/")
		key := r.Method + " " + rel

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:    r.Method,
			Path:      rel,
			Query:     r.URL.RawQuery,
			Auth:      r.Header.Get("Authorization"),
			RequestID: r.Header.Get("X-Request-ID"),
			Body:      body,
		})
		hold := s.holds[key]
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		s.mu.Lock()
		f, failing := s.failures[key]
		needsAuth := s.needsAuth && key != "POST auth/login"
		s.mu.Unlock()

		if failing {
			writeDetail(w, f.status, f.message)
			return
		}
		if needsAuth {
			if _, ok := s.caller(r); !ok {
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// caller resolves the bearer token of r to a user.
func (s *Server) caller(r *http.Request) (model.User, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return model.User{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.tokens[token]
	if !ok {
		return model.User{}, false
	}
	rec, ok := s.users[name]
	if !ok {
		return model.User{Username: name}, true
	}
	return rec.user, true
}

func (s *Server) listDatasets(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]model.Dataset{}, s.datasets...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ds := range s.datasets {
		if ds.ID == r.PathValue("id") {
			writeJSON(w, http.StatusOK, ds)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Dataset not found")
}

func (s *Server) listServers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]model.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, redact(srv))
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"servers": out})
}

func (s *Server) createServer(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeServerConfig(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	srv := model.Server{
		ID:          s.newID(),
		Name:        cfg.Name,
		BaseURL:     cfg.BaseURL,
		Description: cfg.Description,
		Credentials: cfg.Credentials,
	}
	s.servers = append(s.servers, srv)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, redact(srv))
}

func (s *Server) replaceServer(w http.ResponseWriter, r *http.Request) {
	cfg, ok := decodeServerConfig(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, srv := range s.servers {
		if srv.ID != r.PathValue("id") {
			continue
		}
		s.servers[i] = model.Server{
			ID:          srv.ID,
			Name:        cfg.Name,
			BaseURL:     cfg.BaseURL,
			Description: cfg.Description,
			Credentials: cfg.Credentials,
		}
		writeJSON(w, http.StatusOK, redact(s.servers[i]))
		return
	}
	writeDetail(w, http.StatusNotFound, "Server not found")
}

func (s *Server) deleteServer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	for i, srv := range s.servers {
		if srv.ID == id {
			s.servers = append(s.servers[:i], s.servers[i+1:]...)
			delete(s.catalogs, id)
			delete(s.metadata, id)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Server not found")
}

func (s *Server) getCatalog(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("server_id")
	path := r.URL.Query().Get("path")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasServer(serverID) {
		writeDetail(w, http.StatusNotFound, "Server not found")
		return
	}
	nodes, ok := s.catalogs[serverID][path]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Catalog path not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"catalog": nodes})
}

func (s *Server) getMetadata(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("server_id")
	path := r.URL.Query().Get("path")

	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.metadata[serverID][path]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Dataset not found")
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := s.sortedJobs()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[r.PathValue("id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	if s.advance {
		switch j.Status {
		case model.JobPending:
			s.transition(j, model.JobRunning)
		case model.JobRunning:
			s.transition(j, model.JobCompleted)
		}
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	endpoint := r.PathValue("endpoint")

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	typ, ok := endpointTypes[endpoint]
	if endpoint == "thermocline" {
		pt, _ := params["parameterType"].(string)
		typ, ok = profileTypes[pt]
	}
	if t, _ := params["diagnosticType"].(string); t != "" {
		typ = model.DiagnosticType(t)
	}
	if !ok && typ == "" {
		writeDetail(w, http.StatusNotFound, "Unknown diagnostic")
		return
	}

	datasetID, _ := params["datasetId"].(string)
	name, _ := params["name"].(string)

	s.mu.Lock()
	id := s.newID()
	s.jobs[id] = &model.Job{
		ID:             id,
		Name:           name,
		DiagnosticType: typ,
		Status:         model.JobPending,
		DatasetID:      datasetID,
		Parameters:     params,
		CreatedAt:      s.now().UTC(),
	}
	s.jobOrder = append(s.jobOrder, id)
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "submitted"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[req.Username]
	if !ok || rec.password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   rec.user.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		ID:        s.newID(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.tokens[token] = rec.user.Username

	writeJSON(w, http.StatusOK, model.LoginResponse{User: rec.user, Token: token})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, ok := s.caller(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) hasServer(id string) bool {
	for _, srv := range s.servers {
		if srv.ID == id {
			return true
		}
	}
	return false
}

func decodeServerConfig(w http.ResponseWriter, r *http.Request) (model.ServerConfig, bool) {
	var cfg model.ServerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return cfg, false
	}
	if cfg.Name == "" || cfg.BaseURL == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "name"}, "msg": "field required"}},
		})
		return cfg, false
	}
	return cfg, true
}

// redact strips the password the service never echoes back.
func redact(srv model.Server) model.Server {
	if srv.Credentials != nil {
		srv.Credentials = &model.Credentials{Username: srv.Credentials.Username}
	}
	return srv
}
