package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmgilman/oceanctl/internal/model"
)

// decodeList decodes either a bare JSON array or an object wrapping the
// array under one of keys.
func decodeList[T any](raw []byte, keys ...string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}

	if raw[0] == '[' {
		out := []T{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	for _, k := range keys {
		inner, ok := wrapped[k]
		if !ok {
			continue
		}
		return decodeList[T](inner)
	}
	return nil, fmt.Errorf("expected a list or an object with one of %v", keys)
}

// wireJob accepts both the camelCase and snake_case job shapes the service
// has produced.
type wireJob struct {
	ID                string          `json:"id"`
	JobID             string          `json:"job_id"`
	Name              string          `json:"name"`
	DiagnosticType    string          `json:"diagnosticType"`
	DiagnosticTypeOld string          `json:"diagnostic_type"`
	Status            model.JobStatus `json:"status"`
	DatasetID         string          `json:"datasetId"`
	DatasetIDOld      string          `json:"dataset_id"`
	Parameters        map[string]any  `json:"parameters"`
	Result            map[string]any  `json:"result"`
	Results           map[string]any  `json:"results"`
	ErrorMessage      string          `json:"errorMessage"`
	ErrorMessageOld   string          `json:"error_message"`
	CreatedAt         *time.Time      `json:"createdAt"`
	CreatedAtOld      *time.Time      `json:"created_at"`
	StartedAt         *time.Time      `json:"startedAt"`
	StartedAtOld      *time.Time      `json:"started_at"`
	CompletedAt       *time.Time      `json:"completedAt"`
	CompletedAtOld    *time.Time      `json:"completed_at"`
}

func (w wireJob) job() (model.Job, error) {
	status, err := normalizeStatus(w.Status)
	if err != nil {
		return model.Job{}, err
	}
	j := model.Job{
		ID:             first(w.ID, w.JobID),
		Name:           w.Name,
		DiagnosticType: model.DiagnosticType(first(w.DiagnosticType, w.DiagnosticTypeOld)),
		Status:         status,
		DatasetID:      first(w.DatasetID, w.DatasetIDOld),
		Parameters:     w.Parameters,
		ErrorMessage:   first(w.ErrorMessage, w.ErrorMessageOld),
		StartedAt:      firstTime(w.StartedAt, w.StartedAtOld),
		CompletedAt:    firstTime(w.CompletedAt, w.CompletedAtOld),
	}
	if created := firstTime(w.CreatedAt, w.CreatedAtOld); created != nil {
		j.CreatedAt = *created
	}
	if j.Status == model.JobCompleted {
		j.Result = w.Result
		if j.Result == nil {
			j.Result = w.Results
		}
		if j.Result == nil {
			j.Result = map[string]any{}
		}
	}
	return j, nil
}

// normalizeStatus maps the service's status spellings onto the four known
// states. Anything else is an error.
func normalizeStatus(s model.JobStatus) (model.JobStatus, error) {
	switch strings.ToLower(string(s)) {
	case "", "submitted", "queued", "pending":
		return model.JobPending, nil
	case "running", "started", "processing", "in_progress":
		return model.JobRunning, nil
	case "completed", "complete", "succeeded", "success", "done":
		return model.JobCompleted, nil
	case "failed", "error", "cancelled", "canceled", "aborted":
		return model.JobFailed, nil
	}
	return "", fmt.Errorf("%w: unknown job status %q", ErrServer, s)
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTime(vals ...*time.Time) *time.Time {
	for _, v := range vals {
		if v != nil && !v.IsZero() {
			return v
		}
	}
	return nil
}
