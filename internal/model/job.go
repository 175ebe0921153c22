package model

import (
	"fmt"
	"time"
)

// DiagnosticType identifies the kind of diagnostic computation.
type DiagnosticType string

const (
	DiagnosticThermocline   DiagnosticType = "thermocline"
	DiagnosticHalocline     DiagnosticType = "halocline"
	DiagnosticPycnocline    DiagnosticType = "pycnocline"
	DiagnosticSoundSpeed    DiagnosticType = "sound_speed"
	DiagnosticMesoscaleEddy DiagnosticType = "mesoscale_eddy"
	DiagnosticOceanFront    DiagnosticType = "ocean_front"
	DiagnosticInternalWave  DiagnosticType = "internal_wave"
)

// DiagnosticTypes lists every diagnostic type in display order.
var DiagnosticTypes = []DiagnosticType{
	DiagnosticThermocline,
	DiagnosticHalocline,
	DiagnosticPycnocline,
	DiagnosticSoundSpeed,
	DiagnosticMesoscaleEddy,
	DiagnosticOceanFront,
	DiagnosticInternalWave,
}

// ParseDiagnosticType converts a string to a DiagnosticType.
func ParseDiagnosticType(s string) (DiagnosticType, error) {
	for _, t := range DiagnosticTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown diagnostic type %q", s)
}

// JobStatus is the lifecycle state of a diagnostic job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Rank orders statuses along pending -> running -> {completed|failed}.
// Unknown statuses rank below pending.
func (s JobStatus) Rank() int {
	switch s {
	case JobPending:
		return 0
	case JobRunning:
		return 1
	case JobCompleted, JobFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	return s.Rank() >= 0
}

// Job is a server-executed diagnostic computation.
type Job struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	DiagnosticType DiagnosticType `json:"diagnosticType" yaml:"diagnosticType"`
	Status         JobStatus      `json:"status" yaml:"status"`
	DatasetID      string         `json:"datasetId" yaml:"datasetId"`
	Parameters     map[string]any `json:"parameters" yaml:"parameters"`
	Result         map[string]any `json:"result,omitempty" yaml:"result,omitempty"`
	ErrorMessage   string         `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	CreatedAt      time.Time      `json:"createdAt" yaml:"createdAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
}

// SubmitResponse acknowledges a diagnostic submission. The service has used
// both jobId and job_id for the identifier.
type SubmitResponse struct {
	JobID       string `json:"jobId"`
	LegacyJobID string `json:"job_id"`
	Status      string `json:"status,omitempty"`
}

// ID returns whichever identifier the service populated.
func (r SubmitResponse) ID() string {
	if r.JobID != "" {
		return r.JobID
	}
	return r.LegacyJobID
}
