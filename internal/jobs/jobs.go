// Package jobs submits diagnostic computations and tracks their lifecycle
// through the request cache.
package jobs

import (
	"context"
	"errors"

	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/model"
)

// Sentinel errors for job operations.
var (
	ErrUnknownJob  = errors.New("unknown job")
	ErrUnknownType = errors.New("unknown diagnostic type")
)

// TagJobs is attached to every job query.
const TagJobs cache.Tag = "DiagnosticJobs"

// Cache operation names.
const (
	opJobs = "getDiagnosticJobs"
	opJob  = "getDiagnosticJob"
)

// Service is the part of the remote service the tracker uses.
//
//go:generate go run github.com/matryer/moq@latest -pkg mocks -out mocks/service.go . Service
type Service interface {
	// Jobs lists every job known to the service.
	Jobs(ctx context.Context) ([]model.Job, error)

	// Job returns the current state of one job.
	Job(ctx context.Context, id string) (*model.Job, error)

	// Submit posts params to a diagnostic endpoint and returns the new job id.
	Submit(ctx context.Context, endpoint string, params any) (string, error)
}

// Recorder observes job status transitions.
type Recorder interface {
	Transition(from, to model.JobStatus)
}

type nopRecorder struct{}

func (nopRecorder) Transition(model.JobStatus, model.JobStatus) {}

// CanViewResult reports whether job has a result to show. Only completed jobs
// do.
func CanViewResult(job model.Job) bool {
	return job.Status == model.JobCompleted
}
