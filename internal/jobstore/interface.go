// Copyright 2025 James Ross
package jobstore

import (
	"context"
	"time"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// JobStore is the contract JobService and TrackerWorker depend on. *Store
// is the Postgres-backed production implementation; tests may substitute
// an in-memory fake satisfying the same interface.
type JobStore interface {
	Add(ctx context.Context, owner, runID string, params []uwsmodel.Parameter, executionDuration int, lifetime time.Duration) (*uwsmodel.Job, error)
	Get(ctx context.Context, jobID string) (*uwsmodel.Job, error)
	List(ctx context.Context, owner string, phases []uwsmodel.Phase, after *time.Time, count int) ([]uwsmodel.Description, error)
	Delete(ctx context.Context, jobID string) error
	MarkQueued(ctx context.Context, jobID, messageID string) error
	MarkExecuting(ctx context.Context, jobID string, startTime time.Time) error
	MarkCompleted(ctx context.Context, jobID string, results []uwsmodel.Result) error
	MarkFailed(ctx context.Context, jobID string, jobErr *uwsmodel.JobError) error
	UpdateDestruction(ctx context.Context, jobID string, t time.Time) error
	UpdateExecutionDuration(ctx context.Context, jobID string, d int) error
	Availability(ctx context.Context) uwsmodel.Availability
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

var _ JobStore = (*Store)(nil)
