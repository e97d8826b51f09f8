// Copyright 2025 James Ross
package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/jobqueue"
	"github.com/lsst-uws/go-uws-engine/internal/jobstore"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func newTestWorker(t *testing.T) (*Worker, *jobstore.MemStore, *jobqueue.Queue) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := jobqueue.NewWithClient(rdb, "work", "uws", nil, nil)
	store := jobstore.NewMemStore()
	w := &Worker{
		store:          store,
		queue:          q,
		log:            nopLogger(),
		resultInterval: 10 * time.Millisecond,
		resultTimeout:  200 * time.Millisecond,
		processingList: "uws:tracker:processing",
		dequeueTimeout: time.Second,
	}
	return w, store, q
}

func TestHandleJobStartedMarksExecuting(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newTestWorker(t)
	job, err := store.Add(ctx, "alice", "", nil, 3600, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.MarkQueued(ctx, job.JobID, "m1"))

	w.handleJobStarted(ctx, job.JobID, time.Now())

	got, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, uwsmodel.Executing, got.Phase)
}

func TestHandleJobStartedSwallowsUnknownJob(t *testing.T) {
	w, _, _ := newTestWorker(t)
	w.handleJobStarted(context.Background(), "does-not-exist", time.Now())
}

func TestHandleJobCompletedSuccess(t *testing.T) {
	ctx := context.Background()
	w, store, q := newTestWorker(t)
	job, err := store.Add(ctx, "alice", "", nil, 3600, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.MarkQueued(ctx, job.JobID, "m1"))
	require.NoError(t, q.SetComplete(ctx, "m1", jobqueue.Result{
		Success: true,
		Results: []uwsmodel.Result{{ResultID: "cutout", URL: "s3://bucket/key.fits"}},
	}))

	w.handleJobCompleted(ctx, job.JobID)

	got, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, uwsmodel.Completed, got.Phase)
	require.Len(t, got.Results, 1)
}

func TestHandleJobCompletedFailure(t *testing.T) {
	ctx := context.Background()
	w, store, q := newTestWorker(t)
	job, err := store.Add(ctx, "alice", "", nil, 3600, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.MarkQueued(ctx, job.JobID, "m1"))
	require.NoError(t, q.SetComplete(ctx, "m1", jobqueue.Result{
		Success: false,
		Error: &jobqueue.ResultError{
			Type:    "FATAL",
			Code:    "BACKEND_ERROR",
			Message: "Error Whoops",
			Detail:  "Some details",
		},
	}))

	w.handleJobCompleted(ctx, job.JobID)

	got, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, uwsmodel.Error, got.Phase)
	require.NotNil(t, got.Err)
	require.Equal(t, "Error Whoops", got.Err.Message)
	require.Equal(t, "Some details", got.Err.Detail)
}

func TestHandleJobCompletedTimesOutTransient(t *testing.T) {
	ctx := context.Background()
	w, store, q := newTestWorker(t)
	job, err := store.Add(ctx, "alice", "", nil, 3600, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.MarkQueued(ctx, job.JobID, "never-arrives"))
	// In-progress marker without a result: GetResult keeps answering
	// JobResultUnavailable until the poll times out.
	require.NoError(t, q.SetInProgress(ctx, "never-arrives"))

	w.handleJobCompleted(ctx, job.JobID)

	got, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, uwsmodel.Error, got.Phase)
	require.Equal(t, uwsmodel.ErrorTransient, got.Err.Type)
}

func TestHandleJobCompletedOutOfOrderDelivery(t *testing.T) {
	// S7: job_completed handled before job_started. Final phase must be
	// COMPLETED and start_time must end up <= end_time.
	ctx := context.Background()
	w, store, q := newTestWorker(t)
	job, err := store.Add(ctx, "alice", "", nil, 3600, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.MarkQueued(ctx, job.JobID, "m1"))
	require.NoError(t, q.SetComplete(ctx, "m1", jobqueue.Result{
		Success: true,
		Results: []uwsmodel.Result{{ResultID: "cutout", URL: "s3://bucket/key.fits"}},
	}))

	w.handleJobCompleted(ctx, job.JobID)
	w.handleJobStarted(ctx, job.JobID, time.Now().Add(-time.Second))

	got, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, uwsmodel.Completed, got.Phase)
	if got.StartTime != nil && got.EndTime != nil {
		require.True(t, got.StartTime.Before(*got.EndTime) || got.StartTime.Equal(*got.EndTime))
	}
}
