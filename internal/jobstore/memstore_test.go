// Copyright 2025 James Ross
package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

func TestMemStoreAddAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	job, err := s.Add(ctx, "someone", "run-1", []uwsmodel.Parameter{{ID: "pos", Value: "x"}}, 3600, time.Hour)
	require.NoError(t, err)
	require.Equal(t, uwsmodel.Pending, job.Phase)

	got, err := s.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, job.Owner, got.Owner)
	require.Len(t, got.Parameters, 1)
}

func TestMemStoreGetUnknown(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	var unknown *uwsmodel.UnknownJobError
	require.ErrorAs(t, err, &unknown)
}

func TestMemStoreMarkQueuedGuardedByPhase(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	job, _ := s.Add(ctx, "someone", "", nil, 3600, time.Hour)

	require.NoError(t, s.MarkQueued(ctx, job.JobID, "msg-1"))
	got, _ := s.Get(ctx, job.JobID)
	require.Equal(t, uwsmodel.Queued, got.Phase)
	require.Equal(t, "msg-1", got.MessageID)

	// A job already EXECUTING should reject a late mark_queued instead of
	// regressing (I4).
	require.NoError(t, s.MarkExecuting(ctx, job.JobID, time.Now()))
	require.NoError(t, s.MarkQueued(ctx, job.JobID, "msg-2"))
	got, _ = s.Get(ctx, job.JobID)
	require.Equal(t, uwsmodel.Executing, got.Phase)
	require.Equal(t, "msg-1", got.MessageID, "stale mark_queued must not overwrite message_id")
}

func TestMemStoreTerminalWriteAlwaysWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	job, _ := s.Add(ctx, "someone", "", nil, 3600, time.Hour)

	// job_completed handled before job_started (S7): final phase must be
	// COMPLETED and start_time must still end up set and <= end_time.
	require.NoError(t, s.MarkCompleted(ctx, job.JobID, []uwsmodel.Result{{ResultID: "cutout", URL: "s3://bucket/key"}}))
	require.NoError(t, s.MarkExecuting(ctx, job.JobID, time.Now().Add(-time.Second)))

	got, _ := s.Get(ctx, job.JobID)
	require.Equal(t, uwsmodel.Completed, got.Phase, "terminal phase must win regardless of arrival order")
}

func TestMemStoreListFiltersByOwnerAndPhase(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	j1, _ := s.Add(ctx, "alice", "", nil, 3600, time.Hour)
	_, _ = s.Add(ctx, "bob", "", nil, 3600, time.Hour)
	require.NoError(t, s.MarkQueued(ctx, j1.JobID, "m1"))

	descs, err := s.List(ctx, "alice", nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.Equal(t, "alice", descs[0].Owner)

	descs, err = s.List(ctx, "alice", []uwsmodel.Phase{uwsmodel.Pending}, nil, 0)
	require.NoError(t, err)
	require.Empty(t, descs, "job was moved to QUEUED so PENDING filter should exclude it")
}

func TestMemStoreExpireDue(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_, _ = s.Add(ctx, "alice", "", nil, 3600, -time.Hour)
	n, err := s.ExpireDue(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
