// Copyright 2025 James Ross
package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(rdb, "uws:work", "uws:queue", nil, nil)
}

func TestEnqueueDequeueWork(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	msgID, err := q.Enqueue(ctx, "job-1", "cutout", map[string]string{"pos": "CIRCLE 10 20 1"}, 3600)
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	msg, err := q.DequeueWork(ctx, "uws:work:processing", time.Second)
	require.NoError(t, err)
	require.Equal(t, msgID, msg.MessageID)
	require.Equal(t, "job-1", msg.JobID)
	require.Equal(t, "CIRCLE 10 20 1", msg.Args["pos"])
}

func TestUWSEventRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	require.NoError(t, q.EnqueueStarted(ctx, "job-1", "msg-1", time.Now()))
	ev, err := q.DequeueUWSEvent(ctx, "uws:queue:processing", time.Second)
	require.NoError(t, err)
	require.Equal(t, "job_started", ev.Type)
	require.Equal(t, "job-1", ev.JobID)

	require.NoError(t, q.EnqueueCompleted(ctx, "job-1", "msg-1"))
	ev, err = q.DequeueUWSEvent(ctx, "uws:queue:processing", time.Second)
	require.NoError(t, err)
	require.Equal(t, "job_completed", ev.Type)
}

func TestGetResultUnavailableThenFound(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.GetResult(ctx, "msg-unknown")
	require.Error(t, err)
	var notFound *uwsmodel.JobNotFoundInQueue
	require.ErrorAs(t, err, &notFound)

	require.NoError(t, q.SetInProgress(ctx, "msg-1"))
	_, err = q.GetResult(ctx, "msg-1")
	require.Error(t, err)
	var unavailable *uwsmodel.JobResultUnavailable
	require.ErrorAs(t, err, &unavailable)

	require.NoError(t, q.SetComplete(ctx, "msg-1", Result{
		Success: true,
		Results: []uwsmodel.Result{{ResultID: "cutout", URL: "s3://bucket/key"}},
	}))
	r, err := q.GetResult(ctx, "msg-1")
	require.NoError(t, err)
	require.True(t, r.Success)
	require.Len(t, r.Results, 1)
}
