// Copyright 2025 James Ross
package backendadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/jobqueue"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

func newTestQueue(t *testing.T) *jobqueue.Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return jobqueue.NewWithClient(rdb, "work", "uws", nil, nil)
}

func TestAdapterRunSuccessEnqueuesStartedAndCompleted(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	compute := func(params []uwsmodel.Parameter, info Info, logger *zap.Logger) ([]uwsmodel.Result, error) {
		return []uwsmodel.Result{{ResultID: "cutout", URL: "s3://bucket/key.fits"}}, nil
	}
	a := New(compute, q, nil)
	msg := &jobqueue.WorkMessage{MessageID: "m1", JobID: "job-1", ExecutionDuration: 5}

	a.Run(ctx, msg, nil)

	started, err := q.DequeueUWSEvent(ctx, "proc", time.Second)
	require.NoError(t, err)
	require.Equal(t, "job_started", started.Type)

	completed, err := q.DequeueUWSEvent(ctx, "proc", time.Second)
	require.NoError(t, err)
	require.Equal(t, "job_completed", completed.Type)

	result, err := q.GetResult(ctx, "m1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Results, 1)
}

func TestAdapterRunClassifiesTaskError(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	compute := func(params []uwsmodel.Parameter, info Info, logger *zap.Logger) ([]uwsmodel.Result, error) {
		return nil, &uwsmodel.TaskError{Type: uwsmodel.ErrorFatal, Code: uwsmodel.CodeBackendError, Message: "Error Whoops", Detail: "Some details"}
	}
	a := New(compute, q, nil)
	msg := &jobqueue.WorkMessage{MessageID: "m2", JobID: "job-2", ExecutionDuration: 5}

	a.Run(ctx, msg, nil)

	result, err := q.GetResult(ctx, "m2")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "FATAL", result.Error.Type)
	require.Equal(t, "Error Whoops", result.Error.Message)
	require.Equal(t, "Some details", result.Error.Detail)
}

func TestAdapterRunClassifiesUnknownErrorAsTransient(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	compute := func(params []uwsmodel.Parameter, info Info, logger *zap.Logger) ([]uwsmodel.Result, error) {
		return nil, errors.New("boom")
	}
	a := New(compute, q, nil)
	msg := &jobqueue.WorkMessage{MessageID: "m3", JobID: "job-3", ExecutionDuration: 5}

	a.Run(ctx, msg, nil)

	result, err := q.GetResult(ctx, "m3")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "TRANSIENT", result.Error.Type)
	require.Contains(t, result.Error.Detail, "boom")
}

func TestAdapterExecuteUnlimitedWhenExecutionDurationZero(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	compute := func(params []uwsmodel.Parameter, info Info, logger *zap.Logger) ([]uwsmodel.Result, error) {
		return []uwsmodel.Result{{ResultID: "cutout", URL: "s3://bucket/key.fits"}}, nil
	}
	a := New(compute, q, nil)
	msg := &jobqueue.WorkMessage{MessageID: "m4", JobID: "job-4", ExecutionDuration: 0}

	result := a.execute(ctx, msg, nil, zap.NewNop())
	require.True(t, result.Success, "execution_duration=0 means unlimited")
}

func TestAdapterExecuteTimesOutPastExecutionDuration(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	compute := func(params []uwsmodel.Parameter, info Info, logger *zap.Logger) ([]uwsmodel.Result, error) {
		time.Sleep(2 * time.Second)
		return []uwsmodel.Result{{ResultID: "cutout", URL: "s3://bucket/key.fits"}}, nil
	}
	a := New(compute, q, nil)
	msg := &jobqueue.WorkMessage{MessageID: "m5", JobID: "job-5", ExecutionDuration: 1}

	result := a.execute(ctx, msg, nil, zap.NewNop())
	require.False(t, result.Success)
	require.Equal(t, "SERVICE_UNAVAILABLE", result.Error.Code)
}
