// Copyright 2025 James Ross
package jobservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/jobstore"
	"github.com/lsst-uws/go-uws-engine/internal/policy"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

type fakeDispatcher struct {
	messageID string
	err       error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, job *uwsmodel.Job) (string, error) {
	return f.messageID, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		UWS: config.UWS{
			Lifetime:          time.Hour,
			ExecutionDuration: time.Minute,
			WaitTimeout:       time.Second,
		},
	}
}

func TestServiceCreateLowercasesParameterIDs(t *testing.T) {
	store := jobstore.NewMemStore()
	pol := &policy.DefaultPolicy{Dispatcher: &fakeDispatcher{messageID: "m1"}}
	svc := New(testConfig(), store, pol, nil)

	job, err := svc.Create(context.Background(), "alice", "", []uwsmodel.Parameter{{ID: "Pos", Value: "RANGE 0 360 -2 2"}})
	require.NoError(t, err)
	require.Equal(t, "pos", job.Parameters[0].ID)
	require.Equal(t, uwsmodel.Pending, job.Phase)
}

func TestServiceGetEnforcesOwnership(t *testing.T) {
	store := jobstore.NewMemStore()
	pol := &policy.DefaultPolicy{Dispatcher: &fakeDispatcher{}}
	svc := New(testConfig(), store, pol, nil)

	job, err := svc.Create(context.Background(), "alice", "", nil)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "mallory", job.JobID, 0, "", false)
	require.Error(t, err)
	var denied *uwsmodel.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestServiceStartRequiresPendingOrHeld(t *testing.T) {
	store := jobstore.NewMemStore()
	pol := &policy.DefaultPolicy{Dispatcher: &fakeDispatcher{messageID: "m1"}}
	svc := New(testConfig(), store, pol, nil)

	job, err := svc.Create(context.Background(), "alice", "", nil)
	require.NoError(t, err)

	messageID, err := svc.Start(context.Background(), "alice", job.JobID)
	require.NoError(t, err)
	require.Equal(t, "m1", messageID)

	_, err = svc.Start(context.Background(), "alice", job.JobID)
	require.Error(t, err)
	var invalid *uwsmodel.InvalidPhaseError
	require.ErrorAs(t, err, &invalid)
}

func TestServiceGetWaitReturnsOnPhaseChange(t *testing.T) {
	store := jobstore.NewMemStore()
	pol := &policy.DefaultPolicy{Dispatcher: &fakeDispatcher{messageID: "m1"}}
	svc := New(testConfig(), store, pol, nil)

	job, err := svc.Create(context.Background(), "alice", "", nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = svc.Start(context.Background(), "alice", job.JobID)
	}()

	got, err := svc.Get(context.Background(), "alice", job.JobID, 1, uwsmodel.Pending, false)
	require.NoError(t, err)
	require.Equal(t, uwsmodel.Queued, got.Phase)
}

func TestServiceUpdateDestructionRejectedByDefaultPolicy(t *testing.T) {
	store := jobstore.NewMemStore()
	pol := &policy.DefaultPolicy{Dispatcher: &fakeDispatcher{}}
	svc := New(testConfig(), store, pol, nil)

	job, err := svc.Create(context.Background(), "alice", "", nil)
	require.NoError(t, err)
	original := job.DestructionTime

	err = svc.UpdateDestruction(context.Background(), "alice", job.JobID, original.Add(24*time.Hour))
	require.NoError(t, err)

	got, err := store.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	require.True(t, got.DestructionTime.Equal(original), "default policy rejects destruction changes")
}
