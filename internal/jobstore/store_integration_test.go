//go:build integration

// Copyright 2025 James Ross
package jobstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// TestStoreAgainstLiveDatabase exercises the real database/sql + lib/pq
// code path. It only runs when UWS_TEST_DATABASE_URL is set and the
// integration build tag is passed (go test -tags integration ./...), so
// it never runs as part of the default unit test suite.
func TestStoreAgainstLiveDatabase(t *testing.T) {
	dsn := os.Getenv("UWS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("UWS_TEST_DATABASE_URL not set")
	}
	cfg := &config.Config{Database: config.Database{
		URL:          dsn,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		ConnTimeout:  5 * time.Second,
	}}
	cfg.CircuitBreaker.FailureThreshold = 0.5
	cfg.CircuitBreaker.Window = time.Minute
	cfg.CircuitBreaker.CooldownPeriod = 30 * time.Second
	cfg.CircuitBreaker.MinSamples = 20

	store, err := New(cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.db.ExecContext(ctx, Schema)
	require.NoError(t, err)

	job, err := store.Add(ctx, "someone", "run-1", []uwsmodel.Parameter{{ID: "pos", Value: "RANGE 0 360 -2 2"}}, 3600, time.Hour)
	require.NoError(t, err)
	require.Equal(t, uwsmodel.Pending, job.Phase)

	require.NoError(t, store.MarkQueued(ctx, job.JobID, "msg-1"))
	got, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, uwsmodel.Queued, got.Phase)

	require.NoError(t, store.Delete(ctx, job.JobID))
}
