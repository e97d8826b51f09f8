// Copyright 2025 James Ross
package tracker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/jobstore"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
)

// Expirer runs the scheduled expiration sweep of spec.md §4.5: a
// cron-style task that deletes any job with destruction_time <= now.
type Expirer struct {
	store    jobstore.JobStore
	log      *zap.Logger
	schedule string
}

// NewExpirer builds an Expirer running on cfg.UWS.ExpirationCheckSchedule
// (a standard cron expression, e.g. "@every 1m").
func NewExpirer(cfg *config.Config, store jobstore.JobStore, log *zap.Logger) *Expirer {
	if log == nil {
		log = zap.NewNop()
	}
	schedule := cfg.UWS.ExpirationCheckSchedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &Expirer{store: store, log: log, schedule: schedule}
}

// Run starts the cron scheduler and blocks until ctx is cancelled.
func (e *Expirer) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(e.schedule, func() { e.sweepOnce(ctx) })
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	return ctx.Err()
}

func (e *Expirer) sweepOnce(ctx context.Context) {
	n, err := e.store.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		e.log.Error("expiration sweep failed", obs.Err(err))
		return
	}
	if n > 0 {
		e.log.Info("expired jobs past destruction_time", obs.Int("count", n))
	}
}
