// Copyright 2025 James Ross
package backendadapter

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/jobqueue"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Pool runs an event-loop-based backend worker: it concurrently pulls
// work messages, dispatching each to the Adapter, which serializes the
// user compute calls so that only one runs at a time per worker instance
// (spec.md §5's "pool size 1 per worker instance").
type Pool struct {
	queue          *jobqueue.Queue
	adapter        *Adapter
	log            *zap.Logger
	processingList string
	dequeueTimeout time.Duration
}

// NewPool builds a Pool delivering dequeued work messages to adapter.
func NewPool(queue *jobqueue.Queue, adapter *Adapter, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		queue:          queue,
		adapter:        adapter,
		log:            log,
		processingList: "uws:backend:processing",
		dequeueTimeout: 5 * time.Second,
	}
}

// Run blocks, dequeuing work messages and invoking the adapter for each
// until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		msg, err := p.queue.DequeueWork(ctx, p.processingList, p.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			p.log.Debug("work dequeue error", obs.Err(err))
			continue
		}
		go p.adapter.Run(ctx, msg, paramsFromArgs(msg.Args))
	}
}

// paramsFromArgs rebuilds a Parameter slice from a work message's args
// map, sorted by id for determinism; the original client-supplied
// insertion order already lives in JobStore and is not needed by the
// compute function itself.
func paramsFromArgs(args map[string]string) []uwsmodel.Parameter {
	ids := make([]string, 0, len(args))
	for id := range args {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	params := make([]uwsmodel.Parameter, len(ids))
	for i, id := range ids {
		params[i] = uwsmodel.Parameter{ID: id, Value: args[id]}
	}
	return params
}
