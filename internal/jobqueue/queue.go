// Copyright 2025 James Ross
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/breaker"
	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
)

// Queue is the Redis-backed abstraction over two logical queues — work
// (frontend to backend) and uws (backend to tracker) — plus a result
// store keyed by message id. Delivery is at-least-once; consumers must be
// idempotent (guaranteed upstream by jobstore's guarded transitions).
type Queue struct {
	rdb         *redis.Client
	workQueue   string
	uwsQueue    string
	resultTTL   time.Duration
	inProgress  time.Duration
	breaker     *breaker.CircuitBreaker
	log         *zap.Logger
}

// New dials Redis per cfg.Redis and returns a Queue bound to the
// configured work/uws queue names.
func New(cfg *config.Config, log *zap.Logger) *Queue {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
	})
	cb := breaker.NewNamed("jobqueue", cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod,
		cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples, publishBreakerState)
	return NewWithClient(rdb, cfg.Queue.WorkQueueName, cfg.Queue.UWSQueueName, cb, log)
}

// NewWithClient builds a Queue around an already-constructed redis.Client,
// letting tests point it at a miniredis instance.
func NewWithClient(rdb *redis.Client, workQueue, uwsQueue string, cb *breaker.CircuitBreaker, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	if cb == nil {
		cb = breaker.New(time.Minute, 30*time.Second, 0.5, 20)
	}
	return &Queue{
		rdb:        rdb,
		workQueue:  workQueue,
		uwsQueue:   uwsQueue,
		resultTTL:  10 * time.Minute,
		inProgress: 24 * time.Hour,
		breaker:    cb,
		log:        log,
	}
}

func publishBreakerState(name string, s breaker.State) {
	obs.CircuitBreakerState.WithLabelValues(name).Set(float64(s))
	if s == breaker.Open {
		obs.CircuitBreakerTrips.WithLabelValues(name).Inc()
	}
}

// WorkMessage is the payload enqueued on the work queue: a backend task
// invocation. Args carries the Policy-constructed, backend-specific
// payload built by Policy.Dispatch.
type WorkMessage struct {
	MessageID         string            `json:"message_id"`
	JobID             string            `json:"job_id"`
	TaskName          string            `json:"task_name"`
	Args              map[string]string `json:"args"`
	ExecutionDuration int               `json:"job_timeout"`
}

// UWSEvent is the payload enqueued on the uws queue by BackendAdapter.
type UWSEvent struct {
	Type      string    `json:"type"` // "job_started" or "job_completed"
	JobID     string    `json:"job_id"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RawClient exposes the underlying Redis client for callers that need to
// sample queue depth or health (obs.StartQueueDepthUpdater) without
// duplicating connection wiring.
func (q *Queue) RawClient() *redis.Client { return q.rdb }

func (q *Queue) keyFor(messageID string) string { return "uws:result:" + messageID }
func (q *Queue) inProgressKeyFor(messageID string) string { return "uws:inprogress:" + messageID }

// Enqueue pushes a work message and returns the generated message id.
func (q *Queue) Enqueue(ctx context.Context, jobID, taskName string, args map[string]string, executionDuration int) (string, error) {
	if !q.breaker.Allow() {
		return "", fmt.Errorf("jobqueue: circuit open")
	}
	msg := WorkMessage{
		MessageID:         uuid.NewString(),
		JobID:             jobID,
		TaskName:          taskName,
		Args:              args,
		ExecutionDuration: executionDuration,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal work message: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.workQueue, payload).Err(); err != nil {
		q.breaker.Record(false)
		return "", fmt.Errorf("enqueue work message: %w", err)
	}
	q.breaker.Record(true)
	return msg.MessageID, nil
}

// EnqueueStarted pushes job_started onto the uws queue.
func (q *Queue) EnqueueStarted(ctx context.Context, jobID, messageID string, startTime time.Time) error {
	return q.enqueueUWS(ctx, UWSEvent{Type: "job_started", JobID: jobID, MessageID: messageID, Timestamp: startTime.UTC()})
}

// EnqueueCompleted pushes job_completed onto the uws queue.
func (q *Queue) EnqueueCompleted(ctx context.Context, jobID, messageID string) error {
	return q.enqueueUWS(ctx, UWSEvent{Type: "job_completed", JobID: jobID, MessageID: messageID, Timestamp: time.Now().UTC()})
}

func (q *Queue) enqueueUWS(ctx context.Context, ev UWSEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal uws event: %w", err)
	}
	return q.rdb.LPush(ctx, q.uwsQueue, payload).Err()
}

// DequeueWork blocks up to timeout waiting for a work message, moving it
// onto processingList for crash visibility, mirroring the teacher's
// BRPopLPush idiom. Returns redis.Nil (unwrapped) when nothing arrived.
func (q *Queue) DequeueWork(ctx context.Context, processingList string, timeout time.Duration) (*WorkMessage, error) {
	v, err := q.rdb.BRPopLPush(ctx, q.workQueue, processingList, timeout).Result()
	if err != nil {
		return nil, err
	}
	var msg WorkMessage
	if err := json.Unmarshal([]byte(v), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal work message: %w", err)
	}
	return &msg, nil
}

// DequeueUWSEvent blocks up to timeout waiting for a uws event.
func (q *Queue) DequeueUWSEvent(ctx context.Context, processingList string, timeout time.Duration) (*UWSEvent, error) {
	v, err := q.rdb.BRPopLPush(ctx, q.uwsQueue, processingList, timeout).Result()
	if err != nil {
		return nil, err
	}
	var ev UWSEvent
	if err := json.Unmarshal([]byte(v), &ev); err != nil {
		return nil, fmt.Errorf("unmarshal uws event: %w", err)
	}
	return &ev, nil
}
