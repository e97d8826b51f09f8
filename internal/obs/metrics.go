// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uws_jobs_created_total",
		Help: "Total number of jobs created in PENDING phase",
	})
	JobsQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uws_jobs_queued_total",
		Help: "Total number of jobs transitioned to QUEUED",
	})
	JobsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uws_jobs_started_total",
		Help: "Total number of jobs transitioned to EXECUTING",
	})
	JobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uws_jobs_completed_total",
		Help: "Total number of jobs transitioned to COMPLETED",
	})
	JobsErrored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uws_jobs_errored_total",
		Help: "Total number of jobs transitioned to ERROR",
	})
	JobsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uws_jobs_expired_total",
		Help: "Total number of jobs destroyed by the expiration sweep",
	})
	JobPhaseTransitionRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uws_phase_transition_rejected_total",
		Help: "Guarded phase transitions rejected because the job had already moved on",
	}, []string{"from_phase", "to_phase"})
	JobRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "uws_job_run_duration_seconds",
		Help:    "Histogram of EXECUTING to terminal-phase durations",
		Buckets: prometheus.DefBuckets,
	})
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "uws_queue_depth",
		Help: "Current length of the work/uws Redis queues",
	}, []string{"queue"})
	StoreRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uws_store_serialization_retries_total",
		Help: "Total number of job store transactions retried after a serialization failure",
	})
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "uws_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	}, []string{"breaker"})
	CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uws_circuit_breaker_trips_total",
		Help: "Count of times a circuit breaker transitioned to Open",
	}, []string{"breaker"})
	TrackerUnknownJob = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uws_tracker_unknown_job_total",
		Help: "Total number of job_started/job_completed messages referencing a job the tracker could not find",
	})
	ResultURLsSigned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uws_result_urls_signed_total",
		Help: "Total number of presigned result URLs issued",
	})
)

func init() {
	prometheus.MustRegister(
		JobsCreated, JobsQueued, JobsStarted, JobsCompleted, JobsErrored,
		JobsExpired, JobPhaseTransitionRejected, JobRunDuration,
		QueueDepth, StoreRetries, CircuitBreakerState, CircuitBreakerTrips,
		TrackerUnknownJob, ResultURLsSigned,
	)
}

// StartMetricsServer exposes /metrics and returns a server for controlled
// shutdown. Prefer StartHTTPServer, which also registers health endpoints.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
