// Copyright 2025 James Ross
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/breaker"
	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
)

// Store is the durable, Postgres-backed JobStore: the sole source of truth
// for job state, serializing concurrent transitions per job row.
type Store struct {
	db      *sql.DB
	breaker *breaker.CircuitBreaker
	log     *zap.Logger
}

// New opens a connection pool against cfg.Database.URL and verifies it with
// a Ping, mirroring the teacher's budgeting service's NewBudgetService.
func New(cfg *config.Config, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cb := breaker.NewNamed("jobstore", cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod,
		cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples, publishBreakerState)

	return &Store{db: db, breaker: cb, log: log}, nil
}

func publishBreakerState(name string, s breaker.State) {
	obs.CircuitBreakerState.WithLabelValues(name).Set(float64(s))
	if s == breaker.Open {
		obs.CircuitBreakerTrips.WithLabelValues(name).Inc()
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// isSerializationFailure matches Postgres SQLSTATE 40001, the code
// REPEATABLE READ raises when a transaction cannot be serialized against
// concurrent writers to the same row.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001"
	}
	return false
}

// withRepeatableReadRetry runs fn inside a REPEATABLE READ transaction,
// retrying exactly once if the commit fails on a serialization error. This
// is the guard §4.1 requires for mark_queued/mark_executing/etc so that
// out-of-order job_started/job_completed deliveries cannot corrupt state.
func (s *Store) withRepeatableReadRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if !s.breaker.Allow() {
		return fmt.Errorf("jobstore: circuit open")
	}
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			s.breaker.Record(true)
			return nil
		}
		lastErr = err
		if !isSerializationFailure(err) {
			s.breaker.Record(true)
			return err
		}
		obs.StoreRetries.Inc()
		if s.log != nil {
			s.log.Debug("retrying job store transaction after serialization failure", zap.Int("attempt", attempt))
		}
	}
	s.breaker.Record(false)
	return lastErr
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
