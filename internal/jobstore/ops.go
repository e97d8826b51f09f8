// Copyright 2025 James Ross
package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/lsst-uws/go-uws-engine/internal/breaker"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Add inserts a new job in PENDING with creation_time=now and
// destruction_time=now+lifetime.
func (s *Store) Add(ctx context.Context, owner, runID string, params []uwsmodel.Parameter, executionDuration int, lifetime time.Duration) (*uwsmodel.Job, error) {
	now := time.Now().UTC()
	job := &uwsmodel.Job{
		Owner:             owner,
		RunID:             runID,
		Phase:             uwsmodel.Pending,
		Parameters:        params,
		CreationTime:      now,
		DestructionTime:   now.Add(lifetime),
		ExecutionDuration: executionDuration,
	}

	err := s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		var jobID string
		row := tx.QueryRowContext(ctx, `SELECT nextval('job_id_seq')::text`)
		if err := row.Scan(&jobID); err != nil {
			return fmt.Errorf("allocate job id: %w", err)
		}
		job.JobID = jobID

		_, err := tx.ExecContext(ctx, `
			INSERT INTO job (job_id, owner, run_id, phase, creation_time, destruction_time, execution_duration)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			job.JobID, job.Owner, nullString(job.RunID), string(job.Phase), job.CreationTime, job.DestructionTime, job.ExecutionDuration)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		for i, p := range job.Parameters {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO job_parameter (job_id, insertion_index, parameter_id, value, is_post)
				VALUES ($1, $2, $3, $4, $5)`,
				job.JobID, i, p.ID, p.Value, p.FromPost)
			if err != nil {
				return fmt.Errorf("insert job_parameter: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obs.JobsCreated.Inc()
	return job, nil
}

// Get loads a job, its parameters, and its results. Returns
// *uwsmodel.UnknownJobError if no row matches.
func (s *Store) Get(ctx context.Context, jobID string) (*uwsmodel.Job, error) {
	var job *uwsmodel.Job
	err := s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		var err error
		job, err = getJobTx(ctx, tx, jobID)
		return err
	})
	return job, err
}

func getJobTx(ctx context.Context, tx *sql.Tx, jobID string) (*uwsmodel.Job, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT job_id, owner, run_id, phase, message_id, error_type, error_code,
		       error_message, error_detail, creation_time, start_time, end_time,
		       destruction_time, execution_duration, quote
		FROM job WHERE job_id = $1`, jobID)

	var (
		j                                      uwsmodel.Job
		runID, messageID                       sql.NullString
		errType, errCode, errMsg, errDetail    sql.NullString
		startTime, endTime, quote              sql.NullTime
		phase                                  string
	)
	if err := row.Scan(&j.JobID, &j.Owner, &runID, &phase, &messageID, &errType, &errCode,
		&errMsg, &errDetail, &j.CreationTime, &startTime, &endTime, &j.DestructionTime,
		&j.ExecutionDuration, &quote); err != nil {
		if err == sql.ErrNoRows {
			return nil, &uwsmodel.UnknownJobError{JobID: jobID}
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Phase = uwsmodel.Phase(phase)
	j.RunID = runID.String
	j.MessageID = messageID.String
	if startTime.Valid {
		t := startTime.Time.UTC()
		j.StartTime = &t
	}
	if endTime.Valid {
		t := endTime.Time.UTC()
		j.EndTime = &t
	}
	if quote.Valid {
		t := quote.Time.UTC()
		j.Quote = &t
	}
	j.CreationTime = j.CreationTime.UTC()
	j.DestructionTime = j.DestructionTime.UTC()
	if errType.Valid {
		j.Err = &uwsmodel.JobError{
			Type:    uwsmodel.ErrorType(errType.String),
			Code:    uwsmodel.ErrorCode(errCode.String),
			Message: errMsg.String,
			Detail:  errDetail.String,
		}
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT parameter_id, value, is_post FROM job_parameter
		WHERE job_id = $1 ORDER BY insertion_index ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job_parameter: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p uwsmodel.Parameter
		if err := rows.Scan(&p.ID, &p.Value, &p.FromPost); err != nil {
			return nil, fmt.Errorf("scan job_parameter: %w", err)
		}
		j.Parameters = append(j.Parameters, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resRows, err := tx.QueryContext(ctx, `
		SELECT result_id, url, size, mime_type FROM job_result
		WHERE job_id = $1 ORDER BY sequence ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job_result: %w", err)
	}
	defer resRows.Close()
	for resRows.Next() {
		var r uwsmodel.Result
		var size sql.NullInt64
		var mime sql.NullString
		if err := resRows.Scan(&r.ResultID, &r.URL, &size, &mime); err != nil {
			return nil, fmt.Errorf("scan job_result: %w", err)
		}
		if size.Valid {
			v := size.Int64
			r.Size = &v
		}
		r.MimeType = mime.String
		j.Results = append(j.Results, r)
	}
	if err := resRows.Err(); err != nil {
		return nil, err
	}

	return &j, nil
}

// List returns job descriptions owned by owner, filtered by phase and
// creation time, most recent first.
func (s *Store) List(ctx context.Context, owner string, phases []uwsmodel.Phase, after *time.Time, count int) ([]uwsmodel.Description, error) {
	query := `SELECT job_id, owner, run_id, phase, creation_time FROM job WHERE owner = $1`
	args := []interface{}{owner}

	if len(phases) > 0 {
		query += " AND phase = ANY($2)"
		strs := make([]string, len(phases))
		for i, p := range phases {
			strs[i] = string(p)
		}
		args = append(args, pq.Array(strs))
	}
	if after != nil {
		query += fmt.Sprintf(" AND creation_time > $%d", len(args)+1)
		args = append(args, *after)
	}
	query += " ORDER BY creation_time DESC"
	if count > 0 {
		query += fmt.Sprintf(" LIMIT %d", count)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []uwsmodel.Description
	for rows.Next() {
		var d uwsmodel.Description
		var runID sql.NullString
		var phase string
		if err := rows.Scan(&d.JobID, &d.Owner, &runID, &phase, &d.CreationTime); err != nil {
			return nil, fmt.Errorf("scan job description: %w", err)
		}
		d.RunID = runID.String
		d.Phase = uwsmodel.Phase(phase)
		d.CreationTime = d.CreationTime.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete removes a job; job_parameter and job_result rows cascade.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	return s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM job WHERE job_id = $1`, jobID)
		if err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return &uwsmodel.UnknownJobError{JobID: jobID}
		}
		return nil
	})
}

// MarkQueued sets message_id and advances phase to QUEUED, but only if the
// job is currently PENDING or HELD — guarding against a late mark_queued
// arriving after the tracker has already moved the job further along.
func (s *Store) MarkQueued(ctx context.Context, jobID, messageID string) error {
	var advanced bool
	err := s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		advanced = false
		cur, err := currentPhaseTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if cur != uwsmodel.Pending && cur != uwsmodel.Held {
			obs.JobPhaseTransitionRejected.WithLabelValues(string(cur), string(uwsmodel.Queued)).Inc()
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE job SET phase = $1, message_id = $2 WHERE job_id = $3`,
			string(uwsmodel.Queued), messageID, jobID)
		advanced = err == nil
		return err
	})
	if err == nil && advanced {
		obs.JobsQueued.Inc()
	}
	return err
}

// MarkExecuting sets start_time, and advances phase to EXECUTING only if
// the job is currently PENDING or QUEUED.
func (s *Store) MarkExecuting(ctx context.Context, jobID string, startTime time.Time) error {
	var advanced bool
	err := s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		advanced = false
		cur, err := currentPhaseTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if cur != uwsmodel.Pending && cur != uwsmodel.Queued {
			obs.JobPhaseTransitionRejected.WithLabelValues(string(cur), string(uwsmodel.Executing)).Inc()
			_, err = tx.ExecContext(ctx, `UPDATE job SET start_time = $1 WHERE job_id = $2`, startTime.UTC(), jobID)
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE job SET phase = $1, start_time = $2 WHERE job_id = $3`,
			string(uwsmodel.Executing), startTime.UTC(), jobID)
		advanced = err == nil
		return err
	})
	if err == nil && advanced {
		obs.JobsStarted.Inc()
	}
	return err
}

// MarkCompleted sets end_time, results, and phase=COMPLETED unconditionally
// — a terminal write always wins per I4.
func (s *Store) MarkCompleted(ctx context.Context, jobID string, results []uwsmodel.Result) error {
	now := time.Now().UTC()
	var startTime sql.NullTime
	err := s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`UPDATE job SET phase = $1, end_time = $2 WHERE job_id = $3 RETURNING start_time`,
			string(uwsmodel.Completed), now, jobID)
		if err := row.Scan(&startTime); err != nil {
			return fmt.Errorf("update job completed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_result WHERE job_id = $1`, jobID); err != nil {
			return fmt.Errorf("clear job_result: %w", err)
		}
		for i, r := range results {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO job_result (job_id, sequence, result_id, url, size, mime_type)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				jobID, i, r.ResultID, r.URL, r.Size, nullString(r.MimeType))
			if err != nil {
				return fmt.Errorf("insert job_result: %w", err)
			}
		}
		return nil
	})
	if err == nil {
		obs.JobsCompleted.Inc()
		observeRunDuration(startTime, now)
	}
	return err
}

// MarkFailed sets end_time, error, and phase=ERROR unconditionally.
func (s *Store) MarkFailed(ctx context.Context, jobID string, jobErr *uwsmodel.JobError) error {
	now := time.Now().UTC()
	var startTime sql.NullTime
	err := s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE job SET phase = $1, end_time = $2, error_type = $3, error_code = $4,
			       error_message = $5, error_detail = $6
			WHERE job_id = $7
			RETURNING start_time`,
			string(uwsmodel.Error), now, string(jobErr.Type), string(jobErr.Code),
			jobErr.Message, nullString(jobErr.Detail), jobID)
		return row.Scan(&startTime)
	})
	if err == nil {
		obs.JobsErrored.Inc()
		observeRunDuration(startTime, now)
	}
	return err
}

// observeRunDuration records the EXECUTING-to-terminal-phase duration, when
// the job actually reached EXECUTING (start_time set) before terminating.
// A job that failed before being started (e.g. the tracker never saw
// job_started) has no meaningful run duration to report.
func observeRunDuration(startTime sql.NullTime, endTime time.Time) {
	if !startTime.Valid {
		return
	}
	obs.JobRunDuration.Observe(endTime.Sub(startTime.Time).Seconds())
}

// UpdateDestruction sets a new destruction_time.
func (s *Store) UpdateDestruction(ctx context.Context, jobID string, t time.Time) error {
	return s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE job SET destruction_time = $1 WHERE job_id = $2`, t.UTC(), jobID)
		return err
	})
}

// UpdateExecutionDuration sets a new execution_duration in seconds.
func (s *Store) UpdateExecutionDuration(ctx context.Context, jobID string, d int) error {
	return s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE job SET execution_duration = $1 WHERE job_id = $2`, d, jobID)
		return err
	})
}

// Availability reports whether the store can currently serve requests; it
// degrades to unavailable once the circuit breaker trips open.
func (s *Store) Availability(ctx context.Context) uwsmodel.Availability {
	if s.breaker.State() == breaker.Open {
		return uwsmodel.Availability{Available: false, Note: "job store circuit breaker open"}
	}
	if err := s.db.PingContext(ctx); err != nil {
		return uwsmodel.Availability{Available: false, Note: err.Error()}
	}
	return uwsmodel.Availability{Available: true}
}

// ExpireDue deletes every job whose destruction_time has passed, returning
// the number removed. Used by the scheduled expiration sweep.
func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	var n int64
	err := s.withRepeatableReadRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM job WHERE destruction_time <= $1`, now.UTC())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err == nil && n > 0 {
		obs.JobsExpired.Add(float64(n))
	}
	return int(n), err
}

func currentPhaseTx(ctx context.Context, tx *sql.Tx, jobID string) (uwsmodel.Phase, error) {
	var phase string
	row := tx.QueryRowContext(ctx, `SELECT phase FROM job WHERE job_id = $1 FOR UPDATE`, jobID)
	if err := row.Scan(&phase); err != nil {
		if err == sql.ErrNoRows {
			return "", &uwsmodel.UnknownJobError{JobID: jobID}
		}
		return "", fmt.Errorf("select phase for update: %w", err)
	}
	return uwsmodel.Phase(phase), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
