// Copyright 2025 James Ross
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Result is what the backend eventually materializes for a dispatched
// message: either a success payload (result descriptors) or a classified
// failure.
type Result struct {
	Success bool              `json:"success"`
	Results []uwsmodel.Result `json:"results,omitempty"`
	Error   *ResultError      `json:"error,omitempty"`
}

// ResultError mirrors uwsmodel.TaskError in a JSON-serializable shape,
// since it must survive transit through the queue's result store.
type ResultError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// SetInProgress marks a message as claimed by a backend worker, so
// GetResult can distinguish "still running" from "never existed".
func (q *Queue) SetInProgress(ctx context.Context, messageID string) error {
	return q.rdb.Set(ctx, q.inProgressKeyFor(messageID), 1, q.inProgress).Err()
}

// SetComplete records the final result for messageID, available to the
// tracker via GetResult until resultTTL elapses, and clears the message's
// in-progress marker.
func (q *Queue) SetComplete(ctx context.Context, messageID string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := q.rdb.Set(ctx, q.keyFor(messageID), payload, q.resultTTL).Err(); err != nil {
		return err
	}
	return q.rdb.Del(ctx, q.inProgressKeyFor(messageID)).Err()
}

// GetResult fetches the final result for messageID. Returns
// *uwsmodel.JobResultUnavailable while the backend is still running (the
// in-progress marker is set but no result yet), or
// *uwsmodel.JobNotFoundInQueue if neither a result nor an in-progress
// marker is present (nothing was recorded, or the result has expired).
func (q *Queue) GetResult(ctx context.Context, messageID string) (*Result, error) {
	v, err := q.rdb.Get(ctx, q.keyFor(messageID)).Result()
	if err == nil {
		var r Result
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		return &r, nil
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("get result: %w", err)
	}

	inProgress, err := q.rdb.Exists(ctx, q.inProgressKeyFor(messageID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check in-progress marker: %w", err)
	}
	if inProgress > 0 {
		return nil, &uwsmodel.JobResultUnavailable{MessageID: messageID}
	}
	return nil, &uwsmodel.JobNotFoundInQueue{MessageID: messageID}
}
