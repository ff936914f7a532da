// ABOUTME: Store methods for the background job queue.
// ABOUTME: Claims use FOR UPDATE SKIP LOCKED inside a pgx native transaction.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ClaimJob atomically claims one queued job from the named queue for the
// given workerID using FOR UPDATE SKIP LOCKED. A job whose lock_key matches
// another currently running job is skipped. Returns (nil, nil) when no job
// is currently available.
func (s *Store) ClaimJob(ctx context.Context, queue, workerID string) (*Job, error) {
	var job Job
	err := s.withPgxTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			UPDATE job_queue SET
				status = 'running',
				locked_by = $2,
				locked_at = now(),
				attempts = attempts + 1,
				updated_at = now()
			WHERE id = (
				SELECT id FROM job_queue j
				WHERE j.queue = $1 AND j.status = 'queued' AND j.run_after <= now()
				  AND (j.lock_key IS NULL OR NOT EXISTS (
					SELECT 1 FROM job_queue r
					WHERE r.status = 'running' AND r.lock_key = j.lock_key
				  ))
				ORDER BY j.priority, j.run_after
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			RETURNING id, queue, payload, attempts`,
			queue, workerID).
			Scan(&job.ID, &job.Queue, &job.Payload, &job.Attempts)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// CompleteJob marks a job as succeeded.
func (s *Store) CompleteJob(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE job_queue SET status = 'done', locked_by = NULL, locked_at = NULL,
			last_error = NULL, updated_at = now()
		WHERE id = $1`, id); err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return nil
}

// FailJob marks a job as failed, applying exponential backoff for retry or
// moving it to 'dead' status once max_attempts is exhausted.
func (s *Store) FailJob(ctx context.Context, id int64, errMsg string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE job_queue SET
			status = CASE WHEN attempts >= max_attempts THEN 'dead' ELSE 'queued' END,
			run_after = now() + (interval '30 seconds' * power(2, attempts)),
			locked_by = NULL, locked_at = NULL,
			last_error = NULLIF($2, ''),
			updated_at = now()
		WHERE id = $1`, id, errMsg); err != nil {
		return fmt.Errorf("fail job %d: %w", id, err)
	}
	return nil
}

// RecoverStaleJobs resets jobs stuck in 'running' state longer than
// staleAfter back to 'queued'. Returns the number of jobs recovered.
func (s *Store) RecoverStaleJobs(ctx context.Context, staleAfter time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_queue SET status = 'queued', locked_by = NULL, locked_at = NULL,
			updated_at = now()
		WHERE status = 'running' AND locked_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(staleAfter.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// EnqueueJob inserts a new job into the named queue and returns its ID.
// lockKey prevents concurrent execution of jobs with the same key.
// runAfter defaults to now() when nil.
func (s *Store) EnqueueJob(
	ctx context.Context,
	queue string,
	priority int32,
	payload json.RawMessage,
	lockKey *string,
	maxAttempts int32,
	runAfter *time.Time,
) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO job_queue (queue, priority, payload, lock_key, max_attempts, run_after)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		RETURNING id`,
		queue, priority, payload, lockKey, maxAttempts, runAfter).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}
