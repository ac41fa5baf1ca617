package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// JobNotifyChannel is the LISTEN/NOTIFY channel workers wake on.
const JobNotifyChannel = "processing_jobs"

type EnqueueJobParams struct {
	ID       uuid.UUID
	VideoID  uuid.UUID
	Kind     JobKind
	Language *string
	RunAfter time.Time
}

// EnqueueJob inserts a job unless a live job of the same kind already
// exists for the video. Returns false when the idempotency key collided.
func (q *Queries) EnqueueJob(ctx context.Context, params *EnqueueJobParams) (bool, error) {
	runAfter := params.RunAfter
	if runAfter.IsZero() {
		runAfter = time.Now()
	}
	tag, err := q.db.Exec(ctx, `
		INSERT INTO processing_jobs (id, video_id, kind, language, run_after)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (video_id, kind) DO NOTHING`,
		params.ID, params.VideoID, params.Kind, params.Language, runAfter)
	if err != nil {
		return false, fmt.Errorf("enqueue job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LeaseJob claims the oldest runnable job for a worker. A job is runnable
// when queued, or when leased with an expired lease (redelivery after a
// worker crash). SKIP LOCKED keeps concurrent workers from blocking on the
// same row; the lease makes the job invisible to other workers until it is
// acked, released, or the lease expires.
func (q *Queries) LeaseJob(ctx context.Context, workerID string, leaseFor time.Duration) (*Job, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE processing_jobs j SET
			state = 'leased',
			leased_by = $1,
			lease_expires_at = now() + $2,
			attempt_count = attempt_count + 1
		WHERE j.id = (
			SELECT id FROM processing_jobs
			WHERE run_after <= now()
			  AND (state = 'queued' OR (state = 'leased' AND lease_expires_at < now()))
			ORDER BY enqueued_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING j.id, j.video_id, j.kind, j.language, j.attempt_count, j.enqueued_at`,
		workerID, leaseFor)

	var job Job
	err := row.Scan(&job.ID, &job.VideoID, &job.Kind, &job.Language, &job.AttemptCount, &job.EnqueuedAt)
	if err != nil {
		return nil, err // pgx.ErrNoRows when the queue is empty
	}
	return &job, nil
}

// AckJob removes a completed job. Callers must record the resulting state
// transition durably before acking; a crash in between yields redelivery,
// never silent loss.
func (q *Queries) AckJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM processing_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// ReleaseJob returns a leased job to the queue with a delay before it
// becomes runnable again.
func (q *Queries) ReleaseJob(ctx context.Context, jobID uuid.UUID, backoff time.Duration, lastError string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE processing_jobs SET
			state = 'queued',
			leased_by = NULL,
			lease_expires_at = NULL,
			run_after = now() + $2,
			last_error = $3
		WHERE id = $1`, jobID, backoff, lastError)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return nil
}

// DeleteJobsForVideo removes all queued or leased jobs for a video. Used
// when a permanent failure takes the asset to FAILED.
func (q *Queries) DeleteJobsForVideo(ctx context.Context, videoID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM processing_jobs WHERE video_id = $1`, videoID)
	if err != nil {
		return fmt.Errorf("delete jobs for video: %w", err)
	}
	return nil
}

// CountQueuedJobs reports current queue depth for metrics.
func (q *Queries) CountQueuedJobs(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM processing_jobs WHERE state = 'queued'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued jobs: %w", err)
	}
	return n, nil
}

// NotifyJobEnqueued wakes workers blocked on the notify channel. Callers
// should send this after the enqueuing transaction commits.
func (q *Queries) NotifyJobEnqueued(ctx context.Context) error {
	_, err := q.db.Exec(ctx, `NOTIFY `+JobNotifyChannel)
	if err != nil {
		return fmt.Errorf("notify job enqueued: %w", err)
	}
	return nil
}

// IsNoRows reports whether err is the empty-queue sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
