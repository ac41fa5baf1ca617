package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Store wraps a DatabaseConnection with the multi-statement operations the
// pipeline needs on top of Queries.
type Store struct {
	dbc *DatabaseConnection
}

func NewStore(dbc *DatabaseConnection) *Store {
	return &Store{dbc: dbc}
}

// CreateVideoWithJob inserts the PENDING video record and its initial
// transcode job in one transaction, so a crash or error can never leave a
// record without a job or a job without a record. The worker wake
// notification goes out only after commit.
func (s *Store) CreateVideoWithJob(ctx context.Context, video *InsertVideoParams, job *EnqueueJobParams) (*Video, error) {
	q, tx, err := s.dbc.NewWithTX(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	v, err := q.InsertVideo(ctx, video)
	if err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}

	enqueued, err := q.EnqueueJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	if !enqueued {
		return nil, fmt.Errorf("create video: job already enqueued for %s", video.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create video: commit: %w", err)
	}

	if err := s.Queries(ctx).NotifyJobEnqueued(ctx); err != nil {
		// Workers poll periodically; a missed wake only delays pickup.
		slog.Error("failed to notify workers", "video_id", video.ID, "error", err)
	}

	return v, nil
}

// ResetVideoWithJob returns a FAILED video to PENDING and enqueues its
// fresh transcode job in one transaction, mirroring CreateVideoWithJob:
// the status never changes without the job existing. Returns false when
// the video is not FAILED.
func (s *Store) ResetVideoWithJob(ctx context.Context, videoID uuid.UUID, job *EnqueueJobParams) (bool, error) {
	q, tx, err := s.dbc.NewWithTX(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	reset, err := q.ResetVideoForResubmission(ctx, videoID)
	if err != nil {
		return false, fmt.Errorf("reset video: %w", err)
	}
	if !reset {
		return false, nil
	}

	enqueued, err := q.EnqueueJob(ctx, job)
	if err != nil {
		return false, fmt.Errorf("reset video: %w", err)
	}
	if !enqueued {
		return false, fmt.Errorf("reset video: job already enqueued for %s", videoID)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("reset video: commit: %w", err)
	}

	if err := s.Queries(ctx).NotifyJobEnqueued(ctx); err != nil {
		slog.Error("failed to notify workers", "video_id", videoID, "error", err)
	}

	return true, nil
}

// EnqueueJobAndNotify enqueues a follow-up job and wakes workers.
func (s *Store) EnqueueJobAndNotify(ctx context.Context, job *EnqueueJobParams) (bool, error) {
	q := s.Queries(ctx)
	enqueued, err := q.EnqueueJob(ctx, job)
	if err != nil || !enqueued {
		return enqueued, err
	}
	if err := q.NotifyJobEnqueued(ctx); err != nil {
		slog.Error("failed to notify workers", "video_id", job.VideoID, "error", err)
	}
	return true, nil
}

func (s *Store) Queries(ctx context.Context) *Queries {
	return s.dbc.Queries(ctx)
}

// Query passthroughs so the Store satisfies the pipeline's narrow store
// interfaces.

func (s *Store) GetVideoByID(ctx context.Context, id uuid.UUID) (*Video, error) {
	return s.Queries(ctx).GetVideoByID(ctx, id)
}

func (s *Store) MarkVideoProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.Queries(ctx).MarkVideoProcessing(ctx, id)
}

func (s *Store) MarkVideoReady(ctx context.Context, params *MarkVideoReadyParams) (bool, error) {
	return s.Queries(ctx).MarkVideoReady(ctx, params)
}

func (s *Store) MarkVideoFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return s.Queries(ctx).MarkVideoFailed(ctx, id, reason)
}

func (s *Store) SetVideoThumbnail(ctx context.Context, id uuid.UUID, thumbnailKey string) error {
	return s.Queries(ctx).SetVideoThumbnail(ctx, id, thumbnailKey)
}

func (s *Store) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	return s.Queries(ctx).DeleteVideo(ctx, id)
}

func (s *Store) DeleteJobsForVideo(ctx context.Context, videoID uuid.UUID) error {
	return s.Queries(ctx).DeleteJobsForVideo(ctx, videoID)
}

func (s *Store) NotifyVideoStatus(ctx context.Context, videoID uuid.UUID, status VideoStatus) error {
	return s.Queries(ctx).NotifyVideoStatus(ctx, videoID, status)
}
