// package ingest owns the lifecycle of an uploaded video from PENDING to a
// terminal state. All status mutations go through the state machine;
// transitions are compare-and-set against the current status, never blind
// overwrites, so late or duplicate worker callbacks cannot corrupt a
// terminal asset.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/metrics"
	"loopcast.media/loopcast/internal/storage"
)

// Store is the durable record and job surface the state machine drives.
// *db.Store implements it; tests use fakes.
type Store interface {
	CreateVideoWithJob(ctx context.Context, video *db.InsertVideoParams, job *db.EnqueueJobParams) (*db.Video, error)
	EnqueueJobAndNotify(ctx context.Context, job *db.EnqueueJobParams) (bool, error)
	GetVideoByID(ctx context.Context, id uuid.UUID) (*db.Video, error)
	MarkVideoProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkVideoReady(ctx context.Context, params *db.MarkVideoReadyParams) (bool, error)
	MarkVideoFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ResetVideoWithJob(ctx context.Context, videoID uuid.UUID, job *db.EnqueueJobParams) (bool, error)
	SetVideoThumbnail(ctx context.Context, id uuid.UUID, thumbnailKey string) error
	DeleteVideo(ctx context.Context, id uuid.UUID) error
	DeleteJobsForVideo(ctx context.Context, videoID uuid.UUID) error
	NotifyVideoStatus(ctx context.Context, videoID uuid.UUID, status db.VideoStatus) error
}

// StateMachine issues jobs and applies worker callbacks to video records.
type StateMachine struct {
	store       Store
	blobs       storage.BlobStore
	hub         *Hub
	maxRetries  int
	backoffBase time.Duration
}

func NewStateMachine(store Store, blobs storage.BlobStore, hub *Hub, maxRetries int, backoffBase time.Duration) *StateMachine {
	return &StateMachine{
		store:       store,
		blobs:       blobs,
		hub:         hub,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
	}
}

type SubmitParams struct {
	OwnerID     uuid.UUID
	Title       string
	Description string
	Filename    string
	Raw         io.Reader

	// CaptionLanguage is an optional BCP-47 tag for the caption job.
	CaptionLanguage string
}

// Submit stores the raw file, creates the PENDING record and enqueues the
// transcode job — exactly once per call. The blob write happens first;
// record and job are created in one transaction, and a failure after the
// blob write compensates by deleting the blob. There is no retry-by-
// duplication anywhere on this path.
func (m *StateMachine) Submit(ctx context.Context, params *SubmitParams) (*db.Video, error) {
	videoID := uuid.New()

	var lang *string
	if params.CaptionLanguage != "" {
		tag, err := language.Parse(params.CaptionLanguage)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCaptionLanguage, params.CaptionLanguage)
		}
		s := tag.String()
		lang = &s
	}

	rawKey := rawStorageKey(videoID, params.Filename)
	if err := m.blobs.Put(ctx, rawKey, params.Raw); err != nil {
		metrics.Uploads.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("submit: store raw file: %w", err)
	}

	video, err := m.store.CreateVideoWithJob(ctx,
		&db.InsertVideoParams{
			ID:            videoID,
			OwnerID:       params.OwnerID,
			Title:         params.Title,
			Description:   params.Description,
			StorageKeyRaw: rawKey,
		},
		&db.EnqueueJobParams{
			ID:       uuid.New(),
			VideoID:  videoID,
			Kind:     db.JobKindTranscode,
			Language: lang,
		})
	if err != nil {
		// Compensate: the blob must not outlive a failed submission.
		if delErr := m.blobs.Delete(ctx, rawKey); delErr != nil {
			slog.Error("failed to clean up raw blob after failed submit",
				"video_id", videoID, "key", rawKey, "error", delErr)
		}
		metrics.Uploads.WithLabelValues("record_error").Inc()
		return nil, fmt.Errorf("submit: %w", err)
	}

	metrics.Uploads.WithLabelValues("accepted").Inc()
	m.publish(ctx, videoID, db.VideoStatusPending)
	return video, nil
}

// Resubmit resets a FAILED asset to PENDING and enqueues a fresh transcode
// job — in one transaction, so a failed enqueue leaves the asset FAILED
// and re-submittable rather than PENDING with no job. Only the owner may
// re-submit, and only from FAILED.
func (m *StateMachine) Resubmit(ctx context.Context, videoID, requesterID uuid.UUID) (*db.Video, error) {
	video, err := m.store.GetVideoByID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("resubmit: %w", err)
	}
	if video.OwnerID != requesterID {
		return nil, ErrNotOwner
	}

	reset, err := m.store.ResetVideoWithJob(ctx, videoID, &db.EnqueueJobParams{
		ID:      uuid.New(),
		VideoID: videoID,
		Kind:    db.JobKindTranscode,
	})
	if err != nil {
		return nil, fmt.Errorf("resubmit: %w", err)
	}
	if !reset {
		return nil, fmt.Errorf("%w: %s", ErrNotResubmittable, videoID)
	}

	m.publish(ctx, videoID, db.VideoStatusPending)
	return m.store.GetVideoByID(ctx, videoID)
}

// Delete removes a video and its derived artifacts. Owner-only.
func (m *StateMachine) Delete(ctx context.Context, videoID, requesterID uuid.UUID) error {
	video, err := m.store.GetVideoByID(ctx, videoID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if video.OwnerID != requesterID {
		return ErrNotOwner
	}

	if err := m.store.DeleteVideo(ctx, videoID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	for _, key := range []*string{&video.StorageKeyRaw, video.StorageKeyPlayable, video.ThumbnailKey} {
		if key == nil || *key == "" {
			continue
		}
		if err := m.blobs.Delete(ctx, *key); err != nil {
			slog.Error("failed to delete blob", "video_id", videoID, "key", *key, "error", err)
		}
	}
	return nil
}

// OnJobAccepted transitions PENDING -> PROCESSING. Idempotent: a second
// accept for the same video is a no-op.
func (m *StateMachine) OnJobAccepted(ctx context.Context, videoID uuid.UUID) error {
	moved, err := m.store.MarkVideoProcessing(ctx, videoID)
	if err != nil {
		return err
	}
	if moved {
		m.publish(ctx, videoID, db.VideoStatusProcessing)
	}
	return nil
}

type JobResult struct {
	PlayableKey     string
	ThumbnailKey    *string
	DurationSeconds float64
	CaptionLanguage *string
}

// OnJobSucceeded transitions PROCESSING -> READY and sets the derived
// fields atomically. A callback arriving after the asset is terminal is
// logged and ignored — that is the guard against queue redelivery.
func (m *StateMachine) OnJobSucceeded(ctx context.Context, videoID uuid.UUID, result *JobResult) error {
	moved, err := m.store.MarkVideoReady(ctx, &db.MarkVideoReadyParams{
		ID:              videoID,
		PlayableKey:     result.PlayableKey,
		ThumbnailKey:    result.ThumbnailKey,
		DurationSeconds: result.DurationSeconds,
	})
	if err != nil {
		return err
	}
	if !moved {
		slog.Warn("ignoring duplicate or late success callback", "video_id", videoID)
		metrics.DuplicateCallbacks.Inc()
		return nil
	}

	m.publish(ctx, videoID, db.VideoStatusReady)

	// Follow-up jobs. Their failures never un-READY the asset.
	followUps := []*db.EnqueueJobParams{
		{ID: uuid.New(), VideoID: videoID, Kind: db.JobKindThumbnail},
		{ID: uuid.New(), VideoID: videoID, Kind: db.JobKindCaption, Language: result.CaptionLanguage},
	}
	for _, job := range followUps {
		if _, err := m.store.EnqueueJobAndNotify(ctx, job); err != nil {
			slog.Error("failed to enqueue follow-up job",
				"video_id", videoID, "kind", job.Kind, "error", err)
		}
	}
	return nil
}

// OnThumbnailReady records a completed thumbnail job.
func (m *StateMachine) OnThumbnailReady(ctx context.Context, videoID uuid.UUID, thumbnailKey string) error {
	return m.store.SetVideoThumbnail(ctx, videoID, thumbnailKey)
}

// OnJobFailed decides retry versus terminal failure. Below the retry
// budget and transient: the caller re-queues the same job with Backoff and
// the asset stays PROCESSING. Otherwise the asset moves to FAILED with the
// reason code — unless the failing job was a follow-up, which is dropped
// without touching the READY asset. Returns whether the job should retry.
func (m *StateMachine) OnJobFailed(ctx context.Context, videoID uuid.UUID, kind db.JobKind, failure error, attempt int) (bool, error) {
	reason, permanent := PermanentReason(failure)
	if !permanent && attempt < m.maxRetries {
		slog.Info("transient job failure, will retry",
			"video_id", videoID, "kind", kind, "attempt", attempt, "error", failure)
		return true, nil
	}
	if !permanent {
		reason = ReasonRetriesExhausted
	}

	if kind != db.JobKindTranscode {
		slog.Error("follow-up job failed, asset stays READY",
			"video_id", videoID, "kind", kind, "reason", reason, "error", failure)
		return false, nil
	}

	moved, err := m.store.MarkVideoFailed(ctx, videoID, reason)
	if err != nil {
		return false, err
	}
	if !moved {
		slog.Warn("ignoring duplicate or late failure callback", "video_id", videoID)
		metrics.DuplicateCallbacks.Inc()
		return false, nil
	}

	// No job may target a FAILED asset until an explicit re-submission.
	if err := m.store.DeleteJobsForVideo(ctx, videoID); err != nil {
		slog.Error("failed to clear jobs for failed video", "video_id", videoID, "error", err)
	}

	m.publish(ctx, videoID, db.VideoStatusFailed)
	return false, nil
}

// maxBackoffShift caps the exponent so an unbounded attempt count cannot
// shift the base past the Duration range into a negative delay.
const maxBackoffShift = 10

// Backoff returns the delay before attempt n retries: base * 2^(n-1),
// capped at base * 2^maxBackoffShift.
func (m *StateMachine) Backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return m.backoffBase << shift
}

func (m *StateMachine) publish(ctx context.Context, videoID uuid.UUID, status db.VideoStatus) {
	if m.hub != nil {
		m.hub.Publish(videoID, status)
	}
	if err := m.store.NotifyVideoStatus(ctx, videoID, status); err != nil {
		slog.Error("failed to notify status change", "video_id", videoID, "error", err)
	}
}

func rawStorageKey(videoID uuid.UUID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("raw/%s%s", videoID, ext)
}
