// package video_api provides the video lifecycle API handlers.
package video_api

import (
	"context"
	"log/slog"
	"time"

	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/storage"
)

// VideoView is the client-facing shape of a video record. URLs are signed
// per response; they are never stored.
type VideoView struct {
	ID              string   `json:"id"`
	OwnerID         string   `json:"owner_id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Status          string   `json:"status"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	FailureReason   *string  `json:"failure_reason,omitempty"`
	PlayableURL     string   `json:"playable_url,omitempty"`
	ThumbnailURL    string   `json:"thumbnail_url,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

// NewVideoView builds the response view, signing asset URLs for READY
// videos. Signing failures degrade to a view without URLs rather than
// failing the whole response.
func NewVideoView(ctx context.Context, blobs storage.BlobStore, ttl time.Duration, video *db.Video) *VideoView {
	view := &VideoView{
		ID:              video.ID.String(),
		OwnerID:         video.OwnerID.String(),
		Title:           video.Title,
		Description:     video.Description,
		Status:          string(video.Status),
		DurationSeconds: video.DurationSeconds,
		FailureReason:   video.FailureReason,
		CreatedAt:       video.CreatedAt.UTC().Format(time.RFC3339),
	}

	if video.Status == db.VideoStatusReady && video.StorageKeyPlayable != nil {
		url, err := blobs.SignedURL(ctx, *video.StorageKeyPlayable, ttl)
		if err != nil {
			slog.Error("failed to sign playable url", "video_id", video.ID, "error", err)
		} else {
			view.PlayableURL = url
		}
	}
	if video.ThumbnailKey != nil {
		url, err := blobs.SignedURL(ctx, *video.ThumbnailKey, ttl)
		if err != nil {
			slog.Error("failed to sign thumbnail url", "video_id", video.ID, "error", err)
		} else {
			view.ThumbnailURL = url
		}
	}
	return view
}
