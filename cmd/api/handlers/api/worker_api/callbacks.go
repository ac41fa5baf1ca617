// package worker_api receives processing outcome callbacks from an
// external worker fleet. Every route requires a worker-role token; user
// tokens are rejected so clients can never drive lifecycle transitions.
package worker_api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
)

// HandleJobAccepted marks a video PROCESSING. Idempotent.
func HandleJobAccepted(sm *ingest.StateMachine) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := common.RequireWorker(c); err != nil {
			return err
		}
		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		if err := sm.OnJobAccepted(c.Request().Context(), videoID); err != nil {
			return common.ErrInternal("failed to record acceptance")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type jobCompleteRequest struct {
	PlayableKey     string  `json:"playable_key"`
	ThumbnailKey    *string `json:"thumbnail_key,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	CaptionLanguage *string `json:"caption_language,omitempty"`
}

// HandleJobComplete records a successful transcode. A duplicate or late
// callback is absorbed, not an error.
func HandleJobComplete(sm *ingest.StateMachine) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := common.RequireWorker(c); err != nil {
			return err
		}
		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		var req jobCompleteRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid body")
		}
		if req.PlayableKey == "" || req.DurationSeconds <= 0 {
			return common.ErrBadRequest("playable_key and duration_seconds are required")
		}

		err = sm.OnJobSucceeded(c.Request().Context(), videoID, &ingest.JobResult{
			PlayableKey:     req.PlayableKey,
			ThumbnailKey:    req.ThumbnailKey,
			DurationSeconds: req.DurationSeconds,
			CaptionLanguage: req.CaptionLanguage,
		})
		if err != nil {
			return common.ErrInternal("failed to record completion")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type jobFailedRequest struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
	Attempt int    `json:"attempt"`
	// Permanent means retrying cannot help (corrupt file, unsupported
	// codec). Transient failures below the retry budget re-queue.
	Permanent bool `json:"permanent"`
}

type jobFailedResponse struct {
	Retry bool `json:"retry"`
}

// HandleJobFailed records a processing failure and tells the worker
// whether to retry.
func HandleJobFailed(sm *ingest.StateMachine) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := common.RequireWorker(c); err != nil {
			return err
		}
		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		var req jobFailedRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid body")
		}
		kind := db.JobKind(req.Kind)
		switch kind {
		case db.JobKindTranscode, db.JobKindThumbnail, db.JobKindCaption:
		default:
			return common.ErrBadRequest("invalid kind")
		}

		failure := errors.New(req.Reason)
		if req.Permanent {
			failure = ingest.Permanent(req.Reason, nil)
		}

		retry, err := sm.OnJobFailed(c.Request().Context(), videoID, kind, failure, req.Attempt)
		if err != nil {
			return common.ErrInternal("failed to record failure")
		}
		return c.JSON(http.StatusOK, jobFailedResponse{Retry: retry})
	}
}

type thumbnailReadyRequest struct {
	ThumbnailKey string `json:"thumbnail_key"`
}

// HandleThumbnailReady records a completed thumbnail job.
func HandleThumbnailReady(sm *ingest.StateMachine) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := common.RequireWorker(c); err != nil {
			return err
		}
		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		var req thumbnailReadyRequest
		if err := c.Bind(&req); err != nil || req.ThumbnailKey == "" {
			return common.ErrBadRequest("thumbnail_key is required")
		}

		if err := sm.OnThumbnailReady(c.Request().Context(), videoID, req.ThumbnailKey); err != nil {
			return common.ErrInternal("failed to record thumbnail")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
