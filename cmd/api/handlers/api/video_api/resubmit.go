package video_api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
	"loopcast.media/loopcast/internal/storage"
)

// HandleResubmit re-queues a FAILED video for processing. Owner-only.
func HandleResubmit(sm *ingest.StateMachine, blobs storage.BlobStore, urlTTL time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}

		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		ctx := c.Request().Context()
		video, err := sm.Resubmit(ctx, videoID, userID)
		if err != nil {
			switch {
			case db.IsNoRows(err):
				return common.ErrNotFound("video not found")
			case errors.Is(err, ingest.ErrNotOwner):
				return common.ErrForbidden("not your video")
			case errors.Is(err, ingest.ErrNotResubmittable):
				return common.ErrConflict("only failed videos can be re-submitted")
			}
			return common.ErrInternal("failed to re-submit video")
		}

		return c.JSON(http.StatusAccepted, NewVideoView(ctx, blobs, urlTTL, video))
	}
}
