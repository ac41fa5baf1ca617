package video_api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/storage"
)

// HandleStatus reports a video's lifecycle state. This is a single record
// read regardless of how much work is queued behind the pipeline.
func HandleStatus(dbc *db.DatabaseConnection, blobs storage.BlobStore, urlTTL time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := common.RequireUser(c); err != nil {
			return err
		}

		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		ctx := c.Request().Context()
		video, err := dbc.Queries(ctx).GetVideoByID(ctx, videoID)
		if err != nil {
			if db.IsNoRows(err) {
				return common.ErrNotFound("video not found")
			}
			return common.ErrInternal("failed to load video")
		}

		return c.JSON(http.StatusOK, NewVideoView(ctx, blobs, urlTTL, video))
	}
}
