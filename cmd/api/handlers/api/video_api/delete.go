package video_api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
)

// HandleDelete removes a video, its queued jobs and its stored assets.
// Owner-only.
func HandleDelete(sm *ingest.StateMachine) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}

		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		if err := sm.Delete(c.Request().Context(), videoID, userID); err != nil {
			switch {
			case db.IsNoRows(err):
				return common.ErrNotFound("video not found")
			case errors.Is(err, ingest.ErrNotOwner):
				return common.ErrForbidden("not your video")
			}
			return common.ErrInternal("failed to delete video")
		}

		return c.NoContent(http.StatusNoContent)
	}
}
