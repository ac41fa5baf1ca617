package interaction_api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/signals"
)

// HandleView records a playback view. Views only ever go up.
func HandleView(agg *signals.Aggregator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}
		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		if err := agg.RecordView(c.Request().Context(), userID, videoID); err != nil {
			if db.IsForeignKeyViolationErr(err) {
				return common.ErrNotFound("video not found")
			}
			return common.ErrInternal("failed to record view")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// HandleShare records a share.
func HandleShare(agg *signals.Aggregator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}
		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		if err := agg.RecordShare(c.Request().Context(), userID, videoID); err != nil {
			if db.IsForeignKeyViolationErr(err) {
				return common.ErrNotFound("video not found")
			}
			return common.ErrInternal("failed to record share")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
