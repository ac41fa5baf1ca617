// package interaction_api records engagement signals against videos.
package interaction_api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/signals"
)

type likeResponse struct {
	Liked   bool  `json:"liked"`
	Changed bool  `json:"changed"`
	Likes   int64 `json:"likes"`
}

// HandleLike toggles a like on. Repeating it is a no-op: the like count
// moves by exactly one per user however often the endpoint is hit.
func HandleLike(agg *signals.Aggregator) echo.HandlerFunc {
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
		changed, err := agg.Like(ctx, userID, videoID)
		if err != nil {
			if db.IsForeignKeyViolationErr(err) {
				return common.ErrNotFound("video not found")
			}
			return common.ErrInternal("failed to record like")
		}

		counters, err := agg.Snapshot(ctx, videoID)
		if err != nil {
			return common.ErrInternal("failed to load counters")
		}
		return c.JSON(http.StatusOK, likeResponse{Liked: true, Changed: changed, Likes: counters.Likes})
	}
}

// HandleUnlike toggles a like off. Unliking without a prior like changes
// nothing.
func HandleUnlike(agg *signals.Aggregator) echo.HandlerFunc {
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
		changed, err := agg.Unlike(ctx, userID, videoID)
		if err != nil {
			return common.ErrInternal("failed to record unlike")
		}

		counters, err := agg.Snapshot(ctx, videoID)
		if err != nil {
			return common.ErrInternal("failed to load counters")
		}
		return c.JSON(http.StatusOK, likeResponse{Liked: false, Changed: changed, Likes: counters.Likes})
	}
}
