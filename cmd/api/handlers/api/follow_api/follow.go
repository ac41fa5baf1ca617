// package follow_api manages the viewer's creator follow list.
package follow_api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
)

// HandleFollow adds a creator to the viewer's follow list. Following
// twice is a no-op; following yourself is rejected.
func HandleFollow(dbc *db.DatabaseConnection) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}
		creatorID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		if creatorID == userID {
			return common.ErrBadRequest("cannot follow yourself")
		}

		ctx := c.Request().Context()
		if err := dbc.Queries(ctx).InsertFollow(ctx, userID, creatorID); err != nil {
			return common.ErrInternal("failed to follow")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// HandleUnfollow removes a creator from the follow list.
func HandleUnfollow(dbc *db.DatabaseConnection) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}
		creatorID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		ctx := c.Request().Context()
		if err := dbc.Queries(ctx).DeleteFollow(ctx, userID, creatorID); err != nil {
			return common.ErrInternal("failed to unfollow")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// HandleListFollows returns the creators the viewer follows.
func HandleListFollows(dbc *db.DatabaseConnection) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}

		ctx := c.Request().Context()
		creators, err := dbc.Queries(ctx).ListFollowedCreators(ctx, userID)
		if err != nil {
			return common.ErrInternal("failed to load follows")
		}

		ids := make([]string, 0, len(creators))
		for _, id := range creators {
			ids = append(ids, id.String())
		}
		return c.JSON(http.StatusOK, map[string][]string{"creators": ids})
	}
}
