package interaction_api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/signals"
)

const (
	maxCommentLength = 2000
	commentPageSize  = 100
)

type commentView struct {
	ID        string `json:"id"`
	VideoID   string `json:"video_id"`
	UserID    string `json:"user_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

type createCommentRequest struct {
	Body string `json:"body"`
}

// HandleCreateComment stores a comment and bumps the comment counter.
func HandleCreateComment(agg *signals.Aggregator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}
		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		var req createCommentRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid body")
		}
		body := strings.TrimSpace(req.Body)
		if body == "" {
			return common.ErrBadRequest("comment body is required")
		}
		if len(body) > maxCommentLength {
			return common.ErrBadRequest("comment too long")
		}

		comment, err := agg.RecordComment(c.Request().Context(), userID, videoID, body)
		if err != nil {
			if db.IsForeignKeyViolationErr(err) {
				return common.ErrNotFound("video not found")
			}
			return common.ErrInternal("failed to store comment")
		}
		return c.JSON(http.StatusCreated, newCommentView(comment))
	}
}

// HandleListComments returns the newest comments on a video.
func HandleListComments(dbc *db.DatabaseConnection) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := common.RequireUser(c); err != nil {
			return err
		}
		videoID, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		ctx := c.Request().Context()
		comments, err := dbc.Queries(ctx).ListCommentsByVideo(ctx, videoID, commentPageSize)
		if err != nil {
			return common.ErrInternal("failed to load comments")
		}

		views := make([]*commentView, 0, len(comments))
		for _, comment := range comments {
			views = append(views, newCommentView(comment))
		}
		return c.JSON(http.StatusOK, views)
	}
}

func newCommentView(comment *db.Comment) *commentView {
	return &commentView{
		ID:        comment.ID.String(),
		VideoID:   comment.VideoID.String(),
		UserID:    comment.UserID.String(),
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt.UTC().Format(time.RFC3339),
	}
}
