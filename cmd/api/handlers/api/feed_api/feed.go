// package feed_api serves the personalized ranked feed.
package feed_api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/feed"
	"loopcast.media/loopcast/internal/storage"
)

type feedItem struct {
	Video *videoSummary `json:"video"`
	Score *float64      `json:"score,omitempty"`
}

type videoSummary struct {
	ID           string   `json:"id"`
	OwnerID      string   `json:"owner_id"`
	Title        string   `json:"title"`
	Duration     *float64 `json:"duration_seconds,omitempty"`
	PlayableURL  string   `json:"playable_url,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
}

type feedResponse struct {
	Items      []feedItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// HandleFeed ranks the viewer's candidate pool and returns one page.
// Scores are internal; include_scores exposes them for debugging.
func HandleFeed(engine *feed.Engine, dbc *db.DatabaseConnection, blobs storage.BlobStore, urlTTL time.Duration, defaultPageSize int) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}

		pageSize := common.IntQueryParam(c, "page_size", defaultPageSize)
		includeScores := common.IsTruthyQueryParam(c.QueryParam("include_scores"))

		ctx := c.Request().Context()
		page, err := engine.Rank(ctx, userID, c.QueryParam("cursor"), pageSize)
		if err != nil {
			if errors.Is(err, feed.ErrUnavailable) {
				return common.ErrUnavailable("feed temporarily unavailable")
			}
			return common.ErrBadRequest("invalid cursor")
		}

		resp := feedResponse{Items: []feedItem{}, NextCursor: page.NextCursor}
		if len(page.Items) == 0 {
			return c.JSON(http.StatusOK, resp)
		}

		ids := make([]uuid.UUID, len(page.Items))
		for i, item := range page.Items {
			ids[i] = item.VideoID
		}
		videos, err := dbc.Queries(ctx).GetVideosByIDs(ctx, ids)
		if err != nil {
			return common.ErrInternal("failed to load feed videos")
		}

		for _, ranked := range page.Items {
			video, ok := videos[ranked.VideoID]
			if !ok {
				// Deleted between ranking and hydration.
				continue
			}
			item := feedItem{Video: summarize(ctx, blobs, urlTTL, video)}
			if includeScores {
				score := ranked.Score
				item.Score = &score
			}
			resp.Items = append(resp.Items, item)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func summarize(ctx context.Context, blobs storage.BlobStore, urlTTL time.Duration, video *db.Video) *videoSummary {
	summary := &videoSummary{
		ID:       video.ID.String(),
		OwnerID:  video.OwnerID.String(),
		Title:    video.Title,
		Duration: video.DurationSeconds,
	}
	if video.StorageKeyPlayable != nil {
		url, err := blobs.SignedURL(ctx, *video.StorageKeyPlayable, urlTTL)
		if err != nil {
			slog.Error("failed to sign playable url", "video_id", video.ID, "error", err)
		} else {
			summary.PlayableURL = url
		}
	}
	if video.ThumbnailKey != nil {
		url, err := blobs.SignedURL(ctx, *video.ThumbnailKey, urlTTL)
		if err != nil {
			slog.Error("failed to sign thumbnail url", "video_id", video.ID, "error", err)
		} else {
			summary.ThumbnailURL = url
		}
	}
	return summary
}
