package video_api

import (
	"time"

	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
)

type statusEvent struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}

// HandleEvents streams lifecycle status changes for one video over SSE.
// The stream opens with the current state so clients never miss a
// transition that happened between their status poll and the subscribe.
func HandleEvents(dbc *db.DatabaseConnection, hub *ingest.Hub) echo.HandlerFunc {
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

		events, cancel, ok := hub.Subscribe(videoID)
		if !ok {
			return common.ErrUnavailable("too many open status streams")
		}
		defer cancel()

		sse := common.NewSSE(c)
		if err := sse.SendJSON("status", statusEvent{
			VideoID: video.ID.String(),
			Status:  string(video.Status),
		}); err != nil {
			return nil
		}
		if video.Status.Terminal() {
			return nil
		}

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-events:
				if err := sse.SendJSON("status", statusEvent{
					VideoID: ev.VideoID.String(),
					Status:  string(ev.Status),
				}); err != nil {
					return nil
				}
				if ev.Status.Terminal() {
					return nil
				}
			case <-keepalive.C:
				if err := sse.SendComment("keepalive"); err != nil {
					return nil
				}
			}
		}
	}
}
