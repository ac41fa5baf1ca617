package video_api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/ingest"
	"loopcast.media/loopcast/internal/storage"
)

const maxTitleLength = 200

// HandleUpload accepts a multipart submission and runs it through the
// ingestion state machine. A success means exactly one video record, one
// queued transcode job and one stored raw blob exist.
func HandleUpload(sm *ingest.StateMachine, blobs storage.BlobStore, maxBytes int64, urlTTL time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := common.RequireUser(c)
		if err != nil {
			return err
		}

		title := strings.TrimSpace(c.FormValue("title"))
		if title == "" {
			return common.ErrBadRequest("title is required")
		}
		if len(title) > maxTitleLength {
			return common.ErrBadRequest("title too long")
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return common.ErrBadRequest("file is required")
		}
		if fileHeader.Size > maxBytes {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
				"file exceeds the "+humanize.Bytes(uint64(maxBytes))+" upload limit")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return common.ErrBadRequest("unreadable upload")
		}
		defer file.Close()

		ctx := c.Request().Context()
		video, err := sm.Submit(ctx, &ingest.SubmitParams{
			OwnerID:         userID,
			Title:           title,
			Description:     strings.TrimSpace(c.FormValue("description")),
			Filename:        fileHeader.Filename,
			Raw:             file,
			CaptionLanguage: strings.TrimSpace(c.FormValue("caption_language")),
		})
		if err != nil {
			if errors.Is(err, ingest.ErrInvalidCaptionLanguage) {
				return common.ErrBadRequest("invalid caption language")
			}
			return common.ErrInternal("failed to accept upload")
		}

		return c.JSON(http.StatusAccepted, NewVideoView(ctx, blobs, urlTTL, video))
	}
}
