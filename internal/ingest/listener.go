package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"loopcast.media/loopcast/internal/db"
)

// ListenStatusChanges bridges Postgres NOTIFY payloads into the hub. The
// worker process publishes transitions through the database, so the API
// process needs this to push them to its SSE subscribers. Reconnects on
// error until ctx is done.
func ListenStatusChanges(ctx context.Context, dsn string, hub *Hub) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect for LISTEN", "channel", db.VideoStatusChannel, "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		c, err := conn.Acquire(ctx)
		if err != nil {
			slog.Error("failed to acquire connection for LISTEN", "channel", db.VideoStatusChannel, "error", err)
			conn.Close()
			time.Sleep(5 * time.Second)
			continue
		}

		_, err = c.Exec(ctx, "LISTEN "+db.VideoStatusChannel)
		if err != nil {
			slog.Error("failed to LISTEN", "channel", db.VideoStatusChannel, "error", err)
			c.Release()
			conn.Close()
			time.Sleep(5 * time.Second)
			continue
		}

		slog.Info("Listening for status notifications", "channel", db.VideoStatusChannel)

		for {
			if ctx.Err() != nil {
				c.Release()
				conn.Close()
				return
			}

			notification, err := c.Conn().WaitForNotification(ctx)
			if err != nil {
				c.Release()
				conn.Close()
				break
			}

			videoID, status, ok := parseStatusPayload(notification.Payload)
			if !ok {
				slog.Warn("malformed status notification", "payload", notification.Payload)
				continue
			}
			hub.Publish(videoID, status)
		}
	}
}

func parseStatusPayload(payload string) (uuid.UUID, db.VideoStatus, bool) {
	idStr, statusStr, found := strings.Cut(payload, ":")
	if !found {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, "", false
	}
	switch status := db.VideoStatus(statusStr); status {
	case db.VideoStatusPending, db.VideoStatusProcessing, db.VideoStatusReady, db.VideoStatusFailed:
		return id, status, true
	}
	return uuid.Nil, "", false
}
