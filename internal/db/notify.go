package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// VideoStatusChannel carries "<video_id>:<status>" payloads so the API
// process can push status changes to subscribed clients without polling.
const VideoStatusChannel = "video_status"

func (q *Queries) NotifyVideoStatus(ctx context.Context, videoID uuid.UUID, status VideoStatus) error {
	_, err := q.db.Exec(ctx, `SELECT pg_notify($1, $2)`,
		VideoStatusChannel, fmt.Sprintf("%s:%s", videoID, status))
	if err != nil {
		return fmt.Errorf("notify video status: %w", err)
	}
	return nil
}
