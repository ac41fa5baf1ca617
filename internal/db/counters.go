package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// IncrementCounter applies a delta to one per-video counter in a single
// atomic statement. Concurrent increments for the same video serialize on
// the row lock; there is no read-modify-write window. GREATEST clamps at
// zero so a stray negative delta can never take a counter below zero.
func (q *Queries) IncrementCounter(ctx context.Context, videoID uuid.UUID, kind SignalKind, delta int64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO engagement_counters AS ec (video_id, views, likes, comments, shares)
		VALUES ($1,
			CASE WHEN $2 = 'view'    THEN GREATEST($3::bigint, 0) ELSE 0 END,
			CASE WHEN $2 = 'like'    THEN GREATEST($3::bigint, 0) ELSE 0 END,
			CASE WHEN $2 = 'comment' THEN GREATEST($3::bigint, 0) ELSE 0 END,
			CASE WHEN $2 = 'share'   THEN GREATEST($3::bigint, 0) ELSE 0 END)
		ON CONFLICT (video_id) DO UPDATE SET
			views    = GREATEST(ec.views    + CASE WHEN $2 = 'view'    THEN $3::bigint ELSE 0 END, 0),
			likes    = GREATEST(ec.likes    + CASE WHEN $2 = 'like'    THEN $3::bigint ELSE 0 END, 0),
			comments = GREATEST(ec.comments + CASE WHEN $2 = 'comment' THEN $3::bigint ELSE 0 END, 0),
			shares   = GREATEST(ec.shares   + CASE WHEN $2 = 'share'   THEN $3::bigint ELSE 0 END, 0),
			updated_at = now()`,
		videoID, kind, delta)
	if err != nil {
		return fmt.Errorf("increment counter: %w", err)
	}
	return nil
}

// GetCounters returns the counters for one video. A video with no recorded
// interactions yet reads as all zeros.
func (q *Queries) GetCounters(ctx context.Context, videoID uuid.UUID) (*EngagementCounters, error) {
	counters := &EngagementCounters{VideoID: videoID}
	err := q.db.QueryRow(ctx, `
		SELECT views, likes, comments, shares FROM engagement_counters WHERE video_id = $1`,
		videoID).Scan(&counters.Views, &counters.Likes, &counters.Comments, &counters.Shares)
	if err != nil {
		if IsNoRows(err) {
			return counters, nil
		}
		return nil, fmt.Errorf("get counters: %w", err)
	}
	return counters, nil
}

// GetCountersMany batch-reads counters for a candidate pool. Videos absent
// from the result simply have no interactions yet.
func (q *Queries) GetCountersMany(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]*EngagementCounters, error) {
	rows, err := q.db.Query(ctx, `
		SELECT video_id, views, likes, comments, shares
		FROM engagement_counters WHERE video_id = ANY($1)`, videoIDs)
	if err != nil {
		return nil, fmt.Errorf("get counters many: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]*EngagementCounters, len(videoIDs))
	for rows.Next() {
		var c EngagementCounters
		if err := rows.Scan(&c.VideoID, &c.Views, &c.Likes, &c.Comments, &c.Shares); err != nil {
			return nil, err
		}
		out[c.VideoID] = &c
	}
	return out, rows.Err()
}
