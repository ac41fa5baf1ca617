package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsertLike records a like toggle-on. Returns false when the user already
// likes the video, making the toggle idempotent per (user, video).
func (q *Queries) InsertLike(ctx context.Context, userID, videoID uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO likes (user_id, video_id) VALUES ($1, $2)
		ON CONFLICT (user_id, video_id) DO NOTHING`, userID, videoID)
	if err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteLike records a like toggle-off. Returns false when there was no
// like to remove.
func (q *Queries) DeleteLike(ctx context.Context, userID, videoID uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM likes WHERE user_id = $1 AND video_id = $2`, userID, videoID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type InsertCommentParams struct {
	ID      uuid.UUID
	VideoID uuid.UUID
	UserID  uuid.UUID
	Body    string
}

func (q *Queries) InsertComment(ctx context.Context, params *InsertCommentParams) (*Comment, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO comments (id, video_id, user_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, video_id, user_id, body, created_at`,
		params.ID, params.VideoID, params.UserID, params.Body)

	var c Comment
	if err := row.Scan(&c.ID, &c.VideoID, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return &c, nil
}

// ListCommentsByVideo returns the newest comments first.
func (q *Queries) ListCommentsByVideo(ctx context.Context, videoID uuid.UUID, limit int) ([]*Comment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, video_id, user_id, body, created_at
		FROM comments
		WHERE video_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.VideoID, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// RecordInteractionEvent appends to the interaction log the affinity
// refresher aggregates over.
func (q *Queries) RecordInteractionEvent(ctx context.Context, userID, videoID uuid.UUID, kind SignalKind) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO interaction_events (user_id, video_id, kind)
		VALUES ($1, $2, $3)`, userID, videoID, kind)
	if err != nil {
		return fmt.Errorf("record interaction event: %w", err)
	}
	return nil
}
