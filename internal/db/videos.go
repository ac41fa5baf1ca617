package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const videoColumns = `id, owner_id, title, description, status, storage_key_raw,
	storage_key_playable, thumbnail_key, duration_seconds, failure_reason,
	created_at, updated_at`

func scanVideo(row interface{ Scan(dest ...any) error }) (*Video, error) {
	var v Video
	err := row.Scan(&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.Status,
		&v.StorageKeyRaw, &v.StorageKeyPlayable, &v.ThumbnailKey,
		&v.DurationSeconds, &v.FailureReason, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type InsertVideoParams struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	Title         string
	Description   string
	StorageKeyRaw string
}

func (q *Queries) InsertVideo(ctx context.Context, params *InsertVideoParams) (*Video, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO videos (id, owner_id, title, description, status, storage_key_raw)
		VALUES ($1, $2, $3, $4, 'PENDING', $5)
		RETURNING `+videoColumns,
		params.ID, params.OwnerID, params.Title, params.Description, params.StorageKeyRaw)
	return scanVideo(row)
}

func (q *Queries) GetVideoByID(ctx context.Context, id uuid.UUID) (*Video, error) {
	row := q.db.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	return scanVideo(row)
}

// GetVideosByIDs batch-loads videos for feed hydration. Missing IDs are
// simply absent from the map.
func (q *Queries) GetVideosByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Video, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+videoColumns+` FROM videos WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get videos by ids: %w", err)
	}
	defer rows.Close()

	videos := make(map[uuid.UUID]*Video, len(ids))
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos[v.ID] = v
	}
	return videos, rows.Err()
}

// MarkVideoProcessing transitions PENDING -> PROCESSING. Returns false when
// the video was not PENDING (already PROCESSING or terminal).
func (q *Queries) MarkVideoProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE videos SET status = 'PROCESSING', updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return false, fmt.Errorf("mark video processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type MarkVideoReadyParams struct {
	ID              uuid.UUID
	PlayableKey     string
	ThumbnailKey    *string
	DurationSeconds float64
}

// MarkVideoReady transitions PENDING|PROCESSING -> READY and sets the
// derived fields in the same statement. Returns false when the video is
// already terminal, which is how duplicate or late success callbacks are
// detected.
func (q *Queries) MarkVideoReady(ctx context.Context, params *MarkVideoReadyParams) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE videos SET
			status = 'READY',
			storage_key_playable = $2,
			thumbnail_key = COALESCE($3, thumbnail_key),
			duration_seconds = $4,
			failure_reason = NULL,
			updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`,
		params.ID, params.PlayableKey, params.ThumbnailKey, params.DurationSeconds)
	if err != nil {
		return false, fmt.Errorf("mark video ready: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkVideoFailed transitions PENDING|PROCESSING -> FAILED recording the
// reason code. Returns false when the video is already terminal.
func (q *Queries) MarkVideoFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE videos SET
			status = 'FAILED',
			storage_key_playable = NULL,
			failure_reason = $2,
			updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`, id, reason)
	if err != nil {
		return false, fmt.Errorf("mark video failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetVideoForResubmission moves a FAILED video back to PENDING and
// clears failure metadata. Only FAILED videos may be re-submitted.
func (q *Queries) ResetVideoForResubmission(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE videos SET
			status = 'PENDING',
			storage_key_playable = NULL,
			thumbnail_key = NULL,
			duration_seconds = NULL,
			failure_reason = NULL,
			updated_at = now()
		WHERE id = $1 AND status = 'FAILED'`, id)
	if err != nil {
		return false, fmt.Errorf("reset video for resubmission: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetVideoThumbnail fills in the thumbnail key without touching status.
// Thumbnail jobs complete independently of the transcode.
func (q *Queries) SetVideoThumbnail(ctx context.Context, id uuid.UUID, thumbnailKey string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE videos SET thumbnail_key = $2, updated_at = now()
		WHERE id = $1 AND status <> 'FAILED'`, id, thumbnailKey)
	if err != nil {
		return fmt.Errorf("set video thumbnail: %w", err)
	}
	return nil
}

func (q *Queries) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}

// ListReadyVideosByCreators returns READY videos owned by any of the given
// creators, newest first.
func (q *Queries) ListReadyVideosByCreators(ctx context.Context, creatorIDs []uuid.UUID, limit int) ([]*Video, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE status = 'READY' AND owner_id = ANY($1)
		ORDER BY created_at DESC, id
		LIMIT $2`, creatorIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("list ready videos by creators: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// ListDiscoveryVideos returns recent READY videos not owned by the viewer
// or any excluded creator. Ordering is deterministic.
func (q *Queries) ListDiscoveryVideos(ctx context.Context, excludeOwners []uuid.UUID, limit int) ([]*Video, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE status = 'READY' AND NOT (owner_id = ANY($1))
		ORDER BY created_at DESC, id
		LIMIT $2`, excludeOwners, limit)
	if err != nil {
		return nil, fmt.Errorf("list discovery videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}
