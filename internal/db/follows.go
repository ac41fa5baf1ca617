package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

func (q *Queries) InsertFollow(ctx context.Context, followerID, creatorID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO follows (follower_id, creator_id) VALUES ($1, $2)
		ON CONFLICT (follower_id, creator_id) DO NOTHING`, followerID, creatorID)
	if err != nil {
		return fmt.Errorf("insert follow: %w", err)
	}
	return nil
}

func (q *Queries) DeleteFollow(ctx context.Context, followerID, creatorID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		DELETE FROM follows WHERE follower_id = $1 AND creator_id = $2`, followerID, creatorID)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}

func (q *Queries) ListFollowedCreators(ctx context.Context, followerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
		SELECT creator_id FROM follows WHERE follower_id = $1 ORDER BY creator_id`, followerID)
	if err != nil {
		return nil, fmt.Errorf("list followed creators: %w", err)
	}
	defer rows.Close()

	var creators []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		creators = append(creators, id)
	}
	return creators, rows.Err()
}

// GetAffinityScores batch-reads precomputed affinity weights for a viewer.
// Creators without a row have no history; callers treat them as neutral.
func (q *Queries) GetAffinityScores(ctx context.Context, viewerID uuid.UUID, creatorIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	rows, err := q.db.Query(ctx, `
		SELECT creator_id, score FROM creator_affinity
		WHERE viewer_id = $1 AND creator_id = ANY($2)`, viewerID, creatorIDs)
	if err != nil {
		return nil, fmt.Errorf("get affinity scores: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]float64, len(creatorIDs))
	for rows.Next() {
		var id uuid.UUID
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		out[id] = score
	}
	return out, rows.Err()
}

// RefreshAffinityScores recomputes per-(viewer, creator) weights from the
// interaction log. Interaction kinds weigh differently (a share says more
// than a view) and contributions decay with a 30-day half-life. Scores are
// squashed to [0, 1) so the ranking engine can mix them directly.
func (q *Queries) RefreshAffinityScores(ctx context.Context, window string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO creator_affinity (viewer_id, creator_id, score, updated_at)
		SELECT e.user_id, v.owner_id,
			1.0 - exp(-sum(
				CASE e.kind
					WHEN 'view' THEN 1.0
					WHEN 'like' THEN 5.0
					WHEN 'comment' THEN 10.0
					WHEN 'share' THEN 20.0
				END
				* exp(-extract(epoch FROM now() - e.created_at) / (86400.0 * 30.0))
			) / 50.0),
			now()
		FROM interaction_events e
		JOIN videos v ON v.id = e.video_id
		WHERE e.created_at > now() - $1::interval
		  AND e.user_id <> v.owner_id
		GROUP BY e.user_id, v.owner_id
		ON CONFLICT (viewer_id, creator_id) DO UPDATE SET
			score = EXCLUDED.score,
			updated_at = EXCLUDED.updated_at`, window)
	if err != nil {
		return fmt.Errorf("refresh affinity scores: %w", err)
	}
	return nil
}
