// package signals maintains the per-video engagement counters the ranking
// engine consumes. Writes serialize per video on the counter row; reads
// are eventually consistent and never block writers.
package signals

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/metrics"
)

// Store is the durable counter and interaction surface. *db.Queries
// implements it.
type Store interface {
	IncrementCounter(ctx context.Context, videoID uuid.UUID, kind db.SignalKind, delta int64) error
	GetCounters(ctx context.Context, videoID uuid.UUID) (*db.EngagementCounters, error)
	GetCountersMany(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]*db.EngagementCounters, error)
	InsertLike(ctx context.Context, userID, videoID uuid.UUID) (bool, error)
	DeleteLike(ctx context.Context, userID, videoID uuid.UUID) (bool, error)
	InsertComment(ctx context.Context, params *db.InsertCommentParams) (*db.Comment, error)
	RecordInteractionEvent(ctx context.Context, userID, videoID uuid.UUID, kind db.SignalKind) error
}

type Aggregator struct {
	store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// RecordView is monotonic: every view event counts.
func (a *Aggregator) RecordView(ctx context.Context, userID, videoID uuid.UUID) error {
	if err := a.store.IncrementCounter(ctx, videoID, db.SignalView, 1); err != nil {
		return err
	}
	metrics.SignalIncrements.WithLabelValues(string(db.SignalView)).Inc()
	a.recordEvent(ctx, userID, videoID, db.SignalView)
	return nil
}

// Like toggles on. Idempotent per (user, video): a second like changes
// nothing and the counter moves by exactly one per state change.
func (a *Aggregator) Like(ctx context.Context, userID, videoID uuid.UUID) (bool, error) {
	inserted, err := a.store.InsertLike(ctx, userID, videoID)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}
	if err := a.store.IncrementCounter(ctx, videoID, db.SignalLike, 1); err != nil {
		return true, fmt.Errorf("like recorded but counter lagging: %w", err)
	}
	metrics.SignalIncrements.WithLabelValues(string(db.SignalLike)).Inc()
	a.recordEvent(ctx, userID, videoID, db.SignalLike)
	return true, nil
}

// Unlike toggles off, decrementing by exactly one when a like existed.
func (a *Aggregator) Unlike(ctx context.Context, userID, videoID uuid.UUID) (bool, error) {
	deleted, err := a.store.DeleteLike(ctx, userID, videoID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	if err := a.store.IncrementCounter(ctx, videoID, db.SignalLike, -1); err != nil {
		return true, fmt.Errorf("unlike recorded but counter lagging: %w", err)
	}
	return true, nil
}

// RecordComment stores the comment and bumps the counter.
func (a *Aggregator) RecordComment(ctx context.Context, userID, videoID uuid.UUID, body string) (*db.Comment, error) {
	comment, err := a.store.InsertComment(ctx, &db.InsertCommentParams{
		ID:      uuid.New(),
		VideoID: videoID,
		UserID:  userID,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	if err := a.store.IncrementCounter(ctx, videoID, db.SignalComment, 1); err != nil {
		return comment, fmt.Errorf("comment recorded but counter lagging: %w", err)
	}
	metrics.SignalIncrements.WithLabelValues(string(db.SignalComment)).Inc()
	a.recordEvent(ctx, userID, videoID, db.SignalComment)
	return comment, nil
}

// RecordShare is monotonic like views.
func (a *Aggregator) RecordShare(ctx context.Context, userID, videoID uuid.UUID) error {
	if err := a.store.IncrementCounter(ctx, videoID, db.SignalShare, 1); err != nil {
		return err
	}
	metrics.SignalIncrements.WithLabelValues(string(db.SignalShare)).Inc()
	a.recordEvent(ctx, userID, videoID, db.SignalShare)
	return nil
}

// Snapshot reads current counters. May trail in-flight writes.
func (a *Aggregator) Snapshot(ctx context.Context, videoID uuid.UUID) (*db.EngagementCounters, error) {
	return a.store.GetCounters(ctx, videoID)
}

func (a *Aggregator) SnapshotMany(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]*db.EngagementCounters, error) {
	return a.store.GetCountersMany(ctx, videoIDs)
}

// recordEvent feeds the affinity refresher. Best effort: losing one log
// row skews affinity slightly, it does not corrupt counters.
func (a *Aggregator) recordEvent(ctx context.Context, userID, videoID uuid.UUID, kind db.SignalKind) {
	if err := a.store.RecordInteractionEvent(ctx, userID, videoID, kind); err != nil {
		// Counter state is authoritative; the event log is advisory.
		slog.Error("failed to record interaction event",
			"user_id", userID, "video_id", videoID, "kind", kind, "error", err)
	}
}
