package signals

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"loopcast.media/loopcast/internal/db"
)

// memStore backs the aggregator in tests. Increments clamp at zero like
// the SQL implementation.
type memStore struct {
	mu       sync.Mutex
	counters map[uuid.UUID]*db.EngagementCounters
	likes    map[[2]uuid.UUID]struct{}
	comments []*db.Comment
	events   int
}

func newMemStore() *memStore {
	return &memStore{
		counters: make(map[uuid.UUID]*db.EngagementCounters),
		likes:    make(map[[2]uuid.UUID]struct{}),
	}
}

func (s *memStore) IncrementCounter(ctx context.Context, videoID uuid.UUID, kind db.SignalKind, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[videoID]
	if !ok {
		c = &db.EngagementCounters{VideoID: videoID}
		s.counters[videoID] = c
	}
	clamp := func(v int64) int64 {
		if v < 0 {
			return 0
		}
		return v
	}
	switch kind {
	case db.SignalView:
		c.Views = clamp(c.Views + delta)
	case db.SignalLike:
		c.Likes = clamp(c.Likes + delta)
	case db.SignalComment:
		c.Comments = clamp(c.Comments + delta)
	case db.SignalShare:
		c.Shares = clamp(c.Shares + delta)
	}
	return nil
}

func (s *memStore) GetCounters(ctx context.Context, videoID uuid.UUID) (*db.EngagementCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[videoID]; ok {
		copied := *c
		return &copied, nil
	}
	return &db.EngagementCounters{VideoID: videoID}, nil
}

func (s *memStore) GetCountersMany(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]*db.EngagementCounters, error) {
	out := make(map[uuid.UUID]*db.EngagementCounters, len(videoIDs))
	for _, id := range videoIDs {
		c, _ := s.GetCounters(ctx, id)
		out[id] = c
	}
	return out, nil
}

func (s *memStore) InsertLike(ctx context.Context, userID, videoID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]uuid.UUID{userID, videoID}
	if _, exists := s.likes[key]; exists {
		return false, nil
	}
	s.likes[key] = struct{}{}
	return true, nil
}

func (s *memStore) DeleteLike(ctx context.Context, userID, videoID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]uuid.UUID{userID, videoID}
	if _, exists := s.likes[key]; !exists {
		return false, nil
	}
	delete(s.likes, key)
	return true, nil
}

func (s *memStore) InsertComment(ctx context.Context, params *db.InsertCommentParams) (*db.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &db.Comment{ID: params.ID, VideoID: params.VideoID, UserID: params.UserID, Body: params.Body}
	s.comments = append(s.comments, c)
	return c, nil
}

func (s *memStore) RecordInteractionEvent(ctx context.Context, userID, videoID uuid.UUID, kind db.SignalKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events++
	return nil
}

func TestLikeUnlike_RoundTripsExactly(t *testing.T) {
	agg := NewAggregator(newMemStore())
	ctx := context.Background()
	user, video := uuid.New(), uuid.New()

	before, err := agg.Snapshot(ctx, video)
	require.NoError(t, err)

	changed, err := agg.Like(ctx, user, video)
	require.NoError(t, err)
	require.True(t, changed)

	mid, err := agg.Snapshot(ctx, video)
	require.NoError(t, err)
	require.Equal(t, before.Likes+1, mid.Likes)

	changed, err = agg.Unlike(ctx, user, video)
	require.NoError(t, err)
	require.True(t, changed)

	after, err := agg.Snapshot(ctx, video)
	require.NoError(t, err)
	require.Equal(t, before.Likes, after.Likes, "like then unlike must restore the prior count exactly")
}

func TestLike_IdempotentPerUser(t *testing.T) {
	agg := NewAggregator(newMemStore())
	ctx := context.Background()
	user, video := uuid.New(), uuid.New()

	for i := 0; i < 5; i++ {
		_, err := agg.Like(ctx, user, video)
		require.NoError(t, err)
	}

	snap, err := agg.Snapshot(ctx, video)
	require.NoError(t, err)
	require.Equal(t, int64(1), snap.Likes)
}

func TestUnlike_WithoutLike_NoUnderflow(t *testing.T) {
	agg := NewAggregator(newMemStore())
	ctx := context.Background()
	video := uuid.New()

	for i := 0; i < 3; i++ {
		changed, err := agg.Unlike(ctx, uuid.New(), video)
		require.NoError(t, err)
		require.False(t, changed)
	}

	snap, err := agg.Snapshot(ctx, video)
	require.NoError(t, err)
	require.GreaterOrEqual(t, snap.Likes, int64(0))
	require.Equal(t, int64(0), snap.Likes)
}

func TestLikesNeverNegative_RandomToggleSequences(t *testing.T) {
	agg := NewAggregator(newMemStore())
	ctx := context.Background()
	video := uuid.New()
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	// Deterministic pseudo-random toggle sequence across users.
	seq := []int{0, 1, 0, 2, 1, 1, 0, 2, 2, 0, 1, 2}
	for step, u := range seq {
		var err error
		if step%3 == 0 {
			_, err = agg.Unlike(ctx, users[u], video)
		} else {
			_, err = agg.Like(ctx, users[u], video)
		}
		require.NoError(t, err)

		snap, err := agg.Snapshot(ctx, video)
		require.NoError(t, err)
		require.GreaterOrEqual(t, snap.Likes, int64(0), "step %d", step)
		require.LessOrEqual(t, snap.Likes, int64(len(users)))
	}
}

func TestViews_Monotonic(t *testing.T) {
	agg := NewAggregator(newMemStore())
	ctx := context.Background()
	video := uuid.New()
	user := uuid.New()

	// The same user viewing repeatedly counts every time.
	for i := 1; i <= 4; i++ {
		require.NoError(t, agg.RecordView(ctx, user, video))
		snap, err := agg.Snapshot(ctx, video)
		require.NoError(t, err)
		require.Equal(t, int64(i), snap.Views)
	}
}

func TestRecordComment(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)
	ctx := context.Background()
	video := uuid.New()

	comment, err := agg.RecordComment(ctx, uuid.New(), video, "nice clip")
	require.NoError(t, err)
	require.Equal(t, "nice clip", comment.Body)

	snap, err := agg.Snapshot(ctx, video)
	require.NoError(t, err)
	require.Equal(t, int64(1), snap.Comments)
}

func TestConcurrentViews_NoLostUpdates(t *testing.T) {
	agg := NewAggregator(newMemStore())
	ctx := context.Background()
	video := uuid.New()

	const goroutines = 16
	const viewsEach = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := uuid.New()
			for i := 0; i < viewsEach; i++ {
				_ = agg.RecordView(ctx, user, video)
			}
		}()
	}
	wg.Wait()

	snap, err := agg.Snapshot(ctx, video)
	require.NoError(t, err)
	require.Equal(t, int64(goroutines*viewsEach), snap.Views)
}
