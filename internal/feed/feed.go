// package feed orders READY videos for a viewer by mixing engagement,
// recency decay and creator affinity. Ranking is computed per request —
// there is no precomputed global ordering — and is read-only over the
// durable stores.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/metrics"
)

// ErrUnavailable distinguishes "cannot determine content" from "no
// content". Handlers translate it to a 503, never an empty 200.
var ErrUnavailable = errors.New("feed: candidate pool unavailable")

// Candidate is one READY video under consideration for a viewer.
// Ephemeral: recomputed per ranking request.
type Candidate struct {
	VideoID   uuid.UUID
	CreatorID uuid.UUID
	CreatedAt time.Time
	Followed  bool
}

// CandidateSource produces the viewer's candidate pool (followed creators
// plus a discovery sample).
type CandidateSource interface {
	Candidates(ctx context.Context, viewerID uuid.UUID) ([]Candidate, error)
}

// SignalSource reads engagement counter snapshots.
type SignalSource interface {
	GetCountersMany(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]*db.EngagementCounters, error)
}

// AffinitySource reads precomputed per-(viewer, creator) weights.
type AffinitySource interface {
	GetAffinityScores(ctx context.Context, viewerID uuid.UUID, creatorIDs []uuid.UUID) (map[uuid.UUID]float64, error)
}

// Weights tune the scoring mix. Relative engagement weights follow the
// interaction hierarchy: a share says more than a comment, a comment more
// than a like, a like more than a view.
type Weights struct {
	Engagement float64
	Recency    float64
	Affinity   float64
	HalfLife   time.Duration
}

const (
	viewWeight    = 1.0
	likeWeight    = 5.0
	commentWeight = 10.0
	shareWeight   = 20.0
)

type Engine struct {
	candidates   CandidateSource
	signals      SignalSource
	affinity     AffinitySource
	weights      Weights
	fetchTimeout time.Duration
	maxPageSize  int
}

func NewEngine(candidates CandidateSource, signals SignalSource, affinity AffinitySource, weights Weights, fetchTimeout time.Duration, maxPageSize int) *Engine {
	return &Engine{
		candidates:   candidates,
		signals:      signals,
		affinity:     affinity,
		weights:      weights,
		fetchTimeout: fetchTimeout,
		maxPageSize:  maxPageSize,
	}
}

// RankedVideo pairs a candidate with its computed score. Scores are kept
// so ranking stays auditable even when the public response omits them.
type RankedVideo struct {
	VideoID uuid.UUID
	Score   float64
}

type Page struct {
	Items      []RankedVideo
	NextCursor string
}

// Rank scores the viewer's candidate pool at the cursor's epoch and
// returns one page. Counter and affinity fetches run concurrently under a
// bounded timeout; either timing out degrades the affected term to
// neutral rather than failing the request or dropping candidates. Only a
// failed candidate fetch is fatal.
func (e *Engine) Rank(ctx context.Context, viewerID uuid.UUID, cursorStr string, pageSize int) (*Page, error) {
	started := time.Now()

	cursor, err := DecodeCursor(cursorStr, started)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 || pageSize > e.maxPageSize {
		pageSize = e.maxPageSize
	}

	pool, err := e.candidates.Candidates(ctx, viewerID)
	if err != nil {
		metrics.FeedRequests.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(pool) == 0 {
		metrics.FeedRequests.WithLabelValues("empty").Inc()
		return &Page{}, nil
	}

	videoIDs := make([]uuid.UUID, len(pool))
	creatorSet := make(map[uuid.UUID]struct{}, len(pool))
	for i, c := range pool {
		videoIDs[i] = c.VideoID
		creatorSet[c.CreatorID] = struct{}{}
	}
	creatorIDs := make([]uuid.UUID, 0, len(creatorSet))
	for id := range creatorSet {
		creatorIDs = append(creatorIDs, id)
	}

	counters, affinities := e.fetchSignals(ctx, viewerID, videoIDs, creatorIDs)

	ranked := e.score(pool, counters, affinities, cursor.Epoch())

	// Deterministic: score descending, video id ascending on ties.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].VideoID.String() < ranked[j].VideoID.String()
	})

	page := &Page{}
	if cursor.Offset < len(ranked) {
		end := cursor.Offset + pageSize
		if end > len(ranked) {
			end = len(ranked)
		}
		page.Items = ranked[cursor.Offset:end]
		if end < len(ranked) {
			page.NextCursor = Cursor{EpochUnixMilli: cursor.EpochUnixMilli, Offset: end}.Encode()
		}
	}

	metrics.FeedRequests.WithLabelValues("ok").Inc()
	metrics.FeedLatency.Observe(time.Since(started).Seconds())
	return page, nil
}

// fetchSignals runs the counter and affinity reads concurrently with a
// bounded timeout. A failed or timed-out fetch yields a nil map; scoring
// treats missing entries as neutral. Cancellation of the request context
// propagates into both fetches.
func (e *Engine) fetchSignals(ctx context.Context, viewerID uuid.UUID, videoIDs, creatorIDs []uuid.UUID) (map[uuid.UUID]*db.EngagementCounters, map[uuid.UUID]float64) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	var (
		counters   map[uuid.UUID]*db.EngagementCounters
		affinities map[uuid.UUID]float64
	)

	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		m, err := e.signals.GetCountersMany(gctx, videoIDs)
		if err != nil {
			slog.Warn("counter fetch degraded to neutral", "viewer_id", viewerID, "error", err)
			return nil
		}
		counters = m
		return nil
	})
	g.Go(func() error {
		m, err := e.affinity.GetAffinityScores(gctx, viewerID, creatorIDs)
		if err != nil {
			slog.Warn("affinity fetch degraded to neutral", "viewer_id", viewerID, "error", err)
			return nil
		}
		affinities = m
		return nil
	})
	_ = g.Wait()

	return counters, affinities
}

// score computes the blended score for every candidate at the epoch.
func (e *Engine) score(pool []Candidate, counters map[uuid.UUID]*db.EngagementCounters, affinities map[uuid.UUID]float64, epoch time.Time) []RankedVideo {
	// Raw engagement per candidate, then min-max scale over this pool so
	// one viral outlier cannot flatten everything else to zero.
	raw := make([]float64, len(pool))
	minRaw, maxRaw := math.Inf(1), math.Inf(-1)
	for i, c := range pool {
		var v float64
		if counter, ok := counters[c.VideoID]; ok && counter != nil {
			v = viewWeight*float64(counter.Views) +
				likeWeight*float64(counter.Likes) +
				commentWeight*float64(counter.Comments) +
				shareWeight*float64(counter.Shares)
		}
		raw[i] = v
		minRaw = math.Min(minRaw, v)
		maxRaw = math.Max(maxRaw, v)
	}

	halfLife := e.weights.HalfLife.Seconds()
	ranked := make([]RankedVideo, len(pool))
	for i, c := range pool {
		engagement := 0.5 // degenerate pool: every candidate is average
		if maxRaw > minRaw {
			engagement = (raw[i] - minRaw) / (maxRaw - minRaw)
		}

		age := epoch.Sub(c.CreatedAt).Seconds()
		if age < 0 {
			age = 0
		}
		recency := math.Exp(-age * math.Ln2 / halfLife)

		affinity := affinities[c.CreatorID] // zero when unknown: neutral

		ranked[i] = RankedVideo{
			VideoID: c.VideoID,
			Score: e.weights.Engagement*engagement +
				e.weights.Recency*recency +
				e.weights.Affinity*affinity,
		}
	}
	return ranked
}
