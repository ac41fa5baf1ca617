package feed

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"loopcast.media/loopcast/internal/db"
)

// videoLister is the slice of *db.Queries the candidate source needs.
type videoLister interface {
	ListFollowedCreators(ctx context.Context, followerID uuid.UUID) ([]uuid.UUID, error)
	ListReadyVideosByCreators(ctx context.Context, creatorIDs []uuid.UUID, limit int) ([]*db.Video, error)
	ListDiscoveryVideos(ctx context.Context, excludeOwners []uuid.UUID, limit int) ([]*db.Video, error)
}

// StoreCandidateSource builds the candidate pool from the video store:
// all READY videos by followed creators, plus a recency-ordered discovery
// sample from everyone else (the viewer's own videos excluded).
type StoreCandidateSource struct {
	q              videoLister
	followedLimit  int
	discoveryLimit int
}

func NewStoreCandidateSource(q videoLister, followedLimit, discoveryLimit int) *StoreCandidateSource {
	return &StoreCandidateSource{
		q:              q,
		followedLimit:  followedLimit,
		discoveryLimit: discoveryLimit,
	}
}

func (s *StoreCandidateSource) Candidates(ctx context.Context, viewerID uuid.UUID) ([]Candidate, error) {
	followed, err := s.q.ListFollowedCreators(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}

	var pool []Candidate
	if len(followed) > 0 {
		videos, err := s.q.ListReadyVideosByCreators(ctx, followed, s.followedLimit)
		if err != nil {
			return nil, fmt.Errorf("candidates: %w", err)
		}
		for _, v := range videos {
			pool = append(pool, Candidate{
				VideoID:   v.ID,
				CreatorID: v.OwnerID,
				CreatedAt: v.CreatedAt,
				Followed:  true,
			})
		}
	}

	exclude := append(append([]uuid.UUID{}, followed...), viewerID)
	discovery, err := s.q.ListDiscoveryVideos(ctx, exclude, s.discoveryLimit)
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	for _, v := range discovery {
		pool = append(pool, Candidate{
			VideoID:   v.ID,
			CreatorID: v.OwnerID,
			CreatedAt: v.CreatedAt,
		})
	}

	return pool, nil
}
