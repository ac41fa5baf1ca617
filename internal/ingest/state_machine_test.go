package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"loopcast.media/loopcast/internal/db"
)

// fakeStore implements Store in memory, with optional fault injection.
type fakeStore struct {
	mu     sync.Mutex
	videos map[uuid.UUID]*db.Video
	jobs   map[uuid.UUID]*db.EnqueueJobParams

	failCreate       bool
	failResetEnqueue bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		videos: make(map[uuid.UUID]*db.Video),
		jobs:   make(map[uuid.UUID]*db.EnqueueJobParams),
	}
}

func (s *fakeStore) CreateVideoWithJob(ctx context.Context, video *db.InsertVideoParams, job *db.EnqueueJobParams) (*db.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, errors.New("induced create failure")
	}
	v := &db.Video{
		ID:            video.ID,
		OwnerID:       video.OwnerID,
		Title:         video.Title,
		Description:   video.Description,
		Status:        db.VideoStatusPending,
		StorageKeyRaw: video.StorageKeyRaw,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	s.videos[v.ID] = v
	s.jobs[job.ID] = job
	return v, nil
}

func (s *fakeStore) EnqueueJobAndNotify(ctx context.Context, job *db.EnqueueJobParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.VideoID == job.VideoID && existing.Kind == job.Kind {
			return false, nil
		}
	}
	s.jobs[job.ID] = job
	return true, nil
}

func (s *fakeStore) GetVideoByID(ctx context.Context, id uuid.UUID) (*db.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, fmt.Errorf("video %s not found", id)
	}
	copied := *v
	return &copied, nil
}

func (s *fakeStore) MarkVideoProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok || v.Status != db.VideoStatusPending {
		return false, nil
	}
	v.Status = db.VideoStatusProcessing
	return true, nil
}

func (s *fakeStore) MarkVideoReady(ctx context.Context, params *db.MarkVideoReadyParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[params.ID]
	if !ok || v.Status.Terminal() {
		return false, nil
	}
	v.Status = db.VideoStatusReady
	v.StorageKeyPlayable = &params.PlayableKey
	v.ThumbnailKey = params.ThumbnailKey
	v.DurationSeconds = &params.DurationSeconds
	v.FailureReason = nil
	return true, nil
}

func (s *fakeStore) MarkVideoFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok || v.Status.Terminal() {
		return false, nil
	}
	v.Status = db.VideoStatusFailed
	v.StorageKeyPlayable = nil
	v.FailureReason = &reason
	return true, nil
}

func (s *fakeStore) ResetVideoWithJob(ctx context.Context, videoID uuid.UUID, job *db.EnqueueJobParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok || v.Status != db.VideoStatusFailed {
		return false, nil
	}
	// Reset and enqueue share a transaction: a failed enqueue rolls the
	// status change back too.
	if s.failResetEnqueue {
		return false, errors.New("induced enqueue failure")
	}
	v.Status = db.VideoStatusPending
	v.StorageKeyPlayable = nil
	v.ThumbnailKey = nil
	v.DurationSeconds = nil
	v.FailureReason = nil
	s.jobs[job.ID] = job
	return true, nil
}

func (s *fakeStore) SetVideoThumbnail(ctx context.Context, id uuid.UUID, thumbnailKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.videos[id]; ok && v.Status != db.VideoStatusFailed {
		v.ThumbnailKey = &thumbnailKey
	}
	return nil
}

func (s *fakeStore) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.videos, id)
	return nil
}

func (s *fakeStore) DeleteJobsForVideo(ctx context.Context, videoID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.VideoID == videoID {
			delete(s.jobs, id)
		}
	}
	return nil
}

func (s *fakeStore) NotifyVideoStatus(ctx context.Context, videoID uuid.UUID, status db.VideoStatus) error {
	return nil
}

func (s *fakeStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *fakeStore) videoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.videos)
}

// fakeBlobs implements storage.BlobStore in memory with fault injection.
type fakeBlobs struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	failPut bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: make(map[string][]byte)}
}

func (b *fakeBlobs) Put(ctx context.Context, key string, r io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut {
		return errors.New("induced put failure")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.blobs[key] = data
	return nil
}

func (b *fakeBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (b *fakeBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

func (b *fakeBlobs) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "/media/" + key, nil
}

func (b *fakeBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

func newTestMachine(store Store, blobs *fakeBlobs) *StateMachine {
	return NewStateMachine(store, blobs, NewHub(), 3, 5*time.Second)
}

func submitOne(t *testing.T, m *StateMachine, owner uuid.UUID) *db.Video {
	t.Helper()
	video, err := m.Submit(context.Background(), &SubmitParams{
		OwnerID:  owner,
		Title:    "clip",
		Filename: "clip.mp4",
		Raw:      strings.NewReader("raw-bytes"),
	})
	require.NoError(t, err)
	return video
}

func TestSubmit_ExactlyOneRecordAndJob(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	m := newTestMachine(store, blobs)

	video := submitOne(t, m, uuid.New())

	require.Equal(t, db.VideoStatusPending, video.Status)
	require.Equal(t, 1, store.videoCount())
	require.Equal(t, 1, store.jobCount())
	require.Equal(t, 1, blobs.count())
}

func TestSubmit_StorageFailure_NothingCreated(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	blobs.failPut = true
	m := newTestMachine(store, blobs)

	_, err := m.Submit(context.Background(), &SubmitParams{
		OwnerID:  uuid.New(),
		Title:    "clip",
		Filename: "clip.mp4",
		Raw:      strings.NewReader("raw-bytes"),
	})
	require.Error(t, err)
	require.Equal(t, 0, store.videoCount())
	require.Equal(t, 0, store.jobCount())
	require.Equal(t, 0, blobs.count())
}

func TestSubmit_RecordFailure_CompensatesBlob(t *testing.T) {
	store := newFakeStore()
	store.failCreate = true
	blobs := newFakeBlobs()
	m := newTestMachine(store, blobs)

	_, err := m.Submit(context.Background(), &SubmitParams{
		OwnerID:  uuid.New(),
		Title:    "clip",
		Filename: "clip.mp4",
		Raw:      strings.NewReader("raw-bytes"),
	})
	require.Error(t, err)
	require.Equal(t, 0, store.videoCount())
	require.Equal(t, 0, store.jobCount())
	require.Equal(t, 0, blobs.count(), "orphaned blob after failed submit")

	// Eventual success after the fault clears still yields exactly one of
	// everything.
	store.failCreate = false
	submitOne(t, m, uuid.New())
	require.Equal(t, 1, store.videoCount())
	require.Equal(t, 1, store.jobCount())
	require.Equal(t, 1, blobs.count())
}

func TestSubmit_InvalidCaptionLanguage(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	m := newTestMachine(store, blobs)

	_, err := m.Submit(context.Background(), &SubmitParams{
		OwnerID:         uuid.New(),
		Title:           "clip",
		Filename:        "clip.mp4",
		Raw:             strings.NewReader("raw-bytes"),
		CaptionLanguage: "not a language tag",
	})
	require.Error(t, err)
	require.Equal(t, 0, store.videoCount())
}

func TestLifecycle_HappyPath(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	m := newTestMachine(store, blobs)
	ctx := context.Background()

	video := submitOne(t, m, uuid.New())

	require.NoError(t, m.OnJobAccepted(ctx, video.ID))
	got, err := store.GetVideoByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusProcessing, got.Status)

	require.NoError(t, m.OnJobSucceeded(ctx, video.ID, &JobResult{
		PlayableKey:     "playable/x.mp4",
		DurationSeconds: 42,
	}))

	got, err = store.GetVideoByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusReady, got.Status)
	require.NotNil(t, got.StorageKeyPlayable)
	require.Equal(t, "playable/x.mp4", *got.StorageKeyPlayable)
	require.NotNil(t, got.DurationSeconds)
	require.Equal(t, 42.0, *got.DurationSeconds)
}

func TestOnJobAccepted_Idempotent(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, newFakeBlobs())
	ctx := context.Background()

	video := submitOne(t, m, uuid.New())
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))

	got, err := store.GetVideoByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusProcessing, got.Status)
}

func TestTerminalState_IgnoresStaleCallbacks(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, newFakeBlobs())
	ctx := context.Background()

	video := submitOne(t, m, uuid.New())
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))
	require.NoError(t, m.OnJobSucceeded(ctx, video.ID, &JobResult{
		PlayableKey:     "playable/a.mp4",
		DurationSeconds: 10,
	}))

	// Replay a different success, a failure, and an accept. None may
	// change status or derived fields.
	require.NoError(t, m.OnJobSucceeded(ctx, video.ID, &JobResult{
		PlayableKey:     "playable/evil.mp4",
		DurationSeconds: 99,
	}))
	retry, err := m.OnJobFailed(ctx, video.ID, db.JobKindTranscode, Permanent(ReasonCorruptFile, nil), 1)
	require.NoError(t, err)
	require.False(t, retry)
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))

	got, err := store.GetVideoByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusReady, got.Status)
	require.Equal(t, "playable/a.mp4", *got.StorageKeyPlayable)
	require.Equal(t, 10.0, *got.DurationSeconds)
}

func TestOnJobFailed_TransientRetries(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, newFakeBlobs())
	ctx := context.Background()

	video := submitOne(t, m, uuid.New())
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))

	retry, err := m.OnJobFailed(ctx, video.ID, db.JobKindTranscode, errors.New("network blip"), 1)
	require.NoError(t, err)
	require.True(t, retry)

	got, err := store.GetVideoByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusProcessing, got.Status, "asset must stay PROCESSING while retrying")
}

func TestOnJobFailed_RetriesExhausted(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, newFakeBlobs())
	ctx := context.Background()

	video := submitOne(t, m, uuid.New())
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))

	retry, err := m.OnJobFailed(ctx, video.ID, db.JobKindTranscode, errors.New("network blip"), 3)
	require.NoError(t, err)
	require.False(t, retry)

	got, err := store.GetVideoByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusFailed, got.Status)
	require.Equal(t, ReasonRetriesExhausted, *got.FailureReason)
	require.Equal(t, 0, store.jobCount(), "no job may remain for a FAILED asset")
}

func TestOnJobFailed_PermanentNoRetry(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, newFakeBlobs())
	ctx := context.Background()

	video := submitOne(t, m, uuid.New())
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))

	retry, err := m.OnJobFailed(ctx, video.ID, db.JobKindTranscode,
		Permanent(ReasonUnsupportedFormat, errors.New("bad codec")), 1)
	require.NoError(t, err)
	require.False(t, retry, "permanent failures must not retry")

	got, err := store.GetVideoByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusFailed, got.Status)
	require.Equal(t, ReasonUnsupportedFormat, *got.FailureReason)
	require.Nil(t, got.StorageKeyPlayable)
	require.Equal(t, 0, store.jobCount())
}

func TestOnJobFailed_FollowUpDoesNotUnReady(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, newFakeBlobs())
	ctx := context.Background()

	video := submitOne(t, m, uuid.New())
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))
	require.NoError(t, m.OnJobSucceeded(ctx, video.ID, &JobResult{
		PlayableKey:     "playable/a.mp4",
		DurationSeconds: 10,
	}))

	retry, err := m.OnJobFailed(ctx, video.ID, db.JobKindCaption, Permanent(ReasonCorruptFile, nil), 1)
	require.NoError(t, err)
	require.False(t, retry)

	got, err := store.GetVideoByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusReady, got.Status)
}

func TestResubmit(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, newFakeBlobs())
	ctx := context.Background()
	owner := uuid.New()

	video := submitOne(t, m, owner)
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))
	_, err := m.OnJobFailed(ctx, video.ID, db.JobKindTranscode,
		Permanent(ReasonUnsupportedFormat, nil), 1)
	require.NoError(t, err)

	// Wrong owner rejected.
	_, err = m.Resubmit(ctx, video.ID, uuid.New())
	require.ErrorIs(t, err, ErrNotOwner)

	got, err := m.Resubmit(ctx, video.ID, owner)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusPending, got.Status)
	require.Nil(t, got.FailureReason)
	require.Equal(t, 1, store.jobCount())
}

func TestResubmit_EnqueueFailure_StaysResubmittable(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, newFakeBlobs())
	ctx := context.Background()
	owner := uuid.New()

	video := submitOne(t, m, owner)
	require.NoError(t, m.OnJobAccepted(ctx, video.ID))
	_, err := m.OnJobFailed(ctx, video.ID, db.JobKindTranscode,
		Permanent(ReasonCorruptFile, nil), 1)
	require.NoError(t, err)

	store.failResetEnqueue = true
	_, err = m.Resubmit(ctx, video.ID, owner)
	require.Error(t, err)

	// The asset must stay FAILED with no job; PENDING without a job would
	// be stranded forever.
	got, err := store.GetVideoByID(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusFailed, got.Status)
	require.Equal(t, 0, store.jobCount())

	// Once the fault clears, the same call goes through.
	store.failResetEnqueue = false
	got, err = m.Resubmit(ctx, video.ID, owner)
	require.NoError(t, err)
	require.Equal(t, db.VideoStatusPending, got.Status)
	require.Equal(t, 1, store.jobCount())
}

func TestResubmit_OnlyFromFailed(t *testing.T) {
	store := newFakeStore()
	m := newTestMachine(store, newFakeBlobs())
	owner := uuid.New()

	video := submitOne(t, m, owner)
	_, err := m.Resubmit(context.Background(), video.ID, owner)
	require.Error(t, err)
}

func TestDelete_OwnershipChecked(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	m := newTestMachine(store, blobs)
	ctx := context.Background()
	owner := uuid.New()

	video := submitOne(t, m, owner)

	require.ErrorIs(t, m.Delete(ctx, video.ID, uuid.New()), ErrNotOwner)
	require.Equal(t, 1, store.videoCount())

	require.NoError(t, m.Delete(ctx, video.ID, owner))
	require.Equal(t, 0, store.videoCount())
	require.Equal(t, 0, blobs.count())
}

func TestBackoff_Exponential(t *testing.T) {
	m := NewStateMachine(newFakeStore(), newFakeBlobs(), nil, 3, 5*time.Second)
	require.Equal(t, 5*time.Second, m.Backoff(1))
	require.Equal(t, 10*time.Second, m.Backoff(2))
	require.Equal(t, 20*time.Second, m.Backoff(3))
}

func TestBackoff_CappedForLargeAttempts(t *testing.T) {
	m := NewStateMachine(newFakeStore(), newFakeBlobs(), nil, 3, 5*time.Second)

	// Redelivered jobs carry an unbounded attempt count; the shift must
	// not overflow into a negative (immediate-retry) delay.
	capped := m.Backoff(maxBackoffShift + 1)
	for _, attempt := range []int{64, 100, 1 << 20} {
		require.Equal(t, capped, m.Backoff(attempt))
	}
	require.Positive(t, capped)
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	videoID := uuid.New()

	ch, cancel, ok := hub.Subscribe(videoID)
	require.True(t, ok)
	defer cancel()

	hub.Publish(videoID, db.VideoStatusReady)
	hub.Publish(uuid.New(), db.VideoStatusFailed) // other video, not delivered

	select {
	case ev := <-ch:
		require.Equal(t, videoID, ev.VideoID)
		require.Equal(t, db.VideoStatusReady, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}
