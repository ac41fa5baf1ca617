package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
)

type fakeQueue struct {
	mu       sync.Mutex
	jobs     []*db.Job
	videos   map[uuid.UUID]*db.Video
	acked    []uuid.UUID
	released []uuid.UUID
	backoffs []time.Duration
}

func (q *fakeQueue) LeaseJob(ctx context.Context, workerID string, leaseFor time.Duration) (*db.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, pgx.ErrNoRows
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	job.AttemptCount++
	return job, nil
}

func (q *fakeQueue) AckJob(ctx context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, jobID)
	return nil
}

func (q *fakeQueue) ReleaseJob(ctx context.Context, jobID uuid.UUID, backoff time.Duration, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = append(q.released, jobID)
	q.backoffs = append(q.backoffs, backoff)
	return nil
}

func (q *fakeQueue) GetVideoByID(ctx context.Context, id uuid.UUID) (*db.Video, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.videos[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return v, nil
}

func (q *fakeQueue) ackedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.acked)
}

type fakeLifecycle struct {
	mu        sync.Mutex
	calls     []string
	retry     bool
	recordErr error
	lastAttempt int
	lastResult  *ingest.JobResult
	lastThumb   string
}

func (l *fakeLifecycle) note(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *fakeLifecycle) OnJobAccepted(ctx context.Context, videoID uuid.UUID) error {
	l.note("accepted")
	return nil
}

func (l *fakeLifecycle) OnJobSucceeded(ctx context.Context, videoID uuid.UUID, result *ingest.JobResult) error {
	l.note("succeeded")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastResult = result
	return l.recordErr
}

func (l *fakeLifecycle) OnThumbnailReady(ctx context.Context, videoID uuid.UUID, thumbnailKey string) error {
	l.note("thumbnail")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastThumb = thumbnailKey
	return l.recordErr
}

func (l *fakeLifecycle) OnJobFailed(ctx context.Context, videoID uuid.UUID, kind db.JobKind, failure error, attempt int) (bool, error) {
	l.note("failed")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastAttempt = attempt
	return l.retry, nil
}

func (l *fakeLifecycle) Backoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

func (l *fakeLifecycle) callLog() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeProcessor struct {
	transcodeErr error
	thumbErr     error
	result       *ingest.JobResult
	thumbKey     string
	invocations  int
}

func (p *fakeProcessor) Transcode(ctx context.Context, video *db.Video) (*ingest.JobResult, error) {
	p.invocations++
	if p.transcodeErr != nil {
		return nil, p.transcodeErr
	}
	r := *p.result
	return &r, nil
}

func (p *fakeProcessor) Thumbnail(ctx context.Context, video *db.Video) (string, error) {
	p.invocations++
	return p.thumbKey, p.thumbErr
}

func (p *fakeProcessor) Caption(ctx context.Context, video *db.Video, language string) (string, error) {
	p.invocations++
	return "captions/x." + language + ".vtt", nil
}

func testVideo() *db.Video {
	return &db.Video{
		ID:            uuid.New(),
		OwnerID:       uuid.New(),
		Status:        db.VideoStatusPending,
		StorageKeyRaw: "raw/x.mp4",
	}
}

func newHandleFixture(kind db.JobKind, video *db.Video) (*fakeQueue, *fakeLifecycle, *fakeProcessor, *db.Job) {
	queue := &fakeQueue{videos: map[uuid.UUID]*db.Video{video.ID: video}}
	lifecycle := &fakeLifecycle{}
	proc := &fakeProcessor{
		result:   &ingest.JobResult{PlayableKey: "playable/x.mp4", DurationSeconds: 12},
		thumbKey: "thumbs/x.jpg",
	}
	job := &db.Job{ID: uuid.New(), VideoID: video.ID, Kind: kind, AttemptCount: 1}
	return queue, lifecycle, proc, job
}

func TestHandle_TranscodeSuccess_RecordThenAck(t *testing.T) {
	video := testVideo()
	queue, lifecycle, proc, job := newHandleFixture(db.JobKindTranscode, video)
	lang := "en"
	job.Language = &lang

	pool := NewPool(queue, lifecycle, proc, "worker-test", time.Minute, nil)
	pool.handle(context.Background(), job)

	require.Equal(t, []string{"accepted", "succeeded"}, lifecycle.callLog())
	require.Equal(t, []uuid.UUID{job.ID}, queue.acked)
	require.Empty(t, queue.released)

	// The submitted caption language rides the job into the result so the
	// follow-up caption job inherits it.
	require.NotNil(t, lifecycle.lastResult.CaptionLanguage)
	require.Equal(t, "en", *lifecycle.lastResult.CaptionLanguage)
}

func TestHandle_TransientFailure_ReleasedWithBackoff(t *testing.T) {
	video := testVideo()
	queue, lifecycle, proc, job := newHandleFixture(db.JobKindTranscode, video)
	proc.transcodeErr = errors.New("disk hiccup")
	lifecycle.retry = true
	job.AttemptCount = 3

	pool := NewPool(queue, lifecycle, proc, "worker-test", time.Minute, nil)
	pool.handle(context.Background(), job)

	require.Empty(t, queue.acked, "a retrying job must stay on the queue")
	require.Equal(t, []uuid.UUID{job.ID}, queue.released)
	require.Equal(t, 3*time.Second, queue.backoffs[0])
	require.Equal(t, 3, lifecycle.lastAttempt)
}

func TestHandle_PermanentFailure_Acked(t *testing.T) {
	video := testVideo()
	queue, lifecycle, proc, job := newHandleFixture(db.JobKindTranscode, video)
	proc.transcodeErr = ingest.Permanent(ingest.ReasonCorruptFile, errors.New("bad moov atom"))
	lifecycle.retry = false

	pool := NewPool(queue, lifecycle, proc, "worker-test", time.Minute, nil)
	pool.handle(context.Background(), job)

	require.Equal(t, []uuid.UUID{job.ID}, queue.acked)
	require.Empty(t, queue.released)
	require.Contains(t, lifecycle.callLog(), "failed")
}

func TestHandle_OrphanedJob_AckedWithoutProcessing(t *testing.T) {
	video := testVideo()
	queue, lifecycle, proc, job := newHandleFixture(db.JobKindTranscode, video)
	delete(queue.videos, video.ID)

	pool := NewPool(queue, lifecycle, proc, "worker-test", time.Minute, nil)
	pool.handle(context.Background(), job)

	require.Equal(t, []uuid.UUID{job.ID}, queue.acked)
	require.Zero(t, proc.invocations)
	require.Empty(t, lifecycle.callLog())
}

func TestHandle_ThumbnailSuccess(t *testing.T) {
	video := testVideo()
	playable := "playable/x.mp4"
	video.StorageKeyPlayable = &playable
	queue, lifecycle, proc, job := newHandleFixture(db.JobKindThumbnail, video)

	pool := NewPool(queue, lifecycle, proc, "worker-test", time.Minute, nil)
	pool.handle(context.Background(), job)

	require.Equal(t, []string{"thumbnail"}, lifecycle.callLog())
	require.Equal(t, "thumbs/x.jpg", lifecycle.lastThumb)
	require.Equal(t, []uuid.UUID{job.ID}, queue.acked)
}

func TestHandle_RecordFailure_ReleasedForRedelivery(t *testing.T) {
	video := testVideo()
	queue, lifecycle, proc, job := newHandleFixture(db.JobKindTranscode, video)
	lifecycle.recordErr = errors.New("db briefly down")

	pool := NewPool(queue, lifecycle, proc, "worker-test", time.Minute, nil)
	pool.handle(context.Background(), job)

	// Work product landed but the transition did not: the job must come
	// back so the transition is retried. Never ack before the record.
	require.Empty(t, queue.acked)
	require.Equal(t, []uuid.UUID{job.ID}, queue.released)
}

func TestRun_DrainsQueueThenWaits(t *testing.T) {
	videoA, videoB := testVideo(), testVideo()
	queue := &fakeQueue{
		videos: map[uuid.UUID]*db.Video{videoA.ID: videoA, videoB.ID: videoB},
		jobs: []*db.Job{
			{ID: uuid.New(), VideoID: videoA.ID, Kind: db.JobKindTranscode},
			{ID: uuid.New(), VideoID: videoB.ID, Kind: db.JobKindTranscode},
		},
	}
	lifecycle := &fakeLifecycle{}
	proc := &fakeProcessor{result: &ingest.JobResult{PlayableKey: "playable/x.mp4", DurationSeconds: 5}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(queue, lifecycle, proc, "worker-test", time.Minute, make(chan struct{}))
	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return queue.ackedCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker loop did not stop on cancel")
	}
}
