package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
	"loopcast.media/loopcast/internal/metrics"
)

// Queue is the job-queue surface a worker drains. *db.Queries satisfies it.
type Queue interface {
	LeaseJob(ctx context.Context, workerID string, leaseFor time.Duration) (*db.Job, error)
	AckJob(ctx context.Context, jobID uuid.UUID) error
	ReleaseJob(ctx context.Context, jobID uuid.UUID, backoff time.Duration, lastError string) error
	GetVideoByID(ctx context.Context, id uuid.UUID) (*db.Video, error)
}

// Lifecycle is the ingestion state machine as seen from a worker.
// *ingest.StateMachine satisfies it.
type Lifecycle interface {
	OnJobAccepted(ctx context.Context, videoID uuid.UUID) error
	OnJobSucceeded(ctx context.Context, videoID uuid.UUID, result *ingest.JobResult) error
	OnThumbnailReady(ctx context.Context, videoID uuid.UUID, thumbnailKey string) error
	OnJobFailed(ctx context.Context, videoID uuid.UUID, kind db.JobKind, failure error, attempt int) (bool, error)
	Backoff(attempt int) time.Duration
}

// Pool runs worker loops against the processing queue. Ordering per job is
// strict: the lifecycle transition is recorded durably first, the queue ack
// happens after. A crash between the two redelivers the job, and the
// lifecycle's terminal-state guard absorbs the duplicate.
type Pool struct {
	queue     Queue
	lifecycle Lifecycle
	proc      Processor
	workerID  string
	leaseFor  time.Duration
	wake      <-chan struct{}
	pollEvery time.Duration
}

func NewPool(queue Queue, lifecycle Lifecycle, proc Processor, workerID string, leaseFor time.Duration, wake <-chan struct{}) *Pool {
	return &Pool{
		queue:     queue,
		lifecycle: lifecycle,
		proc:      proc,
		workerID:  workerID,
		leaseFor:  leaseFor,
		wake:      wake,
		pollEvery: 5 * time.Second,
	}
}

// Run is one worker loop: drain the queue, then block on a wake
// notification or the poll interval. Callers start one goroutine per
// worker.
func (p *Pool) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		for {
			job, err := p.queue.LeaseJob(ctx, p.workerID, p.leaseFor)
			if err != nil {
				if db.IsNoRows(err) {
					break
				}
				slog.Error("failed to lease job", "worker_id", p.workerID, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
				}
				break
			}
			p.handle(ctx, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			// new job notification
		case <-time.After(p.pollEvery):
			// periodic poll covers missed notifications and expired leases
		}
	}
}

func (p *Pool) handle(ctx context.Context, job *db.Job) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	started := time.Now()
	outcome := "ok"
	defer func() {
		metrics.JobsProcessed.WithLabelValues(string(job.Kind), outcome).Inc()
		metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(started).Seconds())
	}()

	slog.Info("processing job",
		"job_id", job.ID, "video_id", job.VideoID, "kind", job.Kind, "attempt", job.AttemptCount)

	video, err := p.queue.GetVideoByID(ctx, job.VideoID)
	if err != nil {
		if db.IsNoRows(err) {
			// Asset deleted while the job was queued.
			outcome = "orphaned"
			p.ack(ctx, job)
			return
		}
		outcome = "error"
		p.release(ctx, job, err)
		return
	}

	result, procErr := p.invoke(ctx, job, video)
	if procErr != nil {
		retry, err := p.lifecycle.OnJobFailed(ctx, job.VideoID, job.Kind, procErr, job.AttemptCount)
		if err != nil {
			outcome = "error"
			p.release(ctx, job, err)
			return
		}
		if retry {
			outcome = "retry"
			p.release(ctx, job, procErr)
			return
		}
		// Terminal: the failure is durable, so the job can go. For a
		// transcode the lifecycle already cleared the video's jobs and
		// this ack is a no-op.
		outcome = "failed"
		slog.Error("job failed terminally",
			"job_id", job.ID, "video_id", job.VideoID, "kind", job.Kind, "error", procErr)
		p.ack(ctx, job)
		return
	}

	if err := p.record(ctx, job, result); err != nil {
		// The work product exists but the transition did not land; the
		// redelivery will find the blobs already in place.
		outcome = "error"
		p.release(ctx, job, err)
		return
	}
	p.ack(ctx, job)
}

// invoke dispatches the job to the matching processor capability.
func (p *Pool) invoke(ctx context.Context, job *db.Job, video *db.Video) (*ingest.JobResult, error) {
	switch job.Kind {
	case db.JobKindTranscode:
		if err := p.lifecycle.OnJobAccepted(ctx, job.VideoID); err != nil {
			return nil, err
		}
		result, err := p.proc.Transcode(ctx, video)
		if err != nil {
			return nil, err
		}
		result.CaptionLanguage = job.Language
		return result, nil

	case db.JobKindThumbnail:
		key, err := p.proc.Thumbnail(ctx, video)
		if err != nil {
			return nil, err
		}
		return &ingest.JobResult{ThumbnailKey: &key}, nil

	case db.JobKindCaption:
		var lang string
		if job.Language != nil {
			lang = *job.Language
		}
		// The caption blob lives at a key derived from video and
		// language; nothing to record beyond its existence.
		_, err := p.proc.Caption(ctx, video, lang)
		return nil, err

	default:
		return nil, ingest.Permanent(ingest.ReasonUnsupportedFormat,
			&unknownJobKindError{kind: job.Kind})
	}
}

// record lands the durable lifecycle transition for a completed job.
func (p *Pool) record(ctx context.Context, job *db.Job, result *ingest.JobResult) error {
	switch job.Kind {
	case db.JobKindTranscode:
		return p.lifecycle.OnJobSucceeded(ctx, job.VideoID, result)
	case db.JobKindThumbnail:
		return p.lifecycle.OnThumbnailReady(ctx, job.VideoID, *result.ThumbnailKey)
	default:
		return nil
	}
}

func (p *Pool) ack(ctx context.Context, job *db.Job) {
	if err := p.queue.AckJob(ctx, job.ID); err != nil {
		slog.Error("failed to ack job", "job_id", job.ID, "error", err)
	}
}

func (p *Pool) release(ctx context.Context, job *db.Job, cause error) {
	backoff := p.lifecycle.Backoff(job.AttemptCount)
	if err := p.queue.ReleaseJob(ctx, job.ID, backoff, cause.Error()); err != nil {
		slog.Error("failed to release job", "job_id", job.ID, "error", err)
		return
	}
	slog.Info("job released for retry",
		"job_id", job.ID, "video_id", job.VideoID, "backoff", backoff, "error", cause)
}

type unknownJobKindError struct {
	kind db.JobKind
}

func (e *unknownJobKindError) Error() string {
	return "unknown job kind " + string(e.kind)
}
