package db

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatus is the single source of truth for playability.
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "PENDING"
	VideoStatusProcessing VideoStatus = "PROCESSING"
	VideoStatusReady      VideoStatus = "READY"
	VideoStatusFailed     VideoStatus = "FAILED"
)

// Terminal reports whether no further transition may target this status
// without an explicit re-submission.
func (s VideoStatus) Terminal() bool {
	return s == VideoStatusReady || s == VideoStatusFailed
}

// Video is a single uploaded asset and its processing lifecycle record.
// StorageKeyPlayable is non-nil iff Status is READY (enforced by a CHECK
// constraint as well as the state machine).
type Video struct {
	ID                 uuid.UUID
	OwnerID            uuid.UUID
	Title              string
	Description        string
	Status             VideoStatus
	StorageKeyRaw      string
	StorageKeyPlayable *string
	ThumbnailKey       *string
	DurationSeconds    *float64
	FailureReason      *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// JobKind identifies the processing capability a job invokes.
type JobKind string

const (
	JobKindTranscode JobKind = "transcode"
	JobKindThumbnail JobKind = "thumbnail"
	JobKindCaption   JobKind = "caption"
)

// Job is one leased or queued unit of processing work. At most one live
// job exists per (video_id, kind).
type Job struct {
	ID           uuid.UUID
	VideoID      uuid.UUID
	Kind         JobKind
	Language     *string
	AttemptCount int
	EnqueuedAt   time.Time
}

// SignalKind is a countable engagement interaction.
type SignalKind string

const (
	SignalView    SignalKind = "view"
	SignalLike    SignalKind = "like"
	SignalComment SignalKind = "comment"
	SignalShare   SignalKind = "share"
)

// EngagementCounters holds the per-video durable counters consumed by the
// ranking engine. All reads of this struct are eventually consistent.
type EngagementCounters struct {
	VideoID  uuid.UUID
	Views    int64
	Likes    int64
	Comments int64
	Shares   int64
}

// CreatorAffinity is a precomputed per-(viewer, creator) interest weight.
type CreatorAffinity struct {
	ViewerID  uuid.UUID
	CreatorID uuid.UUID
	Score     float64
	UpdatedAt time.Time
}

// Comment is a user comment on a video.
type Comment struct {
	ID        uuid.UUID
	VideoID   uuid.UUID
	UserID    uuid.UUID
	Body      string
	CreatedAt time.Time
}
