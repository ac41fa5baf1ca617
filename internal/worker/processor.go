// package worker drains the processing queue: it leases jobs, invokes the
// media tooling, reports outcomes to the ingestion lifecycle and only then
// acknowledges the job.
package worker

import (
	"context"

	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
)

// Processor runs one processing capability against a video's stored
// assets. Implementations must treat the input as untrusted media.
type Processor interface {
	// Transcode turns the raw upload into the playable rendition and
	// reports its measured duration.
	Transcode(ctx context.Context, video *db.Video) (*ingest.JobResult, error)

	// Thumbnail extracts a poster frame from the playable rendition and
	// returns its storage key.
	Thumbnail(ctx context.Context, video *db.Video) (string, error)

	// Caption produces a WebVTT track for the video in the given
	// language and returns its storage key.
	Caption(ctx context.Context, video *db.Video, language string) (string, error)
}
