package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/ingest"
	"loopcast.media/loopcast/internal/storage"
	"loopcast.media/loopcast/pkg/media"
)

// FFmpegProcessor implements Processor on top of the ffmpeg/ffprobe
// binaries. Blobs are staged through a scratch directory; nothing under it
// survives a job.
type FFmpegProcessor struct {
	blobs   storage.BlobStore
	workDir string
}

func NewFFmpegProcessor(blobs storage.BlobStore, workDir string) (*FFmpegProcessor, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("worker: create work dir: %w", err)
	}
	return &FFmpegProcessor{blobs: blobs, workDir: workDir}, nil
}

func (p *FFmpegProcessor) Transcode(ctx context.Context, video *db.Video) (*ingest.JobResult, error) {
	in := filepath.Join(p.workDir, video.ID.String()+".raw"+path.Ext(video.StorageKeyRaw))
	out := filepath.Join(p.workDir, video.ID.String()+".mp4")
	defer os.Remove(in)
	defer os.Remove(out)

	if err := p.fetch(ctx, video.StorageKeyRaw, in); err != nil {
		return nil, err
	}

	// Inspect before transcoding: an unreadable or video-less file is a
	// permanent failure, not something a retry can fix.
	report, err := probeFile(ctx, in)
	if err != nil {
		var te *toolError
		if errors.As(err, &te) {
			return nil, ingest.Permanent(ingest.ReasonCorruptFile, err)
		}
		return nil, err
	}
	if report.VideoCodec == "" {
		return nil, ingest.Permanent(ingest.ReasonUnsupportedFormat, errors.New("no video stream"))
	}

	if _, err := runTool(ctx, "ffmpeg", transcodeArgs(in, out)); err != nil {
		return nil, classifyTranscodeErr(err)
	}

	// Measure the produced rendition, not the source. The strict parser
	// rejects anything ffprobe reports that does not look like a number.
	produced, err := probeFile(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("worker: validate rendition: %w", err)
	}
	if produced.Duration <= 0 {
		return nil, ingest.Permanent(ingest.ReasonCorruptFile, errors.New("zero-length rendition"))
	}

	key := playableKey(video.ID.String())
	if err := p.upload(ctx, key, out); err != nil {
		return nil, err
	}

	return &ingest.JobResult{
		PlayableKey:     key,
		DurationSeconds: produced.Duration,
	}, nil
}

func (p *FFmpegProcessor) Thumbnail(ctx context.Context, video *db.Video) (string, error) {
	if video.StorageKeyPlayable == nil {
		return "", fmt.Errorf("worker: video %s has no playable rendition", video.ID)
	}

	in := filepath.Join(p.workDir, video.ID.String()+".playable.mp4")
	out := filepath.Join(p.workDir, video.ID.String()+".jpg")
	defer os.Remove(in)
	defer os.Remove(out)

	if err := p.fetch(ctx, *video.StorageKeyPlayable, in); err != nil {
		return "", err
	}

	// Poster frame a tenth of the way in, so it skips black lead-in frames.
	var seek float64
	if video.DurationSeconds != nil {
		seek = *video.DurationSeconds * 0.1
	}
	if _, err := runTool(ctx, "ffmpeg", thumbnailArgs(in, out, seek)); err != nil {
		return "", err
	}

	key := thumbnailKey(video.ID.String())
	if err := p.upload(ctx, key, out); err != nil {
		return "", err
	}
	return key, nil
}

func (p *FFmpegProcessor) Caption(ctx context.Context, video *db.Video, language string) (string, error) {
	if video.StorageKeyPlayable == nil {
		return "", fmt.Errorf("worker: video %s has no playable rendition", video.ID)
	}
	if language == "" {
		language = "und"
	}

	in := filepath.Join(p.workDir, video.ID.String()+".playable.mp4")
	out := filepath.Join(p.workDir, video.ID.String()+".vtt")
	defer os.Remove(in)
	defer os.Remove(out)

	if err := p.fetch(ctx, *video.StorageKeyPlayable, in); err != nil {
		return "", err
	}

	// Extract an embedded text track when the source carries one. A
	// source without subtitles still gets a valid empty track so players
	// have something to attach.
	if _, err := runTool(ctx, "ffmpeg", captionArgs(in, out)); err != nil {
		if !isNoSubtitleStream(err) {
			return "", err
		}
		if err := os.WriteFile(out, []byte("WEBVTT\n"), 0o644); err != nil {
			return "", fmt.Errorf("worker: write empty caption track: %w", err)
		}
	}

	key := captionKey(video.ID.String(), language)
	if err := p.upload(ctx, key, out); err != nil {
		return "", err
	}
	return key, nil
}

func (p *FFmpegProcessor) fetch(ctx context.Context, key, dest string) error {
	r, err := p.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ingest.Permanent(ingest.ReasonCorruptFile, fmt.Errorf("blob %s missing", key))
		}
		return fmt.Errorf("worker: fetch %s: %w", key, err)
	}
	defer r.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("worker: stage %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("worker: stage %s: %w", key, err)
	}
	return nil
}

func (p *FFmpegProcessor) upload(ctx context.Context, key, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("worker: read %s: %w", src, err)
	}
	defer f.Close()

	if err := p.blobs.Put(ctx, key, f); err != nil {
		return fmt.Errorf("worker: upload %s: %w", key, err)
	}
	return nil
}

// probeFile runs ffprobe and parses its report with the strict parsers.
func probeFile(ctx context.Context, path string) (*media.Report, error) {
	stdout, err := runTool(ctx, "ffprobe", probeArgs(path))
	if err != nil {
		return nil, err
	}
	return media.ParseReport(stdout)
}

func probeArgs(path string) []string {
	return []string{
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

func transcodeArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-i", in,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		// Cap at 1080 wide and keep dimensions even, which h264 requires.
		"-vf", "scale='min(1080,iw)':-2",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		out,
	}
}

func thumbnailArgs(in, out string, seekSeconds float64) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-ss", fmt.Sprintf("%.2f", seekSeconds),
		"-i", in,
		"-frames:v", "1",
		"-vf", "scale='min(640,iw)':-2",
		out,
	}
}

func captionArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-i", in,
		"-map", "0:s:0",
		"-f", "webvtt",
		out,
	}
}

func playableKey(videoID string) string {
	return "playable/" + videoID + ".mp4"
}

func thumbnailKey(videoID string) string {
	return "thumbs/" + videoID + ".jpg"
}

func captionKey(videoID, language string) string {
	return "captions/" + videoID + "." + language + ".vtt"
}

// classifyTranscodeErr maps ffmpeg stderr signatures onto the permanent
// failure reasons. Anything unrecognized stays transient and retries.
func classifyTranscodeErr(err error) error {
	var te *toolError
	if !errors.As(err, &te) {
		return err
	}
	stderr := te.Stderr
	switch {
	case strings.Contains(stderr, "Invalid data found when processing input"),
		strings.Contains(stderr, "moov atom not found"):
		return ingest.Permanent(ingest.ReasonCorruptFile, err)
	case strings.Contains(stderr, "Decoder not found"),
		strings.Contains(stderr, "decoder not found"),
		strings.Contains(stderr, "Unknown format"):
		return ingest.Permanent(ingest.ReasonUnsupportedFormat, err)
	}
	return err
}

func isNoSubtitleStream(err error) bool {
	var te *toolError
	if !errors.As(err, &te) {
		return false
	}
	return strings.Contains(te.Stderr, "matches no streams") ||
		strings.Contains(te.Stderr, "Output file does not contain any stream")
}
