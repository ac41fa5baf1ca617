package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"loopcast.media/loopcast/internal/ingest"
)

func TestClassifyTranscodeErr(t *testing.T) {
	tests := []struct {
		name       string
		stderr     string
		wantReason string
	}{
		{"corrupt input", "x.mp4: Invalid data found when processing input", ingest.ReasonCorruptFile},
		{"truncated mp4", "[mov,mp4,m4a] moov atom not found", ingest.ReasonCorruptFile},
		{"missing decoder", "Decoder not found for codec prores_raw", ingest.ReasonUnsupportedFormat},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := &toolError{Bin: "ffmpeg", Stderr: tc.stderr, Err: errors.New("exit status 1")}
			out := classifyTranscodeErr(in)
			reason, permanent := ingest.PermanentReason(out)
			require.True(t, permanent)
			require.Equal(t, tc.wantReason, reason)
		})
	}
}

func TestClassifyTranscodeErr_UnrecognizedStaysTransient(t *testing.T) {
	in := &toolError{Bin: "ffmpeg", Stderr: "Conversion failed!", Err: errors.New("exit status 1")}
	out := classifyTranscodeErr(in)
	_, permanent := ingest.PermanentReason(out)
	require.False(t, permanent)

	plain := errors.New("context deadline exceeded")
	require.Equal(t, plain, classifyTranscodeErr(plain))
}

func TestIsNoSubtitleStream(t *testing.T) {
	te := &toolError{Bin: "ffmpeg", Stderr: "Stream map '0:s:0' matches no streams.", Err: errors.New("exit status 1")}
	require.True(t, isNoSubtitleStream(te))
	require.False(t, isNoSubtitleStream(errors.New("boom")))
}

func TestToolError_KeepsStderrTail(t *testing.T) {
	te := &toolError{
		Bin:    "ffmpeg",
		Stderr: "line1\nline2\nline3\nline4\nline5",
		Err:    errors.New("exit status 1"),
	}
	msg := te.Error()
	require.Contains(t, msg, "line5")
	require.NotContains(t, msg, "line1")
}

func TestDerivedStorageKeys(t *testing.T) {
	require.Equal(t, "playable/abc.mp4", playableKey("abc"))
	require.Equal(t, "thumbs/abc.jpg", thumbnailKey("abc"))
	require.Equal(t, "captions/abc.en.vtt", captionKey("abc", "en"))
}
