package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRational_NTSCFrameRate(t *testing.T) {
	r, err := ParseRational("30000/1001")
	require.NoError(t, err)
	require.Equal(t, Rational{Num: 30000, Den: 1001}, r)
	require.InDelta(t, 29.97, r.Float64(), 0.001)
}

func TestParseRational_Integral(t *testing.T) {
	r, err := ParseRational("30/1")
	require.NoError(t, err)
	require.Equal(t, 30.0, r.Float64())

	r, err = ParseRational("60")
	require.NoError(t, err)
	require.Equal(t, Rational{Num: 60, Den: 1}, r)
}

func TestParseRational_ZeroOverZero(t *testing.T) {
	_, err := ParseRational("0/0")
	require.Error(t, err)
}

func TestParseRational_Rejects(t *testing.T) {
	for _, input := range []string{
		"",
		"30/0",
		"-30/1",
		"30/-1",
		"30.0/1",
		"1e3/1",
		"30 / 1",
		"30/1/2",
		"__import__('os')",
		"0x1e/1",
	} {
		_, err := ParseRational(input)
		require.Error(t, err, "input %q", input)
	}
}

func TestParseSeconds(t *testing.T) {
	v, err := ParseSeconds("41.958000")
	require.NoError(t, err)
	require.InDelta(t, 41.958, v, 0.0001)

	v, err = ParseSeconds("42")
	require.NoError(t, err)
	require.Equal(t, 42.0, v)
}

func TestParseSeconds_Rejects(t *testing.T) {
	for _, input := range []string{"", "-1", "NaN", "Inf", "1e10", "0x1p4", "1;2"} {
		_, err := ParseSeconds(input)
		require.Error(t, err, "input %q", input)
	}
}

func TestParseReport(t *testing.T) {
	raw := []byte(`{
		"format": {"format_name": "mov,mp4,m4a", "duration": "42.000000", "size": "1048576", "bit_rate": "199728"},
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1080, "height": 1920, "r_frame_rate": "30000/1001"},
			{"codec_type": "video", "codec_name": "h264", "width": 640, "height": 360, "r_frame_rate": "25/1"}
		]
	}`)

	report, err := ParseReport(raw)
	require.NoError(t, err)
	require.Equal(t, 42.0, report.Duration)
	require.Equal(t, int64(1048576), report.Size)
	require.Equal(t, int64(199728), report.Bitrate)
	require.Equal(t, "h264", report.VideoCodec)
	require.Equal(t, 1080, report.Width)
	require.Equal(t, 1920, report.Height)
	require.InDelta(t, 29.97, report.FPS, 0.001)
}

func TestParseReport_MalformedFrameRate(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "1.0"},
		"streams": [{"codec_type": "video", "codec_name": "h264", "r_frame_rate": "30/1; rm -rf /"}]
	}`)
	_, err := ParseReport(raw)
	require.Error(t, err)
}
