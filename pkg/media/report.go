package media

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Report contains the metadata a processing tool reports for a produced
// asset.
type Report struct {
	// Video properties
	Width      int     // Video width in pixels
	Height     int     // Video height in pixels
	FPS        float64 // Frames per second
	VideoCodec string  // Video codec name (h264, vp9, etc.)

	// File properties
	Duration   float64 // Duration in seconds
	Bitrate    int64   // Total bitrate in bits per second
	Size       int64   // File size in bytes
	FormatName string  // Container format (mp4, webm, etc.)
}

// toolReport matches the JSON structure emitted by ffprobe-style
// inspection tools.
type toolReport struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// ParseReport parses a tool's JSON report. String-typed numeric fields go
// through the strict parsers in this package; a malformed frame rate or
// duration fails the whole report rather than being guessed at.
func ParseReport(raw []byte) (*Report, error) {
	var out toolReport
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("media report: %w", err)
	}

	report := &Report{FormatName: out.Format.FormatName}

	if out.Format.Duration != "" {
		d, err := ParseSeconds(out.Format.Duration)
		if err != nil {
			return nil, fmt.Errorf("media report: duration: %w", err)
		}
		report.Duration = d
	}
	if out.Format.BitRate != "" {
		v, err := strconv.ParseInt(out.Format.BitRate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("media report: bit_rate: %w", err)
		}
		report.Bitrate = v
	}
	if out.Format.Size != "" {
		v, err := strconv.ParseInt(out.Format.Size, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("media report: size: %w", err)
		}
		report.Size = v
	}

	for _, stream := range out.Streams {
		if stream.CodecType != "video" || report.VideoCodec != "" {
			continue
		}
		// Only the first video stream is reported.
		report.Width = stream.Width
		report.Height = stream.Height
		report.VideoCodec = stream.CodecName
		if stream.RFrameRate != "" {
			rate, err := ParseRational(stream.RFrameRate)
			if err != nil {
				return nil, fmt.Errorf("media report: frame rate: %w", err)
			}
			report.FPS = rate.Float64()
		}
	}

	return report, nil
}
