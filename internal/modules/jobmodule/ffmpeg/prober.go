package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/hashicorp/go-hclog"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

// Prober uses ffprobe to extract media information
type Prober struct {
	runner      CommandRunner
	ffprobePath string
	logger      hclog.Logger
}

// ProbeResult contains media information from ffprobe
type ProbeResult struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// NewProber creates a new media prober. A nil runner selects
// DefaultCommandRunner.
func NewProber(runner CommandRunner, ffprobePath string, logger hclog.Logger) *Prober {
	if runner == nil {
		runner = &DefaultCommandRunner{}
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{
		runner:      runner,
		ffprobePath: ffprobePath,
		logger:      logger.Named("prober"),
	}
}

// Probe reads duration and frame size of the first video stream. Any file
// ffprobe cannot parse, or that has no video stream or duration, fails with
// ErrUnreadableMedia.
func (p *Prober) Probe(ctx context.Context, path string) (types.Metadata, error) {
	output, err := p.runner.Run(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return types.Metadata{}, unreadable(fmt.Errorf("ffprobe failed: %v", err))
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return types.Metadata{}, unreadable(fmt.Errorf("failed to parse ffprobe output: %v", err))
	}

	var meta types.Metadata
	found := false
	streamDuration := ""
	for _, s := range result.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			meta.Width, meta.Height = s.Width, s.Height
			streamDuration = s.Duration
			found = true
			break
		}
	}
	if !found {
		return types.Metadata{}, unreadable(fmt.Errorf("no video stream found"))
	}

	meta.Duration = parseDuration(result.Format.Duration)
	if meta.Duration <= 0 {
		meta.Duration = parseDuration(streamDuration)
	}
	if meta.Duration <= 0 {
		return types.Metadata{}, unreadable(fmt.Errorf("no duration found in media file"))
	}

	p.logger.Debug("probed media", "path", path, "format", result.Format.FormatName,
		"duration", meta.Duration, "width", meta.Width, "height", meta.Height)
	return meta, nil
}

func parseDuration(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1000) / 1000
}

func unreadable(err error) error {
	return joberrors.UploadError("probe", fmt.Errorf("%w: %v", joberrors.ErrUnreadableMedia, err))
}
