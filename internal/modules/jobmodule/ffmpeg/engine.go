package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/settings"
)

// DefaultPreset is the x264 speed preset.
const DefaultPreset = "fast"

// stderrTail is how many trailing stderr lines a failure reason keeps.
const stderrTail = 5

// Engine runs ffmpeg transcodes.
type Engine struct {
	runner     CommandRunner
	ffmpegPath string
	preset     string
	logger     hclog.Logger
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	FFmpegPath string
	Preset     string
}

// NewEngine creates an engine. A nil runner selects DefaultCommandRunner.
func NewEngine(runner CommandRunner, cfg EngineConfig, logger hclog.Logger) *Engine {
	if runner == nil {
		runner = &DefaultCommandRunner{}
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Preset == "" {
		cfg.Preset = DefaultPreset
	}
	return &Engine{
		runner:     runner,
		ffmpegPath: cfg.FFmpegPath,
		preset:     cfg.Preset,
		logger:     logger.Named("ffmpeg"),
	}
}

// BuildArgs constructs ffmpeg arguments for one transcode. The trim window
// is an input option so it selects source time before the speed filters
// rescale the timeline.
func (e *Engine) BuildArgs(input, output string, p settings.Params) []string {
	args := []string{
		"-hide_banner", "-nostdin",
		"-ss", formatSeconds(p.Start),
		"-to", formatSeconds(p.End),
		"-i", input,
		"-vf", p.VideoFilter(),
	}
	if af := p.AudioFilter(); af != "" {
		args = append(args, "-af", af)
	}
	args = append(args,
		"-r", strconv.Itoa(p.Framerate),
		"-c:v", p.VideoCodec,
	)
	if p.VideoCodec == "libx264" {
		args = append(args, "-preset", e.preset, "-pix_fmt", "yuv420p")
	}
	args = append(args,
		"-b:v", p.Bitrate,
		"-c:a", p.AudioCodec,
		"-b:a", p.AudioBitrate,
	)
	if p.Format == settings.FormatMP4 {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, "-y", output)
}

// Transcode runs ffmpeg and reports the completion fraction of the output
// timeline through onProgress. Fractions are reported as parsed; callers
// own monotonicity. Failures wrap ErrTranscodeFailed with the tail of
// ffmpeg's stderr.
func (e *Engine) Transcode(ctx context.Context, input, output string, p settings.Params, onProgress func(fraction float64)) error {
	args := e.BuildArgs(input, output, p)
	e.logger.Info("executing FFmpeg command", "command", e.ffmpegPath, "args", strings.Join(args, " "))

	var mu sync.Mutex
	var tail []string

	err := e.runner.Stream(ctx, func(line string) {
		if update, ok := ParseProgress(line); ok {
			if onProgress != nil {
				onProgress(Fraction(update.Time, p.OutputDuration))
			}
			e.logger.Trace("transcoding progress", "time", update.Time, "speed", update.Speed, "frame", update.Frame)
			return
		}

		mu.Lock()
		tail = append(tail, strings.TrimSpace(line))
		if len(tail) > stderrTail {
			tail = tail[1:]
		}
		mu.Unlock()
	}, e.ffmpegPath, args...)

	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return joberrors.TranscodeError("transcode", fmt.Errorf("%w: %v", joberrors.ErrCancelled, err))
	}

	mu.Lock()
	detail := strings.Join(tail, "; ")
	mu.Unlock()
	if detail != "" {
		err = fmt.Errorf("%v: %s", err, detail)
	}
	return joberrors.TranscodeError("transcode", fmt.Errorf("%w: %v", joberrors.ErrTranscodeFailed, err))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
