package settings

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

// Params are the concrete engine parameters derived from frozen settings.
type Params struct {
	Format       string
	VideoCodec   string
	AudioCodec   string
	Width        int
	Height       int
	Bitrate      string
	AudioBitrate string
	VideoFilters []string
	AudioFilters []string
	Start        float64
	End          float64
	Framerate    int
	Speed        float64

	// OutputDuration is the length of the produced timeline in seconds.
	OutputDuration float64
}

// Resolution formats the target frame as WIDTHxHEIGHT.
func (p Params) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// VideoFilter joins the video filter chain.
func (p Params) VideoFilter() string {
	return strings.Join(p.VideoFilters, ",")
}

// AudioFilter joins the audio filter chain.
func (p Params) AudioFilter() string {
	return strings.Join(p.AudioFilters, ",")
}

// Derive computes engine parameters. Settings must already be valid; an
// invalid value is reported as an internal precondition failure.
//
// Aspect ratio is reconciled by padding: the (optionally rotated) source is
// scaled to fit inside the target frame keeping its own aspect, then
// centered on black bars. Rotation is applied before scaling so the output
// frame always has the selected aspect ratio.
func Derive(s types.Settings) (Params, error) {
	tier, ok := qualityTiers[s.Quality]
	if !ok {
		return Params{}, joberrors.InternalError("derive_params",
			fmt.Errorf("%w: quality %q", joberrors.ErrInvalidOption, s.Quality))
	}

	if math.IsNaN(s.Speed) || s.Speed < MinSpeed {
		return Params{}, joberrors.InternalError("derive_params",
			fmt.Errorf("%w: %v", joberrors.ErrInvalidSpeed, s.Speed))
	}

	width, height, err := frameSize(tier, s.AspectRatio)
	if err != nil {
		return Params{}, err
	}

	p := Params{
		Format:       s.OutputFormat,
		Width:        width,
		Height:       height,
		Bitrate:      tier.Bitrate,
		AudioBitrate: "128k",
		Start:        s.TrimStart,
		End:          s.TrimEnd,
		Framerate:    s.Framerate,
		Speed:        s.Speed,
	}
	p.VideoCodec, p.AudioCodec = codecs(s.OutputFormat)

	if rot := rotationFilter(s.Rotation); rot != "" {
		p.VideoFilters = append(p.VideoFilters, rot)
	}
	p.VideoFilters = append(p.VideoFilters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", width, height),
		"setsar=1",
	)

	if s.Speed != 1 {
		p.VideoFilters = append(p.VideoFilters, "setpts="+formatFloat(1/s.Speed)+"*PTS")
		p.AudioFilters = AtempoChain(s.Speed)
	}

	p.OutputDuration = (s.TrimEnd - s.TrimStart) / s.Speed
	return p, nil
}

// frameSize returns the target width and height for a tier and aspect ratio.
// Widths are rounded down to even values as required by yuv420p encoders.
func frameSize(tier QualityTier, aspect string) (int, int, error) {
	h := tier.Height
	var w int
	switch aspect {
	case "16:9":
		w = tier.Width
	case "9:16":
		w = h * 9 / 16
	case "1:1":
		w = h
	case "4:3":
		w = h * 4 / 3
	default:
		return 0, 0, joberrors.InternalError("derive_params",
			fmt.Errorf("%w: aspect_ratio %q", joberrors.ErrInvalidOption, aspect))
	}
	return w &^ 1, h, nil
}

func rotationFilter(rotation string) string {
	switch rotation {
	case RotationClockwise:
		return "transpose=1"
	case RotationCounter:
		return "transpose=2"
	case RotationFlip:
		return "hflip,vflip"
	case RotationMirror:
		return "hflip"
	default:
		return ""
	}
}

func codecs(format string) (string, string) {
	if format == FormatWebM {
		return "libvpx-vp9", "libopus"
	}
	return "libx264", "aac"
}

// AtempoChain expresses a speed factor as a chain of atempo filters, each
// within the [0.5, 2.0] range the filter accepts.
func AtempoChain(speed float64) []string {
	if speed == 1 || speed <= 0 {
		return nil
	}

	var chain []string
	for speed > 2.0 {
		chain = append(chain, "atempo=2.0")
		speed /= 2.0
	}
	for speed < 0.5 {
		chain = append(chain, "atempo=0.5")
		speed /= 0.5
	}
	if math.Abs(speed-1) > 1e-9 {
		chain = append(chain, "atempo="+formatFloat(speed))
	}
	return chain
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SanitizeFilename strips any extension and keeps letters, digits, '-' and
// '_'. An empty result falls back to "video".
func SanitizeFilename(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}

	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "video"
	}
	return b.String()
}

// ArtifactName is the stored name of a job's output: unique per job, with
// the extension of the selected container.
func ArtifactName(jobID string, s types.Settings) string {
	return fmt.Sprintf("%s_%s.%s", SanitizeFilename(s.OutputFilename), jobID, s.OutputFormat)
}

// DownloadName is the name offered to the client when downloading.
func DownloadName(s types.Settings) string {
	return SanitizeFilename(s.OutputFilename) + "." + s.OutputFormat
}
