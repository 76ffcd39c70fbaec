// Package settings validates per-job transcoding settings and derives the
// concrete engine parameters from them.
package settings

// Output containers
const (
	FormatMP4  = "mp4"
	FormatWebM = "webm"
	FormatAVI  = "avi"
	FormatMKV  = "mkv"
)

// Rotation transforms
const (
	RotationNone      = "none"
	RotationClockwise = "90"
	RotationCounter   = "-90"
	RotationFlip      = "180"
	RotationMirror    = "mirror"
)

// Speed multipliers are accepted in [MinSpeed, max]; max defaults to
// DefaultMaxSpeed.
const (
	MinSpeed        = 0.1
	DefaultMaxSpeed = 4.0
)

// QualityTier maps a quality label to a base frame height and video bitrate.
type QualityTier struct {
	Height  int
	Width   int // 16:9 width at Height
	Bitrate string
}

var (
	outputFormats = []string{FormatMP4, FormatWebM, FormatAVI, FormatMKV}
	aspectRatios  = []string{"16:9", "9:16", "1:1", "4:3"}
	rotations     = []string{RotationNone, RotationClockwise, RotationCounter, RotationFlip, RotationMirror}
	framerates    = []int{24, 30, 60}

	qualityTiers = map[string]QualityTier{
		"720p":  {Height: 720, Width: 1280, Bitrate: "2500k"},
		"1080p": {Height: 1080, Width: 1920, Bitrate: "5000k"},
		"2160p": {Height: 2160, Width: 3840, Bitrate: "12000k"},
	}
	qualityOrder = []string{"720p", "1080p", "2160p"}

	mimeTypes = map[string]string{
		FormatMP4:  "video/mp4",
		FormatWebM: "video/webm",
		FormatAVI:  "video/x-msvideo",
		FormatMKV:  "video/x-matroska",
	}
)

// Options lists the accepted value of every enumerated field.
type Options struct {
	OutputFormats []string `json:"output_format"`
	Qualities     []string `json:"quality"`
	AspectRatios  []string `json:"aspect_ratio"`
	Rotations     []string `json:"rotation"`
	Framerates    []int    `json:"framerate"`
	MinSpeed      float64  `json:"min_speed"`
	MaxSpeed      float64  `json:"max_speed"`
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Tier returns the quality tier for a label.
func Tier(quality string) (QualityTier, bool) {
	t, ok := qualityTiers[quality]
	return t, ok
}

// ContentType returns the MIME type for an output container.
func ContentType(format string) string {
	if ct, ok := mimeTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}
