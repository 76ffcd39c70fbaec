package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	frameRegex   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRegex     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	sizeRegex    = regexp.MustCompile(`size=\s*(\d+)\s*[kK]i?B`)
	timeRegex    = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	bitrateRegex = regexp.MustCompile(`bitrate=\s*([\d.]+\w*/s)`)
	speedRegex   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// ProgressUpdate contains progress information from one ffmpeg status line
type ProgressUpdate struct {
	Frame   int64
	FPS     float64
	SizeKB  int64
	Time    time.Duration
	Bitrate string
	Speed   float64
}

// ParseProgress extracts status fields from an ffmpeg stderr line. The
// boolean is false when the line carries no output timestamp.
func ParseProgress(line string) (ProgressUpdate, bool) {
	var update ProgressUpdate

	matches := timeRegex.FindStringSubmatch(line)
	if matches == nil {
		return update, false
	}
	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	update.Time = time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))

	if m := frameRegex.FindStringSubmatch(line); m != nil {
		update.Frame, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := fpsRegex.FindStringSubmatch(line); m != nil {
		update.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := sizeRegex.FindStringSubmatch(line); m != nil {
		update.SizeKB, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := bitrateRegex.FindStringSubmatch(line); m != nil {
		update.Bitrate = m[1]
	}
	if m := speedRegex.FindStringSubmatch(line); m != nil {
		update.Speed, _ = strconv.ParseFloat(m[1], 64)
	}
	return update, true
}

// Fraction converts an output timestamp to a completion fraction in [0, 1]
// for an output of the given length in seconds.
func Fraction(elapsed time.Duration, total float64) float64 {
	if total <= 0 {
		return 0
	}
	f := elapsed.Seconds() / total
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// lastLines returns up to n trailing non-empty lines of s joined by "; ".
func lastLines(s string, n int) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "; ")
}
