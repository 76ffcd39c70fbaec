package settings

import (
	"fmt"
	"math"
	"strings"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

const opResolve = "resolve_settings"

// Resolver merges settings updates onto stored settings and validates the
// result. It holds no state besides its bounds and is safe for concurrent use.
type Resolver struct {
	maxSpeed float64
}

// NewResolver creates a resolver. A maxSpeed below MinSpeed selects
// DefaultMaxSpeed.
func NewResolver(maxSpeed float64) *Resolver {
	if maxSpeed < MinSpeed || math.IsInf(maxSpeed, 0) || math.IsNaN(maxSpeed) {
		maxSpeed = DefaultMaxSpeed
	}
	return &Resolver{maxSpeed: maxSpeed}
}

// Options returns the accepted values for every enumerated field.
func (r *Resolver) Options() Options {
	return Options{
		OutputFormats: append([]string(nil), outputFormats...),
		Qualities:     append([]string(nil), qualityOrder...),
		AspectRatios:  append([]string(nil), aspectRatios...),
		Rotations:     append([]string(nil), rotations...),
		Framerates:    append([]int(nil), framerates...),
		MinSpeed:      MinSpeed,
		MaxSpeed:      r.maxSpeed,
	}
}

// Defaults returns the settings every new job starts with. The trim window
// covers the whole source.
func Defaults(duration float64) types.Settings {
	s := types.Settings{
		OutputFormat:   FormatMP4,
		Quality:        "1080p",
		AspectRatio:    "16:9",
		TrimStart:      0,
		TrimEnd:        duration,
		Rotation:       RotationNone,
		Framerate:      30,
		Speed:          1,
		OutputFilename: "video",
	}
	s.TrimDuration = trimDuration(s)
	return s
}

// Resolve applies patch onto current and validates the merged value against
// the source duration. On error the caller must keep current unchanged.
func (r *Resolver) Resolve(current types.Settings, patch types.SettingsPatch, duration float64) (types.Settings, error) {
	merged, err := merge(current, patch)
	if err != nil {
		return current, err
	}

	if err := r.Validate(merged, duration); err != nil {
		return current, err
	}

	merged.TrimDuration = trimDuration(merged)
	return merged, nil
}

// Validate checks a complete settings value.
func (r *Resolver) Validate(s types.Settings, duration float64) error {
	if !contains(outputFormats, s.OutputFormat) {
		return invalidOption("output_format", s.OutputFormat)
	}
	if _, ok := qualityTiers[s.Quality]; !ok {
		return invalidOption("quality", s.Quality)
	}
	if !contains(aspectRatios, s.AspectRatio) {
		return invalidOption("aspect_ratio", s.AspectRatio)
	}
	if !contains(rotations, s.Rotation) {
		return invalidOption("rotation", s.Rotation)
	}
	if !containsInt(framerates, s.Framerate) {
		return invalidOption("framerate", fmt.Sprint(s.Framerate))
	}

	if err := validateTrim(s.TrimStart, s.TrimEnd, duration); err != nil {
		return err
	}

	if math.IsNaN(s.Speed) || s.Speed < MinSpeed || s.Speed > r.maxSpeed {
		return joberrors.ValidationError(opResolve, "speed",
			fmt.Errorf("%w: %v is outside [%v, %v]", joberrors.ErrInvalidSpeed, s.Speed, MinSpeed, r.maxSpeed))
	}

	return nil
}

func validateTrim(start, end, duration float64) error {
	field := ""
	switch {
	case math.IsNaN(start) || math.IsInf(start, 0) || start < 0:
		field = "trim_start"
	case math.IsNaN(end) || math.IsInf(end, 0) || end > duration:
		field = "trim_end"
	case start >= end:
		field = "trim_start"
	}
	if field == "" {
		return nil
	}

	return joberrors.ValidationError(opResolve, field,
		fmt.Errorf("%w: require 0 <= trim_start (%v) < trim_end (%v) <= duration (%v)",
			joberrors.ErrInvalidTrimRange, start, end, duration))
}

func merge(s types.Settings, p types.SettingsPatch) (types.Settings, error) {
	if p.OutputFormat != nil {
		s.OutputFormat = strings.ToLower(strings.TrimSpace(*p.OutputFormat))
	}
	if p.Quality != nil {
		s.Quality = strings.ToLower(strings.TrimSpace(*p.Quality))
	}
	if p.AspectRatio != nil {
		s.AspectRatio = strings.TrimSpace(*p.AspectRatio)
	}
	if p.TrimStart != nil {
		s.TrimStart = p.TrimStart.Float()
	}
	if p.TrimEnd != nil {
		s.TrimEnd = p.TrimEnd.Float()
	}
	if p.Rotation != nil {
		s.Rotation = strings.ToLower(strings.TrimSpace(*p.Rotation))
	}
	if p.Framerate != nil {
		fps := p.Framerate.Float()
		if fps != math.Trunc(fps) || math.IsInf(fps, 0) {
			return s, invalidOption("framerate", fmt.Sprint(fps))
		}
		s.Framerate = int(fps)
	}
	if p.Speed != nil {
		s.Speed = p.Speed.Float()
	}
	if p.OutputFilename != nil {
		s.OutputFilename = strings.TrimSpace(*p.OutputFilename)
	}
	return s, nil
}

func invalidOption(field, value string) error {
	return joberrors.ValidationError(opResolve, field,
		fmt.Errorf("%w: %q", joberrors.ErrInvalidOption, value))
}

func trimDuration(s types.Settings) float64 {
	if s.Speed <= 0 {
		return 0
	}
	d := (s.TrimEnd - s.TrimStart) / s.Speed
	return math.Round(d*100) / 100
}
