package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Settings is the validated transcoding configuration of a job.
type Settings struct {
	OutputFormat   string  `json:"output_format"`
	Quality        string  `json:"quality"`
	AspectRatio    string  `json:"aspect_ratio"`
	TrimStart      float64 `json:"trim_start"`
	TrimEnd        float64 `json:"trim_end"`
	Rotation       string  `json:"rotation"`
	Framerate      int     `json:"framerate"`
	Speed          float64 `json:"speed"`
	OutputFilename string  `json:"output_filename"`

	// TrimDuration is derived: the length of the output timeline in seconds.
	TrimDuration float64 `json:"trim_duration"`
}

// SettingsPatch is a partial settings update. Nil fields keep the stored
// value.
type SettingsPatch struct {
	OutputFormat   *string    `json:"output_format,omitempty"`
	Quality        *string    `json:"quality,omitempty"`
	AspectRatio    *string    `json:"aspect_ratio,omitempty"`
	TrimStart      *FlexFloat `json:"trim_start,omitempty"`
	TrimEnd        *FlexFloat `json:"trim_end,omitempty"`
	Rotation       *string    `json:"rotation,omitempty"`
	Framerate      *FlexFloat `json:"framerate,omitempty"`
	Speed          *FlexFloat `json:"speed,omitempty"`
	OutputFilename *string    `json:"output_filename,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.OutputFormat == nil && p.Quality == nil && p.AspectRatio == nil &&
		p.TrimStart == nil && p.TrimEnd == nil && p.Rotation == nil &&
		p.Framerate == nil && p.Speed == nil && p.OutputFilename == nil
}

// PatchFieldError reports a settings field whose JSON value could not be
// decoded.
type PatchFieldError struct {
	Field string
	Err   error
}

func (e *PatchFieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *PatchFieldError) Unwrap() error {
	return e.Err
}

// UnmarshalJSON decodes the known fields one at a time so a bad value is
// reported with its field name. Unknown fields are ignored.
func (p *SettingsPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out SettingsPatch
	fields := []struct {
		name string
		dst  interface{}
	}{
		{"output_format", &out.OutputFormat},
		{"quality", &out.Quality},
		{"aspect_ratio", &out.AspectRatio},
		{"trim_start", &out.TrimStart},
		{"trim_end", &out.TrimEnd},
		{"rotation", &out.Rotation},
		{"framerate", &out.Framerate},
		{"speed", &out.Speed},
		{"output_filename", &out.OutputFilename},
	}
	for _, f := range fields {
		value, ok := raw[f.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, f.dst); err != nil {
			return &PatchFieldError{Field: f.name, Err: err}
		}
	}

	*p = out
	return nil
}

// FlexFloat decodes from a JSON number or a numeric string. Clients send
// framerate and speed as strings ("30", "1.5").
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*f = FlexFloat(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// Float returns the decoded value.
func (f *FlexFloat) Float() float64 {
	return float64(*f)
}

// Flex is a convenience for building patches in code.
func Flex(v float64) *FlexFloat {
	f := FlexFloat(v)
	return &f
}

// Str is a convenience for building patches in code.
func Str(s string) *string {
	return &s
}
