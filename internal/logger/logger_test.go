package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "info", Format: "json", Output: &buf})
	defer Configure(Options{})

	Named("jobs").Info("job started", "job_id", "ab12cd34")
	Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "job started", entry["@message"])
	assert.Equal(t, "videoclipper.jobs", entry["@module"])
	assert.Equal(t, "ab12cd34", entry["job_id"])
}

func TestSetLevelReachesChildren(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "info", Output: &buf})
	defer Configure(Options{})

	child := Named("config")
	child.Debug("before")
	SetLevel("debug")
	child.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}
