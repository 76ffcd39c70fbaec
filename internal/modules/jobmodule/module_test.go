package jobmodule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/videoclipper/internal/config"
	"github.com/mantonx/videoclipper/internal/metrics"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
	"github.com/mantonx/videoclipper/internal/modules/modulemanager"
)

const probeJSON = `{
	"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "8.000000"},
	"streams": [
		{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720},
		{"codec_type": "audio", "codec_name": "aac"}
	]
}`

// fakeFFmpeg answers ffprobe with probeJSON and simulates an ffmpeg run
// by printing a status line and writing the output file.
type fakeFFmpeg struct{}

func (fakeFFmpeg) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	return []byte(probeJSON), nil
}

func (fakeFFmpeg) Stream(ctx context.Context, onLine func(string), cmd string, args ...string) error {
	if len(args) == 0 {
		return errors.New("no output")
	}
	onLine("frame=  120 fps= 60 q=28.0 size=    256kB time=00:00:04.00 bitrate= 524.3kbits/s speed=2.0x")
	return os.WriteFile(args[len(args)-1], []byte("encoded"), 0644)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.OutputDir = filepath.Join(dir, "outputs")
	cfg.Jobs.Workers = 2
	cfg.Jobs.StreamInterval = 20 * time.Millisecond
	cfg.History.Enabled = true
	cfg.History.DSN = filepath.Join(dir, "history.db")
	return cfg
}

func newTestModule(t *testing.T, cfg *config.Config) (*Module, *gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	mod := NewModule(cfg, hclog.NewNullLogger(), WithMetrics(metrics.New(reg)), WithCommandRunner(fakeFFmpeg{}))
	require.NoError(t, mod.Init(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mod.Shutdown(ctx)
	})

	router := gin.New()
	mod.RegisterRoutes(router)
	return mod, router, reg
}

func uploadFile(t *testing.T, router *gin.Engine, name string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	part.Write([]byte("fake-video"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.JobID
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestModule_EndToEnd(t *testing.T) {
	mod, router, reg := newTestModule(t, testConfig(t))

	id := uploadFile(t, router, "Beach Day.mp4")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/process/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var job types.Job
	require.Eventually(t, func() bool {
		if err := json.Unmarshal(get(router, "/api/status/"+id).Body.Bytes(), &job); err != nil {
			return false
		}
		return job.Status == types.StatusComplete
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 100, job.Progress)
	require.NotEmpty(t, job.OutputRef)

	download := get(router, "/download/"+job.OutputRef)
	assert.Equal(t, http.StatusOK, download.Code)
	assert.Equal(t, "encoded", download.Body.String())
	assert.Contains(t, download.Header().Get("Content-Disposition"), "video.mp4")

	var history struct {
		Records []struct {
			JobID  string `json:"job_id"`
			Status string `json:"status"`
		} `json:"records"`
	}
	require.Eventually(t, func() bool {
		w := get(router, "/api/history")
		return w.Code == http.StatusOK &&
			json.Unmarshal(w.Body.Bytes(), &history) == nil &&
			len(history.Records) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, id, history.Records[0].JobID)
	assert.Equal(t, "complete", history.Records[0].Status)

	health := mod.HealthCheck(context.Background())
	assert.Equal(t, modulemanager.HealthStateHealthy, health.Status)
	assert.Equal(t, 2, health.Details["workers"])
	assert.Equal(t, 1, health.Details["jobs"])
	assert.Equal(t, 0, health.Details["background_errors"])

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["videoclipper_jobs_finished_total"])
	assert.True(t, names["videoclipper_workers"])
}

func TestModule_HistoryDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = false
	_, router, _ := newTestModule(t, cfg)

	assert.Equal(t, http.StatusNotFound, get(router, "/api/history").Code)
}

func TestModule_BrokerUnavailableDegrades(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.Enabled = true
	cfg.Notify.Host = "127.0.0.1"
	cfg.Notify.Port = "1"
	cfg.Notify.Retries = 1
	mod, _, _ := newTestModule(t, cfg)

	health := mod.HealthCheck(context.Background())
	assert.Equal(t, modulemanager.HealthStateDegraded, health.Status)
	assert.Equal(t, "event broker unavailable", health.Message)
}

func TestModule_BeforeInit(t *testing.T) {
	mod := NewModule(testConfig(t), hclog.NewNullLogger())

	assert.Equal(t, ModuleID, mod.ID())
	assert.Equal(t, modulemanager.HealthStateUnknown, mod.HealthCheck(context.Background()).Status)
	assert.NoError(t, mod.Shutdown(context.Background()))

	router := gin.New()
	mod.RegisterRoutes(router)
	assert.Empty(t, router.Routes())
}

func TestModule_InitFailsOnUnusableHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Type = "oracle"

	mod := NewModule(cfg, hclog.NewNullLogger(), WithCommandRunner(fakeFFmpeg{}))
	err := mod.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job history")
}
