package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/videoclipper/internal/modules/jobmodule/scheduler"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

// gather returns metric family name -> label string -> metric.
func gather(t *testing.T, reg *prometheus.Registry) map[string]map[string]*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]map[string]*dto.Metric{}
	for _, mf := range families {
		byLabel := map[string]*dto.Metric{}
		for _, metric := range mf.GetMetric() {
			key := ""
			for _, lp := range metric.GetLabel() {
				key += lp.GetName() + "=" + lp.GetValue() + ","
			}
			byLabel[key] = metric
		}
		out[mf.GetName()] = byLabel
	}
	return out
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	started := time.Now().Add(-30 * time.Second)
	done := time.Now()

	m.Observe(types.Job{ID: "a", Status: types.StatusProcessing})
	m.Observe(types.Job{ID: "a", Status: types.StatusComplete, StartedAt: &started, CompletedAt: &done})
	m.Observe(types.Job{ID: "b", Status: types.StatusError, CompletedAt: &done})
	m.Observe(types.Job{ID: "c", Status: types.StatusIdle})

	got := gather(t, reg)
	assert.Equal(t, 1.0, got["videoclipper_jobs_started_total"][""].GetCounter().GetValue())
	assert.Equal(t, 1.0, got["videoclipper_jobs_finished_total"]["status=complete,"].GetCounter().GetValue())
	assert.Equal(t, 1.0, got["videoclipper_jobs_finished_total"]["status=error,"].GetCounter().GetValue())

	hist := got["videoclipper_transcode_duration_seconds"][""].GetHistogram()
	assert.Equal(t, uint64(1), hist.GetSampleCount(), "only jobs with both timestamps are timed")
	assert.InDelta(t, 30.0, hist.GetSampleSum(), 1.0)
}

func TestRegisterPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RegisterPool(func() scheduler.Stats {
		return scheduler.Stats{Workers: 4, Active: 2, Queued: 7}
	})

	got := gather(t, reg)
	assert.Equal(t, 4.0, got["videoclipper_workers"][""].GetGauge().GetValue())
	assert.Equal(t, 2.0, got["videoclipper_active_workers"][""].GetGauge().GetValue())
	assert.Equal(t, 7.0, got["videoclipper_queue_depth"][""].GetGauge().GetValue())
}
