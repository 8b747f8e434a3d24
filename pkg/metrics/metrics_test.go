package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/richard-senior/forecast/pkg/util/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.PredictionServed()
	m.PredictionServed()
	m.SyntheticGenerated("h2h")
	m.SyntheticGenerated("form")
	m.SyntheticGenerated("form")
	m.ToolCalled("predict_match", nil)
	m.ToolCalled("predict_match", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syntheticRecords.WithLabelValues("h2h")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.syntheticRecords.WithLabelValues("form")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("predict_match", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("predict_match", "error")))
}

func TestPoolHooks(t *testing.T) {
	m := New()

	m.JobQueued()
	m.JobQueued()
	m.JobQueued()
	m.JobStarted()
	m.JobStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.simulationsRunning))

	m.JobFinished(forecast.JobDone, 120*time.Millisecond, 5000)
	m.JobFinished(forecast.JobCancelled, 0, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.simulationsRunning))
	m.JobFinished(forecast.JobFailed, 3*time.Millisecond, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.simulationsRunning))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.simulationsQueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.simulations.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.simulations.WithLabelValues("cancelled")))
	assert.Equal(t, 5000.0, testutil.ToFloat64(m.trials))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.simulations.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.simulationDuration))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	depth := 3
	m.WatchQueue(func() int { return depth })
	m.PredictionServed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "forecast_predictions_total 1")
	assert.Contains(t, text, "forecast_simulation_queue_depth 3")
	assert.Contains(t, text, "go_goroutines")
}
