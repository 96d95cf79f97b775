package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordStep("click", "passed", time.Second)
		r.RecordRetry("stale_reference")
		r.RecordResolution(0)
		r.RecordWait("satisfied", time.Millisecond)
		r.RecordWindow("new_window")
		r.RecordSession()
	})
	assert.Nil(t, r.Registry())
}

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.RecordStep("click", "passed", 120*time.Millisecond)
	r.RecordStep("click", "passed", 80*time.Millisecond)
	r.RecordStep("type", "failed", time.Second)
	r.RecordRetry("timeout")
	r.RecordResolution(1)
	r.RecordResolution(-1)
	r.RecordWindow("same_tab")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.steps.WithLabelValues("click", "passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.steps.WithLabelValues("type", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retries.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.resolutions.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.resolutions.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.windows.WithLabelValues("same_tab")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	r := New()
	r.RecordSession()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "steadyhand_sessions_opened_total 1")
}
