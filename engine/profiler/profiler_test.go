package profiler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	return c.now
}

func TestObserveFrameCounters(t *testing.T) {
	p := NewProfiler()

	p.ObserveFrame(false, false, false, 2*time.Millisecond)
	p.ObserveFrame(false, true, true, 3*time.Millisecond)
	p.ObserveFrame(true, true, false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.frames.WithLabelValues(OutcomePresented)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.frames.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.reconfigures))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.rebuilds))
	assert.Equal(t, 1, testutil.CollectAndCount(p.frameSeconds))
}

func TestTickLogsAtInterval(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	clock := &stepClock{now: time.Unix(0, 0)}
	p := NewProfiler(WithLogger(zap.New(core)), WithClock(clock.Now), WithUpdateInterval(time.Second))

	for i := 0; i < 30; i++ {
		p.ObserveFrame(false, false, false, time.Millisecond)
	}
	clock.now = clock.now.Add(500 * time.Millisecond)
	assert.False(t, p.Tick())
	assert.Zero(t, logs.Len())

	clock.now = clock.now.Add(time.Second)
	require.True(t, p.Tick())
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "profiler", entry.Message)
	assert.InDelta(t, 20.0, entry.ContextMap()["fps"], 1e-9)
	assert.InDelta(t, 20.0, testutil.ToFloat64(p.fps), 1e-9)
}

func TestHandlerServesMetrics(t *testing.T) {
	p := NewProfiler()
	p.ObserveFrame(true, false, false, time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `osci_frames_total{outcome="skipped"} 1`), body)
	assert.Contains(t, body, "osci_fps")
}
