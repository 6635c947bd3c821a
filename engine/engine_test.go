package engine

import (
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Carmen-Shannon/oxy-osci/common"
	"github.com/Carmen-Shannon/oxy-osci/engine/oscilloscope"
	"github.com/Carmen-Shannon/oxy-osci/engine/particle"
	"github.com/Carmen-Shannon/oxy-osci/engine/profiler"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer"
)

// fakeWindow runs the update callback until closed or until maxIterations is reached.
type fakeWindow struct {
	onUpdate  func()
	onResize  func(width, height int)
	onKeyDown func(keyCode uint32)

	running       bool
	closed        bool
	iterations    int
	maxIterations int
}

func (w *fakeWindow) SetUpdateCallback(callback func())                  { w.onUpdate = callback }
func (w *fakeWindow) SetResizeCallback(callback func(width, height int)) { w.onResize = callback }
func (w *fakeWindow) SetKeyDownCallback(callback func(keyCode uint32))   { w.onKeyDown = callback }
func (w *fakeWindow) SetKeyUpCallback(func(keyCode uint32))              {}
func (w *fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor         { return nil }
func (w *fakeWindow) IsRunning() bool                                    { return w.running }
func (w *fakeWindow) RequestClose()                                      { w.running = false }
func (w *fakeWindow) Width() int                                         { return 640 }
func (w *fakeWindow) Height() int                                        { return 360 }

func (w *fakeWindow) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWindow) ProcessMessages() {
	w.running = true
	for w.running && w.iterations < w.maxIterations {
		w.iterations++
		if w.onUpdate != nil {
			w.onUpdate()
		}
	}
}

// sleepRecorder captures requested waits instead of sleeping.
type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(d time.Duration) {
	s.waits = append(s.waits, d)
}

func newTestOscilloscope(t *testing.T, options ...oscilloscope.OscilloscopeOption) (oscilloscope.Oscilloscope, renderer.SoftwareRendererBackend) {
	t.Helper()
	sb := renderer.NewSoftwareRendererBackend(renderer.WithWorkers(2))
	surface := renderer.NewHeadlessSurface(640, 360)
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, surface, renderer.WithBackend(sb))
	require.NoError(t, err)

	o, err := oscilloscope.NewOscilloscope(r, surface, options...)
	require.NoError(t, err)
	return o, sb
}

func deterministicBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func TestRunFramesRecordsMetrics(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	sleeper := &sleepRecorder{}
	e := NewEngine(o, WithSleep(sleeper.Sleep))

	var results []oscilloscope.FrameResult
	e.SetFrameCallback(func(result oscilloscope.FrameResult) {
		results = append(results, result)
	})

	n, err := e.RunFrames(5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint64(5), o.FrameIndex())
	assert.Equal(t, 5, sb.PresentCount())
	require.Len(t, results, 5)
	for i, res := range results {
		assert.Equal(t, uint64(i), res.Frame)
	}
	assert.Empty(t, sleeper.waits)

	series, err := testutil.GatherAndCount(e.Profiler().Registry(), "osci_frames_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestSkippedFramesBackOff(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	sleeper := &sleepRecorder{}
	e := NewEngine(o, WithSleep(sleeper.Sleep), WithSkipBackOff(deterministicBackOff()))

	for i := 0; i < 3; i++ {
		sb.FailNextAcquire(renderer.ErrSurfaceOutdated)
		res, err := e.Step()
		require.NoError(t, err)
		assert.True(t, res.Skipped)
	}
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, sleeper.waits)
	assert.Equal(t, uint64(3), o.FrameIndex())

	res, err := e.Step()
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Len(t, sleeper.waits, 3)

	sb.FailNextAcquire(renderer.ErrSurfaceOutdated)
	_, err = e.Step()
	require.NoError(t, err)
	require.Len(t, sleeper.waits, 4)
	assert.Equal(t, time.Millisecond, sleeper.waits[3], "backoff resets after a presented frame")
}

func TestRenderFrameLimitSleepsRemainder(t *testing.T) {
	o, _ := newTestOscilloscope(t)
	sleeper := &sleepRecorder{}
	e := NewEngine(o, WithSleep(sleeper.Sleep), WithRenderFrameLimit(1))

	_, err := e.RunFrames(2)
	require.NoError(t, err)
	require.Len(t, sleeper.waits, 2)
	for _, d := range sleeper.waits {
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}

	e.SetRenderFrameLimit(0)
	_, err = e.RunFrames(1)
	require.NoError(t, err)
	assert.Len(t, sleeper.waits, 2)
}

func TestChecksumMatchesSeedWithIdentityKernel(t *testing.T) {
	seed := []particle.GPUParticle{
		{Position: [2]float32{-0.5, 0.1}, Angle: 0.2, Length: 0.3},
		{Position: [2]float32{0.5, 0.4}, Angle: 0.8, Length: 0.3},
	}
	o, _ := newTestOscilloscope(t,
		oscilloscope.WithParticleCount(2),
		oscilloscope.WithSeed(seed),
		oscilloscope.WithComputeSource(oscilloscope.IdentitySource),
		oscilloscope.WithKernel(particle.IdentityKernel),
	)
	e := NewEngine(o)

	_, err := e.RunFrames(3)
	require.NoError(t, err)

	h := fnv.New64a()
	_, _ = h.Write(particle.MarshalParticles(seed))
	sum, err := e.Checksum()
	require.NoError(t, err)
	assert.Equal(t, h.Sum64(), sum)

	e.Release()
	_, err = e.Checksum()
	assert.Error(t, err)
}

func TestChecksumDeterministic(t *testing.T) {
	run := func() uint64 {
		o, _ := newTestOscilloscope(t, oscilloscope.WithSeedStrategy(particle.SeedTrace))
		e := NewEngine(o)
		defer e.Release()
		_, err := e.RunFrames(4)
		require.NoError(t, err)
		sum, err := e.Checksum()
		require.NoError(t, err)
		return sum
	}
	assert.Equal(t, run(), run())
}

func TestDeviceLossStopsRunFrames(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	e := NewEngine(o)

	_, err := e.RunFrames(2)
	require.NoError(t, err)

	sb.LoseDevice()
	n, err := e.RunFrames(3)
	assert.Zero(t, n)
	require.ErrorIs(t, err, renderer.ErrDeviceLost)
	assert.True(t, o.Closed())
}

func TestQuitStopsRunFrames(t *testing.T) {
	o, _ := newTestOscilloscope(t)
	e := NewEngine(o)
	e.SetFrameCallback(func(result oscilloscope.FrameResult) {
		if result.Frame == 1 {
			e.Quit()
		}
	})

	n, err := e.RunFrames(10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	e.Quit()
}

func TestRunWithoutWindow(t *testing.T) {
	o, _ := newTestOscilloscope(t)
	e := NewEngine(o)
	assert.ErrorIs(t, e.Run(), ErrNoWindow)
}

func TestRunDrivesWindowLoop(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	w := &fakeWindow{maxIterations: 100}
	e := NewEngine(o, WithWindow(w))
	e.SetFrameCallback(func(result oscilloscope.FrameResult) {
		if result.Frame == 2 {
			e.Quit()
		}
	})

	require.NoError(t, e.Run())
	assert.Equal(t, 3, sb.PresentCount())
	assert.Equal(t, 4, w.iterations)
	assert.True(t, w.closed)
	assert.True(t, o.Closed())
}

func TestRunStopsOnDeviceLoss(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	w := &fakeWindow{maxIterations: 100}
	e := NewEngine(o, WithWindow(w))
	sb.LoseDevice()

	err := e.Run()
	require.ErrorIs(t, err, renderer.ErrDeviceLost)
	assert.Equal(t, 1, w.iterations)
	assert.True(t, w.closed)
}

func TestWindowInputBindings(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	o, sb := newTestOscilloscope(t)
	w := &fakeWindow{}
	e := NewEngine(o, WithWindow(w), WithLogger(zap.New(core)))

	before := o.Trigger()
	w.onKeyDown(common.KeySpace)
	assert.NotEqual(t, before, o.Trigger())
	assert.Equal(t, 1, logs.FilterMessage("space pressed").Len())

	eng := e.(*engine)
	assert.False(t, eng.profilingEnabled)
	w.onKeyDown(common.KeyP)
	assert.True(t, eng.profilingEnabled)
	w.onKeyDown(common.KeyP)
	assert.False(t, eng.profilingEnabled)

	w.onResize(1024, 768)
	res, err := e.Step()
	require.NoError(t, err)
	assert.True(t, res.Reconfigured)
	width, height := sb.Size()
	assert.Equal(t, 1024, width)
	assert.Equal(t, 768, height)
}

func TestProfilerObservesOutcomes(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	p := profiler.NewProfiler()
	e := NewEngine(o, WithProfiler(p), WithSleep(func(time.Duration) {}))

	sb.FailNextAcquire(renderer.ErrSurfaceOutdated)
	_, err := e.RunFrames(3)
	require.NoError(t, err)

	assert.Same(t, p, e.Profiler())
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `osci_frames_total{outcome="presented"} 2`)
	assert.Contains(t, body, `osci_frames_total{outcome="skipped"} 1`)
	assert.Contains(t, body, "osci_surface_reconfigures_total 1")
}
