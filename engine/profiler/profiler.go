package profiler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Frame outcome labels of the frames counter.
const (
	OutcomePresented = "presented"
	OutcomeSkipped   = "skipped"
)

// Profiler tracks frame rate, frame outcomes and memory statistics.
// Counters are exported through its own prometheus registry and a summary is logged at a
// fixed interval.
type Profiler struct {
	logger         *zap.Logger
	registry       *prometheus.Registry
	clock          func() time.Time
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	frames       *prometheus.CounterVec
	reconfigures prometheus.Counter
	rebuilds     prometheus.Counter
	fps          prometheus.Gauge
	frameSeconds prometheus.Histogram
}

// ProfilerOption is a functional option applied by NewProfiler.
type ProfilerOption func(*Profiler)

// WithLogger sets the logger the periodic summary is written to.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - ProfilerOption: a function that sets the logger
func WithLogger(logger *zap.Logger) ProfilerOption {
	return func(p *Profiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithUpdateInterval sets how often the summary is logged and the fps gauge updated.
//
// Parameters:
//   - interval: the interval
//
// Returns:
//   - ProfilerOption: a function that sets the interval
func WithUpdateInterval(interval time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.updateInterval = interval
	}
}

// WithClock replaces time.Now.
//
// Parameters:
//   - clock: the time source
//
// Returns:
//   - ProfilerOption: a function that sets the clock
func WithClock(clock func() time.Time) ProfilerOption {
	return func(p *Profiler) {
		p.clock = clock
	}
}

// NewProfiler creates a new Profiler with its own metric registry.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic list of ProfilerOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		logger:         zap.NewNop(),
		registry:       prometheus.NewRegistry(),
		clock:          time.Now,
		updateInterval: time.Second,
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "osci_frames_total",
			Help: "Frames driven by the oscilloscope, by outcome",
		}, []string{"outcome"}),
		reconfigures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "osci_surface_reconfigures_total",
			Help: "Surface reconfigurations after a resize or an outdated acquire",
		}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "osci_pipeline_rebuilds_total",
			Help: "Render pipeline rebuilds after a surface format change",
		}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "osci_fps",
			Help: "Presented frames per second over the last update interval",
		}),
		frameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "osci_frame_duration_seconds",
			Help:    "Wall time of one tick",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	for _, opt := range options {
		opt(p)
	}
	p.registry.MustRegister(p.frames, p.reconfigures, p.rebuilds, p.fps, p.frameSeconds)
	p.lastTime = p.clock()
	return p
}

// Registry returns the registry holding the profiler metrics.
func (p *Profiler) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler exposing the profiler metrics.
//
// Returns:
//   - http.Handler: the metrics handler
func (p *Profiler) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ObserveFrame records the outcome of one tick.
//
// Parameters:
//   - skipped: true if rendering was skipped
//   - reconfigured: true if the surface was reconfigured
//   - rebuilt: true if the render pipeline was rebuilt
//   - duration: the wall time of the tick
func (p *Profiler) ObserveFrame(skipped, reconfigured, rebuilt bool, duration time.Duration) {
	if skipped {
		p.frames.WithLabelValues(OutcomeSkipped).Inc()
	} else {
		p.frames.WithLabelValues(OutcomePresented).Inc()
		p.frameCount++
	}
	if reconfigured {
		p.reconfigures.Inc()
	}
	if rebuilt {
		p.rebuilds.Inc()
	}
	p.frameSeconds.Observe(duration.Seconds())
}

// Tick should be called once per frame after ObserveFrame.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	currentTime := p.clock()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()
	p.fps.Set(fps)

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			if pause := p.memStats.PauseNs[i%256] / 1000; pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	p.logger.Info("profiler",
		zap.Float64("fps", fps),
		zap.Float64("heap_mb", allocMB),
		zap.Float64("alloc_rate_mb_s", allocRateMB),
		zap.Uint32("gc_count", gcCount),
		zap.Uint64("gc_last_pause_us", lastPauseUs),
		zap.Uint64("gc_max_pause_us", maxPauseUs),
		zap.Float64("sys_mb", sysMB),
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
