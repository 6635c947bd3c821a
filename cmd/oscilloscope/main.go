package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-osci/engine"
	"github.com/Carmen-Shannon/oxy-osci/engine/config"
	"github.com/Carmen-Shannon/oxy-osci/engine/logger"
	"github.com/Carmen-Shannon/oxy-osci/engine/oscilloscope"
	"github.com/Carmen-Shannon/oxy-osci/engine/particle"
	"github.com/Carmen-Shannon/oxy-osci/engine/profiler"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer"
	"github.com/Carmen-Shannon/oxy-osci/engine/window"
)

func main() {
	configPath := flag.String("config", "", "path to oscilloscope.yaml (default $"+config.EnvConfigPath+")")
	flag.Parse()

	if err := run(config.ResolvePath(*configPath)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.Log.Environment,
		Level:       cfg.Log.Level,
		Service:     "oscilloscope",
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	prof := profiler.NewProfiler(profiler.WithLogger(log))
	if cfg.Metrics.Enabled {
		stop := serveMetrics(cfg.Metrics.Address, prof, log)
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Renderer.Backend == "software" {
		return runHeadless(ctx, cfg, prof, log)
	}
	return runWindowed(ctx, cfg, prof, log)
}

// runHeadless drives the CPU backend for a fixed number of frames and logs a checksum of
// the final particle buffer.
func runHeadless(ctx context.Context, cfg *config.Config, prof *profiler.Profiler, log *zap.Logger) error {
	surface := renderer.NewHeadlessSurface(cfg.Window.Width, cfg.Window.Height)
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, surface, rendererOptions(cfg, log)...)
	if err != nil {
		return err
	}

	osci, err := newOscilloscope(cfg, r, surface, log)
	if err != nil {
		return err
	}

	eng := engine.NewEngine(osci,
		engine.WithLogger(log),
		engine.WithProfiler(prof),
		engine.WithRenderFrameLimit(cfg.Loop.FrameLimit),
	)
	defer eng.Release()
	go func() {
		<-ctx.Done()
		eng.Quit()
	}()

	start := time.Now()
	frames, err := eng.RunFrames(cfg.Loop.HeadlessFrames)
	if err != nil {
		return fmt.Errorf("headless run stopped after %d frames: %w", frames, err)
	}
	sum, err := eng.Checksum()
	if err != nil {
		return err
	}
	log.Info("headless run complete",
		zap.Int("frames", frames),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("checksum", fmt.Sprintf("%016x", sum)),
	)
	return nil
}

// runWindowed opens a GLFW window and runs the WebGPU backend until the window closes.
func runWindowed(ctx context.Context, cfg *config.Config, prof *profiler.Profiler, log *zap.Logger) error {
	w, err := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithSize(cfg.Window.Width, cfg.Window.Height),
	)
	if err != nil {
		return err
	}

	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, w, rendererOptions(cfg, log)...)
	if err != nil {
		_ = w.Close()
		return err
	}

	osci, err := newOscilloscope(cfg, r, w, log)
	if err != nil {
		_ = w.Close()
		return err
	}

	eng := engine.NewEngine(osci,
		engine.WithWindow(w),
		engine.WithLogger(log),
		engine.WithProfiler(prof),
		engine.WithRenderFrameLimit(cfg.Loop.FrameLimit),
	)
	go func() {
		<-ctx.Done()
		eng.Quit()
	}()

	log.Info("oscilloscope running",
		zap.Int("particles", osci.Store().Count()),
		zap.Uint32("workgroups", osci.WorkGroups()),
		zap.Stringer("backend", r.Backend().Type()),
	)
	if err := eng.Run(); err != nil {
		return fmt.Errorf("render loop stopped: %w", err)
	}
	return nil
}

func rendererOptions(cfg *config.Config, log *zap.Logger) []renderer.RendererBuilderOption {
	mode := renderer.PresentModeVSync
	if cfg.Renderer.PresentMode == "uncapped" {
		mode = renderer.PresentModeUncapped
	}
	c := cfg.Renderer.ClearColor
	return []renderer.RendererBuilderOption{
		renderer.WithLogger(log),
		renderer.WithPresentMode(mode),
		renderer.WithClearColor(wgpu.Color{R: c[0], G: c[1], B: c[2], A: c[3]}),
		renderer.WithForceFallbackAdapter(cfg.Renderer.ForceFallbackAdapter),
		renderer.WithComputeWorkers(cfg.Renderer.ComputeWorkers),
	}
}

func newOscilloscope(cfg *config.Config, r renderer.Renderer, surface renderer.Surface, log *zap.Logger) (oscilloscope.Oscilloscope, error) {
	computeSource, err := config.ReadShader(cfg.Shaders.ComputePath, oscilloscope.ComputeSource)
	if err != nil {
		return nil, err
	}
	drawSource, err := config.ReadShader(cfg.Shaders.DrawPath, oscilloscope.DrawSource)
	if err != nil {
		return nil, err
	}
	strategy, err := particle.ParseSeedStrategy(cfg.Simulation.Seed)
	if err != nil {
		return nil, err
	}

	sim := cfg.Simulation
	return oscilloscope.NewOscilloscope(r, surface,
		oscilloscope.WithLogger(log),
		oscilloscope.WithParticleCount(sim.ParticleCount),
		oscilloscope.WithSeedStrategy(strategy),
		oscilloscope.WithWorkgroupSize(sim.WorkgroupSize),
		oscilloscope.WithComputeSource(computeSource),
		oscilloscope.WithDrawSource(drawSource),
		oscilloscope.WithPrecheck(cfg.Shaders.Precheck),
		oscilloscope.WithTrigger(cfg.Trigger()),
		oscilloscope.WithParams(oscilloscope.Params{
			Amplitude:   sim.Amplitude,
			Frequency:   sim.Frequency,
			Speed:       sim.Speed,
			Persistence: sim.Persistence,
		}),
	)
}

// serveMetrics exposes the profiler registry at /metrics and returns a function that shuts
// the server down.
func serveMetrics(addr string, prof *profiler.Profiler, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prof.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics server listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
}
