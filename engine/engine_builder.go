package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-osci/engine/profiler"
	"github.com/Carmen-Shannon/oxy-osci/engine/window"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables the periodic profiler summary.
//
// Parameters:
//   - enabled: if true, enables the profiler summary
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler sets the profiler instead of creating one.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithWindow sets the window whose message loop drives Run.
//
// Parameters:
//   - w: a created Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithRenderFrameLimit sets an optional frame rate cap in frames per second.
// Pass 0 to uncap the loop (default).
//
// Parameters:
//   - fps: maximum frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.SetRenderFrameLimit(fps)
	}
}

// WithSkipBackOff sets the backoff applied between consecutive skipped ticks.
//
// Parameters:
//   - b: the backoff policy, reset after every presented frame
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSkipBackOff(b backoff.BackOff) EngineBuilderOption {
	return func(e *engine) {
		e.skipBackOff = b
	}
}

// WithSleep replaces time.Sleep for pacing and backoff waits.
//
// Parameters:
//   - sleep: the sleep function
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSleep(sleep func(time.Duration)) EngineBuilderOption {
	return func(e *engine) {
		e.sleep = sleep
	}
}

// WithLogger sets the logger.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}
