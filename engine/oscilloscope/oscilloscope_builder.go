package oscilloscope

import (
	"time"

	"github.com/Carmen-Shannon/oxy-osci/engine/particle"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/pipeline"
	"go.uber.org/zap"
)

// Params are the trace parameters written into the uniform block every frame.
type Params struct {
	Amplitude   float32
	Frequency   float32
	Speed       float32
	Persistence float32
}

// DefaultParams returns the trace parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		Amplitude:   0.5,
		Frequency:   6.0,
		Speed:       2.0,
		Persistence: 0.2,
	}
}

// OscilloscopeOption is a functional option applied by NewOscilloscope.
type OscilloscopeOption func(*oscilloscope)

// WithParticleCount sets the number of particles in each buffer.
//
// Parameters:
//   - count: the particle count
//
// Returns:
//   - OscilloscopeOption: a function that sets the particle count
func WithParticleCount(count int) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.count = count
	}
}

// WithSeed sets the initial particle data uploaded to both buffers. Its length must match
// the particle count.
//
// Parameters:
//   - seed: the initial particles
//
// Returns:
//   - OscilloscopeOption: a function that sets the seed
func WithSeed(seed []particle.GPUParticle) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.seed = seed
	}
}

// WithSeedStrategy selects the generated seed used when no explicit seed is given.
//
// Parameters:
//   - strategy: the seed strategy
//
// Returns:
//   - OscilloscopeOption: a function that sets the seed strategy
func WithSeedStrategy(strategy particle.SeedStrategy) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.seedStrategy = strategy
	}
}

// WithComputeSource replaces the embedded compute program.
//
// Parameters:
//   - source: the WGSL source
//
// Returns:
//   - OscilloscopeOption: a function that sets the compute source
func WithComputeSource(source string) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.computeSource = source
	}
}

// WithDrawSource replaces the embedded draw program.
//
// Parameters:
//   - source: the WGSL source holding both vertex and fragment entry points
//
// Returns:
//   - OscilloscopeOption: a function that sets the draw source
func WithDrawSource(source string) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.drawSource = source
	}
}

// WithKernel sets the CPU form of the compute program, used by backends without a GPU.
// It must implement the same computation as the compute source.
//
// Parameters:
//   - kernel: the compute kernel
//
// Returns:
//   - OscilloscopeOption: a function that sets the kernel
func WithKernel(kernel pipeline.ComputeKernel) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.kernel = kernel
	}
}

// WithWorkgroupSize sets the workgroup size the compute program is expected to declare.
// Zero accepts whatever the program declares.
//
// Parameters:
//   - size: the expected workgroup size along x
//
// Returns:
//   - OscilloscopeOption: a function that sets the expected workgroup size
func WithWorkgroupSize(size uint32) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.expectedWorkgroupSize = size
	}
}

// WithParams sets the trace parameters.
//
// Parameters:
//   - params: the trace parameters
//
// Returns:
//   - OscilloscopeOption: a function that sets the parameters
func WithParams(params Params) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.params = params
	}
}

// WithPrecheck compiles both programs offline before any pipeline is created.
//
// Parameters:
//   - enabled: true to run the offline compile
//
// Returns:
//   - OscilloscopeOption: a function that toggles the precheck
func WithPrecheck(enabled bool) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.precheck = enabled
	}
}

// WithQuadColor sets the color of the drawn segments.
//
// Parameters:
//   - color: RGBA in [0, 1]
//
// Returns:
//   - OscilloscopeOption: a function that sets the segment color
func WithQuadColor(color [4]float32) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.quadColor = color
	}
}

// WithClock sets the time source for the time and delta_time uniforms.
//
// Parameters:
//   - clock: a function returning the current time
//
// Returns:
//   - OscilloscopeOption: a function that sets the clock
func WithClock(clock func() time.Time) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.clock = clock
	}
}

// WithStateObserver registers a function called on every frame state transition.
//
// Parameters:
//   - observer: the callback
//
// Returns:
//   - OscilloscopeOption: a function that sets the observer
func WithStateObserver(observer func(frame uint64, state FrameState)) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.observer = observer
	}
}

// WithLogger sets the logger.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - OscilloscopeOption: a function that sets the logger
func WithLogger(logger *zap.Logger) OscilloscopeOption {
	return func(o *oscilloscope) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTrigger sets the initial trigger value. Zero starts with a flat trace.
//
// Parameters:
//   - trigger: 1 to arm the trace, 0 to flatten it
//
// Returns:
//   - OscilloscopeOption: a function that sets the trigger
func WithTrigger(trigger float32) OscilloscopeOption {
	return func(o *oscilloscope) {
		o.trigger = trigger
	}
}
