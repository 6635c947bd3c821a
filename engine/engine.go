package engine

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-osci/common"
	"github.com/Carmen-Shannon/oxy-osci/engine/oscilloscope"
	"github.com/Carmen-Shannon/oxy-osci/engine/profiler"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-osci/engine/window"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrNoWindow is returned by Run when the engine was built without a window.
var ErrNoWindow = errors.New("engine: no window")

// bufferReader is implemented by backends that can read buffer contents back on the CPU.
type bufferReader interface {
	BufferData(h resource.Handle) []byte
}

// engine implements the Engine interface.
// Drives the oscilloscope from the window message loop, or for a fixed number of frames
// when headless.
type engine struct {
	window window.Window
	osci   oscilloscope.Oscilloscope
	logger *zap.Logger

	profiler         *profiler.Profiler
	profilingEnabled bool

	frameCallback    func(result oscilloscope.FrameResult)
	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	// skipBackOff spaces out ticks while the surface keeps reporting outdated
	skipBackOff backoff.BackOff
	sleep       func(time.Duration)
	clock       func() time.Time

	quitChannel chan struct{}
	quitOnce    sync.Once
	runErr      error
}

// Engine is the main entry point for the application.
// It owns the frame loop around an Oscilloscope: pacing, skip backoff, profiling and input.
type Engine interface {
	// Window returns the underlying window, nil when headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Oscilloscope returns the frame driver.
	Oscilloscope() oscilloscope.Oscilloscope

	// Profiler returns the profiler recording frame metrics.
	Profiler() *profiler.Profiler

	// EnableProfiler enables the periodic profiler summary in the log.
	EnableProfiler()

	// DisableProfiler disables the periodic profiler summary. Metrics are still recorded.
	DisableProfiler()

	// SetRenderFrameLimit sets an optional frame rate cap in frames per second.
	// Pass 0 to uncap the loop (default).
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SetFrameCallback registers a function called after every tick with its result.
	//
	// Parameters:
	//   - callback: the function to call
	SetFrameCallback(callback func(result oscilloscope.FrameResult))

	// Step runs one tick with profiling, skip backoff and frame pacing applied.
	//
	// Returns:
	//   - oscilloscope.FrameResult: what the tick did
	//   - error: the tick error
	Step() (oscilloscope.FrameResult, error)

	// Run drives the oscilloscope from the window message loop until the window closes,
	// Quit is called, or a tick fails. Resources are released before it returns.
	//
	// Returns:
	//   - error: the tick error that stopped the loop, or nil
	Run() error

	// RunFrames runs n ticks without a window. It stops early on Quit or a tick error.
	// Resources are kept so the final particle buffer can be inspected.
	//
	// Parameters:
	//   - n: the number of ticks
	//
	// Returns:
	//   - int: the number of ticks that completed
	//   - error: the tick error, or nil
	RunFrames(n int) (int, error)

	// Checksum hashes the newest particle buffer with FNV-1a. Only backends that can read
	// buffers back support it.
	//
	// Returns:
	//   - uint64: the checksum
	//   - error: an error if the backend cannot read buffers or the buffer is gone
	Checksum() (uint64, error)

	// Quit stops Run or RunFrames after the current tick.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Release releases the oscilloscope resources. Safe to call multiple times.
	Release()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine around an already built oscilloscope.
// When a window is given, its resize events are forwarded to the oscilloscope and its
// keys are bound: space toggles the trigger, P toggles the profiler summary and R rebuilds
// the render pipeline. Escape is handled by the window itself.
//
// Parameters:
//   - osci: the frame driver
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(osci oscilloscope.Oscilloscope, options ...EngineBuilderOption) Engine {
	e := &engine{
		osci:        osci,
		logger:      zap.NewNop(),
		sleep:       time.Sleep,
		clock:       time.Now,
		quitChannel: make(chan struct{}),
	}

	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}
	if e.skipBackOff == nil {
		e.skipBackOff = newSkipBackOff()
	}

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			e.osci.Resize(width, height)
		})
		e.window.SetKeyDownCallback(e.handleKey)
	}

	return e
}

// newSkipBackOff returns the default backoff between consecutive skipped ticks.
func newSkipBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (e *engine) handleKey(keyCode uint32) {
	switch keyCode {
	case common.KeySpace:
		trigger := e.osci.ToggleTrigger()
		e.logger.Info("space pressed", zap.Float32("trigger", trigger))
	case common.KeyP:
		if e.profilingEnabled {
			e.DisableProfiler()
		} else {
			e.EnableProfiler()
		}
	case common.KeyR:
		if err := e.osci.RebuildRenderPipeline(); err != nil {
			e.logger.Warn("render pipeline rebuild failed", zap.Error(err))
		}
	}
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Oscilloscope() oscilloscope.Oscilloscope {
	return e.osci
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetRenderFrameLimit sets an optional frame rate cap.
// Pass 0 to uncap the loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) SetFrameCallback(callback func(result oscilloscope.FrameResult)) {
	e.frameCallback = callback
}

func (e *engine) Step() (oscilloscope.FrameResult, error) {
	start := e.clock()
	result, err := e.osci.Tick()
	if err != nil {
		return result, err
	}
	elapsed := e.clock().Sub(start)

	e.profiler.ObserveFrame(result.Skipped, result.Reconfigured, result.Rebuilt, elapsed)
	if e.profilingEnabled {
		e.profiler.Tick()
	}
	if e.frameCallback != nil {
		e.frameCallback(result)
	}

	if result.Skipped {
		if wait := e.skipBackOff.NextBackOff(); wait != backoff.Stop {
			e.logger.Debug("frame skipped", zap.Uint64("frame", result.Frame), zap.Duration("backoff", wait))
			e.sleep(wait)
		}
		return result, nil
	}
	e.skipBackOff.Reset()

	if e.renderFrameLimit > 0 {
		if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
			e.sleep(remaining)
		}
	}
	return result, nil
}

func (e *engine) Run() error {
	if e.window == nil {
		return ErrNoWindow
	}
	defer e.Release()

	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			e.window.RequestClose()
			return
		default:
		}
		if _, err := e.Step(); err != nil {
			e.runErr = err
			e.logger.Error("frame failed, closing window", zap.Error(err))
			e.window.RequestClose()
		}
	})
	e.window.ProcessMessages()

	if err := e.window.Close(); err != nil {
		e.logger.Warn("window close failed", zap.Error(err))
	}
	return e.runErr
}

func (e *engine) RunFrames(n int) (int, error) {
	for i := 0; i < n; i++ {
		select {
		case <-e.quitChannel:
			return i, nil
		default:
		}
		if _, err := e.Step(); err != nil {
			return i, err
		}
	}
	return n, nil
}

func (e *engine) Checksum() (uint64, error) {
	reader, ok := e.osci.Renderer().Backend().(bufferReader)
	if !ok {
		return 0, fmt.Errorf("%s backend cannot read buffers back", e.osci.Renderer().Backend().Type())
	}
	data := reader.BufferData(e.osci.LatestBuffer())
	if data == nil {
		return 0, errors.New("particle buffer is not live")
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64(), nil
}

// Quit signals the loop to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Release() {
	if n := e.osci.Release(); n > 0 {
		e.logger.Info("resources released", zap.Int("objects", n))
	}
}
