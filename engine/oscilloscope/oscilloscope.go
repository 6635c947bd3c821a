package oscilloscope

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-osci/common"
	"github.com/Carmen-Shannon/oxy-osci/engine/model"
	"github.com/Carmen-Shannon/oxy-osci/engine/particle"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

const (
	uniformBufferLabel  = "Oscilloscope Parameter buffer"
	particleBufferUsage = wgpu.BufferUsageVertex | wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
)

// oscilloscope is the implementation of the Oscilloscope interface.
type oscilloscope struct {
	mu *sync.Mutex

	renderer renderer.Renderer
	surface  renderer.Surface
	logger   *zap.Logger

	// configuration collected from options
	count                 int
	seed                  []particle.GPUParticle
	seedStrategy          particle.SeedStrategy
	computeSource         string
	drawSource            string
	kernel                pipeline.ComputeKernel
	expectedWorkgroupSize uint32
	params                Params
	precheck              bool
	quadColor             [4]float32
	clock                 func() time.Time
	observer              func(frame uint64, state FrameState)

	// built state
	store         particle.Store
	uniformBuffer resource.Handle
	groups        [2]bind_group_provider.BindGroupProvider
	quad          model.Model
	workgroupSize uint32
	workGroups    uint32

	// frame state
	frame         uint64
	state         FrameState
	trigger       float32
	uniforms      particle.GPUUniforms
	start         time.Time
	last          time.Time
	pendingResize *[2]int

	closed      bool
	releaseOnce sync.Once
}

// Oscilloscope is the frame driver of the particle trace. It owns two particle buffers
// that swap roles every frame: the compute pass reads one and writes the other, then the
// render pass draws every particle as an instanced line segment straight from the buffer
// the compute pass just wrote.
type Oscilloscope interface {
	// Tick runs one frame: compute dispatch, draw and present. A surface that must be
	// reconfigured skips the render of this tick without failing. Device loss is fatal:
	// every resource is released and later ticks return ErrClosed.
	//
	// Returns:
	//   - FrameResult: what the tick did
	//   - error: a wrapped renderer.ErrDeviceLost, ErrClosed, or another frame error
	Tick() (FrameResult, error)

	// Resize records a new surface size. It is applied at the start of the next Tick.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// RebuildRenderPipeline re-creates the render pipeline against the current surface
	// format. The compute pipeline and all buffers are kept.
	//
	// Returns:
	//   - error: an error if the rebuild fails
	RebuildRenderPipeline() error

	// ToggleTrigger flips the trigger between armed and flat.
	//
	// Returns:
	//   - float32: the new trigger value, 1 or 0
	ToggleTrigger() float32

	// Trigger returns the current trigger value.
	Trigger() float32

	// Uniforms returns the uniform block written by the most recent tick.
	Uniforms() particle.GPUUniforms

	// FrameIndex returns the index of the next frame Tick will run.
	FrameIndex() uint64

	// State returns the current frame state.
	State() FrameState

	// Store returns the particle buffer pair.
	Store() particle.Store

	// WorkGroups returns the number of workgroups dispatched per frame.
	WorkGroups() uint32

	// LatestBuffer returns the particle buffer holding the newest particle data, which is
	// the read buffer of the next frame.
	//
	// Returns:
	//   - resource.Handle: the buffer handle
	LatestBuffer() resource.Handle

	// Renderer returns the renderer the oscilloscope drives.
	Renderer() renderer.Renderer

	// Release releases every renderer resource. Only the first call has an effect.
	//
	// Returns:
	//   - int: the number of objects released by the first call, 0 afterwards
	Release() int

	// Closed reports whether the oscilloscope was released.
	Closed() bool
}

var _ Oscilloscope = &oscilloscope{}

// NewOscilloscope builds the pipelines, particle buffers and bind groups on the given
// renderer. Shader binding and vertex input contracts are validated before any pipeline
// is created. On failure every object created so far is released.
//
// Parameters:
//   - r: the renderer to build on, already configured for the surface
//   - surface: the display surface, used to reconfigure after an outdated acquire
//   - options: variadic list of OscilloscopeOption functions
//
// Returns:
//   - Oscilloscope: the frame driver, ready to Tick
//   - error: a configuration error wrapping shader.ErrContract, ErrWorkgroupSize, or a renderer error
func NewOscilloscope(r renderer.Renderer, surface renderer.Surface, options ...OscilloscopeOption) (Oscilloscope, error) {
	o := &oscilloscope{
		mu:            &sync.Mutex{},
		renderer:      r,
		surface:       surface,
		logger:        zap.NewNop(),
		count:         DefaultParticleCount,
		seedStrategy:  particle.SeedTrace,
		computeSource: ComputeSource,
		drawSource:    DrawSource,
		kernel:        particle.StepKernel,
		params:        DefaultParams(),
		quadColor:     [4]float32{0.2, 1.0, 0.4, 1.0},
		clock:         time.Now,
		trigger:       1,
	}
	for _, opt := range options {
		opt(o)
	}

	if err := o.build(); err != nil {
		r.Release()
		return nil, err
	}

	o.start = o.clock()
	o.last = o.start
	o.logger.Info("oscilloscope ready",
		zap.Int("particles", o.count),
		zap.Uint32("workgroup_size", o.workgroupSize),
		zap.Uint32("workgroups", o.workGroups),
		zap.Uint32("surface_format", uint32(r.SurfaceFormat())),
	)
	return o, nil
}

func (o *oscilloscope) build() error {
	seed := o.seed
	if seed == nil {
		var err error
		seed, err = particle.GenerateSeed(o.seedStrategy, o.count)
		if err != nil {
			return err
		}
	}
	store, err := particle.NewStore(o.count, seed)
	if err != nil {
		return err
	}
	o.store = store

	cs, err := shader.NewShader(ComputePipelineKey, shader.ShaderTypeCompute, o.computeSource)
	if err != nil {
		return fmt.Errorf("compute shader: %w", err)
	}
	vs, err := shader.NewShader(DrawPipelineKey+"_vs", shader.ShaderTypeVertex, o.drawSource)
	if err != nil {
		return fmt.Errorf("vertex shader: %w", err)
	}
	fs, err := shader.NewShader(DrawPipelineKey+"_fs", shader.ShaderTypeFragment, o.drawSource)
	if err != nil {
		return fmt.Errorf("fragment shader: %w", err)
	}

	if o.precheck {
		for _, s := range []shader.Shader{cs, vs, fs} {
			if err := shader.Precheck(s); err != nil {
				return err
			}
		}
	}

	contracts := []shader.BindingContract{
		{Group: 0, Binding: particle.BindingUniforms, Type: wgpu.BufferBindingTypeUniform, BufferSize: particle.UniformsSize},
		{Group: 0, Binding: particle.BindingRead, Type: wgpu.BufferBindingTypeReadOnlyStorage, BufferSize: store.ByteSize(), ElementStride: particle.ParticleSize},
		{Group: 0, Binding: particle.BindingWrite, Type: wgpu.BufferBindingTypeStorage, BufferSize: store.ByteSize(), ElementStride: particle.ParticleSize},
	}
	if err := shader.ValidateBindings(cs, contracts); err != nil {
		return fmt.Errorf("compute shader %q: %w", cs.Key(), err)
	}
	slots := []wgpu.VertexBufferLayout{particle.LineLayout(), model.VertexLayout()}
	if err := shader.ValidateVertexInputs(vs, slots); err != nil {
		return fmt.Errorf("vertex shader %q: %w", vs.Key(), err)
	}

	compute := pipeline.NewPipeline(ComputePipelineKey, pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(cs),
		pipeline.WithKernel(o.kernel),
	)
	o.workgroupSize = compute.WorkgroupSize()
	if o.workgroupSize == 0 {
		return fmt.Errorf("compute shader %q declares no workgroup size", cs.Key())
	}
	if o.expectedWorkgroupSize != 0 && o.expectedWorkgroupSize != o.workgroupSize {
		return fmt.Errorf("%w: shader declares %d, configured %d", ErrWorkgroupSize, o.workgroupSize, o.expectedWorkgroupSize)
	}
	o.workGroups = common.CeilDiv(uint32(o.count), o.workgroupSize)

	draw := pipeline.NewPipeline(DrawPipelineKey, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fs),
		pipeline.WithVertexLayouts(slots...),
		pipeline.WithTopology(wgpu.PrimitiveTopologyTriangleList),
		pipeline.WithCullMode(wgpu.CullModeNone),
	)
	if err := o.renderer.RegisterPipelines(compute, draw); err != nil {
		return err
	}

	o.uniformBuffer, err = o.renderer.CreateBuffer(uniformBufferLabel, particle.UniformsSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", uniformBufferLabel, err)
	}
	for slot := 0; slot < 2; slot++ {
		label := fmt.Sprintf("Particle Buffer %d", slot)
		h, err := o.renderer.CreateBuffer(label, store.ByteSize(), particleBufferUsage, store.SeedBytes())
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", label, err)
		}
		store.SetBuffer(slot, h)
	}

	// group i reads buffer i and writes buffer 1-i, so frame f selects group f%2
	layout := cs.BindGroupLayoutDescriptor(0)
	for slot := 0; slot < 2; slot++ {
		opts := []bind_group_provider.BindGroupProviderOption{
			bind_group_provider.WithBuffers(map[int]resource.Handle{
				particle.BindingUniforms: o.uniformBuffer,
				particle.BindingRead:     store.Buffer(slot),
				particle.BindingWrite:    store.Buffer(1 - slot),
			}),
		}
		if slot == 1 {
			opts = append(opts, bind_group_provider.WithBindGroupLayout(o.groups[0].BindGroupLayout()))
		}
		o.groups[slot] = bind_group_provider.NewBindGroupProvider(fmt.Sprintf("Bind Group %d", slot), opts...)
		if err := o.renderer.InitBindGroup(o.groups[slot], layout, nil, nil); err != nil {
			return err
		}
	}

	o.quad = model.UnitQuad(o.quadColor)
	return o.renderer.InitMeshBuffers(o.quad.MeshProvider(), o.quad.VertexData(), o.quad.IndexData(), o.quad.IndexCount())
}

func (o *oscilloscope) Tick() (FrameResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return FrameResult{}, ErrClosed
	}

	f := o.frame
	result := FrameResult{
		Frame:      f,
		ReadIndex:  o.store.ReadIndex(f),
		WriteIndex: o.store.WriteIndex(f),
	}

	if o.pendingResize != nil {
		size := *o.pendingResize
		rebuilt, err := o.reconfigureLocked(size[0], size[1])
		if errors.Is(err, renderer.ErrSurfaceOutdated) {
			// zero sized surface, typically a minimized window; try again next tick
			result.Skipped = true
			return result, nil
		}
		if err != nil {
			return result, o.failLocked(err)
		}
		o.pendingResize = nil
		result.Reconfigured = true
		result.Rebuilt = rebuilt
	}

	now := o.clock()
	o.uniforms = particle.GPUUniforms{
		Time:          float32(now.Sub(o.start).Seconds()),
		DeltaTime:     float32(now.Sub(o.last).Seconds()),
		Trigger:       o.trigger,
		ParticleCount: uint32(o.count),
		Amplitude:     o.params.Amplitude,
		Frequency:     o.params.Frequency,
		Speed:         o.params.Speed,
		Persistence:   o.params.Persistence,
	}
	o.last = now
	if err := o.renderer.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: o.groups[0], Binding: particle.BindingUniforms, Data: o.uniforms.Marshal()},
	}); err != nil {
		return result, o.failLocked(err)
	}

	if err := o.renderer.BeginComputeFrame(); err != nil {
		return result, o.failLocked(err)
	}
	if err := o.renderer.DispatchCompute(ComputePipelineKey, o.groups[result.ReadIndex], [3]uint32{o.workGroups, 1, 1}); err != nil {
		_ = o.renderer.EndComputeFrame()
		return result, o.failLocked(err)
	}
	if err := o.renderer.EndComputeFrame(); err != nil {
		return result, o.failLocked(err)
	}
	result.WorkGroups = o.workGroups
	o.setStateLocked(StateComputeDispatched)
	result.State = StateComputeDispatched

	if err := o.renderer.BeginFrame(); err != nil {
		if !errors.Is(err, renderer.ErrSurfaceOutdated) {
			return result, o.failLocked(err)
		}
		o.logger.Debug("surface outdated, skipping render", zap.Uint64("frame", f), zap.Error(err))
		rebuilt, rerr := o.reconfigureLocked(o.surface.Width(), o.surface.Height())
		if rerr != nil && !errors.Is(rerr, renderer.ErrSurfaceOutdated) {
			return result, o.failLocked(rerr)
		}
		result.Reconfigured = rerr == nil
		result.Rebuilt = result.Rebuilt || rebuilt
		result.Skipped = true
		o.frame++
		o.setStateLocked(StateIdle)
		return result, nil
	}

	o.setStateLocked(StateRenderInProgress)
	result.State = StateRenderInProgress
	vertexBuffers := []resource.Handle{o.store.WriteBuffer(f), o.quad.MeshProvider().VertexBuffer()}
	if err := o.renderer.DrawCall(DrawPipelineKey, o.quad.MeshProvider(), uint32(o.count), vertexBuffers, nil); err != nil {
		return result, o.failLocked(err)
	}
	if err := o.renderer.EndFrame(); err != nil {
		return result, o.failLocked(err)
	}
	if err := o.renderer.Present(); err != nil {
		return result, o.failLocked(err)
	}

	o.setStateLocked(StatePresented)
	result.State = StatePresented
	o.frame++
	o.setStateLocked(StateIdle)
	return result, nil
}

// reconfigureLocked configures the surface and rebuilds the render pipeline when the
// negotiated format changed.
func (o *oscilloscope) reconfigureLocked(width, height int) (bool, error) {
	changed, err := o.renderer.Resize(width, height)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	if err := o.renderer.RebuildPipeline(DrawPipelineKey); err != nil {
		return false, err
	}
	return true, nil
}

// failLocked returns the driver to idle and wraps err. Device loss also releases every
// resource and closes the driver.
func (o *oscilloscope) failLocked(err error) error {
	o.setStateLocked(StateIdle)
	if errors.Is(err, renderer.ErrDeviceLost) {
		o.logger.Error("device lost, releasing resources", zap.Uint64("frame", o.frame), zap.Error(err))
		o.releaseLocked()
		return fmt.Errorf("frame %d: %w", o.frame, err)
	}
	return fmt.Errorf("frame %d: %w", o.frame, err)
}

func (o *oscilloscope) setStateLocked(state FrameState) {
	o.state = state
	if o.observer != nil {
		o.observer(o.frame, state)
	}
}

func (o *oscilloscope) Resize(width, height int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingResize = &[2]int{width, height}
}

func (o *oscilloscope) RebuildRenderPipeline() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	return o.renderer.RebuildPipeline(DrawPipelineKey)
}

func (o *oscilloscope) ToggleTrigger() float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trigger = 1 - o.trigger
	o.logger.Info("trigger toggled", zap.Float32("trigger", o.trigger))
	return o.trigger
}

func (o *oscilloscope) Trigger() float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.trigger
}

func (o *oscilloscope) Uniforms() particle.GPUUniforms {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.uniforms
}

func (o *oscilloscope) FrameIndex() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frame
}

func (o *oscilloscope) State() FrameState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *oscilloscope) Store() particle.Store {
	return o.store
}

func (o *oscilloscope) WorkGroups() uint32 {
	return o.workGroups
}

func (o *oscilloscope) LatestBuffer() resource.Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.ReadBuffer(o.frame)
}

func (o *oscilloscope) Renderer() renderer.Renderer {
	return o.renderer
}

func (o *oscilloscope) Release() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.releaseLocked()
}

func (o *oscilloscope) releaseLocked() int {
	n := 0
	o.releaseOnce.Do(func() {
		o.closed = true
		n = o.renderer.Release()
	})
	return n
}

func (o *oscilloscope) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
