package oscilloscope

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-osci/engine/particle"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/shader"
)

// fakeClock advances by a fixed step on every call.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0), step: 16 * time.Millisecond}
}

func newTestOscilloscope(t *testing.T, options ...OscilloscopeOption) (Oscilloscope, renderer.SoftwareRendererBackend) {
	t.Helper()
	sb := renderer.NewSoftwareRendererBackend(renderer.WithWorkers(2))
	surface := renderer.NewHeadlessSurface(640, 360)
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, surface, renderer.WithBackend(sb))
	require.NoError(t, err)

	options = append([]OscilloscopeOption{WithClock(newClock().Now)}, options...)
	o, err := NewOscilloscope(r, surface, options...)
	require.NoError(t, err)
	return o, sb
}

func TestBuildLabelsAndWorkGroups(t *testing.T) {
	o, sb := newTestOscilloscope(t)

	assert.Equal(t, uint32(24), o.WorkGroups())
	assert.Equal(t, DefaultParticleCount, o.Store().Count())

	labels := make(map[string]bool)
	arena := sb.Arena()
	for _, h := range arena.Handles() {
		labels[arena.Label(h)] = true
	}
	for _, want := range []string{
		"Oscilloscope Parameter buffer",
		"Particle Buffer 0",
		"Particle Buffer 1",
		"Bind Group 0",
		"Bind Group 1",
		"Vertex Buffer",
	} {
		assert.True(t, labels[want], "missing %q", want)
	}
}

func TestTickAlternatesBuffers(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	store := o.Store()

	for f := uint64(0); f < 6; f++ {
		res, err := o.Tick()
		require.NoError(t, err)
		assert.Equal(t, f, res.Frame)
		assert.Equal(t, int(f%2), res.ReadIndex)
		assert.Equal(t, int((f+1)%2), res.WriteIndex)
		assert.Equal(t, StatePresented, res.State)
		assert.False(t, res.Skipped)
		assert.Equal(t, store.ReadBuffer(f+1), o.LatestBuffer())
	}

	draws := sb.Draws()
	require.Len(t, draws, 6)
	for f, d := range draws {
		assert.Equal(t, store.WriteBuffer(uint64(f)), d.VertexBuffers[0], "frame %d must draw the buffer it just wrote", f)
		assert.Equal(t, uint32(DefaultParticleCount), d.InstanceCount)
		assert.Equal(t, 6, d.IndexCount)
	}
	assert.Equal(t, StateIdle, o.State())
	assert.Equal(t, uint64(6), o.FrameIndex())
}

func TestDispatchCoversEveryParticleWithGuard(t *testing.T) {
	o, sb := newTestOscilloscope(t)

	res, err := o.Tick()
	require.NoError(t, err)
	assert.Equal(t, uint32(24), res.WorkGroups)
	// 24 groups of 64 is 1536 invocations, 36 of them past the last particle
	assert.Equal(t, uint64(1536), sb.InvocationCount())
	assert.Equal(t, uint32(1500), o.Uniforms().ParticleCount)
}

func TestStepIsDeterministic(t *testing.T) {
	a, sba := newTestOscilloscope(t)
	b, sbb := newTestOscilloscope(t)

	for i := 0; i < 5; i++ {
		_, err := a.Tick()
		require.NoError(t, err)
		_, err = b.Tick()
		require.NoError(t, err)
	}
	assert.Equal(t, sba.BufferData(a.LatestBuffer()), sbb.BufferData(b.LatestBuffer()))
}

func TestBuffersStartSymmetric(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	store := o.Store()

	assert.Equal(t, store.SeedBytes(), sb.BufferData(store.Buffer(0)))
	assert.Equal(t, sb.BufferData(store.Buffer(0)), sb.BufferData(store.Buffer(1)))

	_, err := o.Tick()
	require.NoError(t, err)
	assert.Equal(t, store.SeedBytes(), sb.BufferData(store.ReadBuffer(0)), "the read buffer is never written")
	assert.NotEqual(t, store.SeedBytes(), sb.BufferData(store.WriteBuffer(0)))
}

func TestIdentityKernelEndToEnd(t *testing.T) {
	seed := []particle.GPUParticle{
		{Position: [2]float32{-0.5, 0.1}, Angle: 0.2, Length: 0.3},
		{Position: [2]float32{-0.1, 0.2}, Angle: 0.4, Length: 0.3},
		{Position: [2]float32{0.1, 0.3}, Angle: 0.6, Length: 0.3},
		{Position: [2]float32{0.5, 0.4}, Angle: 0.8, Length: 0.3},
	}
	o, sb := newTestOscilloscope(t,
		WithParticleCount(4),
		WithSeed(seed),
		WithComputeSource(IdentitySource),
		WithKernel(particle.IdentityKernel),
	)
	want := particle.MarshalParticles(seed)

	for i := 0; i < 3; i++ {
		_, err := o.Tick()
		require.NoError(t, err)
	}

	assert.Equal(t, want, sb.BufferData(o.LatestBuffer()))
	assert.Equal(t, 3, sb.PresentCount())
	draws := sb.Draws()
	require.Len(t, draws, 3)
	for f, d := range draws {
		assert.Equal(t, o.Store().WriteBuffer(uint64(f)), d.VertexBuffers[0])
		assert.Equal(t, want, d.Snapshots[0])
		assert.Equal(t, uint32(4), d.InstanceCount)
	}
	assert.Equal(t, uint64(3*64), sb.InvocationCount())
}

func TestOutdatedSurfaceSkipsRender(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	r := o.Renderer()
	computeHandle := r.Pipeline(ComputePipelineKey).Handle()
	drawHandle := r.Pipeline(DrawPipelineKey).Handle()
	configures := sb.ConfigureCount()

	sb.FailNextAcquire(renderer.ErrSurfaceOutdated)
	res, err := o.Tick()
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.True(t, res.Reconfigured)
	assert.False(t, res.Rebuilt)
	assert.Equal(t, uint32(24), res.WorkGroups)
	assert.Equal(t, configures+1, sb.ConfigureCount())
	assert.Equal(t, 0, sb.PresentCount())
	assert.Equal(t, StateIdle, o.State())
	assert.Equal(t, uint64(1), o.FrameIndex(), "compute was committed so the frame advances")

	res, err = o.Tick()
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, sb.PresentCount())
	assert.Equal(t, computeHandle, r.Pipeline(ComputePipelineKey).Handle())
	assert.Equal(t, drawHandle, r.Pipeline(DrawPipelineKey).Handle())
}

func TestResizeAppliesAtNextTick(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	drawHandle := o.Renderer().Pipeline(DrawPipelineKey).Handle()

	o.Resize(1024, 768)
	res, err := o.Tick()
	require.NoError(t, err)
	assert.True(t, res.Reconfigured)
	assert.False(t, res.Rebuilt)
	w, h := sb.Size()
	assert.Equal(t, 1024, w)
	assert.Equal(t, 768, h)
	assert.Equal(t, drawHandle, o.Renderer().Pipeline(DrawPipelineKey).Handle())

	// a zero sized surface is skipped before compute runs and retried next tick
	o.Resize(0, 0)
	invocations := sb.InvocationCount()
	res, err = o.Tick()
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.WorkGroups)
	assert.Equal(t, invocations, sb.InvocationCount())
	assert.Equal(t, uint64(1), o.FrameIndex())

	o.Resize(800, 600)
	res, err = o.Tick()
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, uint64(2), o.FrameIndex())
}

func TestFormatChangeRebuildsRenderPipelineOnly(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	r := o.Renderer()
	computeHandle := r.Pipeline(ComputePipelineKey).Handle()
	oldDraw := r.Pipeline(DrawPipelineKey).Handle()

	sb.SetSurfaceFormat(wgpu.TextureFormatRGBA8Unorm)
	o.Resize(640, 360)
	res, err := o.Tick()
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	assert.NotEqual(t, oldDraw, r.Pipeline(DrawPipelineKey).Handle())
	assert.Equal(t, wgpu.TextureFormatRGBA8Unorm, r.Pipeline(DrawPipelineKey).TargetFormat())
	assert.Equal(t, computeHandle, r.Pipeline(ComputePipelineKey).Handle())
	assert.Equal(t, 1, r.Arena().ReleaseCount(oldDraw))

	require.NoError(t, o.RebuildRenderPipeline())
}

func TestStateTransitions(t *testing.T) {
	var states []FrameState
	o, sb := newTestOscilloscope(t, WithStateObserver(func(_ uint64, s FrameState) {
		states = append(states, s)
	}))

	_, err := o.Tick()
	require.NoError(t, err)
	assert.Equal(t, []FrameState{StateComputeDispatched, StateRenderInProgress, StatePresented, StateIdle}, states)

	states = nil
	sb.FailNextAcquire(renderer.ErrSurfaceOutdated)
	_, err = o.Tick()
	require.NoError(t, err)
	assert.Equal(t, []FrameState{StateComputeDispatched, StateIdle}, states)
}

func TestDeviceLossReleasesEverythingOnce(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	_, err := o.Tick()
	require.NoError(t, err)

	arena := sb.Arena()
	handles := arena.Handles()
	require.NotEmpty(t, handles)

	sb.LoseDevice()
	_, err = o.Tick()
	require.Error(t, err)
	assert.ErrorIs(t, err, renderer.ErrDeviceLost)
	assert.True(t, o.Closed())
	assert.Equal(t, StateIdle, o.State())
	for _, h := range handles {
		assert.Equal(t, 1, arena.ReleaseCount(h), "handle %d (%s)", h, arena.Label(h))
	}
	assert.Zero(t, arena.Live())

	_, err = o.Tick()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, o.Release())
	for _, h := range handles {
		assert.Equal(t, 1, arena.ReleaseCount(h))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	o, sb := newTestOscilloscope(t)
	live := sb.Arena().Live()

	assert.Equal(t, live, o.Release())
	assert.Zero(t, o.Release())
	assert.ErrorIs(t, o.RebuildRenderPipeline(), ErrClosed)
}

func TestToggleTrigger(t *testing.T) {
	o, _ := newTestOscilloscope(t)
	assert.Equal(t, float32(1), o.Trigger())
	assert.Equal(t, float32(0), o.ToggleTrigger())

	_, err := o.Tick()
	require.NoError(t, err)
	assert.Equal(t, float32(0), o.Uniforms().Trigger)
	assert.Equal(t, float32(1), o.ToggleTrigger())
}

func TestInitialTrigger(t *testing.T) {
	o, _ := newTestOscilloscope(t, WithTrigger(0))
	assert.Equal(t, float32(0), o.Trigger())
}

func TestUniformTiming(t *testing.T) {
	o, _ := newTestOscilloscope(t, WithParams(Params{Amplitude: 0.25, Frequency: 3, Speed: 1, Persistence: 0.5}))

	_, err := o.Tick()
	require.NoError(t, err)
	u := o.Uniforms()
	assert.InDelta(t, 0.016, u.Time, 1e-6)
	assert.InDelta(t, 0.016, u.DeltaTime, 1e-6)
	assert.Equal(t, float32(0.25), u.Amplitude)
	assert.Equal(t, float32(0.5), u.Persistence)

	_, err = o.Tick()
	require.NoError(t, err)
	assert.InDelta(t, 0.032, o.Uniforms().Time, 1e-6)
	assert.InDelta(t, 0.016, o.Uniforms().DeltaTime, 1e-6)
}

func newBareRenderer(t *testing.T) (renderer.Renderer, renderer.Surface, renderer.SoftwareRendererBackend) {
	t.Helper()
	sb := renderer.NewSoftwareRendererBackend(renderer.WithWorkers(1))
	surface := renderer.NewHeadlessSurface(32, 32)
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, surface, renderer.WithBackend(sb))
	require.NoError(t, err)
	return r, surface, sb
}

func TestBindingContractMismatch(t *testing.T) {
	r, surface, sb := newBareRenderer(t)
	// binding 1 declared read_write where the driver binds a read-only buffer
	bad := strings.Replace(IdentitySource, "storage_read particles_src", "storage_read_write particles_src", 1)
	require.NotEqual(t, IdentitySource, bad)

	_, err := NewOscilloscope(r, surface, WithComputeSource(bad), WithKernel(particle.IdentityKernel))
	require.Error(t, err)
	assert.ErrorIs(t, err, shader.ErrContract)
	var be *shader.BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Binding)
	assert.Zero(t, sb.Arena().Live())
}

func TestVertexInputContractMismatch(t *testing.T) {
	r, surface, _ := newBareRenderer(t)
	noLine := `//@oxy:include vertex
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
}
@vertex
fn main_vs(quad: QuadVertex) -> VertexOutput {
    var result: VertexOutput;
    result.position = vec4<f32>(quad.position, 0.0, 1.0);
    return result;
}
@fragment
fn main_fs(v: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`
	_, err := NewOscilloscope(r, surface, WithDrawSource(noLine))
	require.Error(t, err)
	var ve *shader.VertexInputError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 0, ve.Slot)
}

func TestWorkgroupSizeMismatch(t *testing.T) {
	r, surface, _ := newBareRenderer(t)
	_, err := NewOscilloscope(r, surface, WithWorkgroupSize(128))
	assert.ErrorIs(t, err, ErrWorkgroupSize)
}

func TestSeedLengthMustMatchCount(t *testing.T) {
	r, surface, _ := newBareRenderer(t)
	_, err := NewOscilloscope(r, surface, WithParticleCount(8), WithSeed(make([]particle.GPUParticle, 3)))
	assert.Error(t, err)
}

func TestFrameStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "compute_dispatched", StateComputeDispatched.String())
	assert.Equal(t, "render_in_progress", StateRenderInProgress.String())
	assert.Equal(t, "presented", StatePresented.String())
	assert.Equal(t, "unknown", FrameState(42).String())
}
