package renderer

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-osci/engine/model"
	"github.com/Carmen-Shannon/oxy-osci/engine/particle"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/shader"
)

const testComputeSource = `//@oxy:include osci_uniforms
//@oxy:include particle
//@oxy:group 0 0 storage_uniform params osci_uniforms
//@oxy:group 0 1 storage_read src array<particle>
//@oxy:group 0 2 storage_read_write dst array<particle>
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if (i >= params.particle_count) { return; }
    dst[i] = src[i];
}
`

const testDrawSource = `//@oxy:include line
//@oxy:include vertex
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
}
@vertex
fn main_vs(seg: LineInstance, quad: QuadVertex) -> VertexOutput {
    var result: VertexOutput;
    result.position = vec4<f32>(quad.position + seg.pos, 0.0, 1.0);
    return result;
}
@fragment
fn main_fs(v: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

type fixture struct {
	backend  SoftwareRendererBackend
	r        Renderer
	compute  pipeline.Pipeline
	draw     pipeline.Pipeline
	group    bind_group_provider.BindGroupProvider
	mesh     bind_group_provider.BindGroupProvider
	src, dst resource.Handle
	count    int
}

func newFixture(t *testing.T, count int, kernel pipeline.ComputeKernel) *fixture {
	t.Helper()

	sb := NewSoftwareRendererBackend(WithWorkers(2))
	r, err := NewRenderer(BackendTypeSoftware, NewHeadlessSurface(64, 48), WithBackend(sb))
	require.NoError(t, err)

	cs, err := shader.NewShader("test_compute", shader.ShaderTypeCompute, testComputeSource)
	require.NoError(t, err)
	vs, err := shader.NewShader("test_draw_vs", shader.ShaderTypeVertex, testDrawSource)
	require.NoError(t, err)
	fs, err := shader.NewShader("test_draw_fs", shader.ShaderTypeFragment, testDrawSource)
	require.NoError(t, err)

	compute := pipeline.NewPipeline("test_compute", pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(cs),
		pipeline.WithKernel(kernel),
	)
	draw := pipeline.NewPipeline("test_draw", pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fs),
		pipeline.WithVertexLayouts(particle.LineLayout(), model.VertexLayout()),
	)
	require.NoError(t, r.RegisterPipelines(compute, draw))

	seed, err := particle.GenerateSeed(particle.SeedTrace, count)
	require.NoError(t, err)
	size := uint64(count * particle.ParticleSize)
	usage := wgpu.BufferUsageVertex | wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	src, err := r.CreateBuffer("src", size, usage, particle.MarshalParticles(seed))
	require.NoError(t, err)
	dst, err := r.CreateBuffer("dst", size, usage, nil)
	require.NoError(t, err)

	group := bind_group_provider.NewBindGroupProvider("Bind Group 0",
		bind_group_provider.WithBuffer(particle.BindingRead, src),
		bind_group_provider.WithBuffer(particle.BindingWrite, dst),
	)
	require.NoError(t, r.InitBindGroup(group, cs.BindGroupLayoutDescriptor(0), nil, nil))

	quad := model.UnitQuad([4]float32{1, 1, 1, 1})
	require.NoError(t, r.InitMeshBuffers(quad.MeshProvider(), quad.VertexData(), quad.IndexData(), quad.IndexCount()))

	return &fixture{
		backend: sb, r: r, compute: compute, draw: draw,
		group: group, mesh: quad.MeshProvider(),
		src: src, dst: dst, count: count,
	}
}

func (f *fixture) writeUniforms(t *testing.T) {
	t.Helper()
	u := particle.GPUUniforms{ParticleCount: uint32(f.count)}
	require.NoError(t, f.r.WriteBuffers([]bind_group_provider.BufferWrite{
		{Provider: f.group, Binding: particle.BindingUniforms, Data: u.Marshal()},
	}))
}

func (f *fixture) dispatch(t *testing.T, groups uint32) {
	t.Helper()
	require.NoError(t, f.r.BeginComputeFrame())
	require.NoError(t, f.r.DispatchCompute("test_compute", f.group, [3]uint32{groups, 1, 1}))
	require.NoError(t, f.r.EndComputeFrame())
}

func (f *fixture) render(t *testing.T) error {
	t.Helper()
	if err := f.r.BeginFrame(); err != nil {
		return err
	}
	require.NoError(t, f.r.DrawCall("test_draw", f.mesh, uint32(f.count), []resource.Handle{f.dst, f.mesh.VertexBuffer()}, nil))
	require.NoError(t, f.r.EndFrame())
	return f.r.Present()
}

func TestClassifyAcquireError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"outdated", errors.New("wgpu.(*Surface).GetCurrentTexture(): Outdated"), ErrSurfaceOutdated},
		{"timeout", errors.New("surface status Timeout"), ErrSurfaceOutdated},
		{"surface lost", errors.New("surface status Lost"), ErrSurfaceOutdated},
		{"device lost", errors.New("surface status DeviceLost"), ErrDeviceLost},
		{"out of memory", errors.New("surface status OutOfMemory"), ErrDeviceLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyAcquireError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	other := errors.New("something else")
	assert.Same(t, other, classifyAcquireError(other))
	assert.NoError(t, classifyAcquireError(nil))
}

func TestSoftwareComputeCopiesThroughBindGroup(t *testing.T) {
	f := newFixture(t, 100, particle.IdentityKernel)
	f.writeUniforms(t)

	f.dispatch(t, 2)

	assert.Equal(t, f.backend.BufferData(f.src), f.backend.BufferData(f.dst))
	assert.Equal(t, uint64(128), f.backend.InvocationCount())
}

func TestSoftwareComputeDiscardsWritesToReadOnlyBindings(t *testing.T) {
	f := newFixture(t, 4, func(invocation uint32, bindings map[int][]byte) {
		if invocation == 0 {
			bindings[particle.BindingRead][0] ^= 0xFF
			bindings[particle.BindingWrite][0] = 0xAB
		}
	})
	before := f.backend.BufferData(f.src)

	f.writeUniforms(t)
	f.dispatch(t, 1)

	assert.Equal(t, before, f.backend.BufferData(f.src))
	assert.Equal(t, byte(0xAB), f.backend.BufferData(f.dst)[0])
}

func TestSoftwareDispatchOutsideComputeFrame(t *testing.T) {
	f := newFixture(t, 4, particle.IdentityKernel)
	err := f.r.DispatchCompute("test_compute", f.group, [3]uint32{1, 1, 1})
	assert.Error(t, err)

	err = f.r.DispatchCompute("missing", f.group, [3]uint32{1, 1, 1})
	assert.Error(t, err)
}

func TestSoftwareComputePipelineRequiresKernel(t *testing.T) {
	sb := NewSoftwareRendererBackend()
	r, err := NewRenderer(BackendTypeSoftware, NewHeadlessSurface(8, 8), WithBackend(sb))
	require.NoError(t, err)

	cs, err := shader.NewShader("no_kernel", shader.ShaderTypeCompute, testComputeSource)
	require.NoError(t, err)
	err = r.RegisterPipelines(pipeline.NewPipeline("no_kernel", pipeline.PipelineTypeCompute, pipeline.WithComputeShader(cs)))
	assert.Error(t, err)
	assert.Nil(t, r.Pipeline("no_kernel"))
}

func TestSoftwareRenderRecordsDraws(t *testing.T) {
	f := newFixture(t, 10, particle.IdentityKernel)
	f.writeUniforms(t)
	f.dispatch(t, 1)

	require.NoError(t, f.render(t))

	draws := f.backend.Draws()
	require.Len(t, draws, 1)
	d := draws[0]
	assert.Equal(t, "test_draw", d.PipelineKey)
	assert.Equal(t, f.draw.Handle(), d.Pipeline)
	assert.Equal(t, uint32(10), d.InstanceCount)
	assert.Equal(t, 6, d.IndexCount)
	assert.Equal(t, []resource.Handle{f.dst, f.mesh.VertexBuffer()}, d.VertexBuffers)
	assert.Equal(t, f.backend.BufferData(f.dst), d.Snapshots[0])
	assert.Equal(t, 1, f.backend.PresentCount())
}

func TestSoftwareFrameOrdering(t *testing.T) {
	f := newFixture(t, 4, particle.IdentityKernel)

	err := f.r.DrawCall("test_draw", f.mesh, 4, []resource.Handle{f.dst, f.mesh.VertexBuffer()}, nil)
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.ErrorIs(t, f.r.Present(), ErrNoFrame)

	require.NoError(t, f.r.BeginFrame())
	assert.Error(t, f.r.BeginFrame())
	assert.ErrorIs(t, f.r.Present(), ErrNoFrame)
	require.NoError(t, f.r.EndFrame())
	require.NoError(t, f.r.Present())
	assert.Equal(t, 1, f.backend.PresentCount())
}

func TestSoftwareFailNextAcquire(t *testing.T) {
	f := newFixture(t, 4, particle.IdentityKernel)
	f.backend.FailNextAcquire(ErrSurfaceOutdated)

	assert.ErrorIs(t, f.render(t), ErrSurfaceOutdated)
	require.NoError(t, f.render(t))
	assert.Equal(t, 1, f.backend.PresentCount())
}

func TestResizeReportsFormatChangeAndRebuild(t *testing.T) {
	f := newFixture(t, 4, particle.IdentityKernel)
	computeHandle := f.compute.Handle()
	oldDraw := f.draw.Handle()

	changed, err := f.r.Resize(320, 200)
	require.NoError(t, err)
	assert.False(t, changed)
	w, h := f.backend.Size()
	assert.Equal(t, 320, w)
	assert.Equal(t, 200, h)

	f.backend.SetSurfaceFormat(wgpu.TextureFormatRGBA8Unorm)
	changed, err = f.r.Resize(320, 200)
	require.NoError(t, err)
	assert.True(t, changed)

	require.NoError(t, f.r.RebuildPipeline("test_draw"))
	assert.NotEqual(t, oldDraw, f.draw.Handle())
	assert.Equal(t, 1, f.r.Arena().ReleaseCount(oldDraw))
	assert.Equal(t, wgpu.TextureFormatRGBA8Unorm, f.draw.TargetFormat())
	assert.Equal(t, computeHandle, f.compute.Handle())

	assert.Error(t, f.r.RebuildPipeline("test_compute"))
	assert.ErrorIs(t, f.r.RebuildPipeline("missing"), ErrPipelineNotRegistered)
}

func TestZeroSizedSurfaceIsOutdated(t *testing.T) {
	f := newFixture(t, 4, particle.IdentityKernel)
	_, err := f.r.Resize(0, 0)
	assert.ErrorIs(t, err, ErrSurfaceOutdated)
}

func TestDeviceLossAndRelease(t *testing.T) {
	f := newFixture(t, 4, particle.IdentityKernel)
	f.backend.LoseDevice()

	assert.ErrorIs(t, f.r.BeginFrame(), ErrDeviceLost)
	assert.ErrorIs(t, f.r.BeginComputeFrame(), ErrDeviceLost)

	handles := f.r.Arena().Handles()
	require.NotEmpty(t, handles)
	released := f.r.Release()
	assert.Equal(t, len(handles), released)
	for _, h := range handles {
		assert.Equal(t, 1, f.r.Arena().ReleaseCount(h), "handle %d (%s)", h, f.r.Arena().Label(h))
	}

	assert.Equal(t, 0, f.r.Release())
	assert.Empty(t, f.r.Pipelines())
}

func TestNewRendererAppliesOptions(t *testing.T) {
	sb := NewSoftwareRendererBackend()
	black := wgpu.Color{R: 0, G: 0, B: 0, A: 1}
	_, err := NewRenderer(BackendTypeSoftware, NewHeadlessSurface(8, 8),
		WithBackend(sb),
		WithPresentMode(PresentModeUncapped),
		WithClearColor(black),
	)
	require.NoError(t, err)

	assert.Equal(t, PresentModeUncapped, sb.PresentMode())
	assert.Equal(t, black, sb.ClearColor())
	assert.Equal(t, 1, sb.ConfigureCount())
	assert.Equal(t, "software", BackendTypeSoftware.String())
}

func TestNewRendererRejectsZeroSurface(t *testing.T) {
	_, err := NewRenderer(BackendTypeSoftware, NewHeadlessSurface(0, 0))
	assert.ErrorIs(t, err, ErrSurfaceOutdated)
}
