package pipeline

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/shader"
)

const computeSource = `//@oxy:include osci_uniforms
//@oxy:group 0 0 storage_uniform params osci_uniforms
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {}
`

const drawSource = `//@oxy:include line
//@oxy:include vertex
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
}
@vertex
fn main_vs(seg: LineInstance, quad: QuadVertex) -> VertexOutput {
    var result: VertexOutput;
    return result;
}
`

func TestComputePipeline(t *testing.T) {
	cs, err := shader.NewShader("compute", shader.ShaderTypeCompute, computeSource)
	require.NoError(t, err)

	calls := 0
	p := NewPipeline("compute", PipelineTypeCompute,
		WithComputeShader(cs),
		WithKernel(func(uint32, map[int][]byte) { calls++ }),
	)

	assert.Equal(t, PipelineTypeCompute, p.Type())
	assert.Equal(t, uint32(64), p.WorkgroupSize())
	assert.Nil(t, p.VertexLayouts())
	assert.Equal(t, cs, p.Shader(shader.ShaderTypeCompute))
	assert.Nil(t, p.Shader(shader.ShaderTypeVertex))

	require.NotNil(t, p.Kernel())
	p.Kernel()(0, nil)
	assert.Equal(t, 1, calls)

	assert.Equal(t, resource.InvalidHandle, p.Handle())
	p.SetHandle(resource.Handle(3))
	assert.Equal(t, resource.Handle(3), p.Handle())
}

func TestRenderPipelineLayouts(t *testing.T) {
	vs, err := shader.NewShader("draw", shader.ShaderTypeVertex, drawSource)
	require.NoError(t, err)

	parsed := NewPipeline("draw", PipelineTypeRender, WithVertexShader(vs))
	layouts := parsed.VertexLayouts()
	require.Len(t, layouts, 2)
	assert.Equal(t, wgpu.VertexStepModeVertex, layouts[0].StepMode)
	assert.Equal(t, uint32(0), parsed.WorkgroupSize())

	instanced := wgpu.VertexBufferLayout{ArrayStride: 16, StepMode: wgpu.VertexStepModeInstance}
	explicit := NewPipeline("draw", PipelineTypeRender, WithVertexShader(vs), WithVertexLayouts(instanced, layouts[1]))
	require.Len(t, explicit.VertexLayouts(), 2)
	assert.Equal(t, wgpu.VertexStepModeInstance, explicit.VertexLayouts()[0].StepMode)

	assert.Nil(t, explicit.BlendState())
	blended := NewPipeline("draw", PipelineTypeRender, WithBlendEnabled(true))
	assert.NotNil(t, blended.BlendState())
	assert.Equal(t, wgpu.PrimitiveTopologyTriangleList, blended.Topology())

	explicit.SetTargetFormat(wgpu.TextureFormatBGRA8Unorm)
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, explicit.TargetFormat())
}
