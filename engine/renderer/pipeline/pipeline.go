package pipeline

import (
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a render pipeline with vertex and fragment shader entry points.
	PipelineTypeRender
)

// ComputeKernel is the CPU form of a compute program. It runs a single invocation against
// buffer contents keyed by binding index. Backends without a GPU execute it per invocation.
type ComputeKernel func(invocation uint32, bindings map[int][]byte)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineType PipelineType
	pipelineKey  string

	// the following shader references are required to be set before registering a pipeline.

	vertexShader, fragmentShader, computeShader shader.Shader

	// handle addresses the backend pipeline object in the renderer's arena, InvalidHandle until registered
	handle resource.Handle
	// targetFormat is the color format the render pipeline was built against
	targetFormat wgpu.TextureFormat

	// vertexLayouts overrides the layouts parsed from the vertex shader, in slot order
	vertexLayouts []wgpu.VertexBufferLayout
	kernel        ComputeKernel

	// The following properties only apply to render pipelines.

	blendEnabled bool
	cullMode     wgpu.CullMode
	topology     wgpu.PrimitiveTopology
	frontFace    wgpu.FrontFace
	writeMask    wgpu.ColorWriteMask
	blendState   *wgpu.BlendState
}

// Pipeline defines the interface for a GPU pipeline, encapsulating either a render pipeline
// (vertex + fragment shaders) or a compute pipeline (compute shader). The backend object it
// describes lives in the renderer's resource arena and is addressed through Handle.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// Handle returns the arena handle of the backend pipeline object.
	//
	// Returns:
	//   - resource.Handle: the handle, or resource.InvalidHandle before registration
	Handle() resource.Handle

	// VertexLayouts returns the vertex buffer layouts in slot order. Explicit layouts set
	// with WithVertexLayouts take precedence over the layouts parsed from the vertex shader.
	//
	// Returns:
	//   - []wgpu.VertexBufferLayout: the layouts, nil for compute pipelines
	VertexLayouts() []wgpu.VertexBufferLayout

	// Kernel returns the CPU kernel of a compute pipeline, or nil.
	//
	// Returns:
	//   - ComputeKernel: the kernel
	Kernel() ComputeKernel

	// WorkgroupSize returns the x dimension of the compute shader's workgroup size, or 0
	// for render pipelines.
	//
	// Returns:
	//   - uint32: the number of invocations per workgroup along x
	WorkgroupSize() uint32

	// TargetFormat returns the color target format the render pipeline was last built with.
	//
	// Returns:
	//   - wgpu.TextureFormat: the target format
	TargetFormat() wgpu.TextureFormat

	BlendEnabled() bool

	CullMode() wgpu.CullMode

	Topology() wgpu.PrimitiveTopology

	FrontFace() wgpu.FrontFace

	WriteMask() wgpu.ColorWriteMask

	// BlendState returns the blend state configured for this pipeline.
	//
	// Returns:
	//   - *wgpu.BlendState: the blend state, or nil if blending is not enabled
	BlendState() *wgpu.BlendState

	// SetHandle records the arena handle of the backend pipeline object.
	//
	// Parameters:
	//   - h: the pipeline handle
	SetHandle(h resource.Handle)

	// SetTargetFormat records the color target format used to build the render pipeline.
	//
	// Parameters:
	//   - format: the surface format
	SetTargetFormat(format wgpu.TextureFormat)
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:  pipelineKey,
		pipelineType: pipelineType,
		cullMode:     wgpu.CullModeNone,
		topology:     wgpu.PrimitiveTopologyTriangleList,
		frontFace:    wgpu.FrontFaceCCW,
		writeMask:    wgpu.ColorWriteMaskAll,
		blendState: &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Handle() resource.Handle {
	return p.handle
}

func (p *pipeline) SetHandle(h resource.Handle) {
	p.handle = h
}

func (p *pipeline) TargetFormat() wgpu.TextureFormat {
	return p.targetFormat
}

func (p *pipeline) SetTargetFormat(format wgpu.TextureFormat) {
	p.targetFormat = format
}

func (p *pipeline) VertexLayouts() []wgpu.VertexBufferLayout {
	if p.pipelineType != PipelineTypeRender {
		return nil
	}
	if p.vertexLayouts != nil {
		return p.vertexLayouts
	}
	if p.vertexShader == nil {
		return nil
	}
	return p.vertexShader.VertexLayouts()
}

func (p *pipeline) Kernel() ComputeKernel {
	return p.kernel
}

func (p *pipeline) WorkgroupSize() uint32 {
	if p.pipelineType != PipelineTypeCompute || p.computeShader == nil {
		return 0
	}
	return p.computeShader.WorkgroupSize()[0]
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) CullMode() wgpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() wgpu.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) FrontFace() wgpu.FrontFace {
	return p.frontFace
}

func (p *pipeline) WriteMask() wgpu.ColorWriteMask {
	return p.writeMask
}

func (p *pipeline) BlendState() *wgpu.BlendState {
	if !p.blendEnabled {
		return nil
	}
	return p.blendState
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}
