package renderer

import (
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeSoftware selects the CPU backend. Compute programs run as Go kernels and
	// draws are recorded instead of rasterized. No display or adapter is required.
	BackendTypeSoftware
)

// String returns the config name of the backend type.
func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeSoftware:
		return "software"
	default:
		return "unknown"
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing. This is the default.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// DefaultClearColor is the color the render pass clears the surface to.
var DefaultClearColor = wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0}

// Surface is the display target a Renderer presents to. window.Window satisfies it.
type Surface interface {
	// SurfaceDescriptor returns the platform-specific descriptor used to create a WebGPU
	// surface. Backends that never present to a display may ignore it.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Width returns the current surface width in pixels.
	Width() int

	// Height returns the current surface height in pixels.
	Height() int
}

type headlessSurface struct {
	width, height int
}

// NewHeadlessSurface returns a Surface with a fixed size and no platform descriptor,
// for backends that do not present to a display.
//
// Parameters:
//   - width: the surface width in pixels
//   - height: the surface height in pixels
//
// Returns:
//   - Surface: the headless surface
func NewHeadlessSurface(width, height int) Surface {
	return &headlessSurface{width: width, height: height}
}

func (s *headlessSurface) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return nil }
func (s *headlessSurface) Width() int                                 { return s.width }
func (s *headlessSurface) Height() int                                { return s.height }

// RendererBackend is the API-specific half of the Renderer. Every object it creates is
// registered in its Arena and handed back to callers as a resource.Handle.
type RendererBackend interface {
	// Type returns the backend type.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	Type() RendererBackendType

	// Arena returns the resource arena that owns every object this backend created.
	//
	// Returns:
	//   - resource.Arena: the arena
	Arena() resource.Arena

	// SurfaceFormat returns the color format negotiated with the surface by the last
	// ConfigureSurface call.
	//
	// Returns:
	//   - wgpu.TextureFormat: the surface format
	SurfaceFormat() wgpu.TextureFormat

	// ConfigureSurface (re)configures the surface for a new size. This is required when the
	// surface size changes or after the surface reports itself outdated.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - bool: true if the negotiated surface format differs from the previous one
	//   - error: an error if the surface could not be configured
	ConfigureSurface(width, height int) (bool, error)

	// SetPresentMode sets the surface present mode. It takes effect on the next ConfigureSurface.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// SetClearColor sets the color the render pass clears to.
	//
	// Parameters:
	//   - color: the clear color
	SetClearColor(color wgpu.Color)

	// RegisterComputePipeline creates the shader module, layouts and compute pipeline
	// described by p and stores the pipeline handle on it.
	//
	// Parameters:
	//   - p: the compute pipeline description
	//
	// Returns:
	//   - error: an error if the pipeline could not be created
	RegisterComputePipeline(p pipeline.Pipeline) error

	// RegisterRenderPipeline creates the shader modules, layouts and render pipeline
	// described by p against the current surface format and stores the pipeline handle on it.
	// Registering a pipeline again releases the objects of the previous registration.
	//
	// Parameters:
	//   - p: the render pipeline description
	//
	// Returns:
	//   - error: an error if the pipeline could not be created
	RegisterRenderPipeline(p pipeline.Pipeline) error

	// CreateBuffer creates a buffer, optionally filled with initial contents.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the buffer size in bytes
	//   - usage: the buffer usage flags
	//   - contents: initial data written at offset 0, may be nil
	//
	// Returns:
	//   - resource.Handle: the buffer handle
	//   - error: an error if creation fails or contents exceed size
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (resource.Handle, error)

	// InitMeshBuffers creates vertex and index buffers from raw data and stores them on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the buffers on
	//   - vertexData: the raw vertex bytes
	//   - indexData: the raw uint32 index bytes
	//   - indexCount: the number of indices
	//
	// Returns:
	//   - error: an error if buffer creation fails
	InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error

	// InitBindGroup creates any missing buffers and the bind group described by descriptor,
	// and stores them on the provider. Buffers already set on the provider are reused.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to initialize
	//   - descriptor: the bind group layout descriptor
	//   - bufferUsageOverrides: usage flags ORed into the derived usage, keyed by binding (nil safe)
	//   - bufferSizeOverrides: sizes used instead of MinBindingSize, keyed by binding (nil safe)
	//
	// Returns:
	//   - error: an error if creation fails
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// WriteBuffers queues buffer writes. Writes become visible to the next submission.
	//
	// Parameters:
	//   - writes: the writes to apply
	//
	// Returns:
	//   - error: an error if a write targets a missing buffer or overflows it
	WriteBuffers(writes []bind_group_provider.BufferWrite) error

	// BeginComputeFrame starts batching compute dispatches into a single submission.
	//
	// Returns:
	//   - error: an error if the command encoder could not be created
	BeginComputeFrame() error

	// DispatchCompute encodes one compute pass in the current compute frame.
	//
	// Parameters:
	//   - p: the registered compute pipeline
	//   - provider: the BindGroupProvider whose bind group is set at group 0
	//   - workGroupCount: the workgroup counts in x, y and z
	//
	// Returns:
	//   - error: an error if no compute frame is open or the pipeline is not registered
	DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// EndComputeFrame finishes the compute frame and submits it. Work submitted here is
	// ordered before any later render submission on the same queue.
	//
	// Returns:
	//   - error: an error if submission fails
	EndComputeFrame() error

	// BeginFrame acquires the surface texture and begins the render pass.
	//
	// Returns:
	//   - error: ErrSurfaceOutdated if the surface must be reconfigured, ErrDeviceLost if the
	//     device is gone, or another acquisition error
	BeginFrame() error

	// DrawCall encodes one instanced indexed draw in the current render pass.
	//
	// Parameters:
	//   - p: the registered render pipeline
	//   - meshProvider: the provider holding the index buffer and index count
	//   - instanceCount: the number of instances to draw
	//   - vertexBuffers: vertex buffer handles in slot order
	//   - bindGroups: providers whose bind groups are set at groups 0..n-1
	//
	// Returns:
	//   - error: an error if no frame is open or a handle is invalid
	DrawCall(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, vertexBuffers []resource.Handle, bindGroups []bind_group_provider.BindGroupProvider) error

	// EndFrame ends the render pass and submits it. It does not present.
	//
	// Returns:
	//   - error: an error if submission fails
	EndFrame() error

	// Present presents the acquired surface texture and releases it.
	//
	// Returns:
	//   - error: an error if presentation fails
	Present() error

	// Release waits for in-flight work and releases every object in the arena.
	//
	// Returns:
	//   - int: the number of objects released by this call
	Release() int
}
