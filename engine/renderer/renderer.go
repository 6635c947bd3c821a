package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend
	logger      *zap.Logger

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	computeWorkers       int
	pendingPresentMode   *PresentMode
	pendingClearColor    *wgpu.Color
}

// Renderer defines the interface for the rendering system.
//
// The Renderer is a thin, mutex-guarded front for a RendererBackend. It caches pipelines by key
// so callers dispatch and draw by name, and it forwards buffer and bind group creation to the
// backend, whose arena owns every object created.
type Renderer interface {
	// Backend returns the backend the renderer drives.
	//
	// Returns:
	//   - RendererBackend: the backend
	Backend() RendererBackend

	// Arena returns the resource arena of the backend.
	//
	// Returns:
	//   - resource.Arena: the arena owning every created object
	Arena() resource.Arena

	// SurfaceFormat returns the currently negotiated surface color format.
	//
	// Returns:
	//   - wgpu.TextureFormat: the surface format
	SurfaceFormat() wgpu.TextureFormat

	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines returns a copy of the pipeline cache.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines creates the backend objects for one or more pipelines and caches them
	// by PipelineKey. Pipelines whose keys are already registered are skipped.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// RebuildPipeline re-creates the backend objects of a cached render pipeline against the
	// current surface format. The objects of the previous build are released.
	//
	// Parameters:
	//   - key: the pipeline key
	//
	// Returns:
	//   - error: an error if the pipeline is unknown, not a render pipeline, or creation fails
	RebuildPipeline(key string) error

	// Resize configures the backend surface for a new size.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - bool: true if the negotiated surface format changed
	//   - error: an error if configuration fails
	Resize(width, height int) (bool, error)

	// SetPresentMode sets the surface present mode. A call to Resize is required for the
	// new mode to take effect.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode)

	// CreateBuffer creates a buffer through the backend.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the buffer size in bytes
	//   - usage: the buffer usage flags
	//   - contents: initial contents, may be nil
	//
	// Returns:
	//   - resource.Handle: the buffer handle
	//   - error: an error if creation fails
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (resource.Handle, error)

	// InitMeshBuffers creates vertex and index buffers from raw byte data and stores them
	// on the given BindGroupProvider for later use in draw calls.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created buffers on
	//   - vertexData: the raw vertex data bytes
	//   - indexData: the raw index data bytes
	//   - indexCount: the number of indices, used for draw calls
	//
	// Returns:
	//   - error: an error if buffer creation fails
	InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error

	// InitBindGroup creates missing buffers and a bind group from a layout descriptor and stores
	// them on the given BindGroupProvider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created bind group on
	//   - descriptor: the layout descriptor defining the bind group entries
	//   - bufferUsageOverrides: additional buffer usage flags keyed by binding index (nil safe)
	//   - bufferSizeOverrides: custom buffer sizes keyed by binding index (nil safe)
	//
	// Returns:
	//   - error: an error if bind group creation fails
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// WriteBuffers queues all staged buffer writes.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	//
	// Returns:
	//   - error: an error if a write is invalid
	WriteBuffers(writes []bind_group_provider.BufferWrite) error

	// BeginComputeFrame starts batching compute dispatches. Pair with EndComputeFrame.
	//
	// Returns:
	//   - error: an error if the command encoder could not be created
	BeginComputeFrame() error

	// EndComputeFrame submits the batched compute work.
	//
	// Returns:
	//   - error: an error if submission fails
	EndComputeFrame() error

	// DispatchCompute looks up the cached compute Pipeline by key and encodes a compute pass.
	//
	// Parameters:
	//   - pipelineKey: the key of the cached compute Pipeline
	//   - computeProvider: the BindGroupProvider whose bind group is set on the pass
	//   - workGroupCount: the number of workgroups in x, y and z
	//
	// Returns:
	//   - error: an error if the pipeline is unknown or the dispatch fails
	DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error

	// BeginFrame acquires the surface texture and begins the render pass.
	// Must be paired with EndFrame after all DrawCall invocations within a single frame.
	//
	// Returns:
	//   - error: ErrSurfaceOutdated, ErrDeviceLost, or another acquisition error
	BeginFrame() error

	// DrawCall encodes one instanced indexed draw within the current render pass.
	//
	// Parameters:
	//   - pipelineKey: the key of the cached render Pipeline
	//   - meshProvider: the BindGroupProvider holding the index buffer
	//   - instanceCount: the number of instances to draw
	//   - vertexBuffers: vertex buffer handles in slot order
	//   - bindGroups: BindGroupProviders set at groups 0..n-1
	//
	// Returns:
	//   - error: an error if the pipeline is not found or the draw fails
	DrawCall(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, vertexBuffers []resource.Handle, bindGroups []bind_group_provider.BindGroupProvider) error

	// EndFrame ends the current render pass and submits the command buffer.
	// Does not present the surface; call Present after EndFrame.
	//
	// Returns:
	//   - error: an error if submission fails
	EndFrame() error

	// Present presents the surface and releases the acquired texture.
	//
	// Returns:
	//   - error: an error if presentation fails
	Present() error

	// Release releases every backend object and clears the pipeline cache.
	//
	// Returns:
	//   - int: the number of objects released
	Release() int
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the specified backend type and surface, then
// configures the surface at its current size.
//
// Parameters:
//   - backendType: the type of rendering backend to use
//   - surface: the display surface, typically a window.Window
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the configured Renderer
//   - error: an error if the backend could not be created or the surface configured
func NewRenderer(backendType RendererBackendType, surface Surface, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
		logger:        zap.NewNop(),
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	if r.backend == nil {
		switch backendType {
		case BackendTypeSoftware:
			r.backend = NewSoftwareRendererBackend(WithWorkers(r.computeWorkers))
		case BackendTypeWGPU:
			b, err := newWGPURendererBackend(surface.SurfaceDescriptor(), r.forceFallbackAdapter)
			if err != nil {
				return nil, err
			}
			r.backend = b
		default:
			return nil, fmt.Errorf("unknown renderer backend type %d", backendType)
		}
	}
	r.backendType = r.backend.Type()

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}
	if r.pendingClearColor != nil {
		r.backend.SetClearColor(*r.pendingClearColor)
	}

	if _, err := r.backend.ConfigureSurface(surface.Width(), surface.Height()); err != nil {
		r.backend.Release()
		return nil, fmt.Errorf("failed to configure surface: %w", err)
	}
	r.logger.Info("renderer ready",
		zap.Stringer("backend", r.backendType),
		zap.Int("width", surface.Width()),
		zap.Int("height", surface.Height()),
	)
	return r, nil
}

func (r *renderer) Backend() RendererBackend {
	return r.backend
}

func (r *renderer) Arena() resource.Arena {
	return r.backend.Arena()
}

func (r *renderer) SurfaceFormat() wgpu.TextureFormat {
	return r.backend.SurfaceFormat()
}

func (r *renderer) Resize(width, height int) (bool, error) {
	changed, err := r.backend.ConfigureSurface(width, height)
	if err != nil {
		return false, err
	}
	r.logger.Debug("surface configured", zap.Int("width", width), zap.Int("height", height), zap.Bool("format_changed", changed))
	return changed, nil
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]pipeline.Pipeline, len(r.pipelineCache))
	for k, p := range r.pipelineCache {
		out[k] = p
	}
	return out
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			if err := r.backend.RegisterComputePipeline(p); err != nil {
				return fmt.Errorf("failed to register compute pipeline %q: %w", key, err)
			}
		case pipeline.PipelineTypeRender:
			if err := r.backend.RegisterRenderPipeline(p); err != nil {
				return fmt.Errorf("failed to register render pipeline %q: %w", key, err)
			}
		}
		r.pipelineCache[key] = p
		r.logger.Debug("pipeline registered", zap.String("key", key), zap.Uint32("handle", uint32(p.Handle())))
	}
	return nil
}

func (r *renderer) RebuildPipeline(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, exists := r.pipelineCache[key]
	if !exists {
		return fmt.Errorf("pipeline %q: %w", key, ErrPipelineNotRegistered)
	}
	if p.Type() != pipeline.PipelineTypeRender {
		return fmt.Errorf("pipeline %q is not a render pipeline", key)
	}
	if err := r.backend.RegisterRenderPipeline(p); err != nil {
		return fmt.Errorf("failed to rebuild render pipeline %q: %w", key, err)
	}
	r.logger.Info("render pipeline rebuilt", zap.String("key", key), zap.Uint32("handle", uint32(p.Handle())))
	return nil
}

func (r *renderer) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (resource.Handle, error) {
	return r.backend.CreateBuffer(label, size, usage, contents)
}

func (r *renderer) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	return r.backend.InitMeshBuffers(provider, vertexData, indexData, indexCount)
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	return r.backend.InitBindGroup(provider, descriptor, bufferUsageOverrides, bufferSizeOverrides)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.WriteBuffers(writes)
}

func (r *renderer) BeginComputeFrame() error {
	return r.backend.BeginComputeFrame()
}

func (r *renderer) EndComputeFrame() error {
	return r.backend.EndComputeFrame()
}

func (r *renderer) DispatchCompute(pipelineKey string, computeProvider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	r.mu.Lock()
	p, exists := r.pipelineCache[pipelineKey]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("compute pipeline %q not found in cache", pipelineKey)
	}

	return r.backend.DispatchCompute(p, computeProvider, workGroupCount)
}

func (r *renderer) BeginFrame() error {
	return r.backend.BeginFrame()
}

func (r *renderer) DrawCall(pipelineKey string, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, vertexBuffers []resource.Handle, bindGroups []bind_group_provider.BindGroupProvider) error {
	r.mu.Lock()
	p, exists := r.pipelineCache[pipelineKey]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("render pipeline %q not found in cache", pipelineKey)
	}

	return r.backend.DrawCall(p, meshProvider, instanceCount, vertexBuffers, bindGroups)
}

func (r *renderer) EndFrame() error {
	return r.backend.EndFrame()
}

func (r *renderer) Present() error {
	return r.backend.Present()
}

func (r *renderer) Release() int {
	r.mu.Lock()
	r.pipelineCache = make(map[string]pipeline.Pipeline)
	r.mu.Unlock()
	n := r.backend.Release()
	r.logger.Info("renderer released", zap.Int("objects", n))
	return n
}
