package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	arena resource.Arena
	// handles created for each registered pipeline, released when it is registered again
	owned map[string][]resource.Handle

	surfaceFormat        wgpu.TextureFormat
	surfaceConfigured    bool
	renderPassDescriptor *wgpu.RenderPassDescriptor

	presentMode wgpu.PresentMode // defaults to PresentModeFifo (VSync)
	clearColor  wgpu.Color

	// Frame state for the render pass
	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
	frameEnded   bool

	// Compute frame state for batching all compute dispatches into a single GPU submission
	computeFrameEncoder *wgpu.CommandEncoder

	released bool
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool) (RendererBackend, error) {
	if surfaceDescriptor == nil {
		return nil, errors.New("wgpu backend requires a surface descriptor")
	}

	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		arena:       resource.NewArena(),
		owned:       make(map[string][]resource.Handle),
		presentMode: wgpu.PresentModeFifo,
		clearColor:  DefaultClearColor,
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		w.surface.Release()
		w.instance.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
	})
	if err != nil {
		w.adapter.Release()
		w.surface.Release()
		w.instance.Release()
		return nil, fmt.Errorf("%w: failed to request device: %w", ErrDeviceLost, err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w, nil
}

func (b *wgpuRendererBackendImpl) Type() RendererBackendType {
	return BackendTypeWGPU
}

func (b *wgpuRendererBackendImpl) Arena() resource.Arena {
	return b.arena
}

func (b *wgpuRendererBackendImpl) SurfaceFormat() wgpu.TextureFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surfaceFormat
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return false, errors.New("backend released")
	}
	// A minimized window reports a zero size and cannot be configured until it is restored.
	if width <= 0 || height <= 0 {
		return false, fmt.Errorf("%w: zero-sized surface %dx%d", ErrSurfaceOutdated, width, height)
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		return false, errors.New("surface reports no supported formats")
	}
	format := capabilities.Formats[0]
	changed := b.surfaceConfigured && format != b.surfaceFormat
	b.surfaceFormat = format
	b.surfaceConfigured = true

	alphaMode := wgpu.CompositeAlphaModeAuto
	if len(capabilities.AlphaModes) > 0 {
		alphaMode = capabilities.AlphaModes[0]
	}
	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   alphaMode,
	})

	b.renderPassDescriptor = &wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       nil, // set in BeginFrame
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: b.clearColor,
			},
		},
	}
	return changed, nil
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeUncapped:
		b.presentMode = wgpu.PresentModeImmediate
	case PresentModeVSync:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeFifo
	}
}

func (b *wgpuRendererBackendImpl) SetClearColor(color wgpu.Color) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clearColor = color
	if b.renderPassDescriptor != nil {
		b.renderPassDescriptor.ColorAttachments[0].ClearValue = color
	}
}

func (b *wgpuRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.computeFrameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return nil
	}

	commandBuffer, err := b.computeFrameEncoder.Finish(nil)
	if err != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
		return fmt.Errorf("failed to finish compute frame: %w", err)
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.computeFrameEncoder.Release()
	b.computeFrameEncoder = nil
	return nil
}

func (b *wgpuRendererBackendImpl) DispatchCompute(
	p pipeline.Pipeline,
	computeProvider bind_group_provider.BindGroupProvider,
	workGroupCount [3]uint32,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.computeFrameEncoder == nil {
		return errors.New("dispatch outside of a compute frame")
	}

	computePipeline, err := lookup[*wgpu.ComputePipeline](b.arena, p.Handle())
	if err != nil {
		return fmt.Errorf("%q: %w", p.PipelineKey(), ErrPipelineNotRegistered)
	}
	bindGroup, err := lookup[*wgpu.BindGroup](b.arena, computeProvider.BindGroup())
	if err != nil {
		return fmt.Errorf("%s: %w", computeProvider.Label(), err)
	}

	pass := b.computeFrameEncoder.BeginComputePass(nil)
	pass.SetPipeline(computePipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workGroupCount[0], workGroupCount[1], workGroupCount[2])
	pass.End()
	pass.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeVertex) == nil || p.Shader(shader.ShaderTypeFragment) == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)
	var handles []resource.Handle
	fail := func(err error) error {
		for i := len(handles) - 1; i >= 0; i-- {
			b.arena.Release(handles[i])
		}
		return err
	}

	vs, err := b.device.CreateShaderModule(vertexShader.Module())
	if err != nil {
		return fail(err)
	}
	handles = append(handles, b.arena.Add(resource.KindShaderModule, vertexShader.Key(), vs, vs.Release))
	fs, err := b.device.CreateShaderModule(fragmentShader.Module())
	if err != nil {
		return fail(err)
	}
	handles = append(handles, b.arena.Add(resource.KindShaderModule, fragmentShader.Key(), fs, fs.Release))

	merged := mergeBindGroupLayouts(vertexShader.BindGroupLayoutDescriptors(), fragmentShader.BindGroupLayoutDescriptors())
	bindGroupLayouts, layoutHandles, err := b.createBindGroupLayouts(p.PipelineKey(), merged)
	handles = append(handles, layoutHandles...)
	if err != nil {
		return fail(err)
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return fail(err)
	}
	handles = append(handles, b.arena.Add(resource.KindPipelineLayout, p.PipelineKey(), pipelineLayout, pipelineLayout.Release))

	colorTarget := wgpu.ColorTargetState{
		Format:    b.surfaceFormat,
		WriteMask: p.WriteMask(),
	}
	if p.BlendEnabled() {
		colorTarget.Blend = p.BlendState()
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    p.VertexLayouts(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets:    []wgpu.ColorTargetState{colorTarget},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.Topology(),
			FrontFace: p.FrontFace(),
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fail(err)
	}
	h := b.arena.Add(resource.KindRenderPipeline, p.PipelineKey()+" Render Pipeline", created, created.Release)

	b.releaseOwnedLocked(p.PipelineKey())
	b.owned[p.PipelineKey()] = append(handles, h)
	p.SetHandle(h)
	p.SetTargetFormat(b.surfaceFormat)
	return nil
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeCompute) == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	computeShader := p.Shader(shader.ShaderTypeCompute)
	var handles []resource.Handle
	fail := func(err error) error {
		for i := len(handles) - 1; i >= 0; i-- {
			b.arena.Release(handles[i])
		}
		return err
	}

	s, err := b.device.CreateShaderModule(computeShader.Module())
	if err != nil {
		return fail(err)
	}
	handles = append(handles, b.arena.Add(resource.KindShaderModule, computeShader.Key(), s, s.Release))

	bindGroupLayouts, layoutHandles, err := b.createBindGroupLayouts(p.PipelineKey(), computeShader.BindGroupLayoutDescriptors())
	handles = append(handles, layoutHandles...)
	if err != nil {
		return fail(err)
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return fail(err)
	}
	handles = append(handles, b.arena.Add(resource.KindPipelineLayout, p.PipelineKey(), layout, layout.Release))

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		return fail(err)
	}
	h := b.arena.Add(resource.KindComputePipeline, p.PipelineKey()+" Compute Pipeline", created, created.Release)

	b.releaseOwnedLocked(p.PipelineKey())
	b.owned[p.PipelineKey()] = append(handles, h)
	p.SetHandle(h)
	return nil
}

// createBindGroupLayouts creates one layout per group index, filling gaps with empty layouts
// so the slice index matches the @group number.
func (b *wgpuRendererBackendImpl) createBindGroupLayouts(key string, descriptors map[int]wgpu.BindGroupLayoutDescriptor) ([]*wgpu.BindGroupLayout, []resource.Handle, error) {
	maxGroup := -1
	for g := range descriptors {
		maxGroup = max(maxGroup, g)
	}
	layouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	handles := make([]resource.Handle, 0, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		desc := descriptors[g]
		desc.Label = fmt.Sprintf("%s group %d", key, g)
		layout, err := b.device.CreateBindGroupLayout(&desc)
		if err != nil {
			return nil, handles, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		layouts[g] = layout
		handles = append(handles, b.arena.Add(resource.KindBindGroupLayout, desc.Label, layout, layout.Release))
	}
	return layouts, handles, nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (resource.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createBufferLocked(label, size, usage, contents)
}

func (b *wgpuRendererBackendImpl) createBufferLocked(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (resource.Handle, error) {
	if uint64(len(contents)) > size {
		return resource.InvalidHandle, fmt.Errorf("buffer %q: %d bytes of contents exceed size %d", label, len(contents), size)
	}
	if len(contents) > 0 {
		usage |= wgpu.BufferUsageCopyDst
	}
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            usage,
		MappedAtCreation: false,
	})
	if err != nil {
		return resource.InvalidHandle, fmt.Errorf("buffer %q: %w", label, err)
	}
	if len(contents) > 0 {
		b.queue.WriteBuffer(buf, 0, contents)
	}
	return b.arena.Add(resource.KindBuffer, label, buf, buf.Release), nil
}

func (b *wgpuRendererBackendImpl) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(vertexData) > 0 {
		h, err := b.createBufferLocked(provider.Label(), uint64(len(vertexData)), wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, vertexData)
		if err != nil {
			return err
		}
		provider.SetVertexBuffer(h)
	}

	if len(indexData) > 0 {
		h, err := b.createBufferLocked(provider.Label()+" Index Buffer", uint64(len(indexData)), wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, indexData)
		if err != nil {
			return err
		}
		provider.SetIndexBuffer(h)
	}

	provider.SetIndexCount(indexCount)

	return nil
}

func (b *wgpuRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(descriptor.Entries) == 0 {
		return nil
	}

	layout, err := lookup[*wgpu.BindGroupLayout](b.arena, provider.BindGroupLayout())
	if err != nil {
		descriptor.Label = provider.Label() + " Layout"
		layout, err = b.device.CreateBindGroupLayout(&descriptor)
		if err != nil {
			return err
		}
		provider.SetBindGroupLayout(b.arena.Add(resource.KindBindGroupLayout, descriptor.Label, layout, layout.Release))
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(descriptor.Entries))
	for i, entry := range descriptor.Entries {
		binding := int(entry.Binding)

		usage := bufferUsageFor(entry.Buffer.Type)
		if usage == 0 {
			return fmt.Errorf("%s: binding %d is not a buffer binding", provider.Label(), binding)
		}
		usage |= wgpu.BufferUsageCopyDst | bufferUsageOverrides[binding]

		h := provider.Buffer(binding)
		if h == resource.InvalidHandle {
			bufSize := entry.Buffer.MinBindingSize
			if overrideSize, ok := bufferSizeOverrides[binding]; ok {
				bufSize = overrideSize
			}
			h, err = b.createBufferLocked(provider.Label()+" Buffer", bufSize, usage, nil)
			if err != nil {
				return err
			}
			provider.SetBuffer(binding, h)
		}
		buf, err := lookup[*wgpu.Buffer](b.arena, h)
		if err != nil {
			return fmt.Errorf("%s: binding %d: %w", provider.Label(), binding, err)
		}
		bindGroupEntries[i] = wgpu.BindGroupEntry{
			Binding: entry.Binding,
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label(),
		Layout:  layout,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return err
	}
	provider.SetBindGroup(b.arena.Add(resource.KindBindGroup, provider.Label(), bindGroup, bindGroup.Release))

	return nil
}

func (b *wgpuRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		buf, err := lookup[*wgpu.Buffer](b.arena, w.Provider.Buffer(w.Binding))
		if err != nil {
			return fmt.Errorf("%s: binding %d: %w", w.Provider.Label(), w.Binding, err)
		}
		b.queue.WriteBuffer(buf, w.Offset, w.Data)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface != nil {
		return fmt.Errorf("previous frame surface not yet presented")
	}
	if b.renderPassDescriptor == nil {
		return fmt.Errorf("%w: surface not configured", ErrSurfaceOutdated)
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return classifyAcquireError(err)
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	b.renderPassDescriptor.ColorAttachments[0].View = view
	pass := encoder.BeginRenderPass(b.renderPassDescriptor)

	b.frameEncoder = encoder
	b.framePass = pass
	b.frameSurface = surfaceTexture
	b.frameView = view
	b.frameEnded = false

	return nil
}

func (b *wgpuRendererBackendImpl) DrawCall(
	p pipeline.Pipeline,
	meshProvider bind_group_provider.BindGroupProvider,
	instanceCount uint32,
	vertexBuffers []resource.Handle,
	bindGroups []bind_group_provider.BindGroupProvider,
) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return ErrNoFrame
	}

	renderPipeline, err := lookup[*wgpu.RenderPipeline](b.arena, p.Handle())
	if err != nil {
		return fmt.Errorf("%q: %w", p.PipelineKey(), ErrPipelineNotRegistered)
	}
	indexBuffer, err := lookup[*wgpu.Buffer](b.arena, meshProvider.IndexBuffer())
	if err != nil {
		return fmt.Errorf("%s index buffer: %w", meshProvider.Label(), err)
	}

	b.framePass.SetPipeline(renderPipeline)

	for i, bg := range bindGroups {
		group, err := lookup[*wgpu.BindGroup](b.arena, bg.BindGroup())
		if err != nil {
			return fmt.Errorf("bind group %d (%s): %w", i, bg.Label(), err)
		}
		b.framePass.SetBindGroup(uint32(i), group, nil)
	}

	for slot, h := range vertexBuffers {
		buf, err := lookup[*wgpu.Buffer](b.arena, h)
		if err != nil {
			return fmt.Errorf("vertex slot %d: %w", slot, err)
		}
		b.framePass.SetVertexBuffer(uint32(slot), buf, 0, wgpu.WholeSize)
	}
	b.framePass.SetIndexBuffer(indexBuffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	b.framePass.DrawIndexed(uint32(meshProvider.IndexCount()), instanceCount, 0, 0, 0)
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.framePass == nil {
		return ErrNoFrame
	}

	b.framePass.End()
	b.framePass.Release()
	b.framePass = nil

	commandBuffer, err := b.frameEncoder.Finish(nil)
	if err != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
		b.releaseFrameTextureLocked()
		return fmt.Errorf("failed to finish render frame: %w", err)
	}

	b.queue.Submit(commandBuffer)

	commandBuffer.Release()
	b.frameEncoder.Release()
	b.frameEncoder = nil
	b.frameEnded = true
	return nil
}

func (b *wgpuRendererBackendImpl) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface == nil || !b.frameEnded {
		return ErrNoFrame
	}

	b.surface.Present()
	b.releaseFrameTextureLocked()
	b.frameEnded = false
	return nil
}

func (b *wgpuRendererBackendImpl) Release() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return 0
	}
	b.released = true

	if b.framePass != nil {
		b.framePass.End()
		b.framePass.Release()
		b.framePass = nil
	}
	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	if b.computeFrameEncoder != nil {
		b.computeFrameEncoder.Release()
		b.computeFrameEncoder = nil
	}
	b.releaseFrameTextureLocked()

	n := b.arena.ReleaseAll()
	b.owned = make(map[string][]resource.Handle)

	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.surface.Release()
	b.instance.Release()
	return n
}

func (b *wgpuRendererBackendImpl) releaseFrameTextureLocked() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackendImpl) releaseOwnedLocked(key string) {
	for _, h := range b.owned[key] {
		b.arena.Release(h)
	}
	delete(b.owned, key)
}

// lookup resolves a handle to a live backend object of type T.
func lookup[T any](arena resource.Arena, h resource.Handle) (T, error) {
	var zero T
	obj, ok := arena.Get(h)
	if !ok {
		return zero, fmt.Errorf("handle %d is not live", h)
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("handle %d holds %T", h, obj)
	}
	return typed, nil
}
