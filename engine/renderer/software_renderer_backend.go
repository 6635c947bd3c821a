package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// DrawRecord is one draw captured by the software backend, with copies of the vertex
// buffer contents as they were when the draw was encoded.
type DrawRecord struct {
	Frame         int
	PipelineKey   string
	Pipeline      resource.Handle
	InstanceCount uint32
	IndexCount    int
	VertexBuffers []resource.Handle
	Snapshots     [][]byte
}

type softwareBuffer struct {
	data  []byte
	usage wgpu.BufferUsage
}

type softwareBindGroup struct {
	entries map[int]wgpu.BufferBindingType
	buffers map[int]resource.Handle
}

type softwareDispatch struct {
	pipeline  pipeline.Pipeline
	bindGroup resource.Handle
	groups    [3]uint32
}

type softwareRendererBackendImpl struct {
	mu    *sync.Mutex
	arena resource.Arena
	pool  worker.DynamicWorkerPool

	format        wgpu.TextureFormat
	pendingFormat *wgpu.TextureFormat
	width, height int
	presentMode   PresentMode
	clearColor    wgpu.Color

	// handles created for each registered pipeline, released when it is registered again
	owned map[string][]resource.Handle

	computeOpen bool
	dispatches  []softwareDispatch

	frameOpen   bool
	frameEnded  bool
	frameDraws  []DrawRecord
	draws       []DrawRecord
	presents    int
	configures  int
	invocations atomic.Uint64

	failAcquire []error
	deviceLost  bool
	released    bool
}

// SoftwareRendererBackend is a RendererBackend that runs compute kernels on the CPU and
// records draws instead of rasterizing them. It exposes the recorded state and hooks for
// injecting surface and device failures.
type SoftwareRendererBackend interface {
	RendererBackend

	// BufferData returns a copy of a buffer's contents.
	//
	// Parameters:
	//   - h: the buffer handle
	//
	// Returns:
	//   - []byte: the contents, or nil if h is not a live buffer
	BufferData(h resource.Handle) []byte

	// Draws returns every draw recorded in submitted frames, in order.
	//
	// Returns:
	//   - []DrawRecord: the recorded draws
	Draws() []DrawRecord

	// PresentCount returns the number of presented frames.
	PresentCount() int

	// ConfigureCount returns the number of ConfigureSurface calls.
	ConfigureCount() int

	// InvocationCount returns the total number of kernel invocations executed, including
	// invocations beyond the particle count that the kernel's guard discards.
	InvocationCount() uint64

	// PresentMode returns the configured present mode.
	PresentMode() PresentMode

	// ClearColor returns the configured clear color.
	ClearColor() wgpu.Color

	// Size returns the configured surface size.
	Size() (int, int)

	// FailNextAcquire makes the next BeginFrame return err. Calls queue up.
	//
	// Parameters:
	//   - err: the error BeginFrame returns
	FailNextAcquire(err error)

	// LoseDevice makes every later GPU operation return ErrDeviceLost.
	LoseDevice()

	// SetSurfaceFormat changes the format the next ConfigureSurface negotiates.
	//
	// Parameters:
	//   - format: the format to negotiate
	SetSurfaceFormat(format wgpu.TextureFormat)
}

// SoftwareBackendOption is a functional option applied by NewSoftwareRendererBackend.
type SoftwareBackendOption func(*softwareRendererBackendImpl)

// WithWorkers sets the number of pool workers executing workgroups. Values below 1 select
// runtime.NumCPU.
//
// Parameters:
//   - workers: the worker count
//
// Returns:
//   - SoftwareBackendOption: a function that sets the worker count
func WithWorkers(workers int) SoftwareBackendOption {
	return func(b *softwareRendererBackendImpl) {
		if workers < 1 {
			workers = runtime.NumCPU()
		}
		b.pool = worker.NewDynamicWorkerPool(workers, 256, 1*time.Second)
	}
}

var _ SoftwareRendererBackend = &softwareRendererBackendImpl{}

// NewSoftwareRendererBackend creates a software backend.
//
// Parameters:
//   - options: variadic list of SoftwareBackendOption functions
//
// Returns:
//   - SoftwareRendererBackend: the backend
func NewSoftwareRendererBackend(options ...SoftwareBackendOption) SoftwareRendererBackend {
	b := &softwareRendererBackendImpl{
		mu:          &sync.Mutex{},
		arena:       resource.NewArena(),
		format:      wgpu.TextureFormatBGRA8Unorm,
		presentMode: PresentModeVSync,
		clearColor:  DefaultClearColor,
		owned:       make(map[string][]resource.Handle),
	}
	for _, opt := range options {
		opt(b)
	}
	if b.pool == nil {
		b.pool = worker.NewDynamicWorkerPool(runtime.NumCPU(), 256, 1*time.Second)
	}
	return b
}

func (b *softwareRendererBackendImpl) Type() RendererBackendType {
	return BackendTypeSoftware
}

func (b *softwareRendererBackendImpl) Arena() resource.Arena {
	return b.arena
}

func (b *softwareRendererBackendImpl) SurfaceFormat() wgpu.TextureFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format
}

func (b *softwareRendererBackendImpl) ConfigureSurface(width, height int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return false, err
	}
	if width <= 0 || height <= 0 {
		return false, fmt.Errorf("%w: zero-sized surface %dx%d", ErrSurfaceOutdated, width, height)
	}
	b.width, b.height = width, height
	b.configures++

	changed := false
	if b.pendingFormat != nil {
		changed = *b.pendingFormat != b.format
		b.format = *b.pendingFormat
		b.pendingFormat = nil
	}
	return changed, nil
}

func (b *softwareRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentMode = mode
}

func (b *softwareRendererBackendImpl) SetClearColor(color wgpu.Color) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearColor = color
}

func (b *softwareRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	computeShader := p.Shader(shader.ShaderTypeCompute)
	if computeShader == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}
	if p.Kernel() == nil {
		return fmt.Errorf("compute pipeline %q has no kernel for the software backend", p.PipelineKey())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	b.releaseOwnedLocked(p.PipelineKey())

	handles := []resource.Handle{
		b.arena.Add(resource.KindShaderModule, computeShader.Key(), computeShader.Source(), nil),
	}
	for _, g := range sortedGroups(computeShader.BindGroupLayoutDescriptors()) {
		handles = append(handles, b.arena.Add(resource.KindBindGroupLayout, fmt.Sprintf("%s group %d", p.PipelineKey(), g), computeShader.BindGroupLayoutDescriptor(g), nil))
	}
	handles = append(handles, b.arena.Add(resource.KindPipelineLayout, p.PipelineKey(), nil, nil))
	h := b.arena.Add(resource.KindComputePipeline, p.PipelineKey()+" Compute Pipeline", p, nil)
	b.owned[p.PipelineKey()] = append(handles, h)
	p.SetHandle(h)
	return nil
}

func (b *softwareRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)
	if vertexShader == nil || fragmentShader == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	b.releaseOwnedLocked(p.PipelineKey())

	handles := []resource.Handle{
		b.arena.Add(resource.KindShaderModule, vertexShader.Key(), vertexShader.Source(), nil),
		b.arena.Add(resource.KindShaderModule, fragmentShader.Key(), fragmentShader.Source(), nil),
	}
	merged := mergeBindGroupLayouts(vertexShader.BindGroupLayoutDescriptors(), fragmentShader.BindGroupLayoutDescriptors())
	for _, g := range sortedGroups(merged) {
		handles = append(handles, b.arena.Add(resource.KindBindGroupLayout, fmt.Sprintf("%s group %d", p.PipelineKey(), g), merged[g], nil))
	}
	handles = append(handles, b.arena.Add(resource.KindPipelineLayout, p.PipelineKey(), nil, nil))
	h := b.arena.Add(resource.KindRenderPipeline, p.PipelineKey()+" Render Pipeline", p, nil)
	b.owned[p.PipelineKey()] = append(handles, h)
	p.SetHandle(h)
	p.SetTargetFormat(b.format)
	return nil
}

func (b *softwareRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (resource.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createBufferLocked(label, size, usage, contents)
}

func (b *softwareRendererBackendImpl) createBufferLocked(label string, size uint64, usage wgpu.BufferUsage, contents []byte) (resource.Handle, error) {
	if err := b.usableLocked(); err != nil {
		return resource.InvalidHandle, err
	}
	if size == 0 {
		return resource.InvalidHandle, fmt.Errorf("buffer %q: zero size", label)
	}
	if uint64(len(contents)) > size {
		return resource.InvalidHandle, fmt.Errorf("buffer %q: %d bytes of contents exceed size %d", label, len(contents), size)
	}
	buf := &softwareBuffer{data: make([]byte, size), usage: usage}
	copy(buf.data, contents)
	return b.arena.Add(resource.KindBuffer, label, buf, nil), nil
}

func (b *softwareRendererBackendImpl) InitMeshBuffers(provider bind_group_provider.BindGroupProvider, vertexData, indexData []byte, indexCount int) error {
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

func (b *softwareRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	if len(descriptor.Entries) == 0 {
		return nil
	}

	if provider.BindGroupLayout() == resource.InvalidHandle {
		provider.SetBindGroupLayout(b.arena.Add(resource.KindBindGroupLayout, provider.Label()+" Layout", descriptor, nil))
	}

	group := &softwareBindGroup{
		entries: make(map[int]wgpu.BufferBindingType, len(descriptor.Entries)),
		buffers: make(map[int]resource.Handle, len(descriptor.Entries)),
	}
	for _, entry := range descriptor.Entries {
		binding := int(entry.Binding)
		required := bufferUsageFor(entry.Buffer.Type)
		if required == 0 {
			return fmt.Errorf("%s: binding %d is not a buffer binding", provider.Label(), binding)
		}

		h := provider.Buffer(binding)
		if h == resource.InvalidHandle {
			size := entry.Buffer.MinBindingSize
			if override, ok := bufferSizeOverrides[binding]; ok {
				size = override
			}
			var err error
			h, err = b.createBufferLocked(provider.Label()+" Buffer", size, required|wgpu.BufferUsageCopyDst|bufferUsageOverrides[binding], nil)
			if err != nil {
				return err
			}
			provider.SetBuffer(binding, h)
		}

		buf, err := b.bufferLocked(h)
		if err != nil {
			return fmt.Errorf("%s: binding %d: %w", provider.Label(), binding, err)
		}
		if buf.usage&required != required {
			return fmt.Errorf("%s: binding %d: buffer %q lacks the usage its binding type requires", provider.Label(), binding, b.arena.Label(h))
		}
		if uint64(len(buf.data)) < entry.Buffer.MinBindingSize {
			return fmt.Errorf("%s: binding %d: buffer of %d bytes is smaller than the minimum binding size %d", provider.Label(), binding, len(buf.data), entry.Buffer.MinBindingSize)
		}
		group.entries[binding] = entry.Buffer.Type
		group.buffers[binding] = h
	}

	provider.SetBindGroup(b.arena.Add(resource.KindBindGroup, provider.Label(), group, nil))
	return nil
}

func (b *softwareRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	for _, w := range writes {
		buf, err := b.bufferLocked(w.Provider.Buffer(w.Binding))
		if err != nil {
			return fmt.Errorf("%s: binding %d: %w", w.Provider.Label(), w.Binding, err)
		}
		if w.Offset+uint64(len(w.Data)) > uint64(len(buf.data)) {
			return fmt.Errorf("%s: binding %d: write of %d bytes at offset %d overflows %d byte buffer", w.Provider.Label(), w.Binding, len(w.Data), w.Offset, len(buf.data))
		}
		copy(buf.data[w.Offset:], w.Data)
	}
	return nil
}

func (b *softwareRendererBackendImpl) BeginComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	b.computeOpen = true
	b.dispatches = b.dispatches[:0]
	return nil
}

func (b *softwareRendererBackendImpl) DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, workGroupCount [3]uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	if !b.computeOpen {
		return errors.New("dispatch outside of a compute frame")
	}
	if kind, ok := b.arena.Kind(p.Handle()); !ok || kind != resource.KindComputePipeline {
		return fmt.Errorf("%q: %w", p.PipelineKey(), ErrPipelineNotRegistered)
	}
	if _, ok := b.arena.Get(provider.BindGroup()); !ok {
		return fmt.Errorf("%s: bind group not initialized", provider.Label())
	}
	b.dispatches = append(b.dispatches, softwareDispatch{pipeline: p, bindGroup: provider.BindGroup(), groups: workGroupCount})
	return nil
}

// EndComputeFrame executes the recorded dispatches in order. Workgroups of one dispatch run
// in parallel on the worker pool and the call returns once all of them finished.
func (b *softwareRendererBackendImpl) EndComputeFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.computeOpen {
		return nil
	}
	b.computeOpen = false
	if err := b.usableLocked(); err != nil {
		return err
	}

	for _, d := range b.dispatches {
		if err := b.runDispatchLocked(d); err != nil {
			return err
		}
	}
	b.dispatches = b.dispatches[:0]
	return nil
}

func (b *softwareRendererBackendImpl) runDispatchLocked(d softwareDispatch) error {
	obj, ok := b.arena.Get(d.bindGroup)
	if !ok {
		return errors.New("bind group released before submission")
	}
	group := obj.(*softwareBindGroup)

	// read_write storage is handed out live; everything else is a copy so stray writes vanish
	bindings := make(map[int][]byte, len(group.buffers))
	for binding, h := range group.buffers {
		buf, err := b.bufferLocked(h)
		if err != nil {
			return fmt.Errorf("binding %d: %w", binding, err)
		}
		if group.entries[binding] == wgpu.BufferBindingTypeStorage {
			bindings[binding] = buf.data
		} else {
			bindings[binding] = append([]byte(nil), buf.data...)
		}
	}

	kernel := d.pipeline.Kernel()
	size := d.pipeline.WorkgroupSize()
	total := d.groups[0] * max(d.groups[1], 1) * max(d.groups[2], 1)

	var wg sync.WaitGroup
	for g := uint32(0); g < total; g++ {
		wg.Add(1)
		base := g * size
		b.pool.SubmitTask(worker.Task{
			ID: int(g),
			Do: func() (any, error) {
				defer wg.Done()
				for local := uint32(0); local < size; local++ {
					kernel(base+local, bindings)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	b.invocations.Add(uint64(total) * uint64(size))
	return nil
}

func (b *softwareRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	if b.frameOpen {
		return errors.New("previous frame surface not yet presented")
	}
	if len(b.failAcquire) > 0 {
		err := b.failAcquire[0]
		b.failAcquire = b.failAcquire[1:]
		return err
	}
	b.frameOpen = true
	b.frameEnded = false
	b.frameDraws = b.frameDraws[:0]
	return nil
}

func (b *softwareRendererBackendImpl) DrawCall(p pipeline.Pipeline, meshProvider bind_group_provider.BindGroupProvider, instanceCount uint32, vertexBuffers []resource.Handle, bindGroups []bind_group_provider.BindGroupProvider) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	if !b.frameOpen || b.frameEnded {
		return ErrNoFrame
	}
	if kind, ok := b.arena.Kind(p.Handle()); !ok || kind != resource.KindRenderPipeline {
		return fmt.Errorf("%q: %w", p.PipelineKey(), ErrPipelineNotRegistered)
	}
	if _, err := b.bufferLocked(meshProvider.IndexBuffer()); err != nil {
		return fmt.Errorf("%s index buffer: %w", meshProvider.Label(), err)
	}
	for i, bg := range bindGroups {
		if _, ok := b.arena.Get(bg.BindGroup()); !ok {
			return fmt.Errorf("bind group %d (%s) not initialized", i, bg.Label())
		}
	}

	record := DrawRecord{
		Frame:         b.presents,
		PipelineKey:   p.PipelineKey(),
		Pipeline:      p.Handle(),
		InstanceCount: instanceCount,
		IndexCount:    meshProvider.IndexCount(),
		VertexBuffers: append([]resource.Handle(nil), vertexBuffers...),
		Snapshots:     make([][]byte, len(vertexBuffers)),
	}
	for slot, h := range vertexBuffers {
		buf, err := b.bufferLocked(h)
		if err != nil {
			return fmt.Errorf("vertex slot %d: %w", slot, err)
		}
		if buf.usage&wgpu.BufferUsageVertex == 0 {
			return fmt.Errorf("vertex slot %d: buffer %q lacks vertex usage", slot, b.arena.Label(h))
		}
		record.Snapshots[slot] = append([]byte(nil), buf.data...)
	}
	b.frameDraws = append(b.frameDraws, record)
	return nil
}

func (b *softwareRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	if !b.frameOpen || b.frameEnded {
		return ErrNoFrame
	}
	b.frameEnded = true
	b.draws = append(b.draws, b.frameDraws...)
	b.frameDraws = b.frameDraws[:0]
	return nil
}

func (b *softwareRendererBackendImpl) Present() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.usableLocked(); err != nil {
		return err
	}
	if !b.frameOpen || !b.frameEnded {
		return ErrNoFrame
	}
	b.frameOpen = false
	b.presents++
	return nil
}

func (b *softwareRendererBackendImpl) Release() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
	b.computeOpen = false
	b.frameOpen = false
	b.dispatches = nil
	return b.arena.ReleaseAll()
}

func (b *softwareRendererBackendImpl) BufferData(h resource.Handle) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, err := b.bufferLocked(h)
	if err != nil {
		return nil
	}
	return append([]byte(nil), buf.data...)
}

func (b *softwareRendererBackendImpl) Draws() []DrawRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DrawRecord(nil), b.draws...)
}

func (b *softwareRendererBackendImpl) PresentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presents
}

func (b *softwareRendererBackendImpl) ConfigureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.configures
}

func (b *softwareRendererBackendImpl) InvocationCount() uint64 {
	return b.invocations.Load()
}

func (b *softwareRendererBackendImpl) PresentMode() PresentMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presentMode
}

func (b *softwareRendererBackendImpl) ClearColor() wgpu.Color {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clearColor
}

func (b *softwareRendererBackendImpl) Size() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

func (b *softwareRendererBackendImpl) FailNextAcquire(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAcquire = append(b.failAcquire, err)
}

func (b *softwareRendererBackendImpl) LoseDevice() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deviceLost = true
}

func (b *softwareRendererBackendImpl) SetSurfaceFormat(format wgpu.TextureFormat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingFormat = &format
}

func (b *softwareRendererBackendImpl) usableLocked() error {
	if b.deviceLost {
		return ErrDeviceLost
	}
	if b.released {
		return errors.New("backend released")
	}
	return nil
}

func (b *softwareRendererBackendImpl) bufferLocked(h resource.Handle) (*softwareBuffer, error) {
	obj, ok := b.arena.Get(h)
	if !ok {
		return nil, fmt.Errorf("buffer handle %d is not live", h)
	}
	buf, ok := obj.(*softwareBuffer)
	if !ok {
		return nil, fmt.Errorf("handle %d is not a buffer", h)
	}
	return buf, nil
}

func (b *softwareRendererBackendImpl) releaseOwnedLocked(key string) {
	for _, h := range b.owned[key] {
		b.arena.Release(h)
	}
	delete(b.owned, key)
}
