package bind_group_provider

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
)

// BufferWrite uploads Data into the buffer the provider binds at Binding, starting Offset
// bytes into it.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label, also used as the prefix of GPU object labels created for this provider.
	label string

	// The following handles address GPU objects owned by the renderer's arena. They are
	// populated by the Renderer during initialization, not by user creation.

	// bindGroup is the bind group created for this provider, or InvalidHandle if not initialized.
	bindGroup resource.Handle
	// bindGroupLayout is the layout the bind group was created against, or InvalidHandle if not initialized.
	bindGroupLayout resource.Handle
	// buffers holds the buffers bound by this provider, keyed by binding index.
	buffers map[int]resource.Handle

	// The following fields are only used by mesh providers.

	// vertexBuffer is the per-vertex buffer of the mesh, or InvalidHandle.
	vertexBuffer resource.Handle
	// indexBuffer is the uint32 index buffer of the mesh, or InvalidHandle.
	indexBuffer resource.Handle
	// indexCount is the number of indices issued by DrawIndexed for this provider.
	indexCount int
}

// BindGroupProvider describes the GPU resources bound to one bind group, or the vertex and
// index buffers of a mesh. It only stores arena handles; the GPU objects themselves are
// owned and released by the renderer backend's resource.Arena.
//
// Usage pattern:
//  1. Create a provider with a label and, optionally, pre-created buffers per binding
//  2. Call Renderer.InitBindGroup(provider, descriptor, ...) to create the missing buffers and the bind group
//  3. Call Renderer.WriteBuffers to upload data to the provider's buffers
//  4. Pass the provider to DispatchCompute or DrawCall
type BindGroupProvider interface {
	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the bind group handle, or resource.InvalidHandle if not initialized.
	//
	// Returns:
	//   - resource.Handle: the bind group handle
	BindGroup() resource.Handle

	// BindGroupLayout returns the bind group layout handle, or resource.InvalidHandle if not initialized.
	//
	// Returns:
	//   - resource.Handle: the layout handle
	BindGroupLayout() resource.Handle

	// Buffer returns the buffer bound at a binding index.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - resource.Handle: the buffer handle or resource.InvalidHandle
	Buffer(binding int) resource.Handle

	// Buffers returns every buffer bound by this provider keyed by binding index.
	//
	// Returns:
	//   - map[int]resource.Handle: the bound buffers
	Buffers() map[int]resource.Handle

	// VertexBuffer returns the mesh vertex buffer, or resource.InvalidHandle.
	//
	// Returns:
	//   - resource.Handle: the vertex buffer handle
	VertexBuffer() resource.Handle

	// IndexBuffer returns the mesh index buffer, or resource.InvalidHandle.
	//
	// Returns:
	//   - resource.Handle: the index buffer handle
	IndexBuffer() resource.Handle

	// IndexCount returns the number of indices drawn for this mesh.
	//
	// Returns:
	//   - int: the index count
	IndexCount() int

	// Handles returns every handle referenced by this provider in a stable order.
	//
	// Returns:
	//   - []resource.Handle: the referenced handles, InvalidHandle entries omitted
	Handles() []resource.Handle

	SetBindGroup(h resource.Handle)

	SetBindGroupLayout(h resource.Handle)

	SetBuffer(binding int, h resource.Handle)

	SetVertexBuffer(h resource.Handle)

	SetIndexBuffer(h resource.Handle)

	SetIndexCount(count int)
}

var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a BindGroupProvider with the given debug label.
//
// Parameters:
//   - label: the debug label
//   - options: functional options applied in order
//
// Returns:
//   - BindGroupProvider: the provider
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:   label,
		buffers: make(map[int]resource.Handle),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() resource.Handle {
	return p.bindGroup
}

func (p *bindGroupProvider) BindGroupLayout() resource.Handle {
	return p.bindGroupLayout
}

func (p *bindGroupProvider) Buffer(binding int) resource.Handle {
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]resource.Handle {
	return p.buffers
}

func (p *bindGroupProvider) VertexBuffer() resource.Handle {
	return p.vertexBuffer
}

func (p *bindGroupProvider) IndexBuffer() resource.Handle {
	return p.indexBuffer
}

func (p *bindGroupProvider) IndexCount() int {
	return p.indexCount
}

func (p *bindGroupProvider) Handles() []resource.Handle {
	bindings := make([]int, 0, len(p.buffers))
	for b := range p.buffers {
		bindings = append(bindings, b)
	}
	sort.Ints(bindings)

	out := make([]resource.Handle, 0, len(bindings)+4)
	for _, h := range []resource.Handle{p.bindGroup, p.bindGroupLayout} {
		if h != resource.InvalidHandle {
			out = append(out, h)
		}
	}
	for _, b := range bindings {
		if h := p.buffers[b]; h != resource.InvalidHandle {
			out = append(out, h)
		}
	}
	for _, h := range []resource.Handle{p.vertexBuffer, p.indexBuffer} {
		if h != resource.InvalidHandle {
			out = append(out, h)
		}
	}
	return out
}

func (p *bindGroupProvider) SetBindGroup(h resource.Handle) {
	p.bindGroup = h
}

func (p *bindGroupProvider) SetBindGroupLayout(h resource.Handle) {
	p.bindGroupLayout = h
}

func (p *bindGroupProvider) SetBuffer(binding int, h resource.Handle) {
	if p.buffers == nil {
		p.buffers = make(map[int]resource.Handle)
	}
	p.buffers[binding] = h
}

func (p *bindGroupProvider) SetVertexBuffer(h resource.Handle) {
	p.vertexBuffer = h
}

func (p *bindGroupProvider) SetIndexBuffer(h resource.Handle) {
	p.indexBuffer = h
}

func (p *bindGroupProvider) SetIndexCount(count int) {
	p.indexCount = count
}
