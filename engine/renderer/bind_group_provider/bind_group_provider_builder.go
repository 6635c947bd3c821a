package bind_group_provider

import "github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBindGroupLayout sets the bind group layout for this provider, so several providers
// can share one layout object.
//
// Parameters:
//   - h: the layout handle
//
// Returns:
//   - BindGroupProviderOption: a function that sets the bind group layout for this provider
func WithBindGroupLayout(h resource.Handle) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.bindGroupLayout = h
	}
}

// WithBuffer binds an already created buffer at a specific binding index. InitBindGroup
// reuses it instead of allocating a new buffer.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - h: the buffer handle
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified binding
func WithBuffer(binding int, h resource.Handle) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.buffers[binding] = h
	}
}

// WithBuffers binds several already created buffers keyed by binding index.
//
// Parameters:
//   - buffers: a map of binding indices to buffer handles
//
// Returns:
//   - BindGroupProviderOption: a function that sets multiple buffers for this provider
func WithBuffers(buffers map[int]resource.Handle) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		for b, h := range buffers {
			p.buffers[b] = h
		}
	}
}
