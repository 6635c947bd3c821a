// Package resource tracks GPU objects created by a renderer backend. Every object is
// registered in an Arena and addressed by an integer Handle, so bind groups, pipelines
// and buffers can be referenced by index without holding backend-specific pointers.
// The Arena guarantees that each registered object is released at most once.
package resource

import (
	"fmt"
	"sync"
)

// Handle is an opaque index into an Arena. The zero value is never issued.
type Handle uint32

// InvalidHandle is the zero Handle, used to represent "not created".
const InvalidHandle Handle = 0

// Kind identifies the category of GPU object stored behind a Handle.
type Kind int

const (
	// KindBuffer is a GPU buffer (uniform, storage, vertex or index).
	KindBuffer Kind = iota

	// KindBindGroupLayout is a bind group layout object.
	KindBindGroupLayout

	// KindBindGroup is a bind group binding resources to numbered slots.
	KindBindGroup

	// KindPipelineLayout is a pipeline layout object.
	KindPipelineLayout

	// KindShaderModule is a compiled shader module.
	KindShaderModule

	// KindComputePipeline is a compute pipeline.
	KindComputePipeline

	// KindRenderPipeline is a render pipeline.
	KindRenderPipeline
)

// String returns a readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindBindGroupLayout:
		return "bind_group_layout"
	case KindBindGroup:
		return "bind_group"
	case KindPipelineLayout:
		return "pipeline_layout"
	case KindShaderModule:
		return "shader_module"
	case KindComputePipeline:
		return "compute_pipeline"
	case KindRenderPipeline:
		return "render_pipeline"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// entry is a single tracked object in the arena.
type entry struct {
	kind     Kind
	label    string
	object   any
	release  func()
	released int
}

// arena is the implementation of the Arena interface.
type arena struct {
	mu      *sync.Mutex
	entries []*entry // index 0 is reserved for InvalidHandle
	live    int
}

// Arena owns GPU objects for a backend. Objects are added once, looked up by Handle,
// and released either individually or all together at shutdown.
type Arena interface {
	// Add registers an object and returns its Handle.
	//
	// Parameters:
	//   - kind: the category of the object
	//   - label: a debug label
	//   - object: the backend object (e.g. *wgpu.Buffer, or a []byte for the software backend)
	//   - release: the function that frees the object, may be nil
	//
	// Returns:
	//   - Handle: the handle addressing the object
	Add(kind Kind, label string, object any, release func()) Handle

	// Get returns the object stored behind a Handle.
	//
	// Parameters:
	//   - h: the handle to look up
	//
	// Returns:
	//   - any: the stored object, or nil if the handle is unknown or released
	//   - bool: true if the handle is live
	Get(h Handle) (any, bool)

	// Kind returns the category of the object behind a Handle.
	//
	// Parameters:
	//   - h: the handle to look up
	//
	// Returns:
	//   - Kind: the object kind
	//   - bool: false if the handle was never issued
	Kind(h Handle) (Kind, bool)

	// Label returns the debug label of the object behind a Handle, or an empty string.
	//
	// Parameters:
	//   - h: the handle to look up
	//
	// Returns:
	//   - string: the label
	Label(h Handle) string

	// Release frees a single object. Releasing an already released or unknown handle is a no-op.
	//
	// Parameters:
	//   - h: the handle to release
	//
	// Returns:
	//   - bool: true if this call released the object
	Release(h Handle) bool

	// ReleaseAll frees every live object in reverse creation order.
	// Safe to call repeatedly; later calls release nothing.
	//
	// Returns:
	//   - int: the number of objects released by this call
	ReleaseAll() int

	// Live returns the number of objects that have not been released.
	//
	// Returns:
	//   - int: the live object count
	Live() int

	// Handles returns every handle ever issued, in creation order.
	//
	// Returns:
	//   - []Handle: all issued handles
	Handles() []Handle

	// ReleaseCount returns how many times the object behind a handle has been released.
	// With a correct Arena this is always 0 or 1.
	//
	// Parameters:
	//   - h: the handle to inspect
	//
	// Returns:
	//   - int: the release count
	ReleaseCount(h Handle) int
}

var _ Arena = &arena{}

// NewArena creates an empty Arena.
//
// Returns:
//   - Arena: a ready-to-use arena
func NewArena() Arena {
	return &arena{
		mu:      &sync.Mutex{},
		entries: []*entry{nil},
	}
}

func (a *arena) Add(kind Kind, label string, object any, release func()) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, &entry{
		kind:    kind,
		label:   label,
		object:  object,
		release: release,
	})
	a.live++
	return Handle(len(a.entries) - 1)
}

func (a *arena) lookup(h Handle) *entry {
	if h == InvalidHandle || int(h) >= len(a.entries) {
		return nil
	}
	return a.entries[h]
}

func (a *arena) Get(h Handle) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.lookup(h)
	if e == nil || e.released > 0 {
		return nil, false
	}
	return e.object, true
}

func (a *arena) Kind(h Handle) (Kind, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.lookup(h)
	if e == nil {
		return 0, false
	}
	return e.kind, true
}

func (a *arena) Label(h Handle) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e := a.lookup(h); e != nil {
		return e.label
	}
	return ""
}

func (a *arena) Release(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.releaseLocked(a.lookup(h))
}

// releaseLocked frees a single entry. The arena mutex must be held.
func (a *arena) releaseLocked(e *entry) bool {
	if e == nil || e.released > 0 {
		return false
	}
	if e.release != nil {
		e.release()
	}
	e.released++
	e.object = nil
	a.live--
	return true
}

func (a *arena) ReleaseAll() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	// dependents (bind groups, pipelines) are always created after what they reference
	count := 0
	for i := len(a.entries) - 1; i > 0; i-- {
		if a.releaseLocked(a.entries[i]) {
			count++
		}
	}
	return count
}

func (a *arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

func (a *arena) Handles() []Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	handles := make([]Handle, 0, len(a.entries)-1)
	for i := 1; i < len(a.entries); i++ {
		handles = append(handles, Handle(i))
	}
	return handles
}

func (a *arena) ReleaseCount(h Handle) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e := a.lookup(h); e != nil {
		return e.released
	}
	return 0
}
