package shader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrContract is matched by every binding or vertex input mismatch between a shader and
// the buffers the caller intends to bind.
var ErrContract = errors.New("shader contract violation")

// BindingContract describes the buffer a caller will bind at one group/binding slot.
type BindingContract struct {
	Group   int
	Binding int
	Type    wgpu.BufferBindingType
	// BufferSize is the byte size of the buffer that will be bound.
	BufferSize uint64
	// ElementStride is the expected array element stride for runtime-sized arrays, 0 otherwise.
	ElementStride uint64
}

// BindingError reports a mismatch at a single binding slot.
type BindingError struct {
	Group   int
	Binding int
	Reason  string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("group %d binding %d: %s", e.Group, e.Binding, e.Reason)
}

func (e *BindingError) Unwrap() error {
	return ErrContract
}

// VertexInputError reports a mismatch between a vertex buffer slot and the vertex shader inputs.
type VertexInputError struct {
	Slot     int
	Location int
	Reason   string
}

func (e *VertexInputError) Error() string {
	if e.Location < 0 {
		return fmt.Sprintf("vertex slot %d: %s", e.Slot, e.Reason)
	}
	return fmt.Sprintf("vertex slot %d location %d: %s", e.Slot, e.Location, e.Reason)
}

func (e *VertexInputError) Unwrap() error {
	return ErrContract
}

// ValidateBindings checks each contract against the bind group layout entries parsed from s.
// Every declared binding must be covered by a contract and every contract must match a
// declared buffer binding of the same type. Uniform and struct bindings must fit in the
// buffer. Runtime-sized arrays must have the expected element stride and the buffer must
// hold a whole number of elements.
//
// Parameters:
//   - s: the parsed shader
//   - contracts: the buffers the caller will bind
//
// Returns:
//   - error: the first *BindingError found in group/binding order, or nil
func ValidateBindings(s Shader, contracts []BindingContract) error {
	sorted := make([]BindingContract, len(contracts))
	copy(sorted, contracts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Group != sorted[j].Group {
			return sorted[i].Group < sorted[j].Group
		}
		return sorted[i].Binding < sorted[j].Binding
	})

	covered := make(map[[2]int]bool, len(sorted))
	for _, c := range sorted {
		covered[[2]int{c.Group, c.Binding}] = true

		entry, ok := findEntry(s.BindGroupLayoutDescriptor(c.Group), c.Binding)
		if !ok {
			return &BindingError{Group: c.Group, Binding: c.Binding, Reason: "not declared by shader " + s.Key()}
		}
		if entry.Buffer.Type == wgpu.BufferBindingTypeUndefined {
			return &BindingError{Group: c.Group, Binding: c.Binding, Reason: "declared as a non-buffer resource"}
		}
		if entry.Buffer.Type != c.Type {
			return &BindingError{Group: c.Group, Binding: c.Binding,
				Reason: fmt.Sprintf("shader declares %s, caller binds %s", entry.Buffer.Type, c.Type)}
		}

		minSize := entry.Buffer.MinBindingSize
		if isRuntimeArray(s.BindGroupTypeName(c.Group, c.Binding)) {
			if c.ElementStride != 0 && minSize != c.ElementStride {
				return &BindingError{Group: c.Group, Binding: c.Binding,
					Reason: fmt.Sprintf("element stride %d does not match shader stride %d", c.ElementStride, minSize)}
			}
			if minSize != 0 && c.BufferSize%minSize != 0 {
				return &BindingError{Group: c.Group, Binding: c.Binding,
					Reason: fmt.Sprintf("buffer size %d is not a multiple of stride %d", c.BufferSize, minSize)}
			}
		}
		if c.BufferSize < minSize {
			return &BindingError{Group: c.Group, Binding: c.Binding,
				Reason: fmt.Sprintf("buffer size %d is below minimum binding size %d", c.BufferSize, minSize)}
		}
	}

	groups := make([]int, 0, len(s.BindGroupLayoutDescriptors()))
	for g := range s.BindGroupLayoutDescriptors() {
		groups = append(groups, g)
	}
	sort.Ints(groups)
	for _, g := range groups {
		for _, e := range s.BindGroupLayoutDescriptor(g).Entries {
			if !covered[[2]int{g, int(e.Binding)}] {
				return &BindingError{Group: g, Binding: int(e.Binding), Reason: "declared by shader but nothing is bound"}
			}
		}
	}
	return nil
}

// ValidateVertexInputs checks that the vertex buffer layouts the pipeline will use cover
// exactly the @location inputs of the vertex shader with matching formats. The shader's
// inputs are the @location members of the vertex entry point parameters.
//
// Parameters:
//   - s: the parsed vertex shader
//   - slots: the vertex buffer layouts in slot order
//
// Returns:
//   - error: a *VertexInputError on the first mismatch, or nil
func ValidateVertexInputs(s Shader, slots []wgpu.VertexBufferLayout) error {
	declared := make(map[uint32]wgpu.VertexFormat)
	for _, l := range s.VertexLayouts() {
		for _, a := range l.Attributes {
			declared[a.ShaderLocation] = a.Format
		}
	}

	seen := make(map[uint32]bool, len(declared))
	for slot, l := range slots {
		var end uint64
		for _, a := range l.Attributes {
			want, ok := declared[a.ShaderLocation]
			if !ok {
				return &VertexInputError{Slot: slot, Location: int(a.ShaderLocation), Reason: "location is not a shader input"}
			}
			if want != a.Format {
				return &VertexInputError{Slot: slot, Location: int(a.ShaderLocation),
					Reason: fmt.Sprintf("format %s does not match shader format %s", a.Format, want)}
			}
			if seen[a.ShaderLocation] {
				return &VertexInputError{Slot: slot, Location: int(a.ShaderLocation), Reason: "location bound by more than one attribute"}
			}
			seen[a.ShaderLocation] = true
			if e := a.Offset + vertexFormatSize(a.Format); e > end {
				end = e
			}
		}
		if end > l.ArrayStride {
			return &VertexInputError{Slot: slot, Location: -1,
				Reason: fmt.Sprintf("attributes span %d bytes but stride is %d", end, l.ArrayStride)}
		}
	}

	missing := make([]int, 0)
	for loc := range declared {
		if !seen[loc] {
			missing = append(missing, int(loc))
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return &VertexInputError{Slot: -1, Location: missing[0], Reason: "shader input has no vertex buffer attribute"}
	}
	return nil
}

func findEntry(desc wgpu.BindGroupLayoutDescriptor, binding int) (wgpu.BindGroupLayoutEntry, bool) {
	for _, e := range desc.Entries {
		if int(e.Binding) == binding {
			return e, true
		}
	}
	return wgpu.BindGroupLayoutEntry{}, false
}

func isRuntimeArray(typeName string) bool {
	_, count, ok := arrayParts(typeName)
	return ok && count == 0
}
