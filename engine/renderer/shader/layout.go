package shader

import (
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// typeLayout is the size and alignment of a WGSL type in host-shareable memory.
// runtime is set for array<T> and for structs ending in one; size is then the size of a
// single element, or of the fixed prefix when the struct has one.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
type typeLayout struct {
	size    uint64
	align   uint64
	runtime bool
}

func roundUp(value, align uint64) uint64 {
	if align == 0 {
		return value
	}
	return (value + align - 1) &^ (align - 1)
}

// splitVector decodes scalar and vector type names into a component kind ('f', 'i' or
// 'u') and a component count. Both vec3<f32> and the vec3f alias are accepted.
func splitVector(typeName string) (kind byte, count int, ok bool) {
	switch typeName {
	case "f32", "i32", "u32":
		return typeName[0], 1, true
	}
	if len(typeName) < 5 || !strings.HasPrefix(typeName, "vec") {
		return 0, 0, false
	}
	count = int(typeName[3] - '0')
	if count < 2 || count > 4 {
		return 0, 0, false
	}
	rest := typeName[4:]
	switch {
	case len(rest) == 1:
		kind = rest[0]
	case strings.HasPrefix(rest, "<") && strings.HasSuffix(rest, ">"):
		inner := strings.TrimSpace(rest[1 : len(rest)-1])
		if inner != "f32" && inner != "i32" && inner != "u32" {
			return 0, 0, false
		}
		kind = inner[0]
	default:
		return 0, 0, false
	}
	if kind != 'f' && kind != 'i' && kind != 'u' {
		return 0, 0, false
	}
	return kind, count, true
}

func primitiveLayout(typeName string) (typeLayout, bool) {
	_, n, ok := splitVector(typeName)
	if !ok {
		return typeLayout{}, false
	}
	size := uint64(4 * n)
	switch n {
	case 1:
		return typeLayout{size: 4, align: 4}, true
	case 2:
		return typeLayout{size: size, align: 8}, true
	default:
		return typeLayout{size: size, align: 16}, true
	}
}

// arrayParts splits array<T> and array<T, N>. count is 0 for runtime-sized arrays.
func arrayParts(typeName string) (elem string, count uint64, ok bool) {
	if !strings.HasPrefix(typeName, "array<") || !strings.HasSuffix(typeName, ">") {
		return "", 0, false
	}
	inner := typeName[len("array<") : len(typeName)-1]
	elem, n, sized := cutTopLevel(inner, ',')
	elem = strings.TrimSpace(elem)
	if !sized {
		return elem, 0, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(n), 10, 64)
	if err != nil || count == 0 {
		return "", 0, false
	}
	return elem, count, true
}

// cutTopLevel is strings.Cut that ignores separators nested in angle brackets.
func cutTopLevel(s string, sep byte) (before, after string, found bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case sep:
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

// splitTopLevel splits s at every separator outside angle brackets and parentheses.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// layoutOf resolves the layout of a primitive, array or declared struct type.
// Struct layouts are memoized; recursive declarations fail to resolve.
func (r *reflection) layoutOf(typeName string) (typeLayout, bool) {
	if l, ok := primitiveLayout(typeName); ok {
		return l, true
	}
	if elem, count, ok := arrayParts(typeName); ok {
		el, ok := r.layoutOf(elem)
		if !ok || el.runtime {
			return typeLayout{}, false
		}
		stride := roundUp(el.size, el.align)
		if count == 0 {
			return typeLayout{size: stride, align: el.align, runtime: true}, true
		}
		return typeLayout{size: stride * count, align: el.align}, true
	}

	if l, ok := r.layouts[typeName]; ok {
		return l, true
	}
	decl, ok := r.structs[typeName]
	if !ok || r.resolving[typeName] {
		return typeLayout{}, false
	}
	r.resolving[typeName] = true
	defer delete(r.resolving, typeName)

	var offset uint64
	align := uint64(1)
	for i, m := range decl.members {
		ml, ok := r.layoutOf(m.typeName)
		if !ok {
			return typeLayout{}, false
		}
		if ml.align > align {
			align = ml.align
		}
		offset = roundUp(offset, ml.align)
		if ml.runtime {
			if i != len(decl.members)-1 {
				return typeLayout{}, false
			}
			l := typeLayout{size: offset, align: align, runtime: true}
			if offset == 0 {
				l.size = ml.size
			}
			r.layouts[typeName] = l
			return l, true
		}
		offset += ml.size
	}
	l := typeLayout{size: roundUp(offset, align), align: align}
	r.layouts[typeName] = l
	return l, true
}

// vertexFormat maps a WGSL vertex input type to its wgpu format.
func vertexFormat(typeName string) (wgpu.VertexFormat, bool) {
	kind, n, ok := splitVector(typeName)
	if !ok {
		return wgpu.VertexFormatUndefined, false
	}
	formats := map[byte][4]wgpu.VertexFormat{
		'f': {wgpu.VertexFormatFloat32, wgpu.VertexFormatFloat32x2, wgpu.VertexFormatFloat32x3, wgpu.VertexFormatFloat32x4},
		'u': {wgpu.VertexFormatUint32, wgpu.VertexFormatUint32x2, wgpu.VertexFormatUint32x3, wgpu.VertexFormatUint32x4},
		'i': {wgpu.VertexFormatSint32, wgpu.VertexFormatSint32x2, wgpu.VertexFormatSint32x3, wgpu.VertexFormatSint32x4},
	}
	return formats[kind][n-1], true
}

// vertexFormatSize returns the byte size of the 32-bit vertex formats vertexFormat produces.
func vertexFormatSize(f wgpu.VertexFormat) uint64 {
	switch f {
	case wgpu.VertexFormatFloat32, wgpu.VertexFormatUint32, wgpu.VertexFormatSint32:
		return 4
	case wgpu.VertexFormatFloat32x2, wgpu.VertexFormatUint32x2, wgpu.VertexFormatSint32x2:
		return 8
	case wgpu.VertexFormatFloat32x3, wgpu.VertexFormatUint32x3, wgpu.VertexFormatSint32x3:
		return 12
	case wgpu.VertexFormatFloat32x4, wgpu.VertexFormatUint32x4, wgpu.VertexFormatSint32x4:
		return 16
	}
	return 0
}
