package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

var (
	structRegex  = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)
	attrRegex    = regexp.MustCompile(`@(\w+)(?:\s*\(([^)]*)\))?`)
	varDeclRegex = regexp.MustCompile(`((?:@\w+\s*\([^)]*\)\s*)+)var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
	entryRegex   = regexp.MustCompile(`@(vertex|fragment|compute)\b[^{;]*?\bfn\s+(\w+)\s*\(`)
)

// member is one field of a struct or one entry point parameter.
type member struct {
	name     string
	typeName string
	location int // -1 without @location
	builtin  bool
}

type structDecl struct {
	name    string
	members []member
}

// bindingDecl is a module-scope var carrying @group and @binding.
type bindingDecl struct {
	group    int
	binding  int
	space    string // address space and access mode, empty for handle types
	name     string
	typeName string
}

type entryPoint struct {
	name   string
	params []member
	attrs  map[string]string
}

// reflection holds what pipeline creation needs to know about one WGSL module.
type reflection struct {
	structs  map[string]structDecl
	bindings []bindingDecl
	entries  map[ShaderType]entryPoint

	layouts   map[string]typeLayout
	resolving map[string]bool
}

// reflectSource scans comment-free WGSL for struct declarations, resource bindings and
// entry points. It does not validate the module; Precheck does that.
func reflectSource(source string) *reflection {
	src := stripComments(source)
	r := &reflection{
		structs:   make(map[string]structDecl),
		entries:   make(map[ShaderType]entryPoint),
		layouts:   make(map[string]typeLayout),
		resolving: make(map[string]bool),
	}

	for _, m := range structRegex.FindAllStringSubmatch(src, -1) {
		r.structs[m[1]] = structDecl{name: m[1], members: parseMembers(m[2])}
	}

	for _, m := range varDeclRegex.FindAllStringSubmatch(src, -1) {
		attrs := parseAttributes(m[1])
		group, gerr := strconv.Atoi(attrs["group"])
		binding, berr := strconv.Atoi(attrs["binding"])
		if gerr != nil || berr != nil {
			continue
		}
		r.bindings = append(r.bindings, bindingDecl{
			group:    group,
			binding:  binding,
			space:    strings.Join(strings.Fields(m[2]), ""),
			name:     m[3],
			typeName: strings.TrimSpace(m[4]),
		})
	}
	sort.Slice(r.bindings, func(i, j int) bool {
		if r.bindings[i].group != r.bindings[j].group {
			return r.bindings[i].group < r.bindings[j].group
		}
		return r.bindings[i].binding < r.bindings[j].binding
	})

	stages := map[string]ShaderType{"vertex": ShaderTypeVertex, "fragment": ShaderTypeFragment, "compute": ShaderTypeCompute}
	for _, loc := range entryRegex.FindAllStringSubmatchIndex(src, -1) {
		stage := stages[src[loc[2]:loc[3]]]
		if _, seen := r.entries[stage]; seen {
			continue
		}
		params, ok := enclosed(src, loc[1]-1)
		if !ok {
			continue
		}
		r.entries[stage] = entryPoint{
			name:   src[loc[4]:loc[5]],
			params: parseMembers(params),
			attrs:  parseAttributes(src[loc[0]:loc[4]]),
		}
	}
	return r
}

// enclosed returns the text between the parenthesis at open and its match.
func enclosed(s string, open int) (string, bool) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[open+1 : i], true
			}
		}
	}
	return "", false
}

func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRegex.FindAllStringSubmatch(s, -1) {
		attrs[m[1]] = strings.TrimSpace(m[2])
	}
	return attrs
}

// parseMembers parses a comma separated list of "@attr name: type" items.
func parseMembers(list string) []member {
	var out []member
	for _, item := range splitTopLevel(list, ',') {
		attrs := parseAttributes(item)
		name, typeName, ok := strings.Cut(strings.TrimSpace(attrRegex.ReplaceAllString(item, "")), ":")
		if !ok {
			continue
		}
		m := member{
			name:     strings.TrimSpace(name),
			typeName: strings.TrimSpace(typeName),
			location: -1,
		}
		if loc, err := strconv.Atoi(attrs["location"]); err == nil {
			m.location = loc
		}
		_, m.builtin = attrs["builtin"]
		out = append(out, m)
	}
	return out
}

// stripComments removes line comments and nested block comments, keeping line breaks.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		next := byte(0)
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case c == '/' && next == '*':
			depth++
			i++
		case c == '*' && next == '/' && depth > 0:
			depth--
			i++
		case depth > 0:
			if c == '\n' {
				sb.WriteByte(c)
			}
		case c == '/' && next == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// workgroupSize reads @workgroup_size from the compute entry point. Missing dimensions
// are 1.
func (r *reflection) workgroupSize() [3]uint32 {
	size := [3]uint32{1, 1, 1}
	args, ok := r.entries[ShaderTypeCompute].attrs["workgroup_size"]
	if !ok {
		return size
	}
	for i, dim := range splitTopLevel(args, ',') {
		if i > 2 {
			break
		}
		if v, err := strconv.ParseUint(strings.TrimSpace(dim), 10, 32); err == nil {
			size[i] = uint32(v)
		}
	}
	return size
}

// bindGroupLayouts builds one layout descriptor per group. Buffer entries carry the
// binding's minimum size: the struct size, or the element stride of a runtime array.
func (r *reflection) bindGroupLayouts(visibility wgpu.ShaderStage) map[int]wgpu.BindGroupLayoutDescriptor {
	out := make(map[int]wgpu.BindGroupLayoutDescriptor)
	for _, b := range r.bindings {
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    uint32(b.binding),
			Visibility: visibility,
		}
		switch {
		case b.space == "uniform":
			entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		case b.space == "storage,read_write":
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		case strings.HasPrefix(b.space, "storage"):
			entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		}
		if entry.Buffer.Type != wgpu.BufferBindingTypeUndefined {
			if l, ok := r.layoutOf(b.typeName); ok {
				entry.Buffer.MinBindingSize = l.size
			}
		}
		desc := out[b.group]
		desc.Entries = append(desc.Entries, entry)
		out[b.group] = desc
	}
	return out
}

// vertexLayouts derives one buffer layout per vertex entry parameter, in parameter order,
// so slot i of the pipeline feeds parameter i. Struct parameters contribute their
// @location members packed in declaration order. Builtin parameters are skipped. Any
// input whose type has no vertex format yields no layouts.
func (r *reflection) vertexLayouts() []wgpu.VertexBufferLayout {
	entry, ok := r.entries[ShaderTypeVertex]
	if !ok {
		return nil
	}

	var out []wgpu.VertexBufferLayout
	for _, p := range entry.params {
		if p.builtin {
			continue
		}
		inputs := []member{p}
		if decl, isStruct := r.structs[p.typeName]; isStruct {
			inputs = decl.members
		}

		var layout wgpu.VertexBufferLayout
		layout.StepMode = wgpu.VertexStepModeVertex
		for _, in := range inputs {
			if in.builtin || in.location < 0 {
				continue
			}
			format, ok := vertexFormat(in.typeName)
			if !ok {
				return nil
			}
			layout.Attributes = append(layout.Attributes, wgpu.VertexAttribute{
				Format:         format,
				Offset:         layout.ArrayStride,
				ShaderLocation: uint32(in.location),
			})
			layout.ArrayStride += vertexFormatSize(format)
		}
		if len(layout.Attributes) > 0 {
			out = append(out, layout)
		}
	}
	return out
}

func (r *reflection) binding(group, binding int) (bindingDecl, bool) {
	for _, b := range r.bindings {
		if b.group == group && b.binding == binding {
			return b, true
		}
	}
	return bindingDecl{}, false
}
