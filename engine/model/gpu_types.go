package model

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
)

// GPUVertexSource is the canonical WGSL definition of the QuadVertex struct consumed by the
// per-vertex input slot of the draw pipeline. Matches GPUVertex layout exactly (36 bytes, packed).
//
//go:embed assets/vertex.wgsl
var GPUVertexSource string

// VertexSize is the packed byte stride of a GPUVertex.
const VertexSize = 36

// GPUVertex is the GPU-aligned representation of a single mesh vertex.
// Matches the WGSL QuadVertex struct layout exactly (see GPUVertexSource).
// Size: 36 bytes (vertex attributes are tightly packed, no padding).
type GPUVertex struct {
	Position [2]float32 // offset  0: vertex position in quad space (8 bytes)
	Normal   [3]float32 // offset  8: vertex normal (12 bytes)
	Color    [4]float32 // offset 20: per-vertex RGBA color (16 bytes)
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 36-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, VertexSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Position[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Position[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Normal[0]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.Normal[1]))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Normal[2]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Color[0]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.Color[1]))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Color[2]))
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(g.Color[3]))
	return buf
}

// MarshalVertices serializes a vertex slice into one contiguous buffer.
//
// Parameters:
//   - vertices: the vertices to serialize
//
// Returns:
//   - []byte: len(vertices)*VertexSize bytes
func MarshalVertices(vertices []GPUVertex) []byte {
	buf := make([]byte, 0, len(vertices)*VertexSize)
	for i := range vertices {
		buf = append(buf, vertices[i].Marshal()...)
	}
	return buf
}

// MarshalIndices serializes uint32 indices little-endian.
//
// Parameters:
//   - indices: the indices to serialize
//
// Returns:
//   - []byte: len(indices)*4 bytes
func MarshalIndices(indices []uint32) []byte {
	buf := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

// VertexLayout returns the per-vertex buffer layout of GPUVertex, bound at vertex slot 1
// of the draw pipeline.
//
// Returns:
//   - wgpu.VertexBufferLayout: stride 36, vertex step mode, locations 3 to 5
func VertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: VertexSize,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 3},
			{Format: wgpu.VertexFormatFloat32x3, Offset: 8, ShaderLocation: 4},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 20, ShaderLocation: 5},
		},
	}
}
