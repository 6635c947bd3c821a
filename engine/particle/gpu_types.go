package particle

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
)

// GPUParticleSource is the canonical WGSL definition of the Particle struct.
// Matches GPUParticle layout exactly (16 bytes, std430 aligned).
//
//go:embed assets/particle.wgsl
var GPUParticleSource string

// GPUUniformsSource is the canonical WGSL definition of the OsciUniforms struct.
// Matches GPUUniforms layout exactly (32 bytes, uniform aligned).
//
//go:embed assets/osci_uniforms.wgsl
var GPUUniformsSource string

// GPULineSource is the canonical WGSL definition of the LineInstance vertex input struct.
// It is the per-instance view of a GPUParticle read straight from the particle buffer.
//
//go:embed assets/line.wgsl
var GPULineSource string

// ParticleSize is the byte stride of a single GPUParticle in a particle buffer.
const ParticleSize = 16

// UniformsSize is the byte size of the GPUUniforms block.
const UniformsSize = 32

// GPUParticle is the GPU-aligned representation of one particle slot.
// The same 16 bytes are read as a storage array element by the compute stage and as
// per-instance vertex attributes (pos, angle, len) by the render stage.
type GPUParticle struct {
	Position [2]float32 // offset  0: trace position in clip space (vec2<f32>)
	Angle    float32    // offset  8: segment rotation in radians (f32)
	Length   float32    // offset 12: segment length in clip space units (f32)
}

// Size returns the size of the GPUParticle struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUParticle) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUParticle struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUParticle) Marshal() []byte {
	buf := make([]byte, ParticleSize)
	g.put(buf)
	return buf
}

// put writes the particle into the first 16 bytes of buf.
func (g *GPUParticle) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Position[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Position[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Angle))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.Length))
}

// readParticle decodes a particle from the first 16 bytes of buf.
func readParticle(buf []byte) GPUParticle {
	return GPUParticle{
		Position: [2]float32{
			math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
			math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		},
		Angle:  math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
		Length: math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16])),
	}
}

// MarshalParticles packs a slice of particles into a contiguous buffer of len(particles)*16 bytes.
//
// Parameters:
//   - particles: the particles to pack
//
// Returns:
//   - []byte: the packed buffer
func MarshalParticles(particles []GPUParticle) []byte {
	buf := make([]byte, len(particles)*ParticleSize)
	for i := range particles {
		particles[i].put(buf[i*ParticleSize:])
	}
	return buf
}

// UnmarshalParticles decodes a packed particle buffer.
//
// Parameters:
//   - buf: the packed buffer, its length must be a multiple of 16
//
// Returns:
//   - []GPUParticle: the decoded particles
//   - error: an error if the buffer length is not a whole number of particles
func UnmarshalParticles(buf []byte) ([]GPUParticle, error) {
	if len(buf)%ParticleSize != 0 {
		return nil, fmt.Errorf("particle buffer length %d is not a multiple of %d", len(buf), ParticleSize)
	}
	out := make([]GPUParticle, len(buf)/ParticleSize)
	for i := range out {
		out[i] = readParticle(buf[i*ParticleSize:])
	}
	return out, nil
}

// GPUUniforms is the GPU-aligned representation of the oscilloscope parameter block.
// Matches the WGSL OsciUniforms struct layout exactly (see GPUUniformsSource).
type GPUUniforms struct {
	Time          float32 // offset  0: seconds since the driver started
	DeltaTime     float32 // offset  4: seconds since the previous frame
	Trigger       float32 // offset  8: 1 when the trace is armed, 0 when flat
	ParticleCount uint32  // offset 12: number of valid particle slots, used by the bounds guard
	Amplitude     float32 // offset 16: trace amplitude in clip space
	Frequency     float32 // offset 20: spatial frequency of the trace
	Speed         float32 // offset 24: phase velocity in radians per second
	Persistence   float32 // offset 28: blend factor toward the target trace, 0..1
}

// Size returns the size of the GPUUniforms struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUUniforms) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUUniforms struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUUniforms) Marshal() []byte {
	buf := make([]byte, UniformsSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Time))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.DeltaTime))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Trigger))
	binary.LittleEndian.PutUint32(buf[12:16], g.ParticleCount)
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Amplitude))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Frequency))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.Speed))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Persistence))
	return buf
}

// readUniforms decodes a uniform block from the first 32 bytes of buf.
func readUniforms(buf []byte) GPUUniforms {
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
	return GPUUniforms{
		Time:          f(0),
		DeltaTime:     f(4),
		Trigger:       f(8),
		ParticleCount: binary.LittleEndian.Uint32(buf[12:16]),
		Amplitude:     f(16),
		Frequency:     f(20),
		Speed:         f(24),
		Persistence:   f(28),
	}
}

// LineLayout returns the per-instance vertex buffer layout reading pos, angle and len
// out of the particle buffer. It is bound to vertex slot 0 of the draw pipeline.
//
// Returns:
//   - wgpu.VertexBufferLayout: the instance-stepped layout with a 16 byte stride
func LineLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: ParticleSize,
		StepMode:    wgpu.VertexStepModeInstance,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32, Offset: 8, ShaderLocation: 1},
			{Format: wgpu.VertexFormatFloat32, Offset: 12, ShaderLocation: 2},
		},
	}
}
