package particle

import (
	"bytes"
	"testing"

	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
)

func TestStoreAlternation(t *testing.T) {
	s, err := NewStore(1500, nil)
	require.NoError(t, err)

	for f := uint64(0); f < 64; f++ {
		assert.NotEqual(t, s.ReadIndex(f), s.WriteIndex(f), "frame %d", f)
		assert.Equal(t, s.WriteIndex(f), s.ReadIndex(f+1), "frame %d", f)
		assert.Equal(t, RoleCurrent, s.Role(f, s.ReadIndex(f)))
		assert.Equal(t, RoleNext, s.Role(f, s.WriteIndex(f)))
	}
	assert.Equal(t, 0, s.ReadIndex(0))
	assert.Equal(t, 1, s.WriteIndex(0))
}

func TestStoreBufferHandles(t *testing.T) {
	s, err := NewStore(4, nil)
	require.NoError(t, err)

	s.SetBuffer(0, resource.Handle(7))
	s.SetBuffer(1, resource.Handle(8))
	s.SetBuffer(2, resource.Handle(9))

	assert.Equal(t, resource.Handle(7), s.ReadBuffer(0))
	assert.Equal(t, resource.Handle(8), s.WriteBuffer(0))
	assert.Equal(t, resource.Handle(8), s.ReadBuffer(1))
	assert.Equal(t, resource.Handle(7), s.WriteBuffer(1))
	assert.Equal(t, resource.InvalidHandle, s.Buffer(2))
	assert.Equal(t, uint64(64), s.ByteSize())
}

func TestNewStoreRejectsBadInput(t *testing.T) {
	_, err := NewStore(0, nil)
	assert.Error(t, err)

	_, err = NewStore(4, make([]GPUParticle, 3))
	assert.Error(t, err)
}

func TestNewStoreCopiesSeed(t *testing.T) {
	seed := []GPUParticle{{Length: 1}, {Length: 2}}
	s, err := NewStore(2, seed)
	require.NoError(t, err)

	seed[0].Length = 99
	assert.Equal(t, float32(1), s.Seed()[0].Length)
	assert.Len(t, s.SeedBytes(), 32)
}

func TestGenerateSeed(t *testing.T) {
	zero, err := GenerateSeed(SeedZero, 3)
	require.NoError(t, err)
	assert.Equal(t, make([]GPUParticle, 3), zero)

	trace, err := GenerateSeed(SeedTrace, 4)
	require.NoError(t, err)
	assert.InDelta(t, -0.75, trace[0].Position[0], 1e-6)
	assert.InDelta(t, 0.75, trace[3].Position[0], 1e-6)
	for _, p := range trace {
		assert.InDelta(t, 0.5, p.Length, 1e-6)
	}

	_, err = GenerateSeed("spiral", 4)
	assert.Error(t, err)

	strategy, err := ParseSeedStrategy("")
	require.NoError(t, err)
	assert.Equal(t, SeedTrace, strategy)
	_, err = ParseSeedStrategy("spiral")
	assert.Error(t, err)
}

func TestParticleBytes(t *testing.T) {
	p := GPUParticle{Position: [2]float32{0.25, -0.5}, Angle: 1.5, Length: 0.125}
	assert.Equal(t, ParticleSize, p.Size())

	u := GPUUniforms{}
	assert.Equal(t, UniformsSize, u.Size())

	decoded, err := UnmarshalParticles(MarshalParticles([]GPUParticle{p, p}))
	require.NoError(t, err)
	assert.Equal(t, []GPUParticle{p, p}, decoded)

	_, err = UnmarshalParticles(make([]byte, 17))
	assert.Error(t, err)
}

// stepBindings builds the three bindings for a single dispatch over the given particles.
func stepBindings(u GPUUniforms, particles []GPUParticle) map[int][]byte {
	return map[int][]byte{
		BindingUniforms: u.Marshal(),
		BindingRead:     MarshalParticles(particles),
		BindingWrite:    make([]byte, len(particles)*ParticleSize),
	}
}

func TestStepKernelGuardsOutOfRangeSlots(t *testing.T) {
	seed, err := GenerateSeed(SeedTrace, 10)
	require.NoError(t, err)
	b := stepBindings(GPUUniforms{ParticleCount: 10, Trigger: 1, Amplitude: 0.5, Frequency: 3, Persistence: 1}, seed)

	// the write buffer is sized for exactly 10 slots, so an unguarded write would panic
	assert.NotPanics(t, func() {
		for i := uint32(0); i < 64; i++ {
			StepKernel(i, b)
		}
	})
}

func TestStepKernelDeterministic(t *testing.T) {
	seed, err := GenerateSeed(SeedTrace, 32)
	require.NoError(t, err)
	u := GPUUniforms{Time: 1.25, ParticleCount: 32, Trigger: 1, Amplitude: 0.6, Frequency: 4, Speed: 2, Persistence: 0.35}

	a, b := stepBindings(u, seed), stepBindings(u, seed)
	for i := uint32(0); i < 32; i++ {
		StepKernel(i, a)
		StepKernel(i, b)
	}
	assert.True(t, bytes.Equal(a[BindingWrite], b[BindingWrite]))
	assert.Equal(t, MarshalParticles(seed), a[BindingRead], "read binding must not be written")
}

func TestStepKernelFollowsTrace(t *testing.T) {
	seed := []GPUParticle{{Position: [2]float32{0.5, 0}, Length: 0.1}}
	u := GPUUniforms{ParticleCount: 1, Trigger: 1, Amplitude: 1, Frequency: 2, Persistence: 1}
	b := stepBindings(u, seed)
	StepKernel(0, b)

	out, err := UnmarshalParticles(b[BindingWrite])
	require.NoError(t, err)
	assert.InDelta(t, math32.Sin(1), out[0].Position[1], 1e-6)
	assert.InDelta(t, math32.Atan(math32.Cos(1)*2), out[0].Angle, 1e-6)
	assert.Equal(t, float32(0.5), out[0].Position[0])
	assert.Equal(t, float32(0.1), out[0].Length)

	// with the trigger released the trace decays to flat
	u.Trigger = 0
	b = stepBindings(u, out)
	StepKernel(0, b)
	flat, err := UnmarshalParticles(b[BindingWrite])
	require.NoError(t, err)
	assert.Equal(t, float32(0), flat[0].Position[1])
}

func TestIdentityKernel(t *testing.T) {
	seed, err := GenerateSeed(SeedTrace, 4)
	require.NoError(t, err)
	b := stepBindings(GPUUniforms{ParticleCount: 4}, seed)
	for i := uint32(0); i < 64; i++ {
		IdentityKernel(i, b)
	}
	assert.Equal(t, b[BindingRead], b[BindingWrite])
}

func TestLineLayout(t *testing.T) {
	l := LineLayout()
	assert.Equal(t, uint64(ParticleSize), l.ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeInstance, l.StepMode)
	require.Len(t, l.Attributes, 3)
	assert.Equal(t, uint32(0), l.Attributes[0].ShaderLocation)
	assert.Equal(t, uint64(12), l.Attributes[2].Offset)
}
