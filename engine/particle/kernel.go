package particle

import (
	"github.com/chewxy/math32"
)

// Binding indices of the simulation bind group.
const (
	BindingUniforms = 0
	BindingRead     = 1
	BindingWrite    = 2
)

// StepKernel is the CPU reference of the simulation compute program. It runs one
// invocation: reads slot i from the read binding, moves its y toward a sine trace
// scaled by the trigger, aims the segment along the trace slope and writes slot i of
// the write binding. Invocations at or beyond the particle count return without
// touching any buffer.
//
// Parameters:
//   - invocation: the global invocation id
//   - bindings: buffer contents keyed by binding index
func StepKernel(invocation uint32, bindings map[int][]byte) {
	u := readUniforms(bindings[BindingUniforms])
	if invocation >= u.ParticleCount {
		return
	}
	off := int(invocation) * ParticleSize
	prev := readParticle(bindings[BindingRead][off:])

	phase := prev.Position[0]*u.Frequency + u.Time*u.Speed
	gain := u.Amplitude * u.Trigger
	target := math32.Sin(phase) * gain
	slope := math32.Cos(phase) * gain * u.Frequency

	next := GPUParticle{
		Position: [2]float32{prev.Position[0], prev.Position[1] + (target-prev.Position[1])*u.Persistence},
		Angle:    math32.Atan(slope),
		Length:   prev.Length,
	}
	next.put(bindings[BindingWrite][off:])
}

// IdentityKernel copies slot i of the read binding into the write binding unchanged,
// honouring the same bounds guard as StepKernel.
//
// Parameters:
//   - invocation: the global invocation id
//   - bindings: buffer contents keyed by binding index
func IdentityKernel(invocation uint32, bindings map[int][]byte) {
	u := readUniforms(bindings[BindingUniforms])
	if invocation >= u.ParticleCount {
		return
	}
	off := int(invocation) * ParticleSize
	copy(bindings[BindingWrite][off:off+ParticleSize], bindings[BindingRead][off:off+ParticleSize])
}
