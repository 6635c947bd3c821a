package oscilloscope

import (
	_ "embed"
)

// ComputeSource is the phosphor trace compute program.
//
//go:embed shaders/compute.wgsl
var ComputeSource string

// IdentitySource is a compute program that copies the read buffer into the write buffer.
//
//go:embed shaders/identity.wgsl
var IdentitySource string

// DrawSource holds the vertex and fragment entry points of the instanced line draw.
//
//go:embed shaders/draw.wgsl
var DrawSource string

const (
	// ComputePipelineKey is the cache key of the simulation compute pipeline.
	ComputePipelineKey = "osci_compute"

	// DrawPipelineKey is the cache key of the line render pipeline.
	DrawPipelineKey = "osci_draw"

	// DefaultParticleCount is the number of particles simulated when none is configured.
	DefaultParticleCount = 1500
)
