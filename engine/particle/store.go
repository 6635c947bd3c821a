package particle

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/resource"
)

// BufferCount is the number of particle buffers in the ping-pong pair.
const BufferCount = 2

// Role is the part a particle buffer plays in a given frame.
type Role int

const (
	// RoleCurrent marks the buffer bound read-only as compute input.
	RoleCurrent Role = iota

	// RoleNext marks the buffer bound read-write as compute output and read by the render pass.
	RoleNext
)

// String returns a readable name for the Role.
func (r Role) String() string {
	if r == RoleCurrent {
		return "current"
	}
	return "next"
}

// store is the implementation of the Store interface.
type store struct {
	count   int
	seed    []GPUParticle
	buffers [BufferCount]resource.Handle
}

// Store describes the ping-pong particle buffer pair. It holds the seed both buffers are
// initialised with and maps every frame index to a read buffer and a write buffer.
//
// For frame f the read buffer is f % 2 and the write buffer is (f+1) % 2, so the buffer
// written in frame f is the buffer read in frame f+1.
type Store interface {
	// Count returns the number of particle slots in each buffer.
	//
	// Returns:
	//   - int: the particle count
	Count() int

	// ByteSize returns the size in bytes of a single particle buffer.
	//
	// Returns:
	//   - uint64: Count() * ParticleSize
	ByteSize() uint64

	// Seed returns the initial particle data uploaded to both buffers.
	//
	// Returns:
	//   - []GPUParticle: the seed, len == Count()
	Seed() []GPUParticle

	// SeedBytes returns the packed seed ready for upload.
	//
	// Returns:
	//   - []byte: the packed seed, len == ByteSize()
	SeedBytes() []byte

	// ReadIndex returns the index of the buffer bound as read-only compute input in frame f.
	//
	// Parameters:
	//   - frame: the frame index
	//
	// Returns:
	//   - int: 0 or 1
	ReadIndex(frame uint64) int

	// WriteIndex returns the index of the buffer written by compute and drawn in frame f.
	//
	// Parameters:
	//   - frame: the frame index
	//
	// Returns:
	//   - int: 0 or 1, never equal to ReadIndex(frame)
	WriteIndex(frame uint64) int

	// Role returns the role of a buffer slot in frame f.
	//
	// Parameters:
	//   - frame: the frame index
	//   - slot: the buffer index, 0 or 1
	//
	// Returns:
	//   - Role: RoleCurrent or RoleNext
	Role(frame uint64, slot int) Role

	// Buffer returns the arena handle of a buffer slot.
	//
	// Parameters:
	//   - slot: the buffer index, 0 or 1
	//
	// Returns:
	//   - resource.Handle: the handle, or resource.InvalidHandle before creation
	Buffer(slot int) resource.Handle

	// SetBuffer records the arena handle of a created buffer.
	//
	// Parameters:
	//   - slot: the buffer index, 0 or 1
	//   - h: the buffer handle
	SetBuffer(slot int, h resource.Handle)

	// ReadBuffer returns the handle of the read buffer for frame f.
	//
	// Parameters:
	//   - frame: the frame index
	//
	// Returns:
	//   - resource.Handle: the read buffer handle
	ReadBuffer(frame uint64) resource.Handle

	// WriteBuffer returns the handle of the write buffer for frame f.
	//
	// Parameters:
	//   - frame: the frame index
	//
	// Returns:
	//   - resource.Handle: the write buffer handle
	WriteBuffer(frame uint64) resource.Handle
}

var _ Store = &store{}

// NewStore creates a Store for count particles. A nil seed zero-initialises both buffers.
//
// Parameters:
//   - count: the number of particle slots, must be > 0
//   - seed: the initial particle data, nil or exactly count long
//
// Returns:
//   - Store: the store
//   - error: an error if count is not positive or the seed length differs from count
func NewStore(count int, seed []GPUParticle) (Store, error) {
	if count <= 0 {
		return nil, fmt.Errorf("particle count must be positive, got %d", count)
	}
	if seed == nil {
		seed = make([]GPUParticle, count)
	}
	if len(seed) != count {
		return nil, fmt.Errorf("seed has %d particles, expected %d", len(seed), count)
	}
	cp := make([]GPUParticle, count)
	copy(cp, seed)
	return &store{count: count, seed: cp}, nil
}

func (s *store) Count() int {
	return s.count
}

func (s *store) ByteSize() uint64 {
	return uint64(s.count) * ParticleSize
}

func (s *store) Seed() []GPUParticle {
	return s.seed
}

func (s *store) SeedBytes() []byte {
	return MarshalParticles(s.seed)
}

func (s *store) ReadIndex(frame uint64) int {
	return int(frame % BufferCount)
}

func (s *store) WriteIndex(frame uint64) int {
	return int((frame + 1) % BufferCount)
}

func (s *store) Role(frame uint64, slot int) Role {
	if slot == s.ReadIndex(frame) {
		return RoleCurrent
	}
	return RoleNext
}

func (s *store) Buffer(slot int) resource.Handle {
	if slot < 0 || slot >= BufferCount {
		return resource.InvalidHandle
	}
	return s.buffers[slot]
}

func (s *store) SetBuffer(slot int, h resource.Handle) {
	if slot < 0 || slot >= BufferCount {
		return
	}
	s.buffers[slot] = h
}

func (s *store) ReadBuffer(frame uint64) resource.Handle {
	return s.buffers[s.ReadIndex(frame)]
}

func (s *store) WriteBuffer(frame uint64) resource.Handle {
	return s.buffers[s.WriteIndex(frame)]
}
