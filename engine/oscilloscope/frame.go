package oscilloscope

import "errors"

// FrameState is the position of the frame driver within a single tick.
type FrameState int

const (
	// StateIdle is the state between ticks.
	StateIdle FrameState = iota

	// StateComputeDispatched means the compute pass of the current frame was submitted.
	StateComputeDispatched

	// StateRenderInProgress means the surface texture was acquired and the draw is being encoded.
	StateRenderInProgress

	// StatePresented means the frame was submitted and presented.
	StatePresented
)

// String returns a readable name for the state.
func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputeDispatched:
		return "compute_dispatched"
	case StateRenderInProgress:
		return "render_in_progress"
	case StatePresented:
		return "presented"
	default:
		return "unknown"
	}
}

// FrameResult describes what one Tick did.
type FrameResult struct {
	// Frame is the index of the frame the tick executed.
	Frame uint64
	// State is the last state the tick reached before returning to idle.
	State FrameState
	// Skipped is true when rendering was skipped for this tick.
	Skipped bool
	// Reconfigured is true when the surface was reconfigured during the tick.
	Reconfigured bool
	// Rebuilt is true when the render pipeline was rebuilt after a surface format change.
	Rebuilt bool
	// ReadIndex is the particle buffer bound as compute input.
	ReadIndex int
	// WriteIndex is the particle buffer written by compute and drawn.
	WriteIndex int
	// WorkGroups is the number of workgroups dispatched along x, zero if compute did not run.
	WorkGroups uint32
}

var (
	// ErrClosed is returned by Tick after the oscilloscope was released.
	ErrClosed = errors.New("oscilloscope: closed")

	// ErrWorkgroupSize is returned when the compute program's workgroup size differs from
	// the configured one.
	ErrWorkgroupSize = errors.New("oscilloscope: workgroup size mismatch")
)
