package renderer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSurfaceOutdated reports that the surface texture could not be acquired because the
	// surface no longer matches the window. The surface must be reconfigured before the next
	// frame. It is not fatal.
	ErrSurfaceOutdated = errors.New("renderer: surface outdated")

	// ErrDeviceLost reports that the GPU device is gone. It is fatal.
	ErrDeviceLost = errors.New("renderer: device lost")

	// ErrNoFrame is returned by draw and present calls made outside a BeginFrame/EndFrame pair.
	ErrNoFrame = errors.New("renderer: no frame in progress")

	// ErrPipelineNotRegistered is returned when a pipeline is used before the backend created it.
	ErrPipelineNotRegistered = errors.New("renderer: pipeline not registered")
)

// classifyAcquireError maps a surface acquisition error reported by wgpu to ErrSurfaceOutdated
// or ErrDeviceLost, keeping the original error in the chain.
func classifyAcquireError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "devicelost"), strings.Contains(msg, "device lost"),
		strings.Contains(msg, "outofmemory"), strings.Contains(msg, "out of memory"):
		return fmt.Errorf("%w: %w", ErrDeviceLost, err)
	case strings.Contains(msg, "outdated"), strings.Contains(msg, "lost"), strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %w", ErrSurfaceOutdated, err)
	default:
		return err
	}
}
