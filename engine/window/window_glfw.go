package window

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// errWindowClosed is returned when Close is called on a destroyed window.
var errWindowClosed = errors.New("window already closed")

// glfwWindow owns the GLFW window backing an engineWindow.
// All methods must run on the thread that created it.
type glfwWindow struct {
	handle    *glfw.Window
	running   bool
	destroyed bool
}

// openGLFW initializes GLFW, creates a window without a client API and routes its key
// and framebuffer events to w's callbacks. Escape requests a close.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func openGLFW(w *engineWindow) (*glfwWindow, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	// the surface comes from WebGPU, not an OpenGL context
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	handle, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create GLFW window: %w", err)
	}
	handle.SetSizeLimits(w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)
	gw := &glfwWindow{handle: handle, running: true}

	handle.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape {
			if action == glfw.Press {
				gw.requestClose()
			}
			return
		}
		code := uint32(key)
		switch {
		case action == glfw.Release && w.onKeyUp != nil:
			w.onKeyUp(code)
		case action != glfw.Release && w.onKeyDown != nil:
			w.onKeyDown(code)
		}
	})

	// Framebuffer size is in pixels and differs from the window size on high-DPI displays.
	// The surface must be configured in pixels.
	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width, w.height = width, height
		if w.onResize != nil {
			w.onResize(width, height)
		}
	})
	w.width, w.height = handle.GetFramebufferSize()

	return gw, nil
}

// surfaceDescriptor uses the wgpuglfw bridge, which picks the native handle for the
// platform (HWND, Xlib, Wayland or a Metal layer).
func (gw *glfwWindow) surfaceDescriptor() *wgpu.SurfaceDescriptor {
	if gw == nil || gw.destroyed {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(gw.handle)
}

func (gw *glfwWindow) isRunning() bool {
	return gw != nil && !gw.destroyed && gw.running && !gw.handle.ShouldClose()
}

// requestClose lets the message loop exit at its next check. The window stays alive so
// resources created from its surface can still be released.
func (gw *glfwWindow) requestClose() {
	if gw == nil || gw.destroyed {
		return
	}
	gw.running = false
	gw.handle.SetShouldClose(true)
}

// poll dispatches pending events without blocking and reports whether the loop should
// continue.
func (gw *glfwWindow) poll() bool {
	glfw.PollEvents()
	return gw.isRunning()
}

func (gw *glfwWindow) destroy() error {
	if gw == nil || gw.destroyed {
		return errWindowClosed
	}
	gw.requestClose()
	gw.handle.Destroy()
	gw.destroyed = true
	glfw.Terminate()
	return nil
}
