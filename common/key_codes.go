package common

// Key codes delivered by window key callbacks. Printable keys use their ASCII value,
// as GLFW does.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeySpace = 32 // toggles the trigger
	KeyP     = 80 // toggles the profiler summary
	KeyR     = 82 // rebuilds the render pipeline
)
