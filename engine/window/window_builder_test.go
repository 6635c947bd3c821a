package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderOptions(t *testing.T) {
	w := &engineWindow{width: 1280, height: 720}

	WithTitle("scope")(w)
	WithSize(800, 0)(w)
	WithSizeLimits(100, 50, 1920, 1080)(w)

	assert.Equal(t, "scope", w.title)
	assert.Equal(t, 800, w.width)
	assert.Equal(t, 720, w.height)
	assert.Equal(t, []int{100, 50, 1920, 1080}, []int{w.minWidth, w.minHeight, w.maxWidth, w.maxHeight})
}

func TestUninitializedWindow(t *testing.T) {
	w := &engineWindow{width: 640, height: 480}

	assert.False(t, w.IsRunning())
	assert.Nil(t, w.SurfaceDescriptor())
	assert.Error(t, w.Close())
	w.RequestClose()
	assert.Equal(t, 640, w.Width())
	assert.Equal(t, 480, w.Height())
}
