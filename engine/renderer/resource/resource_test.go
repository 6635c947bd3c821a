package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAddAndGet(t *testing.T) {
	a := NewArena()

	h := a.Add(KindBuffer, "Particle Buffer 0", []byte{1, 2, 3}, nil)
	require.NotEqual(t, InvalidHandle, h)

	obj, ok := a.Get(h)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, obj)

	kind, ok := a.Kind(h)
	require.True(t, ok)
	assert.Equal(t, KindBuffer, kind)
	assert.Equal(t, "Particle Buffer 0", a.Label(h))
	assert.Equal(t, 1, a.Live())

	_, ok = a.Get(InvalidHandle)
	assert.False(t, ok)
	_, ok = a.Get(Handle(99))
	assert.False(t, ok)
}

func TestArenaReleaseExactlyOnce(t *testing.T) {
	a := NewArena()
	calls := 0
	h := a.Add(KindBindGroup, "Bind Group 0", struct{}{}, func() { calls++ })

	assert.True(t, a.Release(h))
	assert.False(t, a.Release(h))
	assert.Equal(t, 0, a.ReleaseAll())

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, a.ReleaseCount(h))
	assert.Equal(t, 0, a.Live())

	_, ok := a.Get(h)
	assert.False(t, ok)
}

func TestArenaReleaseAllReverseOrder(t *testing.T) {
	a := NewArena()
	var order []string
	for _, label := range []string{"buffer", "layout", "bind group", "pipeline"} {
		l := label
		a.Add(KindBuffer, l, l, func() { order = append(order, l) })
	}

	assert.Equal(t, 4, a.ReleaseAll())
	assert.Equal(t, []string{"pipeline", "bind group", "layout", "buffer"}, order)
	assert.Equal(t, 0, a.ReleaseAll())

	for _, h := range a.Handles() {
		assert.Equal(t, 1, a.ReleaseCount(h), "handle %d", h)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "buffer", KindBuffer.String())
	assert.Equal(t, "render_pipeline", KindRenderPipeline.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
