package model

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVertexSizeMatchesLayout(t *testing.T) {
	v := GPUVertex{}
	assert.Equal(t, VertexSize, v.Size())
	assert.Len(t, v.Marshal(), VertexSize)

	l := VertexLayout()
	assert.Equal(t, uint64(VertexSize), l.ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeVertex, l.StepMode)
	require.Len(t, l.Attributes, 3)
	assert.Equal(t, uint32(3), l.Attributes[0].ShaderLocation)
	assert.Equal(t, uint64(20), l.Attributes[2].Offset)
}

func TestUnitQuad(t *testing.T) {
	q := UnitQuad([4]float32{0, 1, 0, 1})

	assert.Equal(t, QuadName, q.Name())
	assert.Equal(t, 4, q.VertexCount())
	assert.Equal(t, 6, q.IndexCount())
	assert.Equal(t, 6, q.MeshProvider().IndexCount())
	assert.Len(t, q.VertexData(), 4*VertexSize)
	require.Len(t, q.IndexData(), 24)

	for i, want := range QuadIndices {
		assert.Equal(t, want, binary.LittleEndian.Uint32(q.IndexData()[i*4:]))
	}

	// last corner is (1, 1)
	last := q.VertexData()[3*VertexSize:]
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(last[0:])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(last[4:])))
	// green channel of the color
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(last[24:])))
}

func TestNewModelRejectsBadIndices(t *testing.T) {
	vertices := make([]GPUVertex, 3)

	_, err := NewModel("tri", vertices, []uint32{0, 1})
	assert.ErrorContains(t, err, "whole triangles")

	_, err = NewModel("tri", vertices, []uint32{0, 1, 3})
	assert.ErrorContains(t, err, "references vertex 3")

	m, err := NewModel("tri", vertices, []uint32{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, "tri", m.MeshProvider().Label())
	assert.Equal(t, 3, m.MeshProvider().IndexCount())
}
