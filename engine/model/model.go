package model

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-osci/engine/renderer/bind_group_provider"
)

// model is the implementation of the Model interface.
type model struct {
	name         string
	meshProvider bind_group_provider.BindGroupProvider
	vertexData   []byte
	indexData    []byte
	vertexCount  int
	indexCount   int
}

// Model is an indexed triangle mesh serialized for upload. It is uploaded once and shared
// by every instance drawn with it.
type Model interface {
	// Name returns the model identifier, also the label of its mesh provider.
	Name() string

	// MeshProvider returns the provider that will hold the mesh's vertex and index buffers
	// once the renderer uploads them.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the mesh provider
	MeshProvider() bind_group_provider.BindGroupProvider

	// VertexData returns the packed GPUVertex bytes.
	VertexData() []byte

	// IndexData returns the little-endian uint32 indices.
	IndexData() []byte

	// VertexCount returns the number of vertices.
	VertexCount() int

	// IndexCount returns the number of indices issued per instance.
	IndexCount() int
}

var _ Model = &model{}

// NewModel serializes a triangle list mesh. Every index must address a vertex and the
// index count must be a multiple of three.
//
// Parameters:
//   - name: the model identifier
//   - vertices: the mesh vertices
//   - indices: the triangle list indices
//
// Returns:
//   - Model: the mesh
//   - error: an error if the indices do not describe whole triangles over vertices
func NewModel(name string, vertices []GPUVertex, indices []uint32) (Model, error) {
	if len(indices) == 0 || len(indices)%3 != 0 {
		return nil, fmt.Errorf("model %s: %d indices do not form whole triangles", name, len(indices))
	}
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			return nil, fmt.Errorf("model %s: index %d references vertex %d of %d", name, i, idx, len(vertices))
		}
	}

	provider := bind_group_provider.NewBindGroupProvider(name)
	provider.SetIndexCount(len(indices))
	return &model{
		name:         name,
		meshProvider: provider,
		vertexData:   MarshalVertices(vertices),
		indexData:    MarshalIndices(indices),
		vertexCount:  len(vertices),
		indexCount:   len(indices),
	}, nil
}

func (m *model) Name() string {
	return m.name
}

func (m *model) MeshProvider() bind_group_provider.BindGroupProvider {
	return m.meshProvider
}

func (m *model) VertexData() []byte {
	return m.vertexData
}

func (m *model) IndexData() []byte {
	return m.indexData
}

func (m *model) VertexCount() int {
	return m.vertexCount
}

func (m *model) IndexCount() int {
	return m.indexCount
}
