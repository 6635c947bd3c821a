package model

// QuadName is the mesh provider label of the unit quad, matching its vertex buffer label.
const QuadName = "Vertex Buffer"

// QuadIndices are the two triangles of the unit quad.
var QuadIndices = []uint32{0, 1, 2, 2, 1, 3}

// UnitQuad builds the fixed quad shared by every line instance. Corners span [-1, 1] on
// both axes, normals face +z and every vertex carries the same color.
//
// Parameters:
//   - color: the RGBA color of every vertex
//
// Returns:
//   - Model: the indexed quad mesh
func UnitQuad(color [4]float32) Model {
	normal := [3]float32{0, 0, 1}
	vertices := []GPUVertex{
		{Position: [2]float32{-1, -1}, Normal: normal, Color: color},
		{Position: [2]float32{-1, 1}, Normal: normal, Color: color},
		{Position: [2]float32{1, -1}, Normal: normal, Color: color},
		{Position: [2]float32{1, 1}, Normal: normal, Color: color},
	}
	m, err := NewModel(QuadName, vertices, QuadIndices)
	if err != nil {
		panic(err)
	}
	return m
}
