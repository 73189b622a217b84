package metadata

import "github.com/spaghettifunk/cadence/engine/math"

/**
 * @brief Vertex layout shared by mesh and sprite geometry.
 */
type Vertex struct {
	Position math.Vec3
	Color    math.Vec4
	TexCoord math.Vec2
}

// VertexSize is the byte size of Vertex as uploaded to the device.
const VertexSize = 4 * (3 + 4 + 2)

type MeshData struct {
	Vertices []Vertex
	Indices  []uint32
}

type LineVertex struct {
	Position math.Vec3
	Color    math.Vec4
}

const LineVertexSize = 4 * (3 + 4)

// LineData holds pairs of vertices, one segment per pair.
type LineData struct {
	Vertices []LineVertex
}
