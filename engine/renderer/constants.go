package renderer

import (
	"encoding/binary"
	m "math"

	"github.com/spaghettifunk/cadence/engine/math"
)

// MeshConstants feeds mesh and line shaders. Matrices are stored transposed
// so shaders read them column-major.
type MeshConstants struct {
	World      math.Mat4
	View       math.Mat4
	Projection math.Mat4
}

const MeshConstantsSize = 3 * 64

// SpriteConstants places a textured quad in screen space.
type SpriteConstants struct {
	ScreenRes       math.Vec2
	Pos             math.Vec2
	Scale           math.Vec2
	TexSize         math.Vec2
	TexSampleOffset math.Vec2
	TexSampleSize   math.Vec2
	Z               float32
	Alpha           float32
}

const SpriteConstantsSize = 6*8 + 2*4

func (c *MeshConstants) Encode(dst []byte) {
	off := putMat4(dst, 0, c.World.Transposed())
	off = putMat4(dst, off, c.View.Transposed())
	putMat4(dst, off, c.Projection.Transposed())
}

func (c *SpriteConstants) Encode(dst []byte) {
	off := 0
	for _, v := range []math.Vec2{c.ScreenRes, c.Pos, c.Scale, c.TexSize, c.TexSampleOffset, c.TexSampleSize} {
		off = putFloat(dst, off, v.X)
		off = putFloat(dst, off, v.Y)
	}
	off = putFloat(dst, off, c.Z)
	putFloat(dst, off, c.Alpha)
}

func putMat4(dst []byte, off int, mt math.Mat4) int {
	for _, f := range mt.Data {
		off = putFloat(dst, off, f)
	}
	return off
}

func putFloat(dst []byte, off int, f float32) int {
	binary.LittleEndian.PutUint32(dst[off:], m.Float32bits(f))
	return off + 4
}
