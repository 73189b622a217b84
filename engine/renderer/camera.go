package renderer

import (
	m "math"

	"github.com/spaghettifunk/cadence/engine/math"
)

// 89 degrees
const pitchLimit float32 = 1.55334306

/**
 * @brief A left-handed look-to camera. The view matrix is rebuilt lazily
 * after the position or orientation changed.
 */
type Camera struct {
	position math.Vec3
	yaw      float32
	pitch    float32

	fovY       float32
	nearClip   float32
	farClip    float32
	aspect     float32
	isDirty    bool
	viewMatrix math.Mat4
}

func NewCamera(width, height uint32) *Camera {
	c := &Camera{
		fovY:     math.DegToRad(45),
		nearClip: 0.1,
		farClip:  1000,
	}
	c.SetAspect(width, height)
	c.SetCamera(math.NewVec3(0, 0, -5), math.NewVec3Forward())
	return c
}

// SetCamera places the camera at pos looking along dir.
func (c *Camera) SetCamera(pos, dir math.Vec3) {
	c.position = pos
	d := dir.Normalized()
	c.yaw = float32(m.Atan2(float64(d.X), float64(d.Z)))
	c.pitch = math.Clamp(float32(m.Asin(float64(d.Y))), -pitchLimit, pitchLimit)
	c.isDirty = true
}

func (c *Camera) SetCameraPos(pos math.Vec3) {
	c.position = pos
	c.isDirty = true
}

func (c *Camera) Position() math.Vec3 {
	return c.position
}

// Direction is the unit vector the camera looks along.
func (c *Camera) Direction() math.Vec3 {
	sy, cy := m.Sincos(float64(c.yaw))
	sp, cp := m.Sincos(float64(c.pitch))
	return math.NewVec3(float32(cp*sy), float32(sp), float32(cp*cy))
}

func (c *Camera) right() math.Vec3 {
	return math.NewVec3Up().Cross(c.Direction()).Normalized()
}

func (c *Camera) MoveFront(amount float32) {
	c.position = c.position.Add(c.Direction().MulScalar(amount))
	c.isDirty = true
}

func (c *Camera) MoveRight(amount float32) {
	c.position = c.position.Add(c.right().MulScalar(amount))
	c.isDirty = true
}

func (c *Camera) MoveUp(amount float32) {
	c.position = c.position.Add(math.NewVec3Up().MulScalar(amount))
	c.isDirty = true
}

func (c *Camera) Yaw(amount float32) {
	c.yaw += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	// Clamp to avoid Gimbal lock.
	c.pitch = math.Clamp(c.pitch+amount, -pitchLimit, pitchLimit)
	c.isDirty = true
}

func (c *Camera) SetAspect(width, height uint32) {
	if height == 0 {
		height = 1
	}
	c.aspect = float32(width) / float32(height)
}

func (c *Camera) View() math.Mat4 {
	if c.isDirty {
		c.viewMatrix = math.NewMat4LookTo(c.position, c.Direction(), math.NewVec3Up())
		c.isDirty = false
	}
	return c.viewMatrix
}

func (c *Camera) Projection() math.Mat4 {
	return math.NewMat4Perspective(c.fovY, c.aspect, c.nearClip, c.farClip)
}
