package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		in, want uint32
	}{
		{0, 0},
		{1, 256},
		{64, 256},
		{256, 256},
		{257, 512},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.in, 256))
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 0, 3))
	assert.Equal(t, float32(-1), Clamp(float32(-4), -1, 1))
	assert.Equal(t, 2, Clamp(2, 0, 3))
}

func TestTranslationAppliesToRowVector(t *testing.T) {
	p := NewVec3(1, 2, 3).Transform(NewMat4Translation(NewVec3(10, 0, -1)))
	assert.True(t, p.Compare(NewVec3(11, 2, 2), 1e-6))
}

func TestMulOrder(t *testing.T) {
	// scale first, then translate
	world := NewMat4Scale(NewVec3(2, 2, 2)).Mul(NewMat4Translation(NewVec3(1, 0, 0)))
	p := NewVec3(1, 1, 1).Transform(world)
	assert.True(t, p.Compare(NewVec3(3, 2, 2), 1e-6))
}

func TestLookToMovesEyeToOrigin(t *testing.T) {
	eye := NewVec3(0, 0, -5)
	view := NewMat4LookTo(eye, NewVec3Forward(), NewVec3Up())
	p := eye.Transform(view)
	assert.True(t, p.Compare(Vec3{}, 1e-5))

	ahead := NewVec3(0, 0, 1).Transform(view)
	assert.InDelta(t, 6, ahead.Z, 1e-5)
}

func TestTransposed(t *testing.T) {
	mt := NewMat4Translation(NewVec3(1, 2, 3)).Transposed()
	assert.Equal(t, float32(1), mt.Data[3])
	assert.Equal(t, float32(2), mt.Data[7])
	assert.Equal(t, float32(3), mt.Data[11])
}
