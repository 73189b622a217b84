package renderer

import (
	"encoding/binary"
	m "math"
	"testing"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/math"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFloat(b []byte, index int) float32 {
	return m.Float32frombits(binary.LittleEndian.Uint32(b[index*4:]))
}

func TestConstantBufferPoolSlotsAreAligned(t *testing.T) {
	d, _ := newTestDevice(t, true)
	p := NewConstantBufferPool(d, SpriteConstantsSize, 3, "test")
	assert.Equal(t, ConstantBufferAlignment, p.SlotSize())

	a := p.Alloc()
	b := p.Alloc()
	assert.Len(t, a.SysMem, int(ConstantBufferAlignment))
	assert.Equal(t, uint64(ConstantBufferAlignment), uint64(b.GPUAddress-a.GPUAddress))
	assert.NotEqual(t, a.CBV, b.CBV)
	assert.Equal(t, 2, p.Used())
}

func TestConstantBufferPoolAllocatesContiguousSlots(t *testing.T) {
	for _, tc := range []struct {
		name  string
		size  uint32
		count int
	}{
		{"sprite", SpriteConstantsSize, 1},
		{"sprite", SpriteConstantsSize, 5},
		{"mesh", MeshConstantsSize, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, _ := newTestDevice(t, true)
			p := NewConstantBufferPool(d, tc.size, tc.count, "seq")
			base := p.upload.GPUAddress()
			mem := p.upload.Bytes()
			slot := uint64(p.SlotSize())

			for round := 0; round < 2; round++ {
				for i := 0; i < tc.count; i++ {
					cb := p.Alloc()
					off := uint64(i) * slot
					assert.Equal(t, base+metadata.GPUAddress(off), cb.GPUAddress, "slot %d", i)
					require.Len(t, cb.SysMem, int(slot))
					assert.Same(t, &mem[off], &cb.SysMem[0], "slot %d", i)
				}
				p.Free()
			}
		})
	}
}

func TestConstantBufferPoolExhaustionAndFree(t *testing.T) {
	d, _ := newTestDevice(t, true)
	p := NewConstantBufferPool(d, MeshConstantsSize, 2, "test")
	first := p.Alloc()
	p.Alloc()
	requireFatal(t, core.ErrCapacityExhausted, func() { p.Alloc() })

	p.Free()
	assert.Equal(t, 0, p.Used())
	assert.Equal(t, first.GPUAddress, p.Alloc().GPUAddress)
}

func TestConstantBufferManagerPools(t *testing.T) {
	d, _ := newTestDevice(t, true)
	mgr := NewConstantBufferManager(d, 4)
	mgr.Pool(MeshConstType).Alloc()
	mgr.Pool(SpriteConstType).Alloc()
	mgr.Pool(SpriteConstType).Alloc()
	assert.Equal(t, 1, mgr.Pool(MeshConstType).Used())
	assert.Equal(t, 2, mgr.Pool(SpriteConstType).Used())

	mgr.Free()
	assert.Equal(t, 0, mgr.Pool(MeshConstType).Used())
	assert.Equal(t, 0, mgr.Pool(SpriteConstType).Used())
}

func TestMeshConstantsEncodeTransposed(t *testing.T) {
	c := MeshConstants{
		World:      math.NewMat4Translation(math.NewVec3(3, 4, 5)),
		View:       math.NewMat4Identity(),
		Projection: math.NewMat4Identity(),
	}
	buf := make([]byte, MeshConstantsSize)
	c.Encode(buf)

	assert.Equal(t, float32(3), readFloat(buf, 3))
	assert.Equal(t, float32(4), readFloat(buf, 7))
	assert.Equal(t, float32(5), readFloat(buf, 11))
	assert.Equal(t, float32(1), readFloat(buf, 16))
	assert.Equal(t, float32(1), readFloat(buf, 47))
}

func TestSpriteConstantsEncode(t *testing.T) {
	c := SpriteConstants{
		ScreenRes:       math.NewVec2(640, 480),
		Pos:             math.NewVec2(10, 20),
		Scale:           math.NewVec2(2, 3),
		TexSize:         math.NewVec2(64, 32),
		TexSampleOffset: math.NewVec2(16, 0),
		TexSampleSize:   math.NewVec2(16, 16),
		Z:               0.5,
		Alpha:           1,
	}
	buf := make([]byte, SpriteConstantsSize)
	require.NotPanics(t, func() { c.Encode(buf) })

	want := []float32{640, 480, 10, 20, 2, 3, 64, 32, 16, 0, 16, 16, 0.5, 1}
	for i, f := range want {
		assert.Equal(t, f, readFloat(buf, i), "float %d", i)
	}
}
