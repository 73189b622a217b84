package renderer

import (
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

type ConstantBufferType int

const (
	MeshConstType ConstantBufferType = iota
	SpriteConstType
	ConstTypeCount
)

var constantBufferSizes = [ConstTypeCount]uint32{
	MeshConstType:   MeshConstantsSize,
	SpriteConstType: SpriteConstantsSize,
}

var constantBufferNames = [ConstTypeCount]string{
	MeshConstType:   "mesh",
	SpriteConstType: "sprite",
}

// ConstantBufferManager owns one pool per constant layout for a worker and
// pending frame.
type ConstantBufferManager struct {
	pools [ConstTypeCount]*ConstantBufferPool
}

func NewConstantBufferManager(device metadata.Device, maxNumCbv int) *ConstantBufferManager {
	m := &ConstantBufferManager{}
	for t := ConstantBufferType(0); t < ConstTypeCount; t++ {
		m.pools[t] = NewConstantBufferPool(device, constantBufferSizes[t], maxNumCbv, constantBufferNames[t])
	}
	return m
}

func (m *ConstantBufferManager) Pool(t ConstantBufferType) *ConstantBufferPool {
	return m.pools[t]
}

func (m *ConstantBufferManager) Free() {
	for _, p := range m.pools {
		p.Free()
	}
}

func (m *ConstantBufferManager) Shutdown() {
	for _, p := range m.pools {
		p.Shutdown()
	}
}
