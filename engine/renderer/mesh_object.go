package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	m "math"

	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

var (
	ErrEmptyGeometry = errors.New("geometry has no vertices")
	ErrBadIndex      = errors.New("index out of range")
)

// MeshObject is indexed triangle geometry drawn with a world matrix.
type MeshObject struct {
	vb         metadata.Buffer
	ib         metadata.Buffer
	vbView     metadata.VertexBufferView
	ibView     metadata.IndexBufferView
	numIndices uint32
}

func newMeshObject(device metadata.Device, data metadata.MeshData) (*MeshObject, error) {
	if len(data.Vertices) == 0 || len(data.Indices) == 0 {
		return nil, ErrEmptyGeometry
	}
	for _, idx := range data.Indices {
		if int(idx) >= len(data.Vertices) {
			return nil, fmt.Errorf("mesh index %d with %d vertices: %w", idx, len(data.Vertices), ErrBadIndex)
		}
	}
	vb, err := device.CreateBuffer(encodeVertices(data.Vertices), "mesh-vb")
	if err != nil {
		return nil, err
	}
	ib, err := device.CreateBuffer(encodeIndices(data.Indices), "mesh-ib")
	if err != nil {
		vb.Release()
		return nil, err
	}
	return &MeshObject{
		vb:         vb,
		ib:         ib,
		vbView:     metadata.VertexBufferView{Buffer: vb, Stride: metadata.VertexSize, Size: uint32(vb.Size())},
		ibView:     metadata.IndexBufferView{Buffer: ib, Size: uint32(ib.Size())},
		numIndices: uint32(len(data.Indices)),
	}, nil
}

func (o *MeshObject) Kind() metadata.JobKind {
	return metadata.JobKindMesh
}

func (o *MeshObject) Draw(ctx *DrawContext, job *metadata.RenderJob) {
	cb := ctx.CBManager.Pool(MeshConstType).Alloc()
	consts := MeshConstants{World: job.Mesh.World, View: ctx.View, Projection: ctx.Projection}
	consts.Encode(cb.SysMem)

	ctx.List.SetPipelineState(ctx.Pipelines.Get(metadata.PipelineKindMesh))
	ctx.bindTable(cb.CBV)
	ctx.List.SetPrimitiveTopology(metadata.PrimitiveTopologyTriangleList)
	ctx.List.SetVertexBuffer(o.vbView)
	ctx.List.SetIndexBuffer(o.ibView)
	ctx.List.DrawIndexedInstanced(o.numIndices, 1)
}

func (o *MeshObject) release() {
	o.vb.Release()
	o.ib.Release()
}

func encodeVertices(vertices []metadata.Vertex) []byte {
	out := make([]byte, 0, len(vertices)*metadata.VertexSize)
	for _, v := range vertices {
		out = appendFloats(out, v.Position.X, v.Position.Y, v.Position.Z,
			v.Color.X, v.Color.Y, v.Color.Z, v.Color.W,
			v.TexCoord.X, v.TexCoord.Y)
	}
	return out
}

func encodeIndices(indices []uint32) []byte {
	out := make([]byte, 0, len(indices)*4)
	for _, idx := range indices {
		out = binary.LittleEndian.AppendUint32(out, idx)
	}
	return out
}

func appendFloats(out []byte, fs ...float32) []byte {
	for _, f := range fs {
		out = binary.LittleEndian.AppendUint32(out, m.Float32bits(f))
	}
	return out
}
