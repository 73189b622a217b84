package renderer

import (
	"fmt"

	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// LineObject is a list of independent segments.
type LineObject struct {
	vb          metadata.Buffer
	vbView      metadata.VertexBufferView
	numVertices uint32
}

func newLineObject(device metadata.Device, data metadata.LineData) (*LineObject, error) {
	if len(data.Vertices) == 0 {
		return nil, ErrEmptyGeometry
	}
	if len(data.Vertices)%2 != 0 {
		return nil, fmt.Errorf("line data needs vertex pairs, got %d vertices", len(data.Vertices))
	}
	raw := make([]byte, 0, len(data.Vertices)*metadata.LineVertexSize)
	for _, v := range data.Vertices {
		raw = appendFloats(raw, v.Position.X, v.Position.Y, v.Position.Z, v.Color.X, v.Color.Y, v.Color.Z, v.Color.W)
	}
	vb, err := device.CreateBuffer(raw, "line-vb")
	if err != nil {
		return nil, err
	}
	return &LineObject{
		vb:          vb,
		vbView:      metadata.VertexBufferView{Buffer: vb, Stride: metadata.LineVertexSize, Size: uint32(vb.Size())},
		numVertices: uint32(len(data.Vertices)),
	}, nil
}

func (o *LineObject) Kind() metadata.JobKind {
	return metadata.JobKindLine
}

func (o *LineObject) Draw(ctx *DrawContext, job *metadata.RenderJob) {
	cb := ctx.CBManager.Pool(MeshConstType).Alloc()
	consts := MeshConstants{World: job.Line.World, View: ctx.View, Projection: ctx.Projection}
	consts.Encode(cb.SysMem)

	ctx.List.SetPipelineState(ctx.Pipelines.Get(metadata.PipelineKindLine))
	ctx.bindTable(cb.CBV)
	ctx.List.SetPrimitiveTopology(metadata.PrimitiveTopologyLineList)
	ctx.List.SetVertexBuffer(o.vbView)
	ctx.List.DrawInstanced(o.numVertices, 1)
}

func (o *LineObject) release() {
	o.vb.Release()
}
