package renderer

import (
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/math"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

// quadGeometry is the unit quad shared by every sprite.
type quadGeometry struct {
	vb     metadata.Buffer
	ib     metadata.Buffer
	vbView metadata.VertexBufferView
	ibView metadata.IndexBufferView
}

func newQuadGeometry(device metadata.Device) (*quadGeometry, error) {
	white := math.NewVec4(1, 1, 1, 1)
	vertices := []metadata.Vertex{
		{Position: math.NewVec3(0, 0, 0), Color: white, TexCoord: math.NewVec2(0, 0)},
		{Position: math.NewVec3(1, 0, 0), Color: white, TexCoord: math.NewVec2(1, 0)},
		{Position: math.NewVec3(0, 1, 0), Color: white, TexCoord: math.NewVec2(0, 1)},
		{Position: math.NewVec3(1, 1, 0), Color: white, TexCoord: math.NewVec2(1, 1)},
	}
	vb, err := device.CreateBuffer(encodeVertices(vertices), "sprite-vb")
	if err != nil {
		return nil, err
	}
	ib, err := device.CreateBuffer(encodeIndices([]uint32{0, 1, 2, 2, 1, 3}), "sprite-ib")
	if err != nil {
		vb.Release()
		return nil, err
	}
	return &quadGeometry{
		vb:     vb,
		ib:     ib,
		vbView: metadata.VertexBufferView{Buffer: vb, Stride: metadata.VertexSize, Size: uint32(vb.Size())},
		ibView: metadata.IndexBufferView{Buffer: ib, Size: uint32(ib.Size())},
	}, nil
}

func (q *quadGeometry) release() {
	q.vb.Release()
	q.ib.Release()
}

// SpriteObject draws a screen-space textured quad. The texture is borrowed,
// destroying the sprite leaves it alive.
type SpriteObject struct {
	quad    *quadGeometry
	texture core.Handle
	rect    metadata.Rect
	hasRect bool
}

func (o *SpriteObject) Kind() metadata.JobKind {
	return metadata.JobKindSprite
}

func (o *SpriteObject) Draw(ctx *DrawContext, job *metadata.RenderJob) {
	sj := &job.Sprite
	texHandle := o.texture
	if sj.Texture != core.InvalidHandle {
		texHandle = sj.Texture
	}
	tex := ctx.Textures.resolve(texHandle)
	ctx.Textures.uploadIfPending(ctx.List, tex)

	desc := tex.tex.Desc()
	rect := metadata.Rect{Right: int32(desc.Width), Bottom: int32(desc.Height)}
	switch {
	case sj.HasRect:
		rect = sj.Rect
	case o.hasRect:
		rect = o.rect
	}

	consts := SpriteConstants{
		ScreenRes:       math.NewVec2(float32(ctx.ScreenWidth), float32(ctx.ScreenHeight)),
		Pos:             math.NewVec2(float32(sj.PosX), float32(sj.PosY)),
		Scale:           math.NewVec2(sj.ScaleX, sj.ScaleY),
		TexSize:         math.NewVec2(float32(desc.Width), float32(desc.Height)),
		TexSampleOffset: math.NewVec2(float32(rect.Left), float32(rect.Top)),
		TexSampleSize:   math.NewVec2(float32(rect.Width()), float32(rect.Height())),
		Z:               sj.Z,
		Alpha:           1,
	}
	cb := ctx.CBManager.Pool(SpriteConstType).Alloc()
	consts.Encode(cb.SysMem)

	ctx.List.SetPipelineState(ctx.Pipelines.Get(metadata.PipelineKindSprite))
	ctx.bindTable(cb.CBV, tex.srv)
	ctx.List.SetPrimitiveTopology(metadata.PrimitiveTopologyTriangleList)
	ctx.List.SetVertexBuffer(o.quad.vbView)
	ctx.List.SetIndexBuffer(o.quad.ibView)
	ctx.List.DrawIndexedInstanced(6, 1)
}
