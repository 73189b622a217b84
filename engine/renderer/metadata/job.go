package metadata

import (
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/math"
)

type JobKind uint8

const (
	JobKindMesh JobKind = iota
	JobKindSprite
	JobKindLine
)

func (k JobKind) String() string {
	switch k {
	case JobKindMesh:
		return "mesh"
	case JobKindSprite:
		return "sprite"
	case JobKindLine:
		return "line"
	}
	return "unknown"
}

// RenderJob is one deferred draw. Only the payload matching Kind is read.
type RenderJob struct {
	Kind   JobKind
	Target core.Handle
	Mesh   MeshJob
	Sprite SpriteJob
	Line   LineJob
}

type MeshJob struct {
	World math.Mat4
}

type SpriteJob struct {
	PosX, PosY     int32
	ScaleX, ScaleY float32
	Z              float32
	// Rect selects a sub-rectangle of the texture when HasRect is set.
	Rect    Rect
	HasRect bool
	// Texture overrides the sprite's own texture unless it is core.InvalidHandle.
	Texture core.Handle
}

type LineJob struct {
	World math.Mat4
}
