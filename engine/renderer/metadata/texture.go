package metadata

type TextureKind int

const (
	/** @brief Solid white texture used when nothing else is bound. */
	TextureKindDummy TextureKind = iota
	/** @brief Checkerboard generated at creation. */
	TextureKindTiled
	/** @brief CPU-updatable texture, uploaded on the next draw that uses it. */
	TextureKindDynamic
)

func (k TextureKind) String() string {
	switch k {
	case TextureKindDummy:
		return "dummy"
	case TextureKindTiled:
		return "tiled"
	case TextureKindDynamic:
		return "dynamic"
	}
	return "unknown"
}
