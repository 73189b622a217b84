package renderer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
	"go.uber.org/atomic"
	"golang.org/x/image/draw"
)

var (
	ErrUnknownTexture = errors.New("unknown texture")
	ErrInvalidImage   = errors.New("invalid source image")
)

// maxSourceExtent bounds the images UpdateTextureWithImage will resample.
const maxSourceExtent = 16384

const tileSize = 16

type TextureInfo struct {
	ID     uuid.UUID
	Kind   metadata.TextureKind
	Width  uint32
	Height uint32
}

type textureEntry struct {
	id   uuid.UUID
	kind metadata.TextureKind
	tex  metadata.Texture
	srv  metadata.CPUDescriptorHandle

	mu      sync.Mutex
	staging *image.RGBA
	// set when staging holds pixels the device has not seen yet
	pending atomic.Bool
}

// TextureManager owns sampled textures and their SRVs. Pixel data lives in a
// CPU staging image and is uploaded by the first draw that samples the
// texture after it changed.
type TextureManager struct {
	device    metadata.Device
	allocator *DescriptorAllocator
	registry  *core.IdentifierRegistry[*textureEntry]
	dummy     core.Handle
}

func NewTextureManager(device metadata.Device, allocator *DescriptorAllocator) (*TextureManager, error) {
	tm := &TextureManager{
		device:    device,
		allocator: allocator,
		registry:  core.NewIdentifierRegistry[*textureEntry](64),
	}
	h, err := tm.create(metadata.TextureKindDummy, 2, 2, func(img *image.RGBA) {
		draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	})
	if err != nil {
		return nil, err
	}
	tm.dummy = h
	return tm, nil
}

func (tm *TextureManager) create(kind metadata.TextureKind, width, height uint32, fill func(*image.RGBA)) (core.Handle, error) {
	if width == 0 || height == 0 {
		return core.InvalidHandle, fmt.Errorf("%s texture with zero extent %dx%d", kind, width, height)
	}
	id := uuid.New()
	tex, err := tm.device.CreateTexture(metadata.TextureDesc{Width: width, Height: height, Format: metadata.FormatRGBA8},
		fmt.Sprintf("%s-%s", kind, id))
	if err != nil {
		return core.InvalidHandle, err
	}
	e := &textureEntry{
		id:      id,
		kind:    kind,
		tex:     tex,
		srv:     tm.allocator.Alloc(),
		staging: image.NewRGBA(image.Rect(0, 0, int(width), int(height))),
	}
	tm.device.CreateShaderResourceView(tex, e.srv)
	if fill != nil {
		fill(e.staging)
		e.pending.Store(true)
	}
	return tm.registry.AquireNewID(e), nil
}

// Dummy is the white texture used by sprites created without one.
func (tm *TextureManager) Dummy() core.Handle {
	return tm.dummy
}

// CreateTiledTexture builds a checkerboard of the given color and white.
func (tm *TextureManager) CreateTiledTexture(width, height uint32, r, g, b uint8) (core.Handle, error) {
	return tm.create(metadata.TextureKindTiled, width, height, func(img *image.RGBA) {
		c := color.RGBA{R: r, G: g, B: b, A: 0xff}
		for y := 0; y < int(height); y++ {
			for x := 0; x < int(width); x++ {
				if (x/tileSize+y/tileSize)%2 == 0 {
					img.SetRGBA(x, y, c)
				} else {
					img.SetRGBA(x, y, color.RGBA{0xff, 0xff, 0xff, 0xff})
				}
			}
		}
	})
}

func (tm *TextureManager) CreateDynamicTexture(width, height uint32) (core.Handle, error) {
	return tm.create(metadata.TextureKindDynamic, width, height, nil)
}

// UpdateTextureWithImage stages src for upload, scaling it to the texture size.
func (tm *TextureManager) UpdateTextureWithImage(h core.Handle, src image.Image) error {
	e, ok := tm.registry.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTexture, h)
	}
	if src == nil {
		return fmt.Errorf("%w: nil", ErrInvalidImage)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	dst := e.staging
	sb := src.Bounds()
	switch {
	case isUniform(src):
		draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
	case sb.Empty():
		return fmt.Errorf("%w: empty bounds %v", ErrInvalidImage, sb)
	case sb.Dx() > maxSourceExtent || sb.Dy() > maxSourceExtent:
		return fmt.Errorf("%w: bounds %v exceed %d pixels per side", ErrInvalidImage, sb, maxSourceExtent)
	case sb.Size() == dst.Bounds().Size():
		draw.Copy(dst, image.Point{}, src, sb, draw.Src, nil)
	default:
		draw.BiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	}
	e.pending.Store(true)
	return nil
}

func isUniform(src image.Image) bool {
	_, ok := src.(*image.Uniform)
	return ok
}

func (tm *TextureManager) Info(h core.Handle) (TextureInfo, bool) {
	e, ok := tm.registry.Lookup(h)
	if !ok {
		return TextureInfo{}, false
	}
	d := e.tex.Desc()
	return TextureInfo{ID: e.id, Kind: e.kind, Width: d.Width, Height: d.Height}, true
}

func (tm *TextureManager) resolve(h core.Handle) *textureEntry {
	e, ok := tm.registry.Lookup(h)
	if !ok {
		core.Fatal(core.ErrMisuse, "draw samples unknown texture %s", h)
	}
	return e
}

// uploadIfPending records the staged pixels into list. Only one worker wins
// the upload for a given change.
func (tm *TextureManager) uploadIfPending(list metadata.CommandList, e *textureEntry) {
	if !e.pending.CompareAndSwap(true, false) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	list.ResourceBarrier(e.tex, metadata.ResourceStatePixelShaderResource, metadata.ResourceStateCopyDest)
	list.UpdateTexture(e.tex, e.staging.Pix, uint32(e.staging.Stride))
	list.ResourceBarrier(e.tex, metadata.ResourceStateCopyDest, metadata.ResourceStatePixelShaderResource)
}

// remove unregisters h and returns a func that frees its device objects.
func (tm *TextureManager) remove(h core.Handle) (func(), error) {
	if h == tm.dummy {
		return nil, fmt.Errorf("the dummy texture cannot be destroyed")
	}
	e, ok := tm.registry.Lookup(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTexture, h)
	}
	if err := tm.registry.ReleaseID(h); err != nil {
		return nil, err
	}
	return func() { tm.release(e) }, nil
}

func (tm *TextureManager) release(e *textureEntry) {
	tm.allocator.FreeDescriptor(e.srv)
	e.tex.Release()
}

func (tm *TextureManager) Len() int {
	return tm.registry.Len()
}

func (tm *TextureManager) Shutdown() {
	var entries []*textureEntry
	tm.registry.Each(func(_ core.Handle, e *textureEntry) {
		entries = append(entries, e)
	})
	for _, e := range entries {
		tm.release(e)
	}
}
