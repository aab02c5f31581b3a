package resources

import (
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

type Texture struct {
	resource
	width  uint32
	height uint32
	format gputypes.TextureFormat
}

var _ metadata.Texture = (*Texture)(nil)

func (t *Texture) Format() gputypes.TextureFormat {
	return t.format
}

func (t *Texture) Width() uint32 {
	return t.width
}

func (t *Texture) Height() uint32 {
	return t.height
}

type TextureView struct {
	deviceObject
	texture  *Texture
	viewType metadata.ViewType
	format   gputypes.TextureFormat
}

var _ metadata.TextureView = (*TextureView)(nil)

func (v *TextureView) ViewType() metadata.ViewType {
	return v.viewType
}

func (v *TextureView) Resource() metadata.Resource {
	return v.texture
}

func (v *TextureView) Texture() metadata.Texture {
	return v.texture
}

func (v *TextureView) Format() gputypes.TextureFormat {
	return v.format
}
