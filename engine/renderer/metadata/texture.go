package metadata

import "github.com/gogpu/gputypes"

/**
 * @brief Represents a texture.
 */
type Texture interface {
	Resource
	Format() gputypes.TextureFormat
	Width() uint32
	Height() uint32
}

/**
 * @brief A view of a texture: shader resource, render target,
 * depth-stencil or unordered access.
 */
type TextureView interface {
	ResourceView
	Texture() Texture
	/** @brief The format the view interprets the texture with. */
	Format() gputypes.TextureFormat
}
