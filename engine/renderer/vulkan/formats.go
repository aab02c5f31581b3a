package vulkan

import (
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
)

var textureFormats = map[gputypes.TextureFormat]vk.Format{
	gputypes.TextureFormatR8Unorm:              vk.FormatR8Unorm,
	gputypes.TextureFormatR16Float:             vk.FormatR16Sfloat,
	gputypes.TextureFormatR32Float:             vk.FormatR32Sfloat,
	gputypes.TextureFormatR32Uint:              vk.FormatR32Uint,
	gputypes.TextureFormatRG16Float:            vk.FormatR16g16Sfloat,
	gputypes.TextureFormatRGBA8Unorm:           vk.FormatR8g8b8a8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:       vk.FormatR8g8b8a8Srgb,
	gputypes.TextureFormatBGRA8Unorm:           vk.FormatB8g8r8a8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:       vk.FormatB8g8r8a8Srgb,
	gputypes.TextureFormatRGBA16Float:          vk.FormatR16g16b16a16Sfloat,
	gputypes.TextureFormatRGBA32Float:          vk.FormatR32g32b32a32Sfloat,
	gputypes.TextureFormatDepth16Unorm:         vk.FormatD16Unorm,
	gputypes.TextureFormatDepth24PlusStencil8:  vk.FormatD24UnormS8Uint,
	gputypes.TextureFormatDepth32Float:         vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth32FloatStencil8: vk.FormatD32SfloatS8Uint,
}

// TextureFormat returns the Vulkan format of f, false when this backend
// does not support it.
func TextureFormat(f gputypes.TextureFormat) (vk.Format, bool) {
	format, ok := textureFormats[f]
	return format, ok
}

func isDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return true
	}
	return false
}

func hasStencil(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8 || f == gputypes.TextureFormatDepth32FloatStencil8
}

func indexType(f gputypes.IndexFormat) (vk.IndexType, bool) {
	switch f {
	case gputypes.IndexFormatUint16:
		return vk.IndexTypeUint16, true
	case gputypes.IndexFormatUint32:
		return vk.IndexTypeUint32, true
	}
	return 0, false
}

var topologies = map[gputypes.PrimitiveTopology]vk.PrimitiveTopology{
	gputypes.PrimitiveTopologyPointList:     vk.PrimitiveTopologyPointList,
	gputypes.PrimitiveTopologyLineList:      vk.PrimitiveTopologyLineList,
	gputypes.PrimitiveTopologyLineStrip:     vk.PrimitiveTopologyLineStrip,
	gputypes.PrimitiveTopologyTriangleList:  vk.PrimitiveTopologyTriangleList,
	gputypes.PrimitiveTopologyTriangleStrip: vk.PrimitiveTopologyTriangleStrip,
}

func primitiveTopology(t gputypes.PrimitiveTopology) (vk.PrimitiveTopology, bool) {
	topology, ok := topologies[t]
	return topology, ok
}
