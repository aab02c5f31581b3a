package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
)

type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Width  uint32
	Height uint32
	Depth  bool
}

// FindMemoryIndex returns the first memory type allowed by typeFilter with
// every property of propertyFlags, -1 if there is none.
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (d *Device) allocate(requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlags, memory *vk.DeviceMemory) error {
	requirements.Deref()
	index := d.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if index < 0 {
		return fmt.Errorf("no memory type with properties %#x", properties)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	return check("vkAllocateMemory", vk.AllocateMemory(d.LogicalDevice, &allocateInfo, d.Instance.Allocator, memory))
}

// NewRenderTarget creates a device local 2D image usable as a render target
// and as a sampled image, with a view covering it. The image is moved to
// attachment optimal layout.
func NewRenderTarget(device *Device, width, height uint32, format gputypes.TextureFormat) (*Image, error) {
	vkFormat, ok := TextureFormat(format)
	if !ok {
		return nil, fmt.Errorf("texture format %v is not supported", format)
	}
	img := &Image{Format: vkFormat, Width: width, Height: height, Depth: isDepthFormat(format)}

	usage := vk.ImageUsageFlags(vk.ImageUsageSampledBit) | vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	layout := vk.ImageLayoutColorAttachmentOptimal
	if img.Depth {
		usage = vk.ImageUsageFlags(vk.ImageUsageSampledBit) | vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		if hasStencil(format) {
			aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
		}
		layout = vk.ImageLayoutDepthStencilAttachmentOptimal
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        vkFormat,
		Extent:        vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := check("vkCreateImage", vk.CreateImage(device.LogicalDevice, &imageCreateInfo, device.Instance.Allocator, &img.Handle)); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device.LogicalDevice, img.Handle, &requirements)
	if err := device.allocate(requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), &img.Memory); err != nil {
		img.Destroy(device)
		return nil, err
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(device.LogicalDevice, img.Handle, img.Memory, 0)); err != nil {
		img.Destroy(device)
		return nil, err
	}

	subresources := vk.ImageSubresourceRange{
		AspectMask: aspect,
		LevelCount: 1,
		LayerCount: 1,
	}
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            img.Handle,
		ViewType:         vk.ImageViewType2d,
		Format:           vkFormat,
		SubresourceRange: subresources,
	}
	if err := check("vkCreateImageView", vk.CreateImageView(device.LogicalDevice, &viewCreateInfo, device.Instance.Allocator, &img.View)); err != nil {
		img.Destroy(device)
		return nil, err
	}

	err := RunSingleUse(device, func(cb *CommandBuffer) {
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           vk.ImageLayoutUndefined,
			NewLayout:           layout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange:    subresources,
		}
		vk.CmdPipelineBarrier(cb.Handle,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	})
	if err != nil {
		img.Destroy(device)
		return nil, err
	}
	return img, nil
}

func (img *Image) Destroy(device *Device) {
	if img.View != nil {
		vk.DestroyImageView(device.LogicalDevice, img.View, device.Instance.Allocator)
		img.View = nil
	}
	if img.Handle != nil {
		vk.DestroyImage(device.LogicalDevice, img.Handle, device.Instance.Allocator)
		img.Handle = nil
	}
	if img.Memory != nil {
		vk.FreeMemory(device.LogicalDevice, img.Memory, device.Instance.Allocator)
		img.Memory = nil
	}
}

type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
}

// NewBuffer creates a host visible buffer usable as vertex, index, uniform
// and indirect arguments buffer.
func NewBuffer(device *Device, size uint64) (*Buffer, error) {
	b := &Buffer{Size: size}
	usage := vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit) | vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit) |
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit) | vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit) |
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if err := check("vkCreateBuffer", vk.CreateBuffer(device.LogicalDevice, &createInfo, device.Instance.Allocator, &b.Handle)); err != nil {
		return nil, err
	}
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device.LogicalDevice, b.Handle, &requirements)
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	if err := device.allocate(requirements, hostVisible, &b.Memory); err != nil {
		b.Destroy(device)
		return nil, err
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(device.LogicalDevice, b.Handle, b.Memory, 0)); err != nil {
		b.Destroy(device)
		return nil, err
	}
	return b, nil
}

// Upload copies data at the start of the buffer. The buffer must not be in
// use by the queue.
func (b *Buffer) Upload(device *Device, data []byte) error {
	if uint64(len(data)) > b.Size {
		return fmt.Errorf("%d bytes do not fit a buffer of %d", len(data), b.Size)
	}
	var mapped unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(device.LogicalDevice, b.Memory, 0, vk.DeviceSize(len(data)), 0, &mapped)); err != nil {
		return err
	}
	defer vk.UnmapMemory(device.LogicalDevice, b.Memory)
	if n := vk.Memcopy(mapped, data); n != len(data) {
		return fmt.Errorf("copied %d bytes out of %d", n, len(data))
	}
	return nil
}

func (b *Buffer) Destroy(device *Device) {
	if b.Handle != nil {
		vk.DestroyBuffer(device.LogicalDevice, b.Handle, device.Instance.Allocator)
		b.Handle = nil
	}
	if b.Memory != nil {
		vk.FreeMemory(device.LogicalDevice, b.Memory, device.Instance.Allocator)
		b.Memory = nil
	}
}
