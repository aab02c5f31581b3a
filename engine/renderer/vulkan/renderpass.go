package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
)

// RenderpassFormats identifies the render passes a set of render targets is
// compatible with.
type RenderpassFormats struct {
	Colors   [8]vk.Format
	NumColor int
	Depth    vk.Format
	HasDepth bool
}

/**
 * @brief A render pass that loads and stores every attachment. Render
 * target images stay in attachment optimal layout between passes, clears
 * are recorded inside the pass.
 */
type Renderpass struct {
	Handle  vk.RenderPass
	Formats RenderpassFormats
}

func RenderpassCreate(device *Device, formats RenderpassFormats) (*Renderpass, error) {
	var attachments []vk.AttachmentDescription
	var colorRefs []vk.AttachmentReference
	for i := 0; i < formats.NumColor; i++ {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         formats.Colors[i],
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if formats.HasDepth {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         formats.Depth,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpLoad,
			StencilStoreOp: vk.AttachmentStoreOpStore,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(formats.NumColor),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	rp := &Renderpass{Formats: formats}
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(device.LogicalDevice, &createInfo, device.Instance.Allocator, &rp.Handle)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return rp, nil
}

func (rp *Renderpass) Destroy(device *Device) {
	if rp.Handle != nil {
		vk.DestroyRenderPass(device.LogicalDevice, rp.Handle, device.Instance.Allocator)
		rp.Handle = nil
	}
}

func (rp *Renderpass) Begin(cb *CommandBuffer, fb *Framebuffer) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.Handle,
		Framebuffer: fb.Handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{
				Width:  fb.Width,
				Height: fb.Height,
			},
		},
	}
	vk.CmdBeginRenderPass(cb.Handle, &beginInfo, vk.SubpassContentsInline)
	cb.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (rp *Renderpass) End(cb *CommandBuffer) {
	vk.CmdEndRenderPass(cb.Handle)
	cb.State = COMMAND_BUFFER_STATE_RECORDING
}
