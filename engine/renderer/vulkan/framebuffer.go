package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

type Framebuffer struct {
	Handle        vk.Framebuffer
	Attachments   []vk.ImageView
	Width, Height uint32
	Renderpass    *Renderpass
}

func FramebufferCreate(device *Device, renderpass *Renderpass, width, height uint32, attachments []vk.ImageView) (*Framebuffer, error) {
	fb := &Framebuffer{
		// Take a copy of the attachments
		Attachments: append([]vk.ImageView(nil), attachments...),
		Width:       width,
		Height:      height,
		Renderpass:  renderpass,
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(device.LogicalDevice, &createInfo, device.Instance.Allocator, &fb.Handle)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return fb, nil
}

func (fb *Framebuffer) Destroy(device *Device) {
	if fb.Handle != nil {
		vk.DestroyFramebuffer(device.LogicalDevice, fb.Handle, device.Instance.Allocator)
		fb.Handle = nil
	}
	fb.Attachments = nil
	fb.Renderpass = nil
}

// targetSet is the render target views bound together, as the key of the
// framebuffer cache.
type targetSet struct {
	rtvs [8]metadata.Handle
	dsv  metadata.Handle
	// extent of a set without attachments
	width, height uint32
}

// attachment describes one view of a target set.
type attachment struct {
	view          vk.ImageView
	format        vk.Format
	width, height uint32
}

// resolveTargets looks up the views of a target set and checks they can be
// attachments of one framebuffer.
func resolveTargets(reg *Registry, set targetSet) (RenderpassFormats, []attachment, error) {
	var formats RenderpassFormats
	var out []attachment
	add := func(h metadata.Handle, depth bool) error {
		obj, ok := reg.Lookup(h)
		if !ok || obj.Kind != OBJECT_KIND_TEXTURE_VIEW {
			return fmt.Errorf("handle %d is not a texture view", h)
		}
		if obj.IsDepth != depth {
			return fmt.Errorf("view of '%s' is bound as the wrong kind of target", obj.Name)
		}
		if len(out) > 0 && (obj.Width != out[0].width || obj.Height != out[0].height) {
			return fmt.Errorf("view of '%s' is %dx%d, other targets are %dx%d", obj.Name, obj.Width, obj.Height, out[0].width, out[0].height)
		}
		out = append(out, attachment{view: obj.View, format: obj.Format, width: obj.Width, height: obj.Height})
		return nil
	}
	for _, h := range set.rtvs {
		if h == metadata.NullHandle {
			continue
		}
		if err := add(h, false); err != nil {
			return formats, nil, err
		}
		formats.Colors[formats.NumColor] = out[len(out)-1].format
		formats.NumColor++
	}
	if set.dsv != metadata.NullHandle {
		if err := add(set.dsv, true); err != nil {
			return formats, nil, err
		}
		formats.Depth = out[len(out)-1].format
		formats.HasDepth = true
	}
	return formats, out, nil
}

// attachmentIndex returns the index of rtv in the framebuffer of set.
func (set targetSet) attachmentIndex(rtv metadata.Handle) (uint32, bool) {
	index := uint32(0)
	for _, h := range set.rtvs {
		if h == metadata.NullHandle {
			continue
		}
		if h == rtv {
			return index, true
		}
		index++
	}
	return 0, false
}

// targetCache keeps a render pass per attachment format set and a
// framebuffer per target set.
type targetCache struct {
	device       *Device
	renderpasses map[RenderpassFormats]*Renderpass
	framebuffers map[targetSet]*Framebuffer
}

func newTargetCache(device *Device) *targetCache {
	return &targetCache{
		device:       device,
		renderpasses: make(map[RenderpassFormats]*Renderpass),
		framebuffers: make(map[targetSet]*Framebuffer),
	}
}

func (c *targetCache) framebuffer(reg *Registry, set targetSet) (*Framebuffer, error) {
	if fb, ok := c.framebuffers[set]; ok {
		return fb, nil
	}
	formats, attachments, err := resolveTargets(reg, set)
	if err != nil {
		return nil, err
	}
	rp, ok := c.renderpasses[formats]
	if !ok {
		if rp, err = RenderpassCreate(c.device, formats); err != nil {
			return nil, err
		}
		c.renderpasses[formats] = rp
	}
	width, height := set.width, set.height
	views := make([]vk.ImageView, len(attachments))
	for i, a := range attachments {
		views[i] = a.view
		width, height = a.width, a.height
	}
	fb, err := FramebufferCreate(c.device, rp, width, height, views)
	if err != nil {
		return nil, err
	}
	c.framebuffers[set] = fb
	return fb, nil
}

func (c *targetCache) destroy() {
	for set, fb := range c.framebuffers {
		fb.Destroy(c.device)
		delete(c.framebuffers, set)
	}
	for formats, rp := range c.renderpasses {
		rp.Destroy(c.device)
		delete(c.renderpasses, formats)
	}
}
