package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
)

type Fence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(device *Device, createSignaled bool) (*Fence, error) {
	fence := &Fence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	if err := check("vkCreateFence", vk.CreateFence(device.LogicalDevice, &fenceCreateInfo, device.Instance.Allocator, &fence.Handle)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return fence, nil
}

func (f *Fence) Destroy(device *Device) {
	if f.Handle != nil {
		vk.DestroyFence(device.LogicalDevice, f.Handle, device.Instance.Allocator)
		f.Handle = nil
	}
	f.IsSignaled = false
}

// Wait blocks until the fence is signaled or timeoutNs elapses.
func (f *Fence) Wait(device *Device, timeoutNs uint64) error {
	if f.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(device.LogicalDevice, 1, []vk.Fence{f.Handle}, vk.True, timeoutNs)
	if result == vk.Timeout {
		core.LogWarn("vk_fence_wait - Timed out")
	}
	if err := check("vkWaitForFences", result); err != nil {
		return err
	}
	f.IsSignaled = true
	return nil
}

func (f *Fence) Reset(device *Device) error {
	if !f.IsSignaled {
		return nil
	}
	if err := check("vkResetFences", vk.ResetFences(device.LogicalDevice, 1, []vk.Fence{f.Handle})); err != nil {
		core.LogError("%s", err)
		return err
	}
	f.IsSignaled = false
	return nil
}
