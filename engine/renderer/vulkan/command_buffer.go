package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
)

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

func (s CommandBufferState) String() string {
	switch s {
	case COMMAND_BUFFER_STATE_READY:
		return "ready"
	case COMMAND_BUFFER_STATE_RECORDING:
		return "recording"
	case COMMAND_BUFFER_STATE_IN_RENDER_PASS:
		return "in render pass"
	case COMMAND_BUFFER_STATE_RECORDING_ENDED:
		return "recording ended"
	case COMMAND_BUFFER_STATE_SUBMITTED:
		return "submitted"
	}
	return "not allocated"
}

type CommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State CommandBufferState
	// The pool the buffer was allocated from.
	pool vk.CommandPool
}

// NewCommandPool creates a pool of resettable command buffers on the queue
// family of the device. A pool and its buffers must only be used from one
// goroutine at a time.
func NewCommandPool(device *Device) (vk.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.QueueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, device.Instance.Allocator, &pool)); err != nil {
		return nil, err
	}
	return pool, nil
}

// DestroyCommandPool frees pool together with every buffer allocated from it.
func DestroyCommandPool(device *Device, pool vk.CommandPool) {
	if pool != nil {
		vk.DestroyCommandPool(device.LogicalDevice, pool, device.Instance.Allocator)
	}
}

func NewCommandBuffer(device *Device, pool vk.CommandPool) (*CommandBuffer, error) {
	cb := &CommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
		pool:  pool,
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(device.LogicalDevice, &allocateInfo, handles)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	cb.Handle = handles[0]
	cb.State = COMMAND_BUFFER_STATE_READY
	return cb, nil
}

func (cb *CommandBuffer) Free(device *Device) {
	if cb.Handle != nil {
		vk.FreeCommandBuffers(device.LogicalDevice, cb.pool, 1, []vk.CommandBuffer{cb.Handle})
		cb.Handle = nil
	}
	cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (cb *CommandBuffer) Begin(isSingleUse bool) error {
	if cb.State != COMMAND_BUFFER_STATE_READY {
		return fmt.Errorf("cannot begin a command buffer that is %s", cb.State)
	}
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb.Handle, beginInfo)); err != nil {
		core.LogError("%s", err)
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

// IsRecording is true while commands can be added to the buffer.
func (cb *CommandBuffer) IsRecording() bool {
	return cb.State == COMMAND_BUFFER_STATE_RECORDING || cb.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (cb *CommandBuffer) End() error {
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(cb.Handle)); err != nil {
		core.LogError("%s", err)
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (cb *CommandBuffer) UpdateSubmitted() {
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// Reset makes a completed buffer recordable again.
func (cb *CommandBuffer) Reset() error {
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(cb.Handle, 0)); err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_READY
	return nil
}

// RunSingleUse records fn into a one time command buffer of the device
// pool, submits it and waits for the queue to go idle.
func RunSingleUse(device *Device, fn func(cb *CommandBuffer)) error {
	return device.locks.SafeCall(core.ResourceManagement, func() error {
		cb, err := NewCommandBuffer(device, device.CommandPool)
		if err != nil {
			return err
		}
		defer cb.Free(device)
		if err := cb.Begin(true); err != nil {
			return err
		}
		fn(cb)
		if err := cb.End(); err != nil {
			return err
		}
		if err := device.Submit([]vk.CommandBuffer{cb.Handle}, nil); err != nil {
			return err
		}
		cb.UpdateSubmitted()
		return device.WaitIdle()
	})
}
