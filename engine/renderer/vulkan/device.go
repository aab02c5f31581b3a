package vulkan

import (
	"errors"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
)

var ErrNoSuitableDevice = errors.New("no physical device with a graphics and compute queue")

type PhysicalDeviceRequirements struct {
	DiscreteGPU       bool
	SamplerAnisotropy bool
}

// Device is a logical device with a single queue that accepts graphics and
// compute work. Every device context submits to that queue.
type Device struct {
	Instance       *Instance
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	QueueFamily uint32
	Queue       vk.Queue
	CommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures

	locks *core.LockPool
}

// queueFamilyFor returns the first family that supports graphics and compute.
func queueFamilyFor(families []vk.QueueFamilyProperties) (uint32, bool) {
	want := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
	for i := range families {
		families[i].Deref()
		if families[i].QueueCount > 0 && families[i].QueueFlags&want == want {
			return uint32(i), true
		}
	}
	return 0, false
}

func meetsRequirements(properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements PhysicalDeviceRequirements) bool {
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
		return false
	}
	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return false
	}
	return true
}

// NewDevice selects the first physical device meeting requirements and
// creates a logical device and a command pool on it.
func NewDevice(inst *Instance, requirements PhysicalDeviceRequirements) (*Device, error) {
	d := &Device{Instance: inst, locks: core.NewLockPool()}
	if err := d.selectPhysicalDevice(requirements); err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: d.Features.SamplerAnisotropy,
	}
	var extensions []string
	if d.hasExtension("VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: SafeStrings(extensions),
	}
	if err := check("vkCreateDevice", vk.CreateDevice(d.PhysicalDevice, &deviceCreateInfo, inst.Allocator, &d.LogicalDevice)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(d.LogicalDevice, d.QueueFamily, 0, &d.Queue)
	d.locks.SetQueueFamily(d.QueueFamily)

	pool, err := NewCommandPool(d)
	if err != nil {
		core.LogError("%s", err)
		d.Destroy()
		return nil, err
	}
	d.CommandPool = pool
	core.LogInfo("Graphics command pool created.")
	return d, nil
}

func (d *Device) selectPhysicalDevice(requirements PhysicalDeviceRequirements) error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.Instance.Handle, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return ErrNoSuitableDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.Instance.Handle, &count, devices)); err != nil {
		return err
	}

	for _, device := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()
		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(device, &features)
		features.Deref()
		if !meetsRequirements(&properties, &features, requirements) {
			continue
		}

		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)
		family, ok := queueFamilyFor(families)
		if !ok {
			continue
		}

		d.PhysicalDevice = device
		d.QueueFamily = family
		d.Properties = properties
		d.Features = features
		core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version.Major(vk.Version(properties.ApiVersion)),
			vk.Version.Minor(vk.Version(properties.ApiVersion)),
			vk.Version.Patch(vk.Version(properties.ApiVersion)),
		)
		return nil
	}
	core.LogError("No physical devices were found which meet the requirements.")
	return ErrNoSuitableDevice
}

func (d *Device) hasExtension(name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(d.PhysicalDevice, "", &count, nil) != vk.Success || count == 0 {
		return false
	}
	extensions := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(d.PhysicalDevice, "", &count, extensions) != vk.Success {
		return false
	}
	for i := range extensions {
		extensions[i].Deref()
		if cString(extensions[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// Submit submits command buffers to the device queue, signalling fence
// when they complete. fence may be nil.
func (d *Device) Submit(buffers []vk.CommandBuffer, fence vk.Fence) error {
	return d.locks.SafeQueueCall(d.QueueFamily, func() error {
		submitInfo := vk.SubmitInfo{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: uint32(len(buffers)),
			PCommandBuffers:    buffers,
		}
		return check("vkQueueSubmit", vk.QueueSubmit(d.Queue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
}

func (d *Device) WaitIdle() error {
	return d.locks.SafeQueueCall(d.QueueFamily, func() error {
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(d.Queue))
	})
}

func (d *Device) Destroy() {
	d.Queue = nil
	if d.CommandPool != nil {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(d.LogicalDevice, d.CommandPool, d.Instance.Allocator)
		d.CommandPool = nil
	}
	if d.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(d.LogicalDevice, d.Instance.Allocator)
		d.LogicalDevice = nil
	}
	// Physical devices are not destroyed.
	d.PhysicalDevice = nil
}
