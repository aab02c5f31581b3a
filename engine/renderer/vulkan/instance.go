package vulkan

import (
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Instance is a Vulkan instance created without a window system, device
// contexts render into offscreen images.
type Instance struct {
	Handle    vk.Instance
	Allocator *vk.AllocationCallbacks

	debugCallback vk.DebugReportCallback
}

// NewInstance loads the Vulkan library and creates an instance. With debug
// the validation layer must be available.
func NewInstance(appName string, debug bool) (*Instance, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		core.LogError("failed to load the Vulkan library: %s", err)
		return nil, err
	}
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   SafeString(appName),
		PEngineName:        SafeString("RHI"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	var extensions []string
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	var layers []string
	if debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if err := requireLayer(validationLayer); err != nil {
			return nil, err
		}
		layers = append(layers, validationLayer)
		core.LogInfo("Validation layers enabled.")
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = SafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = SafeStrings(layers)

	inst := &Instance{}
	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, inst.Allocator, &inst.Handle)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	if err := vk.InitInstance(inst.Handle); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		if err := vk.Error(vk.CreateDebugReportCallback(inst.Handle, &debugCreateInfo, nil, &inst.debugCallback)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			inst.Destroy()
			return nil, err
		}
		core.LogDebug("Vulkan debugger created.")
	}
	return inst, nil
}

func requireLayer(name string) error {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	layers := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, layers)); err != nil {
		return err
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return nil
		}
	}
	core.LogError("Required validation layer is missing: %s", name)
	return &ResultError{Call: "vkCreateInstance", Result: vk.ErrorLayerNotPresent}
}

func (inst *Instance) Destroy() {
	if inst.debugCallback != nil {
		vk.DestroyDebugReportCallback(inst.Handle, inst.debugCallback, inst.Allocator)
		inst.debugCallback = nil
	}
	if inst.Handle != nil {
		vk.DestroyInstance(inst.Handle, inst.Allocator)
		inst.Handle = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
