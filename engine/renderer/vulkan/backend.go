package vulkan

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/rhi/engine/config"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

type BackendConfig struct {
	AppName string
	// Enables the validation layer and the debug report callback.
	Debug bool
	// Descriptor sets a context can allocate between two submissions.
	DescriptorSets uint32
	Requirements   PhysicalDeviceRequirements
}

// ConfigFrom builds the backend configuration of the [backend] section.
func ConfigFrom(appName string, cfg config.BackendConfig) BackendConfig {
	return BackendConfig{
		AppName:        appName,
		Debug:          cfg.Debug,
		DescriptorSets: uint32(cfg.DescriptorSets),
	}
}

/**
 * @brief The Vulkan side of a device: instance, logical device, the
 * registry of native objects and the descriptor set layouts every pipeline
 * shares. Contexts created from it record into command buffers of its
 * queue.
 */
type Backend struct {
	Instance *Instance
	Device   *Device
	Registry *Registry
	Layouts  *SetLayouts

	maxSets  uint32
	logger   *log.Logger
	contexts []*Context
}

func NewBackend(config BackendConfig) (*Backend, error) {
	if config.DescriptorSets == 0 {
		return nil, fmt.Errorf("vulkan: descriptor set count must be positive")
	}
	b := &Backend{
		Registry: NewRegistry(),
		maxSets:  config.DescriptorSets,
		logger:   core.Logger("backend", "vulkan"),
	}

	inst, err := NewInstance(config.AppName, config.Debug)
	if err != nil {
		return nil, err
	}
	b.Instance = inst

	device, err := NewDevice(inst, config.Requirements)
	if err != nil {
		b.Shutdown()
		return nil, err
	}
	b.Device = device

	layouts, err := NewSetLayouts(device)
	if err != nil {
		b.Shutdown()
		return nil, err
	}
	b.Layouts = layouts

	b.logger.Info("Vulkan backend initialized successfully", "sets", b.maxSets)
	return b, nil
}

// NewContext creates the native context of a device context.
func (b *Backend) NewContext(name string, deferred bool) (*Context, error) {
	ctx, err := newContext(b, name, deferred)
	if err != nil {
		return nil, err
	}
	b.contexts = append(b.contexts, ctx)
	return ctx, nil
}

// DeferredFactory creates the native contexts of the deferred contexts of a
// renderer.Device.
func (b *Backend) DeferredFactory() renderer.DeferredFactory {
	return func(index int) (renderer.NativeContext, error) {
		ctx, err := b.NewContext(fmt.Sprintf("deferred-%d", index), true)
		if err != nil {
			return nil, err
		}
		return ctx, nil
	}
}

// AttachPipeline makes p the native pipeline of the pipeline state h.
func (b *Backend) AttachPipeline(h metadata.Handle, p *Pipeline) error {
	return b.Registry.Attach(h, func(o *Object) {
		o.Pipeline, o.Layout, o.IsCompute = p.Handle, p.Layout, p.IsCompute
	})
}

// AttachImage makes img the native image of the texture view h.
func (b *Backend) AttachImage(h metadata.Handle, img *Image) error {
	return b.Registry.Attach(h, func(o *Object) {
		o.Image, o.View, o.Format = img.Handle, img.View, img.Format
		o.Width, o.Height, o.IsDepth = img.Width, img.Height, img.Depth
	})
}

// AttachBuffer makes buf the native buffer of the buffer h.
func (b *Backend) AttachBuffer(h metadata.Handle, buf *Buffer) error {
	return b.Registry.Attach(h, func(o *Object) {
		o.Buffer, o.Size = buf.Handle, buf.Size
	})
}

// Shutdown waits for the device and destroys everything the backend
// created. The objects attached to the registry belong to their owners.
func (b *Backend) Shutdown() {
	if b.Device != nil {
		if err := b.Device.WaitIdle(); err != nil {
			b.logger.Warn("waiting for the device to go idle", "err", err)
		}
		for _, ctx := range b.contexts {
			ctx.Destroy()
		}
		b.contexts = nil
		if b.Layouts != nil {
			b.Layouts.Destroy()
			b.Layouts = nil
		}
		b.Device.Destroy()
		b.Device = nil
	}
	if b.Instance != nil {
		b.Instance.Destroy()
		b.Instance = nil
	}
	b.logger.Info("Vulkan backend shut down")
}
