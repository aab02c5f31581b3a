package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

type ObjectKind uint8

const (
	OBJECT_KIND_UNKNOWN ObjectKind = iota
	OBJECT_KIND_BUFFER
	OBJECT_KIND_TEXTURE
	OBJECT_KIND_TEXTURE_VIEW
	OBJECT_KIND_BUFFER_VIEW
	OBJECT_KIND_SAMPLER
	OBJECT_KIND_SHADER
	OBJECT_KIND_PIPELINE
	/** @brief Blend, rasterizer, depth-stencil states and input layouts. */
	OBJECT_KIND_STATE
)

var objectKinds = map[string]ObjectKind{
	"Buffer":        OBJECT_KIND_BUFFER,
	"Texture":       OBJECT_KIND_TEXTURE,
	"TextureView":   OBJECT_KIND_TEXTURE_VIEW,
	"BufferView":    OBJECT_KIND_BUFFER_VIEW,
	"Sampler":       OBJECT_KIND_SAMPLER,
	"Shader":        OBJECT_KIND_SHADER,
	"PipelineState": OBJECT_KIND_PIPELINE,
	"BlendState":    OBJECT_KIND_STATE,
	"Rasterizer":    OBJECT_KIND_STATE,
	"DepthStencil":  OBJECT_KIND_STATE,
	"InputLayout":   OBJECT_KIND_STATE,
}

/**
 * @brief The native objects behind a handle. Which fields are set depends
 * on the kind, they stay nil until the owner attaches them.
 */
type Object struct {
	Kind ObjectKind
	Name string

	Buffer vk.Buffer
	Size   uint64

	Image  vk.Image
	View   vk.ImageView
	Format vk.Format
	Width  uint32
	Height uint32
	/** @brief True for depth-stencil views. */
	IsDepth bool

	TexelView vk.BufferView
	/** @brief Storage views are written by shaders, others are read only. */
	Storage bool

	Sampler vk.Sampler

	Pipeline  vk.Pipeline
	Layout    vk.PipelineLayout
	IsCompute bool
}

// Registry hands out the handles of device objects and keeps the native
// objects attached to them.
type Registry struct {
	locks   *core.LockPool
	next    metadata.Handle
	objects map[metadata.Handle]*Object
}

func NewRegistry() *Registry {
	return &Registry{
		locks:   core.NewLockPool(),
		objects: make(map[metadata.Handle]*Object),
	}
}

// AllocateHandle implements resources.HandleAllocator.
func (r *Registry) AllocateHandle(kind string, name string) (metadata.Handle, error) {
	k, ok := objectKinds[kind]
	if !ok {
		return metadata.NullHandle, fmt.Errorf("vulkan: unknown object kind %q", kind)
	}
	var h metadata.Handle
	r.locks.SafeCall(core.ResourceManagement, func() error {
		r.next++
		h = r.next
		r.objects[h] = &Object{Kind: k, Name: name}
		return nil
	})
	return h, nil
}

// Attach updates the native objects of h with fn.
func (r *Registry) Attach(h metadata.Handle, fn func(o *Object)) error {
	return r.locks.SafeCall(core.ResourceManagement, func() error {
		o, ok := r.objects[h]
		if !ok {
			return fmt.Errorf("vulkan: handle %d was not allocated", h)
		}
		fn(o)
		return nil
	})
}

// Lookup returns a copy of the objects behind h.
func (r *Registry) Lookup(h metadata.Handle) (Object, bool) {
	var out Object
	found := false
	r.locks.SafeCall(core.ResourceManagement, func() error {
		if o, ok := r.objects[h]; ok {
			out, found = *o, true
		}
		return nil
	})
	return out, found
}

// Forget drops h. The native objects are destroyed by their owner.
func (r *Registry) Forget(h metadata.Handle) {
	r.locks.SafeCall(core.ResourceManagement, func() error {
		delete(r.objects, h)
		return nil
	})
}

func (r *Registry) Len() int {
	n := 0
	r.locks.SafeCall(core.ResourceManagement, func() error {
		n = len(r.objects)
		return nil
	})
	return n
}

// Watch forgets buffers and textures when bus announces their destruction.
func (r *Registry) Watch(bus *core.EventBus) {
	forget := func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		if obj, ok := data.Object.(metadata.DeviceObject); ok {
			r.Forget(obj.NativeHandle())
		}
		return false
	}
	bus.Register(core.EVENT_CODE_BUFFER_DESTROYED, r, forget)
	bus.Register(core.EVENT_CODE_TEXTURE_DESTROYED, r, forget)
}
