package resources

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

// HandleAllocator creates the native object behind a new device object and
// returns its handle. Backends that own real native objects provide one.
type HandleAllocator interface {
	AllocateHandle(kind string, name string) (metadata.Handle, error)
}

// Manager creates device objects and announces the destruction of buffers
// and textures on the event bus so device contexts can unbind them.
type Manager struct {
	bus       *core.EventBus
	allocator HandleAllocator
	next      atomic.Uint64
}

// NewManager creates a manager. allocator may be nil, in which case handles
// are sequential numbers starting at 1.
func NewManager(bus *core.EventBus, allocator HandleAllocator) *Manager {
	return &Manager{
		bus:       bus,
		allocator: allocator,
	}
}

func (m *Manager) allocate(kind, name string) (metadata.Handle, error) {
	if m.allocator == nil {
		return metadata.Handle(m.next.Add(1)), nil
	}
	h, err := m.allocator.AllocateHandle(kind, name)
	if err != nil {
		return metadata.NullHandle, core.NativeFailure("Create"+kind, err)
	}
	if h == metadata.NullHandle {
		return metadata.NullHandle, core.NativeFailure("Create"+kind, fmt.Errorf("%s '%s': allocator returned a null handle", kind, name))
	}
	return h, nil
}

type BufferDesc struct {
	Name      string
	Size      uint64
	BindFlags metadata.BindFlags
}

func (m *Manager) CreateBuffer(desc BufferDesc) (*Buffer, error) {
	if desc.BindFlags == metadata.BIND_NONE {
		return nil, core.ContractViolation("CreateBuffer", "buffer '%s' has no bind flags", desc.Name)
	}
	h, err := m.allocate("Buffer", desc.Name)
	if err != nil {
		return nil, err
	}
	b := &Buffer{size: desc.Size}
	b.name = desc.Name
	b.bindFlags = desc.BindFlags
	b.init(h, func() { m.destroyBuffer(b) })
	return b, nil
}

// DestroyBuffer destroys the buffer regardless of its reference count.
func (m *Manager) DestroyBuffer(b *Buffer) {
	m.destroyBuffer(b)
}

func (m *Manager) destroyBuffer(b *Buffer) {
	if !b.destroyed.CompareAndSwap(false, true) {
		return
	}
	if m.bus != nil {
		m.bus.Fire(core.EVENT_CODE_BUFFER_DESTROYED, m, core.EventContext{Object: b})
	}
	core.LogDebug("buffer '%s' destroyed", b.name)
}

type TextureDesc struct {
	Name      string
	Width     uint32
	Height    uint32
	Format    gputypes.TextureFormat
	BindFlags metadata.BindFlags
}

func (m *Manager) CreateTexture(desc TextureDesc) (*Texture, error) {
	if desc.BindFlags == metadata.BIND_NONE {
		return nil, core.ContractViolation("CreateTexture", "texture '%s' has no bind flags", desc.Name)
	}
	if desc.BindFlags.Has(metadata.BIND_DEPTH_STENCIL) && !desc.Format.IsDepthStencil() {
		return nil, core.ContractViolation("CreateTexture", "texture '%s' is bindable as depth-stencil but has a color format", desc.Name)
	}
	h, err := m.allocate("Texture", desc.Name)
	if err != nil {
		return nil, err
	}
	t := &Texture{
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
	}
	t.name = desc.Name
	t.bindFlags = desc.BindFlags
	t.init(h, func() { m.destroyTexture(t) })
	return t, nil
}

// DestroyTexture destroys the texture regardless of its reference count.
func (m *Manager) DestroyTexture(t *Texture) {
	m.destroyTexture(t)
}

func (m *Manager) destroyTexture(t *Texture) {
	if !t.destroyed.CompareAndSwap(false, true) {
		return
	}
	if m.bus != nil {
		m.bus.Fire(core.EVENT_CODE_TEXTURE_DESTROYED, m, core.EventContext{Object: t})
	}
	core.LogDebug("texture '%s' destroyed", t.name)
}

// viewBindFlag is the bind flag a resource needs for a view type.
func viewBindFlag(viewType metadata.ViewType) metadata.BindFlags {
	switch viewType {
	case metadata.VIEW_TYPE_SHADER_RESOURCE:
		return metadata.BIND_SHADER_RESOURCE
	case metadata.VIEW_TYPE_RENDER_TARGET:
		return metadata.BIND_RENDER_TARGET
	case metadata.VIEW_TYPE_DEPTH_STENCIL:
		return metadata.BIND_DEPTH_STENCIL
	case metadata.VIEW_TYPE_UNORDERED_ACCESS:
		return metadata.BIND_UNORDERED_ACCESS
	}
	return metadata.BIND_NONE
}

// CreateTextureView creates a view of t. An undefined format means the
// texture's own format. The view holds a reference to the texture.
func (m *Manager) CreateTextureView(t *Texture, viewType metadata.ViewType, format gputypes.TextureFormat) (*TextureView, error) {
	flag := viewBindFlag(viewType)
	if flag == metadata.BIND_NONE || !t.bindFlags.Has(flag) {
		return nil, core.ContractViolation("CreateTextureView", "texture '%s' cannot have a %s view", t.name, viewType)
	}
	if format == gputypes.TextureFormatUndefined {
		format = t.format
	}
	h, err := m.allocate("TextureView", t.name)
	if err != nil {
		return nil, err
	}
	t.AddRef()
	v := &TextureView{texture: t, viewType: viewType, format: format}
	v.init(h, func() { t.Release() })
	return v, nil
}

// CreateBufferView creates a shader resource or unordered access view of b.
func (m *Manager) CreateBufferView(b *Buffer, viewType metadata.ViewType) (*BufferView, error) {
	if viewType != metadata.VIEW_TYPE_SHADER_RESOURCE && viewType != metadata.VIEW_TYPE_UNORDERED_ACCESS {
		return nil, core.ContractViolation("CreateBufferView", "buffer '%s' cannot have a %s view", b.name, viewType)
	}
	if !b.bindFlags.Has(viewBindFlag(viewType)) {
		return nil, core.ContractViolation("CreateBufferView", "buffer '%s' was not created bindable as %s", b.name, viewType)
	}
	h, err := m.allocate("BufferView", b.name)
	if err != nil {
		return nil, err
	}
	b.AddRef()
	v := &BufferView{buffer: b, viewType: viewType}
	v.init(h, func() { b.Release() })
	return v, nil
}

func (m *Manager) CreateSampler(name string) (*Sampler, error) {
	h, err := m.allocate("Sampler", name)
	if err != nil {
		return nil, err
	}
	s := &Sampler{name: name}
	s.init(h, nil)
	return s, nil
}

func (m *Manager) CreateShader(name string, shaderType metadata.ShaderType) (*Shader, error) {
	if !shaderType.IsValid() {
		return nil, core.ContractViolation("CreateShader", "shader '%s' has an invalid type %d", name, shaderType)
	}
	h, err := m.allocate("Shader", name)
	if err != nil {
		return nil, err
	}
	s := &Shader{name: name, shaderType: shaderType}
	s.init(h, nil)
	return s, nil
}

// CreateNativeState allocates a handle for a fixed-function state object
// (blend, rasterizer, depth-stencil, input layout).
func (m *Manager) CreateNativeState(kind, name string) (metadata.Handle, error) {
	return m.allocate(kind, name)
}
