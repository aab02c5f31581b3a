package metadata

import "strings"

/**
 * @brief An opaque native API handle (a D3D11 view pointer, a Vulkan
 * object...). Zero is the null handle.
 */
type Handle uint64

const NullHandle Handle = 0

/**
 * @brief Anything created by the device that has a native handle.
 * Reference counting belongs to the resource layer; contexts only
 * AddRef/Release what they hold outside the native context.
 */
type DeviceObject interface {
	NativeHandle() Handle
	AddRef() int32
	Release() int32
}

/** @brief The categories of per-stage binding slots. */
type ResourceCategory uint8

const (
	CATEGORY_CONSTANT_BUFFER ResourceCategory = iota
	CATEGORY_SHADER_RESOURCE
	CATEGORY_SAMPLER
	CATEGORY_UNORDERED_ACCESS

	NUM_RESOURCE_CATEGORIES int = 4
)

var categoryNames = [NUM_RESOURCE_CATEGORIES]string{"CB", "SRV", "Sampler", "UAV"}

func (c ResourceCategory) String() string {
	if int(c) < NUM_RESOURCE_CATEGORIES {
		return categoryNames[c]
	}
	return "unknown"
}

/**
 * @brief What a resource may be bound as, fixed at creation.
 */
type BindFlags uint32

const (
	BIND_NONE             BindFlags = 0x0
	BIND_VERTEX_BUFFER    BindFlags = 0x1
	BIND_INDEX_BUFFER     BindFlags = 0x2
	BIND_UNIFORM_BUFFER   BindFlags = 0x4
	BIND_SHADER_RESOURCE  BindFlags = 0x8
	BIND_RENDER_TARGET    BindFlags = 0x10
	BIND_DEPTH_STENCIL    BindFlags = 0x20
	BIND_UNORDERED_ACCESS BindFlags = 0x40
	BIND_INDIRECT_ARGS    BindFlags = 0x80
)

func (f BindFlags) Has(flags BindFlags) bool {
	return f&flags == flags
}

/**
 * @brief The roles a resource is currently bound in on a device context.
 * This is the capability tag the unbinder checks before scanning the
 * committed-state cache.
 */
type BindRole uint32

const (
	ROLE_NONE             BindRole = 0x0
	ROLE_VERTEX_BUFFER    BindRole = 0x1
	ROLE_INDEX_BUFFER     BindRole = 0x2
	ROLE_CONSTANT_BUFFER  BindRole = 0x4
	ROLE_SHADER_RESOURCE  BindRole = 0x8
	ROLE_UNORDERED_ACCESS BindRole = 0x10
	ROLE_RENDER_TARGET    BindRole = 0x20
	ROLE_DEPTH_STENCIL    BindRole = 0x40

	// Roles in which the pipeline reads the resource.
	ROLES_INPUT = ROLE_VERTEX_BUFFER | ROLE_INDEX_BUFFER | ROLE_CONSTANT_BUFFER | ROLE_SHADER_RESOURCE
	// Roles in which the pipeline writes the resource.
	ROLES_OUTPUT = ROLE_UNORDERED_ACCESS | ROLE_RENDER_TARGET | ROLE_DEPTH_STENCIL
)

func (r BindRole) Has(role BindRole) bool {
	return r&role != 0
}

func (r BindRole) String() string {
	if r == ROLE_NONE {
		return "none"
	}
	names := []string{}
	for _, n := range []struct {
		role BindRole
		name string
	}{
		{ROLE_VERTEX_BUFFER, "vertex"},
		{ROLE_INDEX_BUFFER, "index"},
		{ROLE_CONSTANT_BUFFER, "constant"},
		{ROLE_SHADER_RESOURCE, "srv"},
		{ROLE_UNORDERED_ACCESS, "uav"},
		{ROLE_RENDER_TARGET, "rtv"},
		{ROLE_DEPTH_STENCIL, "dsv"},
	} {
		if r.Has(n.role) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

/**
 * @brief A buffer or a texture: something views are created from and
 * whose bound roles are tracked.
 */
type Resource interface {
	DeviceObject
	Name() string
	BindFlags() BindFlags
	/** @brief The roles the resource is currently bound in. */
	BoundRoles() BindRole
	AddRole(role BindRole)
	ClearRole(role BindRole)
}

type Buffer interface {
	Resource
	/** @brief Size in bytes. */
	Size() uint64
}

/** @brief The kind of view a resource view represents. */
type ViewType uint8

const (
	VIEW_TYPE_UNDEFINED ViewType = iota
	VIEW_TYPE_SHADER_RESOURCE
	VIEW_TYPE_RENDER_TARGET
	VIEW_TYPE_DEPTH_STENCIL
	VIEW_TYPE_UNORDERED_ACCESS
)

func (v ViewType) String() string {
	switch v {
	case VIEW_TYPE_SHADER_RESOURCE:
		return "SRV"
	case VIEW_TYPE_RENDER_TARGET:
		return "RTV"
	case VIEW_TYPE_DEPTH_STENCIL:
		return "DSV"
	case VIEW_TYPE_UNORDERED_ACCESS:
		return "UAV"
	}
	return "undefined"
}

/** @brief A view of a buffer or a texture. */
type ResourceView interface {
	DeviceObject
	ViewType() ViewType
	/** @brief The resource the view was created from. */
	Resource() Resource
}

type BufferView interface {
	ResourceView
	Buffer() Buffer
}

type Sampler interface {
	DeviceObject
}
