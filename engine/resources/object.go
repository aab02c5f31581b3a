package resources

import (
	"sync/atomic"

	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

// deviceObject is the reference-counted part shared by every object the
// manager creates. onFinalRelease runs once, when the count drops to zero.
type deviceObject struct {
	handle         metadata.Handle
	refs           atomic.Int32
	onFinalRelease func()
}

func (o *deviceObject) init(handle metadata.Handle, onFinalRelease func()) {
	o.handle = handle
	o.refs.Store(1)
	o.onFinalRelease = onFinalRelease
}

func (o *deviceObject) NativeHandle() metadata.Handle {
	return o.handle
}

func (o *deviceObject) AddRef() int32 {
	return o.refs.Add(1)
}

func (o *deviceObject) Release() int32 {
	refs := o.refs.Add(-1)
	if refs == 0 && o.onFinalRelease != nil {
		o.onFinalRelease()
	}
	return refs
}

// RefCount is the current number of references, for diagnostics.
func (o *deviceObject) RefCount() int32 {
	return o.refs.Load()
}

// resource adds the name, bind flags and bound roles of buffers and textures.
type resource struct {
	deviceObject
	name      string
	bindFlags metadata.BindFlags
	roles     atomic.Uint32
	destroyed atomic.Bool
}

func (r *resource) Name() string {
	return r.name
}

func (r *resource) BindFlags() metadata.BindFlags {
	return r.bindFlags
}

func (r *resource) BoundRoles() metadata.BindRole {
	return metadata.BindRole(r.roles.Load())
}

func (r *resource) AddRole(role metadata.BindRole) {
	r.roles.Or(uint32(role))
}

func (r *resource) ClearRole(role metadata.BindRole) {
	r.roles.And(^uint32(role))
}

func (r *resource) IsDestroyed() bool {
	return r.destroyed.Load()
}
