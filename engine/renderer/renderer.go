package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/rhi/engine/config"
	"github.com/spaghettifunk/rhi/engine/containers"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/rhi/engine/resources"
)

// DeferredFactory creates the native context behind the index-th deferred context.
type DeferredFactory func(index int) (NativeContext, error)

// Device owns the immediate context, the deferred contexts created from it
// and the resource manager whose destruction events reach every context.
type Device struct {
	cfg *config.Config
	log *log.Logger

	bus     *core.EventBus
	manager *resources.Manager
	ids     *core.Identifiers
	locks   *core.LockPool

	immediate *DeviceContext
	deferred  []*DeviceContext
	factory   DeferredFactory

	pending       *containers.RingQueue[*metadata.CommandList]
	dropped       int
	// stats of deferred contexts, gathered when they finish a list
	deferredStats core.CommitStats

	metrics *core.Metrics
	clock   *core.Clock

	watcher  *config.Watcher
	watchers sync.WaitGroup
	reloaded *config.Config
}

// NewDevice creates a device over the immediate native context. factory
// may be nil when no deferred context will be created. allocator may be nil,
// see resources.NewManager.
func NewDevice(cfg *config.Config, immediate NativeContext, factory DeferredFactory, allocator resources.HandleAllocator) (*Device, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if immediate == nil {
		return nil, core.ContractViolation("NewDevice", "immediate native context is nil")
	}
	core.SetLogLevel(cfg.LogLevel())

	bus := core.NewEventBus()
	d := &Device{
		cfg:     cfg,
		log:     core.Logger("device", immediate.Caps().Name),
		bus:     bus,
		manager: resources.NewManager(bus, allocator),
		ids:     core.NewIdentifiers(),
		locks:   core.NewLockPool(),
		factory: factory,
		pending: containers.NewRingQueue[*metadata.CommandList](cfg.Device.PendingCommandLists),
		metrics: core.NewMetrics(),
		clock:   core.NewClock(),
	}
	d.immediate = d.newContext(metadata.DeviceContextDesc{Name: "immediate"}, immediate)

	bus.Register(core.EVENT_CODE_BUFFER_DESTROYED, d, d.onResourceDestroyed)
	bus.Register(core.EVENT_CODE_TEXTURE_DESTROYED, d, d.onResourceDestroyed)
	bus.Register(core.EVENT_CODE_COMMAND_LIST_FINISHED, d, d.onCommandListFinished)

	d.clock.Start()
	d.log.Info("device created", "deferred_contexts", cfg.Device.DeferredContexts, "coalesce", d.immediate.coalesce)
	return d, nil
}

func (d *Device) newContext(desc metadata.DeviceContextDesc, native NativeContext) *DeviceContext {
	ctx := NewDeviceContext(desc, native, d.cfg, d.bus)
	ctx.id = d.ids.AcquireNewID(ctx)
	return ctx
}

func (d *Device) ImmediateContext() *DeviceContext {
	return d.immediate
}

// Resources is the manager that creates the buffers, textures, views and
// pipelines used with the device's contexts.
func (d *Device) Resources() *resources.Manager {
	return d.manager
}

func (d *Device) Bus() *core.EventBus {
	return d.bus
}

func (d *Device) Metrics() *core.Metrics {
	return d.metrics
}

// CreateDeferredContext creates a context that records into a command list.
func (d *Device) CreateDeferredContext() (*DeviceContext, error) {
	const op = "CreateDeferredContext"
	var ctx *DeviceContext
	err := d.locks.SafeCall(core.ContextManagement, func() error {
		index := len(d.deferred)
		if index >= d.cfg.Device.DeferredContexts {
			return core.ContractViolation(op, "all %d deferred contexts are in use", d.cfg.Device.DeferredContexts)
		}
		if d.factory == nil {
			return core.ContractViolation(op, "the device was created without a deferred context factory")
		}
		native, err := d.factory(index)
		if err != nil {
			return core.NativeFailure(op, err)
		}
		if !native.Caps().CommandLists {
			return core.ContractViolation(op, "backend %s does not support command lists", native.Caps().Name)
		}
		ctx = d.newContext(metadata.DeviceContextDesc{
			Name:       fmt.Sprintf("deferred-%d", index),
			IsDeferred: true,
			ContextID:  uint8(index + 1),
		}, native)
		d.deferred = append(d.deferred, ctx)
		return nil
	})
	if err != nil {
		d.log.Error("creating deferred context failed", "err", err)
		return nil, err
	}
	return ctx, nil
}

// DeferredContexts returns the deferred contexts created so far.
func (d *Device) DeferredContexts() []*DeviceContext {
	var out []*DeviceContext
	d.locks.SafeCall(core.ContextManagement, func() error {
		out = append(out, d.deferred...)
		return nil
	})
	return out
}

func (d *Device) contexts() []*DeviceContext {
	return append([]*DeviceContext{d.immediate}, d.DeferredContexts()...)
}

// onResourceDestroyed routes the destruction of a buffer or texture to the
// unbinder of every context. Contexts busy on another goroutine unbind it
// before their current operation returns.
func (d *Device) onResourceDestroyed(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	var r metadata.Resource
	switch o := data.Object.(type) {
	case metadata.Buffer:
		r = o
	case metadata.Texture:
		r = o
	default:
		return false
	}
	for _, ctx := range d.contexts() {
		ctx.notifyDestroyed(r)
	}
	return false
}

func (d *Device) onCommandListFinished(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	list, ok := data.Object.(*metadata.CommandList)
	if !ok {
		return false
	}
	err := d.locks.SafeCall(core.CommandListManagement, func() error {
		if ctx, ok := sender.(*DeviceContext); ok {
			d.deferredStats.Add(ctx.takeStats())
		}
		if err := d.pending.Enqueue(list); err != nil {
			d.dropped++
			return err
		}
		return d.ids.Register(list.ID, list)
	})
	if err != nil {
		d.log.Error("command list dropped", "list", list.ID, "context", list.Context, "err", err)
	}
	return true
}

// PendingCommandLists is the number of finished lists waiting for ExecutePending.
func (d *Device) PendingCommandLists() int {
	n := 0
	d.locks.SafeCall(core.CommandListManagement, func() error {
		n = d.pending.Len()
		return nil
	})
	return n
}

// ExecutePending executes every finished command list on the immediate
// context, oldest first, and returns how many ran. It stops at the first
// failure, the failed list is not retried.
func (d *Device) ExecutePending() (int, error) {
	executed := 0
	for {
		var list *metadata.CommandList
		err := d.locks.SafeCall(core.CommandListManagement, func() error {
			var err error
			list, err = d.pending.Dequeue()
			return err
		})
		if errors.Is(err, containers.ErrQueueEmpty) {
			return executed, nil
		}
		if err != nil {
			return executed, err
		}
		d.ids.ReleaseID(list.ID)
		if err := d.immediate.ExecuteCommandList(list); err != nil {
			return executed, err
		}
		executed++
	}
}

// FinishFrame ends the frame on the immediate context, gathers the stats of
// the immediate context and of the command lists finished since the last
// frame, and applies a config reloaded since the previous frame.
func (d *Device) FinishFrame() error {
	if err := d.immediate.FinishFrame(); err != nil {
		return err
	}
	d.metrics.Record(d.immediate.TakeStats())
	d.locks.SafeCall(core.CommandListManagement, func() error {
		d.metrics.Record(d.deferredStats)
		d.deferredStats = core.CommitStats{}
		return nil
	})
	d.applyReloadedConfig()

	d.clock.Update()
	d.metrics.Update(d.clock.Elapsed())
	d.clock.Start()
	return nil
}

// WatchConfig reloads path whenever it changes. Validation and log level
// take effect at the next FinishFrame; limits stay as the device was created.
func (d *Device) WatchConfig(path string) error {
	if d.watcher != nil {
		return core.ContractViolation("WatchConfig", "already watching a config file")
	}
	w, err := config.NewWatcher(path)
	if err != nil {
		return err
	}
	d.watcher = w
	d.watchers.Add(1)
	go func() {
		defer d.watchers.Done()
		updates, errs := w.Updates(), w.Errors()
		for updates != nil || errs != nil {
			select {
			case cfg, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				d.locks.SafeCall(core.ConfigManagement, func() error {
					d.reloaded = cfg
					return nil
				})
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				d.log.Warn("config reload failed", "err", err)
			}
		}
	}()
	return nil
}

func (d *Device) applyReloadedConfig() {
	var cfg *config.Config
	d.locks.SafeCall(core.ConfigManagement, func() error {
		cfg, d.reloaded = d.reloaded, nil
		return nil
	})
	if cfg == nil {
		return
	}
	if cfg.Limits != d.cfg.Limits {
		d.log.Warn("limits changed in the config file, they apply to new devices only")
	}
	core.SetLogLevel(cfg.LogLevel())
	for _, ctx := range d.contexts() {
		ctx.SetValidator(NewValidator(cfg.Validation))
	}
	applied := *d.cfg
	applied.Log = cfg.Log
	applied.Validation = cfg.Validation
	d.cfg = &applied
	d.log.Info("config applied", "validation", cfg.Validation.Mode, "level", cfg.Log.Level)
	d.bus.Fire(core.EVENT_CODE_CONFIG_RELOADED, d, core.EventContext{Object: cfg})
}

// Shutdown stops watching the config, drops the pending command lists and
// clears every context.
func (d *Device) Shutdown() error {
	var errs []error
	if d.watcher != nil {
		errs = append(errs, d.watcher.Close())
		d.watchers.Wait()
		d.watcher = nil
	}
	d.locks.SafeCall(core.CommandListManagement, func() error {
		for !d.pending.IsEmpty() {
			list, _ := d.pending.Dequeue()
			d.ids.ReleaseID(list.ID)
		}
		return nil
	})
	for _, ctx := range d.contexts() {
		errs = append(errs, ctx.InvalidateState())
		d.ids.ReleaseID(ctx.ID())
	}
	d.bus.Shutdown()
	d.clock.Stop()
	d.log.Info("device shut down", "dropped_command_lists", d.dropped)
	return errors.Join(errs...)
}
