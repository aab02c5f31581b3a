package renderer

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spaghettifunk/rhi/engine/config"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/rhi/engine/renderer/statecache"
)

// ContextState is the front-end state of a device context.
type ContextState uint8

const (
	StateIdle ContextState = iota
	StateResourcesBound
	StateDrawSubmitted
)

func (s ContextState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResourcesBound:
		return "resources-bound"
	case StateDrawSubmitted:
		return "draw-submitted"
	}
	return "unknown"
}

type vertexStream struct {
	buffer metadata.Buffer
	offset uint32
}

// DeviceContext records binding and draw commands into a native context,
// pushing only what differs from its committed-state cache. A context must
// be driven by one goroutine at a time.
type DeviceContext struct {
	id     uuid.UUID
	desc   metadata.DeviceContextDesc
	native NativeContext
	caps   metadata.BackendCaps
	log    *log.Logger

	cache     *statecache.Cache
	// swapped by the device on config reload, from another goroutine
	validator atomic.Pointer[validatorRef]
	coalesce  metadata.CoalescePolicy

	bus  *core.EventBus
	busy atomic.Bool
	// Held for the length of every operation. Destroy notifications from
	// other goroutines take it when the context is idle and queue otherwise.
	mu        sync.Mutex
	pendingMu sync.Mutex
	destroyed []metadata.Resource

	state ContextState
	stats core.CommitStats

	// Requested state, committed lazily.
	pipeline         metadata.PipelineState
	srb              metadata.ShaderResourceBinding
	vertexStreams    []vertexStream
	numVertexStreams int
	indexBuffer      metadata.Buffer
	indexOffset      uint32
	renderTargets    []metadata.TextureView
	depthStencil     metadata.TextureView
	viewports        []metadata.Viewport
	scissors         []metadata.Rect
	blendFactors     [4]float32
	stencilRef       uint32

	// Roles this context gave to resources, so they can be taken back on reset.
	roleHolders map[metadata.Resource]metadata.BindRole
}

// NewDeviceContext creates a context over native. bus may be nil; when set,
// finished command lists are announced on it.
func NewDeviceContext(desc metadata.DeviceContextDesc, native NativeContext, cfg *config.Config, bus *core.EventBus) *DeviceContext {
	if cfg == nil {
		cfg = config.Default()
	}
	limits := LimitsFromConfig(cfg.Limits)
	caps := native.Caps()
	ctx := &DeviceContext{
		id:            uuid.New(),
		desc:          desc,
		native:        native,
		caps:          caps,
		log:           core.Logger("context", desc.Name),
		cache:         statecache.New(limits),
		coalesce:      coalescePolicy(cfg.Commit.Coalesce, caps),
		bus:           bus,
		vertexStreams: make([]vertexStream, limits.VertexBuffers),
		blendFactors:  [4]float32{1, 1, 1, 1},
		roleHolders:   make(map[metadata.Resource]metadata.BindRole),
	}
	ctx.SetValidator(NewValidator(cfg.Validation))
	ctx.log.Debug("device context created", "backend", caps.Name, "deferred", desc.IsDeferred, "coalesce", ctx.coalesce)
	return ctx
}

func LimitsFromConfig(l config.LimitsConfig) statecache.Limits {
	return statecache.Limits{
		ConstantBuffers: l.ConstantBuffers,
		ShaderResources: l.ShaderResources,
		Samplers:        l.Samplers,
		UnorderedAccess: l.UnorderedAccess,
		VertexBuffers:   l.VertexBuffers,
		RenderTargets:   l.RenderTargets,
		Viewports:       l.Viewports,
	}
}

func coalescePolicy(p config.CoalescePolicy, caps metadata.BackendCaps) metadata.CoalescePolicy {
	switch p {
	case config.CoalesceSpan:
		return metadata.COALESCE_SPAN
	case config.CoalesceRuns:
		return metadata.COALESCE_RUNS
	}
	return caps.Coalesce
}

func (ctx *DeviceContext) ID() uuid.UUID {
	return ctx.id
}

func (ctx *DeviceContext) Name() string {
	return ctx.desc.Name
}

func (ctx *DeviceContext) IsDeferred() bool {
	return ctx.desc.IsDeferred
}

func (ctx *DeviceContext) State() ContextState {
	return ctx.state
}

// Cache exposes the committed-state cache for inspection. Mutating it
// desynchronizes the context from the native state.
func (ctx *DeviceContext) Cache() *statecache.Cache {
	return ctx.cache
}

func (ctx *DeviceContext) Native() NativeContext {
	return ctx.native
}

func (ctx *DeviceContext) Stats() core.CommitStats {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.stats
}

// TakeStats returns the stats gathered since the last call and resets them.
func (ctx *DeviceContext) TakeStats() core.CommitStats {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.takeStats()
}

func (ctx *DeviceContext) takeStats() core.CommitStats {
	s := ctx.stats
	ctx.stats = core.CommitStats{}
	return s
}

type validatorRef struct {
	v Validator
}

// SetValidator replaces the verification strategy run before draws and
// dispatches. It may be called while another goroutine drives the context.
func (ctx *DeviceContext) SetValidator(v Validator) {
	ctx.validator.Store(&validatorRef{v})
}

func (ctx *DeviceContext) enter(op string) error {
	if !ctx.busy.CompareAndSwap(false, true) {
		return ctx.fail(core.ContractViolation(op, "context is used by another goroutine"))
	}
	ctx.mu.Lock()
	ctx.drainDestroyed()
	return nil
}

func (ctx *DeviceContext) leave() {
	ctx.drainDestroyed()
	ctx.mu.Unlock()
	ctx.busy.Store(false)
	ctx.flushDestroyed()
}

// fail stamps err with the context name and logs it.
func (ctx *DeviceContext) fail(err *core.BindingError) error {
	err.In(ctx.desc.Name)
	ctx.log.Error(err.Error(), "op", err.Op)
	return err
}

func (ctx *DeviceContext) addRole(r metadata.Resource, role metadata.BindRole) {
	r.AddRole(role)
	ctx.roleHolders[r] |= role
}

// clearRole takes back the roles r holds because of this context.
func (ctx *DeviceContext) clearRole(r metadata.Resource, role metadata.BindRole) {
	held := ctx.roleHolders[r]
	if role &= held; role == metadata.ROLE_NONE {
		return
	}
	r.ClearRole(role)
	if held &^= role; held == metadata.ROLE_NONE {
		delete(ctx.roleHolders, r)
	} else {
		ctx.roleHolders[r] = held
	}
}

// rolesOf is what r may be bound as in this context. The resource bits can
// be cleared by another context, the held bits cannot.
func (ctx *DeviceContext) rolesOf(r metadata.Resource) metadata.BindRole {
	return r.BoundRoles() | ctx.roleHolders[r]
}

// releaseRoles takes back the given roles from every resource holding them
// because of this context.
func (ctx *DeviceContext) releaseRoles(roles metadata.BindRole) {
	for r, held := range ctx.roleHolders {
		if held&roles != 0 {
			ctx.clearRole(r, held&roles)
		}
	}
}

func handleOf(obj metadata.DeviceObject) metadata.Handle {
	if obj == nil {
		return metadata.NullHandle
	}
	return obj.NativeHandle()
}

// SetPipelineState binds pso. Shaders, input layout and fixed-function state
// are committed right away, resources on the next commit.
func (ctx *DeviceContext) SetPipelineState(pso metadata.PipelineState) error {
	const op = "SetPipelineState"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if pso == nil {
		return ctx.fail(core.ContractViolation(op, "pipeline state is nil"))
	}
	ctx.state = StateResourcesBound
	if ctx.pipeline == pso {
		return nil
	}
	pso.AddRef()
	old := ctx.pipeline
	ctx.pipeline = pso
	if ctx.srb != nil && !ctx.srb.PipelineState().IsCompatibleWith(pso) {
		ctx.srb = nil
	}
	// strides come from the pipeline
	ctx.cache.InvalidateVertexBuffers()
	ctx.commitPipelineState()
	if old != nil {
		old.Release()
	}
	return nil
}

func (ctx *DeviceContext) PipelineState() metadata.PipelineState {
	return ctx.pipeline
}

// SetVertexBuffers binds buffers to the slots starting at start. offsets may
// be nil. With SET_VERTEX_BUFFERS_FLAG_RESET every other slot is unbound.
func (ctx *DeviceContext) SetVertexBuffers(start uint32, buffers []metadata.Buffer, offsets []uint32, flags metadata.SetVertexBuffersFlags) error {
	const op = "SetVertexBuffers"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if int(start)+len(buffers) > len(ctx.vertexStreams) {
		return ctx.fail(core.ContractViolation(op, "slots [%d, %d) exceed the %d vertex buffer slots", start, int(start)+len(buffers), len(ctx.vertexStreams)))
	}
	if offsets != nil && len(offsets) != len(buffers) {
		return ctx.fail(core.ContractViolation(op, "%d offsets for %d buffers", len(offsets), len(buffers)))
	}
	for i, b := range buffers {
		if b != nil && !b.BindFlags().Has(metadata.BIND_VERTEX_BUFFER) {
			return ctx.fail(core.ContractViolation(op, "buffer '%s' was not created with BIND_VERTEX_BUFFER", b.Name()).AtSlot(int(start) + i))
		}
	}

	for _, b := range buffers {
		if b != nil {
			b.AddRef()
		}
	}
	if flags&metadata.SET_VERTEX_BUFFERS_FLAG_RESET != 0 {
		ctx.releaseVertexStreams()
	}
	var replaced []metadata.Buffer
	for i, b := range buffers {
		slot := int(start) + i
		if old := ctx.vertexStreams[slot].buffer; old != nil {
			replaced = append(replaced, old)
		}
		stream := vertexStream{buffer: b}
		if offsets != nil {
			stream.offset = offsets[i]
		}
		ctx.vertexStreams[slot] = stream
	}
	if n := int(start) + len(buffers); n > ctx.numVertexStreams {
		ctx.numVertexStreams = n
	}
	ctx.trimVertexStreams()
	ctx.cache.InvalidateVertexBuffers()
	ctx.state = StateResourcesBound
	for _, old := range replaced {
		old.Release()
	}
	return nil
}

// releaseVertexStreams drops every requested vertex buffer. References are
// detached before they are released.
func (ctx *DeviceContext) releaseVertexStreams() {
	streams := slices.Clone(ctx.vertexStreams[:ctx.numVertexStreams])
	clear(ctx.vertexStreams)
	ctx.numVertexStreams = 0
	for _, stream := range streams {
		if stream.buffer != nil {
			stream.buffer.Release()
		}
	}
}

func (ctx *DeviceContext) trimVertexStreams() {
	for ctx.numVertexStreams > 0 && ctx.vertexStreams[ctx.numVertexStreams-1].buffer == nil {
		ctx.numVertexStreams--
	}
}

// SetIndexBuffer binds buffer as the index buffer. The index format is given
// by the draw. A nil buffer unbinds.
func (ctx *DeviceContext) SetIndexBuffer(buffer metadata.Buffer, offset uint32) error {
	const op = "SetIndexBuffer"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if buffer != nil && !buffer.BindFlags().Has(metadata.BIND_INDEX_BUFFER) {
		return ctx.fail(core.ContractViolation(op, "buffer '%s' was not created with BIND_INDEX_BUFFER", buffer.Name()))
	}
	if buffer != nil {
		buffer.AddRef()
	}
	old := ctx.indexBuffer
	ctx.indexBuffer = buffer
	ctx.indexOffset = offset
	ctx.cache.InvalidateIndexBuffer()
	if old != nil {
		old.Release()
	}
	ctx.state = StateResourcesBound
	return nil
}

// SetRenderTargets binds color targets and an optional depth-stencil view.
// Their textures are unbound from every shader input and UAV slot first.
func (ctx *DeviceContext) SetRenderTargets(rtvs []metadata.TextureView, dsv metadata.TextureView) error {
	const op = "SetRenderTargets"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if len(rtvs) > ctx.cache.Limits().RenderTargets {
		return ctx.fail(core.ContractViolation(op, "%d render targets exceed the limit of %d", len(rtvs), ctx.cache.Limits().RenderTargets))
	}
	for i, rtv := range rtvs {
		if rtv != nil && rtv.ViewType() != metadata.VIEW_TYPE_RENDER_TARGET {
			return ctx.fail(core.ContractViolation(op, "view of '%s' is a %s, not a render target view", rtv.Texture().Name(), rtv.ViewType()).AtSlot(i))
		}
	}
	if dsv != nil && dsv.ViewType() != metadata.VIEW_TYPE_DEPTH_STENCIL {
		return ctx.fail(core.ContractViolation(op, "view of '%s' is a %s, not a depth-stencil view", dsv.Texture().Name(), dsv.ViewType()))
	}

	for _, rtv := range rtvs {
		if rtv != nil {
			ctx.unbindTextureFromInput(rtv.Texture())
			ctx.unbindResourceFromUAV(rtv.Texture())
		}
	}
	if dsv != nil {
		ctx.unbindTextureFromInput(dsv.Texture())
		ctx.unbindResourceFromUAV(dsv.Texture())
	}

	for _, rtv := range rtvs {
		if rtv != nil {
			rtv.AddRef()
		}
	}
	if dsv != nil {
		dsv.AddRef()
	}
	ctx.releaseRenderTargets(func(tex metadata.Texture) bool {
		for _, rtv := range rtvs {
			if rtv != nil && rtv.Texture() == tex {
				return false
			}
		}
		return dsv == nil || dsv.Texture() != tex
	})
	for _, rtv := range rtvs {
		if rtv != nil {
			ctx.addRole(rtv.Texture(), metadata.ROLE_RENDER_TARGET)
		}
		ctx.renderTargets = append(ctx.renderTargets, rtv)
	}
	if dsv != nil {
		ctx.addRole(dsv.Texture(), metadata.ROLE_DEPTH_STENCIL)
	}
	ctx.depthStencil = dsv

	ctx.commitRenderTargets()
	if len(ctx.viewports) == 0 {
		// default viewport covers the first target
		ctx.setDefaultViewport()
	}
	ctx.state = StateResourcesBound
	return nil
}

// releaseRenderTargets drops the requested targets, taking back the render
// target and depth-stencil roles of the textures for which loseRole is true.
func (ctx *DeviceContext) releaseRenderTargets(loseRole func(tex metadata.Texture) bool) {
	rtvs, dsv := ctx.renderTargets, ctx.depthStencil
	ctx.renderTargets, ctx.depthStencil = nil, nil
	for _, rtv := range rtvs {
		if rtv != nil && loseRole(rtv.Texture()) {
			ctx.clearRole(rtv.Texture(), metadata.ROLE_RENDER_TARGET)
		}
	}
	if dsv != nil && loseRole(dsv.Texture()) {
		ctx.clearRole(dsv.Texture(), metadata.ROLE_DEPTH_STENCIL)
	}
	for _, rtv := range rtvs {
		if rtv != nil {
			rtv.Release()
		}
	}
	if dsv != nil {
		dsv.Release()
	}
}

func (ctx *DeviceContext) setDefaultViewport() {
	var tex metadata.Texture
	for _, rtv := range ctx.renderTargets {
		if rtv != nil {
			tex = rtv.Texture()
			break
		}
	}
	if tex == nil && ctx.depthStencil != nil {
		tex = ctx.depthStencil.Texture()
	}
	if tex == nil {
		return
	}
	ctx.commitViewports([]metadata.Viewport{{
		Width:    float32(tex.Width()),
		Height:   float32(tex.Height()),
		MaxDepth: 1,
	}})
}

// SetViewports sets the viewports. An empty list means one viewport
// covering the first bound render target.
func (ctx *DeviceContext) SetViewports(viewports []metadata.Viewport) error {
	const op = "SetViewports"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if len(viewports) > ctx.cache.Limits().Viewports {
		return ctx.fail(core.ContractViolation(op, "%d viewports exceed the limit of %d", len(viewports), ctx.cache.Limits().Viewports))
	}
	for i, vp := range viewports {
		if vp.Width < 0 || vp.Height < 0 || vp.MinDepth < 0 || vp.MaxDepth > 1 || vp.MinDepth > vp.MaxDepth {
			return ctx.fail(core.ContractViolation(op, "viewport %d is invalid: %+v", i, vp))
		}
	}
	if len(viewports) == 0 {
		ctx.viewports = nil
		ctx.setDefaultViewport()
	} else {
		ctx.commitViewports(viewports)
	}
	ctx.state = StateResourcesBound
	return nil
}

func (ctx *DeviceContext) commitViewports(viewports []metadata.Viewport) {
	ctx.viewports = append(ctx.viewports[:0], viewports...)
	if ctx.cache.ViewportsMatch(viewports) {
		return
	}
	ctx.native.SetViewports(viewports)
	ctx.cache.SetViewports(viewports)
	ctx.stats.NativeCalls++
}

func (ctx *DeviceContext) SetScissorRects(rects []metadata.Rect) error {
	const op = "SetScissorRects"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if len(rects) > ctx.cache.Limits().Viewports {
		return ctx.fail(core.ContractViolation(op, "%d scissor rects exceed the limit of %d", len(rects), ctx.cache.Limits().Viewports))
	}
	ctx.scissors = append(ctx.scissors[:0], rects...)
	if !ctx.cache.ScissorsMatch(rects) {
		ctx.native.SetScissorRects(rects)
		ctx.cache.SetScissors(rects)
		ctx.stats.NativeCalls++
	}
	ctx.state = StateResourcesBound
	return nil
}

// SetBlendFactors sets the constant blend factors used with the bound
// pipeline's blend state.
func (ctx *DeviceContext) SetBlendFactors(factors [4]float32) error {
	if err := ctx.enter("SetBlendFactors"); err != nil {
		return err
	}
	defer ctx.leave()

	ctx.blendFactors = factors
	if ctx.pipeline != nil && !ctx.pipeline.Desc().IsComputePipeline {
		ctx.commitBlendState(&ctx.pipeline.Desc().Graphics)
	}
	return nil
}

func (ctx *DeviceContext) SetStencilRef(ref uint32) error {
	if err := ctx.enter("SetStencilRef"); err != nil {
		return err
	}
	defer ctx.leave()

	ctx.stencilRef = ref
	if ctx.pipeline != nil && !ctx.pipeline.Desc().IsComputePipeline {
		ctx.commitDepthStencilState(&ctx.pipeline.Desc().Graphics)
	}
	return nil
}

func (ctx *DeviceContext) ClearRenderTarget(rtv metadata.TextureView, color [4]float32) error {
	const op = "ClearRenderTarget"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if rtv == nil || rtv.ViewType() != metadata.VIEW_TYPE_RENDER_TARGET {
		return ctx.fail(core.ContractViolation(op, "a render target view is required"))
	}
	ctx.stats.NativeCalls++
	if err := ctx.native.ClearRenderTarget(rtv.NativeHandle(), color); err != nil {
		return ctx.fail(core.NativeFailure(op, err))
	}
	return nil
}

func (ctx *DeviceContext) ClearDepthStencil(dsv metadata.TextureView, flags metadata.ClearDepthStencilFlags, depth float32, stencil uint8) error {
	const op = "ClearDepthStencil"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if dsv == nil || dsv.ViewType() != metadata.VIEW_TYPE_DEPTH_STENCIL {
		return ctx.fail(core.ContractViolation(op, "a depth-stencil view is required"))
	}
	if depth < 0 || depth > 1 {
		return ctx.fail(core.ContractViolation(op, "depth %f is outside [0, 1]", depth))
	}
	ctx.stats.NativeCalls++
	if err := ctx.native.ClearDepthStencil(dsv.NativeHandle(), flags, depth, stencil); err != nil {
		return ctx.fail(core.NativeFailure(op, err))
	}
	return nil
}

// InvalidateState unbinds everything natively, drops every requested binding
// and empties the committed-state cache.
func (ctx *DeviceContext) InvalidateState() error {
	if err := ctx.enter("InvalidateState"); err != nil {
		return err
	}
	defer ctx.leave()

	ctx.native.ClearState()
	ctx.stats.NativeCalls++
	ctx.resetState()
	return nil
}

// resetState drops the requested bindings and the cache. The native context
// must already be clear.
// The cache is emptied before any reference is released, so a resource
// destroyed by its last release finds nothing left to unbind.
func (ctx *DeviceContext) resetState() {
	ctx.cache.Reset()
	ctx.releaseRoles(^metadata.ROLE_NONE)
	ctx.srb = nil
	ctx.viewports = ctx.viewports[:0]
	ctx.scissors = ctx.scissors[:0]
	ctx.state = StateIdle

	ctx.releaseVertexStreams()
	ib := ctx.indexBuffer
	ctx.indexBuffer, ctx.indexOffset = nil, 0
	if ib != nil {
		ib.Release()
	}
	ctx.releaseRenderTargets(func(metadata.Texture) bool { return true })
	pso := ctx.pipeline
	ctx.pipeline = nil
	if pso != nil {
		pso.Release()
	}
}

// FinishFrame unbinds the constant buffers, shader resources, samplers and
// UAVs of every stage. Vertex and index buffers, render targets and the
// pipeline stay bound.
func (ctx *DeviceContext) FinishFrame() error {
	if err := ctx.enter("FinishFrame"); err != nil {
		return err
	}
	defer ctx.leave()

	ctx.releaseCommittedShaderResources()
	ctx.state = StateIdle
	return nil
}

func (ctx *DeviceContext) releaseCommittedShaderResources() {
	for cat := 0; cat < metadata.NUM_RESOURCE_CATEGORIES; cat++ {
		category := metadata.ResourceCategory(cat)
		table := ctx.cache.Table(category)
		for s := 0; s < metadata.NUM_SHADER_TYPES; s++ {
			stage := metadata.ShaderType(s)
			if n := table.NumCommitted(stage); n > 0 {
				setSlots(ctx.native, category, stage, 0, make([]metadata.Handle, n))
				ctx.stats.NativeCalls++
				ctx.stats.UnboundSlots += uint64(n)
			}
		}
	}
	ctx.cache.ReleaseShaderResources()
	ctx.releaseRoles(metadata.ROLE_CONSTANT_BUFFER | metadata.ROLE_SHADER_RESOURCE | metadata.ROLE_UNORDERED_ACCESS)
}

// Flush submits the recorded commands of the immediate context to the GPU.
func (ctx *DeviceContext) Flush() error {
	const op = "Flush"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if ctx.desc.IsDeferred {
		return ctx.fail(core.ContractViolation(op, "deferred contexts cannot be flushed"))
	}
	ctx.stats.NativeCalls++
	if err := ctx.native.Flush(); err != nil {
		return ctx.fail(core.NativeFailure(op, err))
	}
	ctx.state = StateIdle
	return nil
}

// FinishCommandList closes the recording of a deferred context. The list
// belongs to the caller and the context starts over from an empty state.
func (ctx *DeviceContext) FinishCommandList() (*metadata.CommandList, error) {
	const op = "FinishCommandList"
	if err := ctx.enter(op); err != nil {
		return nil, err
	}
	defer ctx.leave()

	if !ctx.desc.IsDeferred {
		return nil, ctx.fail(core.ContractViolation(op, "only deferred contexts record command lists"))
	}
	if !ctx.caps.CommandLists {
		return nil, ctx.fail(core.ContractViolation(op, "backend %s does not support command lists", ctx.caps.Name))
	}
	ctx.stats.NativeCalls++
	native, err := ctx.native.FinishCommandList()
	if err != nil {
		return nil, ctx.fail(core.NativeFailure(op, err))
	}
	list := &metadata.CommandList{
		ID:      uuid.New(),
		Context: ctx.desc.Name,
		Native:  native,
	}
	ctx.resetState()
	ctx.log.Debug("command list finished", "list", list.ID)
	if ctx.bus != nil {
		ctx.bus.Fire(core.EVENT_CODE_COMMAND_LIST_FINISHED, ctx, core.EventContext{Object: list})
	}
	return list, nil
}

// ExecuteCommandList replays list on the immediate context. The context's
// state is cleared afterwards.
func (ctx *DeviceContext) ExecuteCommandList(list *metadata.CommandList) error {
	const op = "ExecuteCommandList"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if ctx.desc.IsDeferred {
		return ctx.fail(core.ContractViolation(op, "command lists can only be executed by the immediate context"))
	}
	if list == nil {
		return ctx.fail(core.ContractViolation(op, "command list is nil"))
	}
	ctx.stats.NativeCalls++
	if err := ctx.native.ExecuteCommandList(list.Native); err != nil {
		return ctx.fail(core.NativeFailure(op, err))
	}
	ctx.native.ClearState()
	ctx.stats.NativeCalls++
	ctx.resetState()
	return nil
}
