package vulkan

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/renderer"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

var ErrNotCommandList = errors.New("not a vulkan command list")

// contextState is what the device context has bound. Vulkan has no bound
// state outside a command buffer, it is turned into commands when a draw or
// dispatch is recorded.
type contextState struct {
	slots [metadata.NUM_RESOURCE_CATEGORIES][metadata.NUM_SHADER_TYPES][]metadata.Handle

	shaders [metadata.NUM_SHADER_TYPES]metadata.Handle
	// graphics then compute
	pipelines   [2]metadata.Handle
	inputLayout metadata.Handle
	topology    gputypes.PrimitiveTopology
	topologySet bool

	vbBuffers []metadata.Handle
	vbStrides []uint32
	vbOffsets []uint32
	ibBuffer  metadata.Handle
	ibFormat  gputypes.IndexFormat
	ibOffset  uint32

	targets []metadata.Handle
	dsv     metadata.Handle

	blendState   metadata.Handle
	blendFactors [4]float32
	sampleMask   uint32
	rasterizer   metadata.Handle
	dsState      metadata.Handle
	stencilRef   uint32
	viewports    []metadata.Viewport
	scissors     []metadata.Rect
}

type dirtyFlags uint32

const (
	DIRTY_GRAPHICS_PIPELINE dirtyFlags = 1 << iota
	DIRTY_COMPUTE_PIPELINE
	DIRTY_VERTEX_BUFFERS
	DIRTY_INDEX_BUFFER
	DIRTY_VIEWPORTS
	DIRTY_SCISSORS
	DIRTY_BLEND_CONSTANTS
	DIRTY_STENCIL_REF

	DIRTY_ALL dirtyFlags = 1<<iota - 1
)

func grow[T any](s []T, n int) []T {
	if len(s) < n {
		s = append(s, make([]T, n-len(s))...)
	}
	return s
}

// read returns count entries of s from index 0, null past its end.
func read[T any](s []T, count int) []T {
	out := make([]T, count)
	copy(out, s)
	return out
}

/**
 * @brief A device context on top of a Vulkan queue. Bindings are kept on
 * the CPU and flushed into the command buffer before each draw or dispatch:
 * the pipeline, one descriptor set per dirty shader stage, vertex and index
 * buffers and the dynamic states. Draws are recorded in a render pass over
 * the bound render targets, the pass is ended when the targets change or a
 * dispatch is recorded.
 *
 * An immediate context submits its command buffer on Flush, a deferred one
 * hands it out from FinishCommandList.
 */
type Context struct {
	name     string
	deferred bool
	backend  *Backend
	logger   *log.Logger

	state contextState
	dirty dirtyFlags
	// stages whose slots changed since their set was written
	dirtySets [metadata.NUM_SHADER_TYPES]bool
	sets      [metadata.NUM_SHADER_TYPES]vk.DescriptorSet

	cmdPool vk.CommandPool
	cmd     *CommandBuffer
	pool    *descriptorPool
	fence   *Fence

	// buffers of executed command lists, freed on the next recording
	mu      sync.Mutex
	retired []*CommandBuffer

	pass        *Framebuffer
	passTargets targetSet
	targets     *targetCache
}

var (
	_ renderer.NativeContext = (*Context)(nil)
	_ renderer.StateReader   = (*Context)(nil)
)

/**
 * @brief A finished deferred command buffer together with the descriptor
 * sets it references.
 */
type CommandList struct {
	cmd   *CommandBuffer
	pool  *descriptorPool
	owner *Context
}

func newContext(backend *Backend, name string, deferred bool) (*Context, error) {
	c := &Context{
		name:     name,
		deferred: deferred,
		backend:  backend,
		logger:   backend.logger.With("context", name),
		dirty:    DIRTY_ALL,
		targets:  newTargetCache(backend.Device),
	}
	cmdPool, err := NewCommandPool(backend.Device)
	if err != nil {
		return nil, err
	}
	c.cmdPool = cmdPool
	if !deferred {
		fence, err := NewFence(backend.Device, false)
		if err != nil {
			DestroyCommandPool(backend.Device, cmdPool)
			return nil, err
		}
		c.fence = fence
	}
	c.invalidate()
	return c, nil
}

func (c *Context) Name() string {
	return c.name
}

func (c *Context) Caps() metadata.BackendCaps {
	return metadata.BackendCaps{
		Name: "vulkan",
		// each run is one descriptor write
		Coalesce:     metadata.COALESCE_RUNS,
		CommandLists: true,
	}
}

// invalidate forgets what was recorded into the command buffer, everything
// is flushed again before the next draw.
func (c *Context) invalidate() {
	c.dirty = DIRTY_ALL
	for i := range c.sets {
		c.sets[i] = nil
		c.dirtySets[i] = true
	}
	c.pass = nil
	c.passTargets = targetSet{}
}

// retire takes back the buffer of an executed command list. It may be
// called from the goroutine of the immediate context.
func (c *Context) retire(cmd *CommandBuffer) {
	c.mu.Lock()
	c.retired = append(c.retired, cmd)
	c.mu.Unlock()
}

func (c *Context) freeRetired() {
	c.mu.Lock()
	retired := c.retired
	c.retired = nil
	c.mu.Unlock()
	for _, cmd := range retired {
		cmd.Free(c.backend.Device)
	}
}

func (c *Context) ensureRecording() error {
	device := c.backend.Device
	c.freeRetired()
	if c.cmd == nil {
		cmd, err := NewCommandBuffer(device, c.cmdPool)
		if err != nil {
			return err
		}
		c.cmd = cmd
	}
	if c.pool == nil {
		pool, err := newDescriptorPool(c.backend.Layouts, c.backend.maxSets)
		if err != nil {
			return err
		}
		c.pool = pool
	}
	if !c.cmd.IsRecording() {
		if err := c.cmd.Begin(false); err != nil {
			return err
		}
		c.invalidate()
	}
	return nil
}

func (c *Context) currentTargets() targetSet {
	var set targetSet
	copy(set.rtvs[:], c.state.targets)
	set.dsv = c.state.dsv
	if len(c.state.targets) == 0 && c.state.dsv == metadata.NullHandle && len(c.state.viewports) > 0 {
		// a pass without attachments covers the first viewport
		vp := c.state.viewports[0]
		set.width, set.height = uint32(vp.TopLeftX+vp.Width), uint32(vp.TopLeftY+vp.Height)
	}
	return set
}

// beginPass makes sure a render pass over the bound targets is open.
func (c *Context) beginPass() error {
	set := c.currentTargets()
	if c.pass != nil && c.passTargets == set {
		return nil
	}
	c.endPass()
	if set == (targetSet{}) {
		return fmt.Errorf("context %s: no render target bound", c.name)
	}
	fb, err := c.targets.framebuffer(c.backend.Registry, set)
	if err != nil {
		return err
	}
	fb.Renderpass.Begin(c.cmd, fb)
	c.pass, c.passTargets = fb, set
	// scissors and viewports default to the framebuffer extent
	c.dirty |= DIRTY_VIEWPORTS | DIRTY_SCISSORS
	return nil
}

func (c *Context) endPass() {
	if c.pass != nil {
		c.pass.Renderpass.End(c.cmd)
		c.pass = nil
		c.passTargets = targetSet{}
	}
}

// pipeline returns the bound pipeline of the given kind.
func (c *Context) pipeline(isCompute bool) (Object, error) {
	index := 0
	if isCompute {
		index = 1
	}
	h := c.state.pipelines[index]
	obj, ok := c.backend.Registry.Lookup(h)
	if h == metadata.NullHandle || !ok || obj.Pipeline == nil {
		kind := "graphics"
		if isCompute {
			kind = "compute"
		}
		return obj, fmt.Errorf("context %s: no %s pipeline bound", c.name, kind)
	}
	if obj.IsCompute != isCompute {
		return obj, fmt.Errorf("context %s: pipeline '%s' is bound as the wrong kind", c.name, obj.Name)
	}
	return obj, nil
}

// writeSet allocates a descriptor set for stage and writes its bound slots.
func (c *Context) writeSet(stage metadata.ShaderType) error {
	set, err := c.pool.allocate(stage)
	if err != nil {
		return err
	}
	var writes []vk.WriteDescriptorSet
	for category := 0; category < metadata.NUM_RESOURCE_CATEGORIES; category++ {
		slots, err := slotWrites(c.backend.Registry, metadata.ResourceCategory(category), c.state.slots[category][stage])
		if err != nil {
			return fmt.Errorf("context %s, stage %s: %w", c.name, stage, err)
		}
		for _, run := range groupRuns(slots) {
			writes = append(writes, toWriteDescriptorSet(set, run))
		}
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(c.backend.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	c.sets[stage] = set
	c.dirtySets[stage] = false
	return nil
}

func (c *Context) flushGraphics() error {
	if err := c.ensureRecording(); err != nil {
		return err
	}
	pipe, err := c.pipeline(false)
	if err != nil {
		return err
	}
	if err := c.beginPass(); err != nil {
		return err
	}
	cmd := c.cmd.Handle

	if c.dirty&DIRTY_GRAPHICS_PIPELINE != 0 {
		vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, pipe.Pipeline)
	}

	setsChanged := c.dirty&DIRTY_GRAPHICS_PIPELINE != 0
	for _, stage := range metadata.GraphicsShaderTypes {
		if c.dirtySets[stage] || c.sets[stage] == nil {
			if err := c.writeSet(stage); err != nil {
				return err
			}
			setsChanged = true
		}
	}
	if setsChanged {
		sets := c.sets[:len(metadata.GraphicsShaderTypes)]
		vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, pipe.Layout, 0, uint32(len(sets)), sets, 0, nil)
	}

	if c.dirty&DIRTY_VERTEX_BUFFERS != 0 {
		if err := c.bindVertexBuffers(); err != nil {
			return err
		}
	}
	if c.dirty&DIRTY_INDEX_BUFFER != 0 && c.state.ibBuffer != metadata.NullHandle {
		obj, ok := c.backend.Registry.Lookup(c.state.ibBuffer)
		if !ok || obj.Kind != OBJECT_KIND_BUFFER {
			return fmt.Errorf("context %s: index buffer %d is not a buffer", c.name, c.state.ibBuffer)
		}
		indices, ok := indexType(c.state.ibFormat)
		if !ok {
			return fmt.Errorf("context %s: index format %v is not supported", c.name, c.state.ibFormat)
		}
		vk.CmdBindIndexBuffer(cmd, obj.Buffer, vk.DeviceSize(c.state.ibOffset), indices)
	}

	// Pipelines are created with one viewport and one scissor.
	if c.dirty&DIRTY_VIEWPORTS != 0 {
		viewport := vk.Viewport{
			Width:    float32(c.pass.Width),
			Height:   float32(c.pass.Height),
			MaxDepth: 1.0,
		}
		if len(c.state.viewports) > 0 {
			vp := c.state.viewports[0]
			viewport = vk.Viewport{
				X:        vp.TopLeftX,
				Y:        vp.TopLeftY,
				Width:    vp.Width,
				Height:   vp.Height,
				MinDepth: vp.MinDepth,
				MaxDepth: vp.MaxDepth,
			}
		}
		vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{viewport})
	}
	if c.dirty&DIRTY_SCISSORS != 0 {
		scissor := vk.Rect2D{
			Extent: vk.Extent2D{Width: c.pass.Width, Height: c.pass.Height},
		}
		if len(c.state.scissors) > 0 {
			r := c.state.scissors[0]
			scissor = vk.Rect2D{
				Offset: vk.Offset2D{X: r.Left, Y: r.Top},
				Extent: vk.Extent2D{Width: uint32(r.Right - r.Left), Height: uint32(r.Bottom - r.Top)},
			}
		}
		vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{scissor})
	}
	if c.dirty&DIRTY_BLEND_CONSTANTS != 0 {
		vk.CmdSetBlendConstants(cmd, &c.state.blendFactors)
	}
	if c.dirty&DIRTY_STENCIL_REF != 0 {
		vk.CmdSetStencilReference(cmd, vk.StencilFaceFlags(vk.StencilFaceFrontBit|vk.StencilFaceBackBit), c.state.stencilRef)
	}

	c.dirty &^= DIRTY_GRAPHICS_PIPELINE | DIRTY_VERTEX_BUFFERS | DIRTY_INDEX_BUFFER |
		DIRTY_VIEWPORTS | DIRTY_SCISSORS | DIRTY_BLEND_CONSTANTS | DIRTY_STENCIL_REF
	return nil
}

// bindVertexBuffers binds each run of non-null vertex buffer slots. Strides
// belong to the pipeline.
func (c *Context) bindVertexBuffers() error {
	var buffers []vk.Buffer
	var offsets []vk.DeviceSize
	first := uint32(0)
	bind := func() {
		if len(buffers) > 0 {
			vk.CmdBindVertexBuffers(c.cmd.Handle, first, uint32(len(buffers)), buffers, offsets)
		}
		buffers, offsets = nil, nil
	}
	for slot, h := range c.state.vbBuffers {
		if h == metadata.NullHandle {
			bind()
			continue
		}
		obj, ok := c.backend.Registry.Lookup(h)
		if !ok || obj.Kind != OBJECT_KIND_BUFFER {
			return fmt.Errorf("context %s: vertex buffer slot %d holds %d which is not a buffer", c.name, slot, h)
		}
		if len(buffers) == 0 {
			first = uint32(slot)
		}
		buffers = append(buffers, obj.Buffer)
		offsets = append(offsets, vk.DeviceSize(c.state.vbOffsets[slot]))
	}
	bind()
	return nil
}

func (c *Context) flushCompute() error {
	if err := c.ensureRecording(); err != nil {
		return err
	}
	pipe, err := c.pipeline(true)
	if err != nil {
		return err
	}
	// dispatches are not allowed inside a render pass
	c.endPass()
	cmd := c.cmd.Handle
	stage := metadata.SHADER_TYPE_COMPUTE

	rebind := c.dirty&DIRTY_COMPUTE_PIPELINE != 0
	if rebind {
		vk.CmdBindPipeline(cmd, vk.PipelineBindPointCompute, pipe.Pipeline)
	}
	if c.dirtySets[stage] || c.sets[stage] == nil {
		if err := c.writeSet(stage); err != nil {
			return err
		}
		rebind = true
	}
	if rebind {
		vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointCompute, pipe.Layout, uint32(stage), 1, c.sets[stage:stage+1], 0, nil)
	}
	c.dirty &^= DIRTY_COMPUTE_PIPELINE
	return nil
}

func (c *Context) indirectBuffer(args metadata.Handle) (vk.Buffer, error) {
	obj, ok := c.backend.Registry.Lookup(args)
	if !ok || obj.Kind != OBJECT_KIND_BUFFER {
		return nil, fmt.Errorf("context %s: indirect arguments %d are not a buffer", c.name, args)
	}
	return obj.Buffer, nil
}

func (c *Context) setSlots(category metadata.ResourceCategory, stage metadata.ShaderType, start uint32, handles []metadata.Handle) {
	slots := grow(c.state.slots[category][stage], int(start)+len(handles))
	copy(slots[start:], handles)
	c.state.slots[category][stage] = slots
	c.dirtySets[stage] = true
}

func (c *Context) SetConstantBuffers(stage metadata.ShaderType, start uint32, buffers []metadata.Handle) {
	c.setSlots(metadata.CATEGORY_CONSTANT_BUFFER, stage, start, buffers)
}

func (c *Context) SetShaderResources(stage metadata.ShaderType, start uint32, views []metadata.Handle) {
	c.setSlots(metadata.CATEGORY_SHADER_RESOURCE, stage, start, views)
}

func (c *Context) SetSamplers(stage metadata.ShaderType, start uint32, samplers []metadata.Handle) {
	c.setSlots(metadata.CATEGORY_SAMPLER, stage, start, samplers)
}

func (c *Context) SetUnorderedAccessViews(stage metadata.ShaderType, start uint32, views []metadata.Handle) {
	c.setSlots(metadata.CATEGORY_UNORDERED_ACCESS, stage, start, views)
}

// SetShader only tracks the shader, shader modules are part of the pipeline.
func (c *Context) SetShader(stage metadata.ShaderType, shader metadata.Handle) {
	c.state.shaders[stage] = shader
}

func (c *Context) BindPipeline(pipeline metadata.Handle, isCompute bool) {
	if isCompute {
		c.state.pipelines[1] = pipeline
		c.dirty |= DIRTY_COMPUTE_PIPELINE
	} else {
		c.state.pipelines[0] = pipeline
		c.dirty |= DIRTY_GRAPHICS_PIPELINE
	}
}

func (c *Context) SetVertexBuffers(start uint32, buffers []metadata.Handle, strides, offsets []uint32) {
	n := int(start) + len(buffers)
	c.state.vbBuffers = grow(c.state.vbBuffers, n)
	c.state.vbStrides = grow(c.state.vbStrides, n)
	c.state.vbOffsets = grow(c.state.vbOffsets, n)
	copy(c.state.vbBuffers[start:], buffers)
	copy(c.state.vbStrides[start:], strides)
	copy(c.state.vbOffsets[start:], offsets)
	c.dirty |= DIRTY_VERTEX_BUFFERS
}

func (c *Context) SetIndexBuffer(buffer metadata.Handle, format gputypes.IndexFormat, offset uint32) {
	c.state.ibBuffer, c.state.ibFormat, c.state.ibOffset = buffer, format, offset
	c.dirty |= DIRTY_INDEX_BUFFER
}

// The input layout, topology, blend, rasterizer and depth-stencil states
// are baked into the pipeline, they are only tracked.

func (c *Context) SetInputLayout(layout metadata.Handle) {
	c.state.inputLayout = layout
}

func (c *Context) SetPrimitiveTopology(topology gputypes.PrimitiveTopology) {
	c.state.topology, c.state.topologySet = topology, true
}

func (c *Context) SetRenderTargets(rtvs []metadata.Handle, dsv metadata.Handle) {
	c.state.targets = append(c.state.targets[:0], rtvs...)
	c.state.dsv = dsv
}

func (c *Context) SetBlendState(state metadata.Handle, factors [4]float32, sampleMask uint32) {
	c.state.blendState, c.state.sampleMask = state, sampleMask
	c.state.blendFactors = factors
	c.dirty |= DIRTY_BLEND_CONSTANTS
}

func (c *Context) SetRasterizerState(state metadata.Handle) {
	c.state.rasterizer = state
}

func (c *Context) SetDepthStencilState(state metadata.Handle, stencilRef uint32) {
	c.state.dsState, c.state.stencilRef = state, stencilRef
	c.dirty |= DIRTY_STENCIL_REF
}

func (c *Context) SetViewports(viewports []metadata.Viewport) {
	c.state.viewports = append(c.state.viewports[:0], viewports...)
	c.dirty |= DIRTY_VIEWPORTS
}

func (c *Context) SetScissorRects(rects []metadata.Rect) {
	c.state.scissors = append(c.state.scissors[:0], rects...)
	c.dirty |= DIRTY_SCISSORS
}

// clearAttachment records a clear of one attachment of the bound targets,
// the view must be bound for it to be part of the render pass.
func (c *Context) clearAttachment(attachment vk.ClearAttachment) error {
	if err := c.ensureRecording(); err != nil {
		return err
	}
	if err := c.beginPass(); err != nil {
		return err
	}
	rect := vk.ClearRect{
		Rect: vk.Rect2D{
			Extent: vk.Extent2D{Width: c.pass.Width, Height: c.pass.Height},
		},
		LayerCount: 1,
	}
	vk.CmdClearAttachments(c.cmd.Handle, 1, []vk.ClearAttachment{attachment}, 1, []vk.ClearRect{rect})
	return nil
}

func (c *Context) ClearRenderTarget(rtv metadata.Handle, color [4]float32) error {
	index, ok := c.currentTargets().attachmentIndex(rtv)
	if !ok {
		return fmt.Errorf("context %s: render target %d is not bound", c.name, rtv)
	}
	attachment := vk.ClearAttachment{
		AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ColorAttachment: index,
	}
	attachment.ClearValue.SetColor(color[:])
	return c.clearAttachment(attachment)
}

func (c *Context) ClearDepthStencil(dsv metadata.Handle, flags metadata.ClearDepthStencilFlags, depth float32, stencil uint8) error {
	if dsv == metadata.NullHandle || dsv != c.state.dsv {
		return fmt.Errorf("context %s: depth stencil view %d is not bound", c.name, dsv)
	}
	var aspect vk.ImageAspectFlags
	if flags&metadata.CLEAR_DEPTH_FLAG != 0 {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if flags&metadata.CLEAR_STENCIL_FLAG != 0 {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if aspect == 0 {
		return nil
	}
	attachment := vk.ClearAttachment{AspectMask: aspect}
	attachment.ClearValue.SetDepthStencil(depth, uint32(stencil))
	return c.clearAttachment(attachment)
}

func (c *Context) Draw(vertexCount, instanceCount, startVertex, startInstance uint32) error {
	if err := c.flushGraphics(); err != nil {
		return err
	}
	vk.CmdDraw(c.cmd.Handle, vertexCount, instanceCount, startVertex, startInstance)
	return nil
}

func (c *Context) DrawIndexed(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) error {
	if c.state.ibBuffer == metadata.NullHandle {
		return fmt.Errorf("context %s: no index buffer bound", c.name)
	}
	if err := c.flushGraphics(); err != nil {
		return err
	}
	vk.CmdDrawIndexed(c.cmd.Handle, indexCount, instanceCount, startIndex, baseVertex, startInstance)
	return nil
}

func (c *Context) DrawIndirect(args metadata.Handle, offset uint32) error {
	buffer, err := c.indirectBuffer(args)
	if err != nil {
		return err
	}
	if err := c.flushGraphics(); err != nil {
		return err
	}
	vk.CmdDrawIndirect(c.cmd.Handle, buffer, vk.DeviceSize(offset), 1, 0)
	return nil
}

func (c *Context) DrawIndexedIndirect(args metadata.Handle, offset uint32) error {
	buffer, err := c.indirectBuffer(args)
	if err != nil {
		return err
	}
	if c.state.ibBuffer == metadata.NullHandle {
		return fmt.Errorf("context %s: no index buffer bound", c.name)
	}
	if err := c.flushGraphics(); err != nil {
		return err
	}
	vk.CmdDrawIndexedIndirect(c.cmd.Handle, buffer, vk.DeviceSize(offset), 1, 0)
	return nil
}

func (c *Context) Dispatch(x, y, z uint32) error {
	if err := c.flushCompute(); err != nil {
		return err
	}
	vk.CmdDispatch(c.cmd.Handle, x, y, z)
	return nil
}

func (c *Context) DispatchIndirect(args metadata.Handle, offset uint32) error {
	buffer, err := c.indirectBuffer(args)
	if err != nil {
		return err
	}
	if err := c.flushCompute(); err != nil {
		return err
	}
	vk.CmdDispatchIndirect(c.cmd.Handle, buffer, vk.DeviceSize(offset))
	return nil
}

// ClearState unbinds everything. Recorded commands are kept.
func (c *Context) ClearState() {
	c.state = contextState{}
	c.dirty = DIRTY_ALL
	for i := range c.dirtySets {
		c.dirtySets[i] = true
	}
}

// closeRecording ends the command buffer if it is recording, false when
// nothing was recorded.
func (c *Context) closeRecording() (bool, error) {
	if c.cmd == nil || !c.cmd.IsRecording() {
		return false, nil
	}
	c.endPass()
	return true, c.cmd.End()
}

// completed makes the command buffer and its descriptor sets reusable.
func (c *Context) completed() error {
	c.invalidate()
	if err := c.cmd.Reset(); err != nil {
		return err
	}
	return c.pool.reset()
}

// Flush submits what was recorded and waits for the queue to complete it.
func (c *Context) Flush() error {
	if c.deferred {
		return fmt.Errorf("context %s: deferred contexts cannot flush", c.name)
	}
	recorded, err := c.closeRecording()
	if err != nil || !recorded {
		return err
	}
	if err := c.submit(c.cmd.Handle); err != nil {
		return err
	}
	c.logger.Debug("flushed command buffer")
	return c.completed()
}

func (c *Context) submit(buffers ...vk.CommandBuffer) error {
	device := c.backend.Device
	if err := c.fence.Reset(device); err != nil {
		return err
	}
	if err := device.Submit(buffers, c.fence.Handle); err != nil {
		return err
	}
	c.cmd.UpdateSubmitted()
	return c.fence.Wait(device, ^uint64(0))
}

// FinishCommandList hands out the recorded command buffer with its
// descriptor pool. The next command recorded starts a new buffer.
func (c *Context) FinishCommandList() (interface{}, error) {
	if !c.deferred {
		return nil, fmt.Errorf("context %s: only deferred contexts finish command lists", c.name)
	}
	if err := c.ensureRecording(); err != nil {
		return nil, err
	}
	if _, err := c.closeRecording(); err != nil {
		return nil, err
	}
	list := &CommandList{cmd: c.cmd, pool: c.pool, owner: c}
	c.cmd, c.pool = nil, nil
	c.ClearState()
	c.invalidate()
	return list, nil
}

// ExecuteCommandList submits what this context recorded followed by the
// list, waits for both and releases the list.
func (c *Context) ExecuteCommandList(list interface{}) error {
	cl, ok := list.(*CommandList)
	if !ok || cl.cmd == nil {
		return ErrNotCommandList
	}
	if c.deferred {
		return fmt.Errorf("context %s: deferred contexts cannot execute command lists", c.name)
	}
	defer cl.release(c.backend.Device)

	if err := c.ensureRecording(); err != nil {
		return err
	}
	if _, err := c.closeRecording(); err != nil {
		return err
	}
	if err := c.submit(c.cmd.Handle, cl.cmd.Handle); err != nil {
		return err
	}
	cl.cmd.UpdateSubmitted()
	c.logger.Debug("executed command list", "from", cl.owner.name)
	return c.completed()
}

func (cl *CommandList) release(device *Device) {
	if cl.cmd != nil {
		cl.owner.retire(cl.cmd)
		cl.cmd = nil
	}
	if cl.pool != nil {
		cl.pool.destroy()
		cl.pool = nil
	}
}

// Release drops a command list that will not be executed.
func (cl *CommandList) Release(backend *Backend) {
	cl.release(backend.Device)
}

// Destroy releases the native objects of the context. The device must be
// idle.
func (c *Context) Destroy() {
	device := c.backend.Device
	c.targets.destroy()
	c.freeRetired()
	if c.cmd != nil {
		c.cmd.Free(device)
		c.cmd = nil
	}
	if c.pool != nil {
		c.pool.destroy()
		c.pool = nil
	}
	if c.fence != nil {
		c.fence.Destroy(device)
		c.fence = nil
	}
	DestroyCommandPool(device, c.cmdPool)
	c.cmdPool = nil
}

// StateReader

func (c *Context) Slots(stage metadata.ShaderType, category metadata.ResourceCategory, count int) []metadata.Handle {
	return read(c.state.slots[category][stage], count)
}

func (c *Context) Shader(stage metadata.ShaderType) metadata.Handle {
	return c.state.shaders[stage]
}

func (c *Context) VertexBuffers(count int) ([]metadata.Handle, []uint32, []uint32) {
	return read(c.state.vbBuffers, count), read(c.state.vbStrides, count), read(c.state.vbOffsets, count)
}

func (c *Context) IndexBuffer() (metadata.Handle, gputypes.IndexFormat, uint32) {
	return c.state.ibBuffer, c.state.ibFormat, c.state.ibOffset
}

func (c *Context) RenderTargets(count int) ([]metadata.Handle, metadata.Handle) {
	return read(c.state.targets, count), c.state.dsv
}

func (c *Context) InputLayout() metadata.Handle {
	return c.state.inputLayout
}

func (c *Context) PrimitiveTopology() (gputypes.PrimitiveTopology, bool) {
	return c.state.topology, c.state.topologySet
}
