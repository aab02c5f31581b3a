package statecache

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

type VertexBufferSlot struct {
	Buffer metadata.Handle
	Stride uint32
	Offset uint32
}

type IndexBufferBinding struct {
	Buffer metadata.Handle
	Format gputypes.IndexFormat
	Offset uint32
}

// Cache is the committed-state cache of one device context: what the native
// context currently has bound. It never issues native calls.
type Cache struct {
	limits Limits
	tables [metadata.NUM_RESOURCE_CATEGORIES]*SlotTable

	vertexBuffers   []VertexBufferSlot
	numVBsCommitted int
	vbUpToDate      bool

	indexBuffer IndexBufferBinding
	ibUpToDate  bool

	renderTargets []Binding
	numRTVs       int
	depthStencil  Binding

	shaders       [metadata.NUM_SHADER_TYPES]metadata.Handle
	pipeline      metadata.Handle
	inputLayout   metadata.Handle
	topology      gputypes.PrimitiveTopology
	topologyValid bool

	blendState        metadata.Handle
	blendFactors      [4]float32
	sampleMask        uint32
	blendValid        bool
	rasterizerState   metadata.Handle
	rasterizerValid   bool
	depthStencilState metadata.Handle
	stencilRef        uint32
	depthStencilValid bool

	viewports []metadata.Viewport
	scissors  []metadata.Rect
}

func New(limits Limits) *Cache {
	c := &Cache{
		limits:        limits,
		vertexBuffers: make([]VertexBufferSlot, limits.VertexBuffers),
		renderTargets: make([]Binding, limits.RenderTargets),
	}
	for cat := 0; cat < metadata.NUM_RESOURCE_CATEGORIES; cat++ {
		category := metadata.ResourceCategory(cat)
		c.tables[cat] = NewSlotTable(category, limits.Slots(category))
	}
	return c
}

func (c *Cache) Limits() Limits {
	return c.limits
}

func (c *Cache) Table(category metadata.ResourceCategory) *SlotTable {
	return c.tables[category]
}

// Vertex buffers

func (c *Cache) VertexBuffer(slot int) VertexBufferSlot {
	return c.vertexBuffers[slot]
}

// VertexBuffers returns the committed slots [0, NumVertexBuffers). The slice aliases the cache.
func (c *Cache) VertexBuffers() []VertexBufferSlot {
	return c.vertexBuffers[:c.numVBsCommitted]
}

func (c *Cache) NumVertexBuffers() int {
	return c.numVBsCommitted
}

// SetVertexBuffers records the full array a native call just bound.
// Slots past len(slots) become null.
func (c *Cache) SetVertexBuffers(slots []VertexBufferSlot) {
	n := copy(c.vertexBuffers, slots)
	clear(c.vertexBuffers[n:])
	c.numVBsCommitted = n
	for c.numVBsCommitted > 0 && c.vertexBuffers[c.numVBsCommitted-1].Buffer == metadata.NullHandle {
		c.numVBsCommitted--
	}
	c.vbUpToDate = true
}

func (c *Cache) ClearVertexBuffer(slot int) {
	c.vertexBuffers[slot] = VertexBufferSlot{}
	for c.numVBsCommitted > 0 && c.vertexBuffers[c.numVBsCommitted-1].Buffer == metadata.NullHandle {
		c.numVBsCommitted--
	}
	c.vbUpToDate = false
}

// FindVertexBuffer calls fn for every slot holding buffer.
func (c *Cache) FindVertexBuffer(buffer metadata.Handle, fn func(slot int)) {
	if buffer == metadata.NullHandle {
		return
	}
	for slot := 0; slot < c.numVBsCommitted; slot++ {
		if c.vertexBuffers[slot].Buffer == buffer {
			fn(slot)
		}
	}
}

func (c *Cache) VertexBuffersUpToDate() bool {
	return c.vbUpToDate
}

func (c *Cache) InvalidateVertexBuffers() {
	c.vbUpToDate = false
}

// Index buffer

func (c *Cache) IndexBuffer() IndexBufferBinding {
	return c.indexBuffer
}

func (c *Cache) SetIndexBuffer(ib IndexBufferBinding) {
	c.indexBuffer = ib
	c.ibUpToDate = true
}

func (c *Cache) ClearIndexBuffer() {
	c.indexBuffer = IndexBufferBinding{}
	c.ibUpToDate = false
}

func (c *Cache) IndexBufferUpToDate() bool {
	return c.ibUpToDate
}

func (c *Cache) InvalidateIndexBuffer() {
	c.ibUpToDate = false
}

// Render targets

func (c *Cache) NumRenderTargets() int {
	return c.numRTVs
}

func (c *Cache) RenderTarget(slot int) Binding {
	return c.renderTargets[slot]
}

// RenderTargets returns the bound color targets. The slice aliases the cache.
func (c *Cache) RenderTargets() []Binding {
	return c.renderTargets[:c.numRTVs]
}

func (c *Cache) DepthStencil() Binding {
	return c.depthStencil
}

// RenderTargetsMatch reports whether exactly rtvs and dsv are bound.
func (c *Cache) RenderTargetsMatch(rtvs []Binding, dsv Binding) bool {
	if len(rtvs) != c.numRTVs || dsv != c.depthStencil {
		return false
	}
	for i, rtv := range rtvs {
		if c.renderTargets[i] != rtv {
			return false
		}
	}
	return true
}

func (c *Cache) SetRenderTargets(rtvs []Binding, dsv Binding) {
	n := copy(c.renderTargets, rtvs)
	clear(c.renderTargets[n:])
	c.numRTVs = n
	c.depthStencil = dsv
}

// FindRenderTarget calls fn for every color target created from resource.
func (c *Cache) FindRenderTarget(resource metadata.Handle, fn func(slot int)) {
	if resource == metadata.NullHandle {
		return
	}
	for slot := 0; slot < c.numRTVs; slot++ {
		if c.renderTargets[slot].Resource == resource {
			fn(slot)
		}
	}
}

// Shaders and input assembly

func (c *Cache) Shader(stage metadata.ShaderType) metadata.Handle {
	return c.shaders[stage]
}

func (c *Cache) SetShader(stage metadata.ShaderType, shader metadata.Handle) {
	c.shaders[stage] = shader
}

func (c *Cache) Pipeline() metadata.Handle {
	return c.pipeline
}

func (c *Cache) SetPipeline(pipeline metadata.Handle) {
	c.pipeline = pipeline
}

func (c *Cache) InputLayout() metadata.Handle {
	return c.inputLayout
}

func (c *Cache) SetInputLayout(layout metadata.Handle) {
	c.inputLayout = layout
}

// Topology returns the bound topology and whether one was bound since the
// last reset. The zero topology is a valid one.
func (c *Cache) Topology() (gputypes.PrimitiveTopology, bool) {
	return c.topology, c.topologyValid
}

func (c *Cache) SetTopology(topology gputypes.PrimitiveTopology) {
	c.topology = topology
	c.topologyValid = true
}

// Fixed-function state

func (c *Cache) BlendStateMatches(state metadata.Handle, factors [4]float32, sampleMask uint32) bool {
	return c.blendValid && c.blendState == state && c.blendFactors == factors && c.sampleMask == sampleMask
}

func (c *Cache) SetBlendState(state metadata.Handle, factors [4]float32, sampleMask uint32) {
	c.blendState, c.blendFactors, c.sampleMask, c.blendValid = state, factors, sampleMask, true
}

func (c *Cache) RasterizerStateMatches(state metadata.Handle) bool {
	return c.rasterizerValid && c.rasterizerState == state
}

func (c *Cache) SetRasterizerState(state metadata.Handle) {
	c.rasterizerState, c.rasterizerValid = state, true
}

func (c *Cache) DepthStencilStateMatches(state metadata.Handle, stencilRef uint32) bool {
	return c.depthStencilValid && c.depthStencilState == state && c.stencilRef == stencilRef
}

func (c *Cache) SetDepthStencilState(state metadata.Handle, stencilRef uint32) {
	c.depthStencilState, c.stencilRef, c.depthStencilValid = state, stencilRef, true
}

// Viewports and scissors

func (c *Cache) ViewportsMatch(viewports []metadata.Viewport) bool {
	return c.viewports != nil && slices.Equal(c.viewports, viewports)
}

func (c *Cache) SetViewports(viewports []metadata.Viewport) {
	c.viewports = append(make([]metadata.Viewport, 0, len(viewports)), viewports...)
}

func (c *Cache) ScissorsMatch(rects []metadata.Rect) bool {
	return c.scissors != nil && slices.Equal(c.scissors, rects)
}

func (c *Cache) SetScissors(rects []metadata.Rect) {
	c.scissors = append(make([]metadata.Rect, 0, len(rects)), rects...)
}

// ReleaseShaderResources empties the CB, SRV, sampler and UAV tables and
// leaves every other binding alone.
func (c *Cache) ReleaseShaderResources() {
	for _, t := range c.tables {
		t.Reset()
	}
}

// Reset forgets everything, forcing a full resubmission on the next commit.
func (c *Cache) Reset() {
	c.ReleaseShaderResources()
	clear(c.vertexBuffers)
	c.numVBsCommitted = 0
	c.vbUpToDate = false
	c.indexBuffer = IndexBufferBinding{}
	c.ibUpToDate = false
	clear(c.renderTargets)
	c.numRTVs = 0
	c.depthStencil = Binding{}
	c.shaders = [metadata.NUM_SHADER_TYPES]metadata.Handle{}
	c.pipeline = metadata.NullHandle
	c.inputLayout = metadata.NullHandle
	c.topology = gputypes.PrimitiveTopologyTriangleList
	c.topologyValid = false
	c.blendState, c.blendFactors, c.sampleMask, c.blendValid = metadata.NullHandle, [4]float32{}, 0, false
	c.rasterizerState, c.rasterizerValid = metadata.NullHandle, false
	c.depthStencilState, c.stencilRef, c.depthStencilValid = metadata.NullHandle, 0, false
	c.viewports = nil
	c.scissors = nil
}

// IsEmpty reports whether nothing at all is recorded as bound.
func (c *Cache) IsEmpty() bool {
	for _, t := range c.tables {
		for s := 0; s < metadata.NUM_SHADER_TYPES; s++ {
			if t.NumCommitted(metadata.ShaderType(s)) != 0 {
				return false
			}
		}
	}
	if c.numVBsCommitted != 0 || c.indexBuffer.Buffer != metadata.NullHandle || c.numRTVs != 0 || c.depthStencil != (Binding{}) {
		return false
	}
	for _, s := range c.shaders {
		if s != metadata.NullHandle {
			return false
		}
	}
	return c.pipeline == metadata.NullHandle && c.inputLayout == metadata.NullHandle && !c.topologyValid
}

// Check verifies the internal invariants of every table.
func (c *Cache) Check() error {
	for _, t := range c.tables {
		if err := t.Check(); err != nil {
			return err
		}
	}
	for slot, vb := range c.vertexBuffers {
		if slot >= c.numVBsCommitted && vb != (VertexBufferSlot{}) {
			return fmt.Errorf("vertex buffer slot %d: bound past the %d committed slots", slot, c.numVBsCommitted)
		}
	}
	if c.indexBuffer.Buffer == metadata.NullHandle && c.indexBuffer.Format != gputypes.IndexFormatUndefined {
		return fmt.Errorf("index buffer: format %s recorded without a buffer", c.indexBuffer.Format)
	}
	for slot, rt := range c.renderTargets {
		if (rt.View == metadata.NullHandle) != (rt.Resource == metadata.NullHandle) {
			return fmt.Errorf("render target %d: view %#x and resource %#x must be null together", slot, rt.View, rt.Resource)
		}
		if slot >= c.numRTVs && !rt.IsNull() {
			return fmt.Errorf("render target %d: bound past the %d bound targets", slot, c.numRTVs)
		}
	}
	if (c.depthStencil.View == metadata.NullHandle) != (c.depthStencil.Resource == metadata.NullHandle) {
		return fmt.Errorf("depth-stencil: view %#x and resource %#x must be null together", c.depthStencil.View, c.depthStencil.Resource)
	}
	return nil
}
