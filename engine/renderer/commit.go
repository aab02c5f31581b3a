package renderer

import (
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/rhi/engine/renderer/statecache"
)

// resolvedSlot is one slot of the pipeline layout with the object the
// binding resolves to.
type resolvedSlot struct {
	stage    metadata.ShaderType
	category metadata.ResourceCategory
	slot     int
	binding  statecache.Binding
	object   metadata.DeviceObject
	// nil for samplers
	resource metadata.Resource
}

func (ctx *DeviceContext) commitPipelineState() {
	pso := ctx.pipeline
	desc := pso.Desc()
	if h := pso.NativeHandle(); ctx.cache.Pipeline() != h {
		ctx.native.BindPipeline(h, desc.IsComputePipeline)
		ctx.cache.SetPipeline(h)
		ctx.stats.NativeCalls++
	}
	if desc.IsComputePipeline {
		ctx.commitShader(metadata.SHADER_TYPE_COMPUTE, pso.Shader(metadata.SHADER_TYPE_COMPUTE))
		return
	}
	for _, stage := range metadata.GraphicsShaderTypes {
		ctx.commitShader(stage, pso.Shader(stage))
	}
	g := &desc.Graphics
	if ctx.cache.InputLayout() != g.InputLayout {
		ctx.native.SetInputLayout(g.InputLayout)
		ctx.cache.SetInputLayout(g.InputLayout)
		ctx.stats.NativeCalls++
	}
	ctx.commitBlendState(g)
	if !ctx.cache.RasterizerStateMatches(g.RasterizerState) {
		ctx.native.SetRasterizerState(g.RasterizerState)
		ctx.cache.SetRasterizerState(g.RasterizerState)
		ctx.stats.NativeCalls++
	}
	ctx.commitDepthStencilState(g)
}

func (ctx *DeviceContext) commitShader(stage metadata.ShaderType, shader metadata.Shader) {
	h := handleOf(shader)
	if ctx.cache.Shader(stage) == h {
		return
	}
	ctx.native.SetShader(stage, h)
	ctx.cache.SetShader(stage, h)
	ctx.stats.NativeCalls++
}

func (ctx *DeviceContext) commitBlendState(g *metadata.GraphicsPipelineDesc) {
	if ctx.cache.BlendStateMatches(g.BlendState, ctx.blendFactors, g.SampleMask) {
		return
	}
	ctx.native.SetBlendState(g.BlendState, ctx.blendFactors, g.SampleMask)
	ctx.cache.SetBlendState(g.BlendState, ctx.blendFactors, g.SampleMask)
	ctx.stats.NativeCalls++
}

func (ctx *DeviceContext) commitDepthStencilState(g *metadata.GraphicsPipelineDesc) {
	if ctx.cache.DepthStencilStateMatches(g.DepthStencilState, ctx.stencilRef) {
		return
	}
	ctx.native.SetDepthStencilState(g.DepthStencilState, ctx.stencilRef)
	ctx.cache.SetDepthStencilState(g.DepthStencilState, ctx.stencilRef)
	ctx.stats.NativeCalls++
}

func (ctx *DeviceContext) commitTopology(topology gputypes.PrimitiveTopology) {
	if current, ok := ctx.cache.Topology(); ok && current == topology {
		return
	}
	ctx.native.SetPrimitiveTopology(topology)
	ctx.cache.SetTopology(topology)
	ctx.stats.NativeCalls++
}

func (ctx *DeviceContext) commitRenderTargets() {
	rtvs := make([]statecache.Binding, len(ctx.renderTargets))
	for i, rtv := range ctx.renderTargets {
		if rtv != nil {
			rtvs[i] = statecache.Binding{View: rtv.NativeHandle(), Resource: rtv.Texture().NativeHandle()}
		}
	}
	var dsv statecache.Binding
	if ctx.depthStencil != nil {
		dsv = statecache.Binding{View: ctx.depthStencil.NativeHandle(), Resource: ctx.depthStencil.Texture().NativeHandle()}
	}
	if ctx.cache.RenderTargetsMatch(rtvs, dsv) {
		return
	}
	views := make([]metadata.Handle, len(rtvs))
	for i, b := range rtvs {
		views[i] = b.View
	}
	ctx.native.SetRenderTargets(views, dsv.View)
	ctx.cache.SetRenderTargets(rtvs, dsv)
	ctx.stats.NativeCalls++
}

// commitVertexBuffers submits the whole vertex buffer array in one native
// call when the requested streams differ from the committed ones. Strides
// come from the pipeline. Slots bound before but not requested now are nulled.
func (ctx *DeviceContext) commitVertexBuffers(g *metadata.GraphicsPipelineDesc) {
	if ctx.cache.VertexBuffersUpToDate() {
		return
	}
	n := ctx.numVertexStreams
	if committed := ctx.cache.NumVertexBuffers(); committed > n {
		n = committed
	}
	slots := make([]statecache.VertexBufferSlot, n)
	for i := 0; i < ctx.numVertexStreams; i++ {
		stream := ctx.vertexStreams[i]
		if stream.buffer == nil {
			continue
		}
		ctx.unbindResourceFromUAV(stream.buffer)
		slots[i] = statecache.VertexBufferSlot{Buffer: stream.buffer.NativeHandle(), Offset: stream.offset}
		if i < len(g.VertexStrides) {
			slots[i].Stride = g.VertexStrides[i]
		}
	}

	same := true
	for i, s := range slots {
		if ctx.cache.VertexBuffer(i) != s {
			same = false
			break
		}
	}
	if same {
		ctx.cache.SetVertexBuffers(slots)
		ctx.stats.SkippedSlots += uint64(ctx.numVertexStreams)
		return
	}

	buffers := make([]metadata.Handle, n)
	strides := make([]uint32, n)
	offsets := make([]uint32, n)
	for i, s := range slots {
		buffers[i], strides[i], offsets[i] = s.Buffer, s.Stride, s.Offset
	}
	ctx.native.SetVertexBuffers(0, buffers, strides, offsets)
	ctx.cache.SetVertexBuffers(slots)
	ctx.stats.NativeCalls++
	for i := 0; i < ctx.numVertexStreams; i++ {
		if b := ctx.vertexStreams[i].buffer; b != nil {
			ctx.addRole(b, metadata.ROLE_VERTEX_BUFFER)
		}
	}
}

func (ctx *DeviceContext) commitIndexBuffer(op string, format gputypes.IndexFormat) *core.BindingError {
	if ctx.indexBuffer == nil {
		return core.ContractViolation(op, "indexed draw without an index buffer")
	}
	if format != gputypes.IndexFormatUint16 && format != gputypes.IndexFormatUint32 {
		return core.ContractViolation(op, "index type %s is not valid, use Uint16 or Uint32", format)
	}
	ib := statecache.IndexBufferBinding{Buffer: ctx.indexBuffer.NativeHandle(), Format: format, Offset: ctx.indexOffset}
	if ctx.cache.IndexBufferUpToDate() && ctx.cache.IndexBuffer() == ib {
		return nil
	}
	ctx.unbindResourceFromUAV(ctx.indexBuffer)
	if ctx.cache.IndexBuffer() != ib {
		ctx.native.SetIndexBuffer(ib.Buffer, ib.Format, ib.Offset)
		ctx.stats.NativeCalls++
	}
	ctx.cache.SetIndexBuffer(ib)
	ctx.addRole(ctx.indexBuffer, metadata.ROLE_INDEX_BUFFER)
	return nil
}

// categoryRole is the role a resource is given when bound in a category.
func categoryRole(category metadata.ResourceCategory) metadata.BindRole {
	switch category {
	case metadata.CATEGORY_CONSTANT_BUFFER:
		return metadata.ROLE_CONSTANT_BUFFER
	case metadata.CATEGORY_SHADER_RESOURCE:
		return metadata.ROLE_SHADER_RESOURCE
	case metadata.CATEGORY_UNORDERED_ACCESS:
		return metadata.ROLE_UNORDERED_ACCESS
	}
	return metadata.ROLE_NONE
}

// conflictingRoles are the roles a resource must not hold while bound in a category.
func conflictingRoles(category metadata.ResourceCategory) metadata.BindRole {
	switch category {
	case metadata.CATEGORY_CONSTANT_BUFFER, metadata.CATEGORY_SHADER_RESOURCE:
		return metadata.ROLES_OUTPUT
	case metadata.CATEGORY_UNORDERED_ACCESS:
		return metadata.ROLES_INPUT | metadata.ROLE_RENDER_TARGET | metadata.ROLE_DEPTH_STENCIL
	}
	return metadata.ROLE_NONE
}

// resolve gathers the object of every slot of the pipeline layout, from the
// pipeline for static bindings and from srb otherwise, and checks that each
// one fits its category.
func (ctx *DeviceContext) resolve(op string, pso metadata.PipelineState, srb metadata.ShaderResourceBinding) ([]resolvedSlot, *core.BindingError) {
	layout := pso.Desc().ResourceLayout
	resolved := make([]resolvedSlot, 0, len(layout))
	for _, b := range layout {
		capacity := ctx.cache.Table(b.Category).Capacity()
		if int(b.Slot+b.Count) > capacity {
			return nil, core.ContractViolation(op, "binding '%s' [%d, %d) exceeds the %d %s slots", b.Name, b.Slot, b.Slot+b.Count, capacity, b.Category).At(b.Stage, int(b.Slot))
		}
		for slot := b.Slot; slot < b.Slot+b.Count; slot++ {
			var obj metadata.DeviceObject
			if b.Static {
				obj = pso.StaticResource(b.Stage, b.Category, slot)
			} else if srb != nil {
				obj = srb.Resource(b.Stage, b.Category, slot)
			}
			if obj == nil {
				return nil, core.ContractViolation(op, "no resource bound to '%s' (%s)", b.Name, b.Category).At(b.Stage, int(slot))
			}
			r, err := resolveObject(op, b, slot, obj)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, r)
		}
	}
	return resolved, nil
}

func resolveObject(op string, b metadata.ResourceBinding, slot uint32, obj metadata.DeviceObject) (resolvedSlot, *core.BindingError) {
	r := resolvedSlot{stage: b.Stage, category: b.Category, slot: int(slot), object: obj}
	mismatch := func(what string) *core.BindingError {
		return core.ContractViolation(op, "'%s' expects %s", b.Name, what).At(b.Stage, int(slot))
	}
	switch b.Category {
	case metadata.CATEGORY_CONSTANT_BUFFER:
		buf, ok := obj.(metadata.Buffer)
		if !ok {
			return r, mismatch("a buffer")
		}
		if !buf.BindFlags().Has(metadata.BIND_UNIFORM_BUFFER) {
			return r, mismatch("a buffer created with BIND_UNIFORM_BUFFER")
		}
		r.resource = buf
		r.binding = statecache.Binding{View: buf.NativeHandle(), Resource: buf.NativeHandle()}
	case metadata.CATEGORY_SHADER_RESOURCE, metadata.CATEGORY_UNORDERED_ACCESS:
		want := metadata.VIEW_TYPE_SHADER_RESOURCE
		if b.Category == metadata.CATEGORY_UNORDERED_ACCESS {
			want = metadata.VIEW_TYPE_UNORDERED_ACCESS
		}
		view, ok := obj.(metadata.ResourceView)
		if !ok || view.ViewType() != want {
			return r, mismatch("a " + want.String() + " view")
		}
		r.resource = view.Resource()
		r.binding = statecache.Binding{View: view.NativeHandle(), Resource: view.Resource().NativeHandle()}
	case metadata.CATEGORY_SAMPLER:
		switch obj.(type) {
		case metadata.Resource, metadata.ResourceView, metadata.Shader, metadata.PipelineState:
			return r, mismatch("a sampler")
		}
		r.binding = statecache.Binding{View: obj.NativeHandle(), Resource: obj.NativeHandle()}
	default:
		return r, mismatch("a known category")
	}
	return r, nil
}

// transition moves every resolved resource out of the roles that conflict
// with the category it is about to be bound in.
func (ctx *DeviceContext) transition(resolved []resolvedSlot) {
	for _, r := range resolved {
		if r.resource == nil {
			continue
		}
		if ctx.roleHolders[r.resource]&conflictingRoles(r.category) == 0 {
			continue
		}
		switch r.category {
		case metadata.CATEGORY_CONSTANT_BUFFER, metadata.CATEGORY_SHADER_RESOURCE:
			ctx.unbindResourceFromUAV(r.resource)
			if tex, ok := r.resource.(metadata.Texture); ok {
				ctx.unbindTextureFromRenderTarget(tex)
				ctx.unbindTextureFromDepthStencil(tex)
			}
		case metadata.CATEGORY_UNORDERED_ACCESS:
			switch res := r.resource.(type) {
			case metadata.Texture:
				ctx.unbindTextureFromInput(res)
				ctx.unbindTextureFromRenderTarget(res)
				ctx.unbindTextureFromDepthStencil(res)
			case metadata.Buffer:
				ctx.unbindBufferFromInput(res)
			}
		}
	}
}

// TransitionShaderResources moves the resources of srb into the roles pso
// uses them in, unbinding them from conflicting slots. Nothing is committed.
func (ctx *DeviceContext) TransitionShaderResources(pso metadata.PipelineState, srb metadata.ShaderResourceBinding) error {
	const op = "TransitionShaderResources"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if pso == nil {
		return ctx.fail(core.ContractViolation(op, "pipeline state is nil"))
	}
	if srb != nil && !srb.PipelineState().IsCompatibleWith(pso) {
		return ctx.fail(core.ContractViolation(op, "resource binding of '%s' is not compatible with pipeline '%s'", srb.PipelineState().Desc().Name, pso.Desc().Name))
	}
	resolved, err := ctx.resolve(op, pso, srb)
	if err != nil {
		return ctx.fail(err)
	}
	ctx.transition(resolved)
	ctx.state = StateResourcesBound
	return nil
}

// CommitShaderResources binds the resources of srb for the current
// pipeline, issuing native calls only for slots that differ from what is
// committed. With COMMIT_SHADER_RESOURCES_FLAG_TRANSITION_RESOURCES the
// resources are transitioned first; without it a resource in a conflicting
// role is a contract violation.
func (ctx *DeviceContext) CommitShaderResources(srb metadata.ShaderResourceBinding, flags metadata.CommitShaderResourcesFlags) error {
	const op = "CommitShaderResources"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if err := ctx.commitShaderResources(op, srb, flags); err != nil {
		return ctx.fail(err)
	}
	ctx.srb = srb
	ctx.state = StateResourcesBound
	return nil
}

func (ctx *DeviceContext) commitShaderResources(op string, srb metadata.ShaderResourceBinding, flags metadata.CommitShaderResourcesFlags) *core.BindingError {
	pso := ctx.pipeline
	if pso == nil {
		return core.ContractViolation(op, "no pipeline state is bound")
	}
	if srb != nil && !srb.PipelineState().IsCompatibleWith(pso) {
		return core.ContractViolation(op, "resource binding of '%s' is not compatible with pipeline '%s'", srb.PipelineState().Desc().Name, pso.Desc().Name)
	}
	resolved, err := ctx.resolve(op, pso, srb)
	if err != nil {
		return err
	}
	if flags&metadata.COMMIT_SHADER_RESOURCES_FLAG_TRANSITION_RESOURCES != 0 {
		ctx.transition(resolved)
	} else {
		for _, r := range resolved {
			if r.resource == nil {
				continue
			}
			if conflict := ctx.roleHolders[r.resource] & conflictingRoles(r.category); conflict != 0 {
				return core.ContractViolation(op, "'%s' is bound as %s, transition it before binding it as %s", r.resource.Name(), conflict, r.category).At(r.stage, r.slot)
			}
		}
	}
	ctx.commitSlots(pso.Desc().IsComputePipeline, resolved)
	return nil
}

// commitSlots diffs the resolved slots against the slot tables and issues
// the native range calls. Slots bound earlier that the layout does not
// declare are cleared.
func (ctx *DeviceContext) commitSlots(isCompute bool, resolved []resolvedSlot) {
	type key struct {
		category metadata.ResourceCategory
		stage    metadata.ShaderType
	}
	requested := make(map[key][]resolvedSlot)
	for _, r := range resolved {
		k := key{r.category, r.stage}
		requested[k] = append(requested[k], r)
	}

	stages := metadata.GraphicsShaderTypes[:]
	if isCompute {
		stages = []metadata.ShaderType{metadata.SHADER_TYPE_COMPUTE}
	}
	for cat := 0; cat < metadata.NUM_RESOURCE_CATEGORIES; cat++ {
		category := metadata.ResourceCategory(cat)
		table := ctx.cache.Table(category)
		for _, stage := range stages {
			slots := requested[key{category, stage}]
			if len(slots) == 0 && table.NumCommitted(stage) == 0 {
				continue
			}
			ctx.commitStage(table, stage, slots)
		}
	}
}

func (ctx *DeviceContext) commitStage(table *statecache.SlotTable, stage metadata.ShaderType, slots []resolvedSlot) {
	target := make([]statecache.Binding, table.Capacity())
	declared := make([]bool, table.Capacity())
	for _, r := range slots {
		target[r.slot] = r.binding
		declared[r.slot] = true
	}

	end := table.NumCommitted(stage)
	for _, r := range slots {
		if r.slot+1 > end {
			end = r.slot + 1
		}
	}
	var changed []int
	for slot := 0; slot < end; slot++ {
		if table.Get(stage, slot) != target[slot] {
			changed = append(changed, slot)
		} else if declared[slot] {
			ctx.stats.SkippedSlots++
		}
	}

	var ranges []statecache.SlotRange[int]
	if ctx.coalesce == metadata.COALESCE_RUNS {
		ranges = statecache.Runs(changed)
	} else {
		ranges = statecache.Span(changed)
	}
	for _, rng := range ranges {
		handles := make([]metadata.Handle, rng.Len())
		for i := range handles {
			handles[i] = target[rng.Min+i].View
		}
		setSlots(ctx.native, table.Category(), stage, uint32(rng.Min), handles)
		ctx.stats.NativeCalls++
		for slot := rng.Min; slot <= rng.Max; slot++ {
			if !declared[slot] && !table.Get(stage, slot).IsNull() {
				ctx.stats.UnboundSlots++
			}
			table.Set(stage, slot, target[slot])
		}
	}
	table.TrimNumCommitted(stage)

	role := categoryRole(table.Category())
	if role == metadata.ROLE_NONE {
		return
	}
	for _, r := range slots {
		if r.resource != nil {
			ctx.addRole(r.resource, role)
		}
	}
}
