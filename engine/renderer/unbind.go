package renderer

import (
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/rhi/engine/renderer/statecache"
)

// unbindFromTable nulls every slot of every stage of table that holds
// resource and returns how many slots were cleared.
func (ctx *DeviceContext) unbindFromTable(table *statecache.SlotTable, resource metadata.Handle) int {
	cleared := 0
	for s := 0; s < metadata.NUM_SHADER_TYPES; s++ {
		stage := metadata.ShaderType(s)
		var matches []int
		table.FindResource(stage, resource, func(slot int) {
			matches = append(matches, slot)
		})
		if len(matches) == 0 {
			continue
		}

		var ranges []statecache.SlotRange[int]
		if ctx.coalesce == metadata.COALESCE_RUNS {
			ranges = statecache.Runs(matches)
		} else {
			ranges = statecache.Span(matches)
		}
		for _, rng := range ranges {
			handles := make([]metadata.Handle, rng.Len())
			for i := range handles {
				if b := table.Get(stage, rng.Min+i); b.Resource != resource {
					handles[i] = b.View
				}
			}
			setSlots(ctx.native, table.Category(), stage, uint32(rng.Min), handles)
			ctx.stats.NativeCalls++
		}
		for _, slot := range matches {
			table.Clear(stage, slot)
		}
		table.TrimNumCommitted(stage)
		cleared += len(matches)
	}
	ctx.stats.UnboundSlots += uint64(cleared)
	return cleared
}

// unbindTextureFromInput removes tex from every shader resource slot.
func (ctx *DeviceContext) unbindTextureFromInput(tex metadata.Texture) {
	if !ctx.rolesOf(tex).Has(metadata.ROLE_SHADER_RESOURCE) {
		return
	}
	ctx.unbindFromTable(ctx.cache.Table(metadata.CATEGORY_SHADER_RESOURCE), tex.NativeHandle())
	ctx.clearRole(tex, metadata.ROLE_SHADER_RESOURCE)
}

// unbindBufferFromInput removes buf from every constant buffer, shader
// resource, vertex buffer and index buffer slot.
func (ctx *DeviceContext) unbindBufferFromInput(buf metadata.Buffer) {
	roles := ctx.rolesOf(buf)
	if !roles.Has(metadata.ROLES_INPUT) {
		return
	}
	h := buf.NativeHandle()
	if roles.Has(metadata.ROLE_CONSTANT_BUFFER) {
		ctx.unbindFromTable(ctx.cache.Table(metadata.CATEGORY_CONSTANT_BUFFER), h)
	}
	if roles.Has(metadata.ROLE_SHADER_RESOURCE) {
		ctx.unbindFromTable(ctx.cache.Table(metadata.CATEGORY_SHADER_RESOURCE), h)
	}
	if roles.Has(metadata.ROLE_VERTEX_BUFFER) {
		ctx.unbindVertexBuffer(h)
	}
	if roles.Has(metadata.ROLE_INDEX_BUFFER) {
		ctx.unbindIndexBuffer(h)
	}
	ctx.clearRole(buf, metadata.ROLES_INPUT)
}

func (ctx *DeviceContext) unbindVertexBuffer(buffer metadata.Handle) {
	var matches []int
	ctx.cache.FindVertexBuffer(buffer, func(slot int) {
		matches = append(matches, slot)
	})
	for _, run := range statecache.Runs(matches) {
		n := run.Len()
		ctx.native.SetVertexBuffers(uint32(run.Min), make([]metadata.Handle, n), make([]uint32, n), make([]uint32, n))
		ctx.stats.NativeCalls++
	}
	for _, slot := range matches {
		ctx.cache.ClearVertexBuffer(slot)
	}
	ctx.stats.UnboundSlots += uint64(len(matches))
}

func (ctx *DeviceContext) unbindIndexBuffer(buffer metadata.Handle) {
	ib := ctx.cache.IndexBuffer()
	if buffer == metadata.NullHandle || ib.Buffer != buffer {
		return
	}
	ctx.native.SetIndexBuffer(metadata.NullHandle, ib.Format, 0)
	ctx.cache.ClearIndexBuffer()
	ctx.stats.NativeCalls++
	ctx.stats.UnboundSlots++
}

// unbindResourceFromUAV removes r from every unordered access slot.
func (ctx *DeviceContext) unbindResourceFromUAV(r metadata.Resource) {
	if !ctx.rolesOf(r).Has(metadata.ROLE_UNORDERED_ACCESS) {
		return
	}
	ctx.unbindFromTable(ctx.cache.Table(metadata.CATEGORY_UNORDERED_ACCESS), r.NativeHandle())
	ctx.clearRole(r, metadata.ROLE_UNORDERED_ACCESS)
}

// unbindTextureFromRenderTarget removes every color target created from
// tex, natively and from the requested targets.
func (ctx *DeviceContext) unbindTextureFromRenderTarget(tex metadata.Texture) {
	if !ctx.rolesOf(tex).Has(metadata.ROLE_RENDER_TARGET) {
		return
	}
	var matches []int
	ctx.cache.FindRenderTarget(tex.NativeHandle(), func(slot int) {
		matches = append(matches, slot)
	})
	var released []metadata.TextureView
	for i, rtv := range ctx.renderTargets {
		if rtv != nil && rtv.Texture() == tex {
			released = append(released, rtv)
			ctx.renderTargets[i] = nil
		}
	}
	for n := len(ctx.renderTargets); n > 0 && ctx.renderTargets[n-1] == nil; n-- {
		ctx.renderTargets = ctx.renderTargets[:n-1]
	}
	ctx.clearRole(tex, metadata.ROLE_RENDER_TARGET)
	for _, rtv := range released {
		rtv.Release()
	}
	if len(matches) == 0 {
		return
	}

	rtvs := append([]statecache.Binding(nil), ctx.cache.RenderTargets()...)
	for _, slot := range matches {
		rtvs[slot] = statecache.Binding{}
	}
	n := len(rtvs)
	for n > 0 && rtvs[n-1].IsNull() {
		n--
	}
	ctx.setNativeRenderTargets(rtvs[:n], ctx.cache.DepthStencil())
	ctx.stats.UnboundSlots += uint64(len(matches))
}

// unbindTextureFromDepthStencil removes the depth-stencil view if it was
// created from tex.
func (ctx *DeviceContext) unbindTextureFromDepthStencil(tex metadata.Texture) {
	if !ctx.rolesOf(tex).Has(metadata.ROLE_DEPTH_STENCIL) {
		return
	}
	if dsv := ctx.depthStencil; dsv != nil && dsv.Texture() == tex {
		ctx.depthStencil = nil
		defer dsv.Release()
	}
	ctx.clearRole(tex, metadata.ROLE_DEPTH_STENCIL)
	if ctx.cache.DepthStencil().Resource != tex.NativeHandle() {
		return
	}
	ctx.setNativeRenderTargets(ctx.cache.RenderTargets(), statecache.Binding{})
	ctx.stats.UnboundSlots++
}

func (ctx *DeviceContext) setNativeRenderTargets(rtvs []statecache.Binding, dsv statecache.Binding) {
	views := make([]metadata.Handle, len(rtvs))
	for i, b := range rtvs {
		views[i] = b.View
	}
	ctx.native.SetRenderTargets(views, dsv.View)
	ctx.cache.SetRenderTargets(rtvs, dsv)
	ctx.stats.NativeCalls++
}

// onBufferDestroyed drops every binding of buf, committed or requested.
func (ctx *DeviceContext) onBufferDestroyed(buf metadata.Buffer) {
	ctx.unbindBufferFromInput(buf)
	ctx.unbindResourceFromUAV(buf)
	refs := 0
	for i := range ctx.vertexStreams[:ctx.numVertexStreams] {
		if ctx.vertexStreams[i].buffer == buf {
			ctx.vertexStreams[i] = vertexStream{}
			ctx.cache.InvalidateVertexBuffers()
			refs++
		}
	}
	ctx.trimVertexStreams()
	if ctx.indexBuffer == buf {
		ctx.indexBuffer = nil
		ctx.indexOffset = 0
		ctx.cache.InvalidateIndexBuffer()
		refs++
	}
	ctx.clearRole(buf, ^metadata.ROLE_NONE)
	for ; refs > 0; refs-- {
		buf.Release()
	}
}

// onTextureDestroyed drops every binding of tex, committed or requested.
func (ctx *DeviceContext) onTextureDestroyed(tex metadata.Texture) {
	ctx.unbindTextureFromInput(tex)
	ctx.unbindResourceFromUAV(tex)
	ctx.unbindTextureFromRenderTarget(tex)
	ctx.unbindTextureFromDepthStencil(tex)
	ctx.clearRole(tex, ^metadata.ROLE_NONE)
}

// notifyDestroyed unbinds r right away when no goroutine holds the context.
// Otherwise r is queued and the holder unbinds it before letting go.
func (ctx *DeviceContext) notifyDestroyed(r metadata.Resource) {
	ctx.pendingMu.Lock()
	ctx.destroyed = append(ctx.destroyed, r)
	ctx.pendingMu.Unlock()
	ctx.flushDestroyed()
}

// flushDestroyed drains the queue unless another goroutine holds mu, in
// which case that goroutine drains it on its way out.
func (ctx *DeviceContext) flushDestroyed() {
	for ctx.hasDestroyed() && ctx.mu.TryLock() {
		ctx.drainDestroyed()
		ctx.mu.Unlock()
	}
}

func (ctx *DeviceContext) hasDestroyed() bool {
	ctx.pendingMu.Lock()
	defer ctx.pendingMu.Unlock()
	return len(ctx.destroyed) > 0
}

// drainDestroyed runs with mu held. Unbinding may release the last reference
// of another resource, which lands in the queue again.
func (ctx *DeviceContext) drainDestroyed() {
	for {
		ctx.pendingMu.Lock()
		queue := ctx.destroyed
		ctx.destroyed = nil
		ctx.pendingMu.Unlock()
		if len(queue) == 0 {
			return
		}
		for _, r := range queue {
			switch r := r.(type) {
			case metadata.Buffer:
				ctx.onBufferDestroyed(r)
			case metadata.Texture:
				ctx.onTextureDestroyed(r)
			}
		}
	}
}

// UnbindBuffer removes buf from every slot of the context: constant buffer,
// shader resource, unordered access, vertex and index buffer. A later draw
// that needs it fails until it is set again.
func (ctx *DeviceContext) UnbindBuffer(buf metadata.Buffer) error {
	const op = "UnbindBuffer"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if buf == nil {
		return ctx.fail(core.ContractViolation(op, "buffer is nil"))
	}
	ctx.onBufferDestroyed(buf)
	return nil
}

// UnbindTexture removes tex from every shader resource, unordered access,
// render target and depth-stencil slot of the context.
func (ctx *DeviceContext) UnbindTexture(tex metadata.Texture) error {
	const op = "UnbindTexture"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	if tex == nil {
		return ctx.fail(core.ContractViolation(op, "texture is nil"))
	}
	ctx.onTextureDestroyed(tex)
	return nil
}
