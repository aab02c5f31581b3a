package renderer

import (
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

// Draw commits everything the bound graphics pipeline needs and issues the
// draw. The shader resources of the last committed binding are committed
// again, which costs no native call when nothing changed.
func (ctx *DeviceContext) Draw(attribs metadata.DrawAttribs) error {
	const op = "Draw"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	pso := ctx.pipeline
	if pso == nil {
		return ctx.fail(core.ContractViolation(op, "no pipeline state is bound"))
	}
	desc := pso.Desc()
	if desc.IsComputePipeline {
		return ctx.fail(core.ContractViolation(op, "pipeline '%s' is a compute pipeline", desc.Name))
	}
	if err := ctx.checkIndirect(op, attribs.IndirectAttribs); err != nil {
		return ctx.fail(err)
	}

	g := &desc.Graphics
	ctx.commitPipelineState()
	ctx.commitRenderTargets()
	ctx.commitVertexBuffers(g)
	if attribs.IsIndexed {
		if err := ctx.commitIndexBuffer(op, attribs.IndexType); err != nil {
			return ctx.fail(err)
		}
	}
	ctx.commitTopology(g.PrimitiveTopology)
	if err := ctx.commitForDraw(op); err != nil {
		return ctx.fail(err)
	}
	ctx.releaseIndirect(attribs.IndirectAttribs)
	if err := ctx.verify(op); err != nil {
		return err
	}

	instances := attribs.NumInstances
	if instances == 0 {
		instances = 1
	}
	var err error
	switch {
	case attribs.IndirectAttribs != nil && attribs.IsIndexed:
		err = ctx.native.DrawIndexedIndirect(attribs.IndirectAttribs.NativeHandle(), attribs.IndirectAttribsOffset)
	case attribs.IndirectAttribs != nil:
		err = ctx.native.DrawIndirect(attribs.IndirectAttribs.NativeHandle(), attribs.IndirectAttribsOffset)
	case attribs.IsIndexed:
		err = ctx.native.DrawIndexed(attribs.NumIndices, instances, attribs.FirstIndexLocation, attribs.BaseVertex, attribs.FirstInstanceLocation)
	default:
		err = ctx.native.Draw(attribs.NumVertices, instances, attribs.StartVertexLocation, attribs.FirstInstanceLocation)
	}
	ctx.stats.NativeCalls++
	if err != nil {
		return ctx.fail(core.NativeFailure(op, err))
	}
	ctx.stats.Draws++
	ctx.state = StateDrawSubmitted
	return nil
}

// DispatchCompute commits the resources of the bound compute pipeline and
// dispatches it.
func (ctx *DeviceContext) DispatchCompute(attribs metadata.DispatchComputeAttribs) error {
	const op = "DispatchCompute"
	if err := ctx.enter(op); err != nil {
		return err
	}
	defer ctx.leave()

	pso := ctx.pipeline
	if pso == nil {
		return ctx.fail(core.ContractViolation(op, "no pipeline state is bound"))
	}
	if !pso.Desc().IsComputePipeline {
		return ctx.fail(core.ContractViolation(op, "pipeline '%s' is not a compute pipeline", pso.Desc().Name))
	}
	if err := ctx.checkIndirect(op, attribs.IndirectAttribs); err != nil {
		return ctx.fail(err)
	}

	ctx.commitPipelineState()
	if err := ctx.commitForDraw(op); err != nil {
		return ctx.fail(err)
	}
	ctx.releaseIndirect(attribs.IndirectAttribs)
	if err := ctx.verify(op); err != nil {
		return err
	}

	var err error
	if attribs.IndirectAttribs != nil {
		err = ctx.native.DispatchIndirect(attribs.IndirectAttribs.NativeHandle(), attribs.IndirectAttribsOffset)
	} else {
		err = ctx.native.Dispatch(attribs.ThreadGroupCountX, attribs.ThreadGroupCountY, attribs.ThreadGroupCountZ)
	}
	ctx.stats.NativeCalls++
	if err != nil {
		return ctx.fail(core.NativeFailure(op, err))
	}
	ctx.stats.Dispatches++
	ctx.state = StateDrawSubmitted
	return nil
}

func (ctx *DeviceContext) checkIndirect(op string, args metadata.Buffer) *core.BindingError {
	if args == nil {
		return nil
	}
	if !args.BindFlags().Has(metadata.BIND_INDIRECT_ARGS) {
		return core.ContractViolation(op, "buffer '%s' was not created with BIND_INDIRECT_ARGS", args.Name())
	}
	return nil
}

// releaseIndirect takes the arguments buffer out of every UAV slot after the
// commit, the native call reads it as indirect arguments.
func (ctx *DeviceContext) releaseIndirect(args metadata.Buffer) {
	if args != nil {
		ctx.unbindResourceFromUAV(args)
	}
}

// commitForDraw commits the resource layout of the bound pipeline from the
// last committed binding. A layout with mutable bindings needs one.
func (ctx *DeviceContext) commitForDraw(op string) *core.BindingError {
	if ctx.srb == nil {
		for _, b := range ctx.pipeline.Desc().ResourceLayout {
			if !b.Static {
				return core.ContractViolation(op, "pipeline '%s' declares '%s' but no resource binding was committed", ctx.pipeline.Desc().Name, b.Name).At(b.Stage, int(b.Slot))
			}
		}
	}
	return ctx.commitShaderResources(op, ctx.srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE)
}

// verify runs the validator. Its error is already logged.
func (ctx *DeviceContext) verify(op string) error {
	ref := ctx.validator.Load()
	if ref == nil || ref.v == nil {
		return nil
	}
	if err := ref.v.Verify(ctx, op); err != nil {
		if be, ok := err.(*core.BindingError); ok {
			return ctx.fail(be)
		}
		return err
	}
	return nil
}
