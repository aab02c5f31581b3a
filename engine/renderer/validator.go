package renderer

import (
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/config"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

// Validator verifies a context before a draw or dispatch reaches the native
// context.
type Validator interface {
	Verify(ctx *DeviceContext, op string) error
}

func NewValidator(cfg config.ValidationConfig) Validator {
	if cfg.Mode == config.ValidationModeNone {
		return NopValidator{}
	}
	return &FullValidator{HaltOnStale: cfg.HaltOnStale}
}

type NopValidator struct{}

func (NopValidator) Verify(*DeviceContext, string) error {
	return nil
}

// FullValidator checks the invariants of the committed-state cache and, when
// the backend implements StateReader, compares the cache with what is
// actually bound. Render target formats that differ from the pipeline's are
// logged as warnings.
type FullValidator struct {
	HaltOnStale bool
}

func (v *FullValidator) Verify(ctx *DeviceContext, op string) error {
	err := v.verify(ctx, op)
	if err == nil {
		return nil
	}
	if v.HaltOnStale {
		panic(err.In(ctx.Name()))
	}
	return err
}

func (v *FullValidator) verify(ctx *DeviceContext, op string) *core.BindingError {
	if err := ctx.cache.Check(); err != nil {
		return core.StaleBinding(op, "%s", err)
	}
	if ctx.pipeline != nil && !ctx.pipeline.Desc().IsComputePipeline {
		v.checkFormats(ctx)
	}
	reader, ok := ctx.native.(StateReader)
	if !ok {
		return nil
	}
	return v.compare(ctx, op, reader)
}

func (v *FullValidator) compare(ctx *DeviceContext, op string, reader StateReader) *core.BindingError {
	cache := ctx.cache
	for cat := 0; cat < metadata.NUM_RESOURCE_CATEGORIES; cat++ {
		table := cache.Table(metadata.ResourceCategory(cat))
		for s := 0; s < metadata.NUM_SHADER_TYPES; s++ {
			stage := metadata.ShaderType(s)
			native := reader.Slots(stage, table.Category(), table.Capacity())
			for slot, b := range table.Stage(stage) {
				if native[slot] != b.View {
					return core.StaleBinding(op, "%s slot holds %#x, cache says %#x", table.Category(), native[slot], b.View).At(stage, slot)
				}
			}
		}
	}

	for s := 0; s < metadata.NUM_SHADER_TYPES; s++ {
		stage := metadata.ShaderType(s)
		if got, want := reader.Shader(stage), cache.Shader(stage); got != want {
			return core.StaleBinding(op, "shader %#x is bound, cache says %#x", got, want).At(stage, -1)
		}
	}

	buffers, strides, offsets := reader.VertexBuffers(cache.Limits().VertexBuffers)
	for slot := range buffers {
		vb := cache.VertexBuffer(slot)
		if buffers[slot] != vb.Buffer || (vb.Buffer != metadata.NullHandle && (strides[slot] != vb.Stride || offsets[slot] != vb.Offset)) {
			return core.StaleBinding(op, "vertex buffer %#x (stride %d, offset %d) is bound, cache says %#x (stride %d, offset %d)",
				buffers[slot], strides[slot], offsets[slot], vb.Buffer, vb.Stride, vb.Offset).AtSlot(slot)
		}
	}

	ib, format, offset := reader.IndexBuffer()
	cached := cache.IndexBuffer()
	if ib != cached.Buffer || (ib != metadata.NullHandle && (format != cached.Format || offset != cached.Offset)) {
		return core.StaleBinding(op, "index buffer %#x (%s, offset %d) is bound, cache says %#x (%s, offset %d)",
			ib, format, offset, cached.Buffer, cached.Format, cached.Offset)
	}

	rtvs, dsv := reader.RenderTargets(cache.Limits().RenderTargets)
	for slot, rtv := range rtvs {
		if want := cache.RenderTarget(slot).View; rtv != want {
			return core.StaleBinding(op, "render target %#x is bound, cache says %#x", rtv, want).AtSlot(slot)
		}
	}
	if want := cache.DepthStencil().View; dsv != want {
		return core.StaleBinding(op, "depth-stencil view %#x is bound, cache says %#x", dsv, want)
	}

	if got, want := reader.InputLayout(), cache.InputLayout(); got != want {
		return core.StaleBinding(op, "input layout %#x is bound, cache says %#x", got, want)
	}
	if want, ok := cache.Topology(); ok {
		if got, set := reader.PrimitiveTopology(); !set || got != want {
			return core.StaleBinding(op, "topology %s is bound, cache says %s", got, want)
		}
	}
	return nil
}

// checkFormats warns when the bound targets do not have the formats the
// graphics pipeline was created for.
func (v *FullValidator) checkFormats(ctx *DeviceContext) {
	g := &ctx.pipeline.Desc().Graphics
	bound := make([]gputypes.TextureFormat, len(ctx.renderTargets))
	for i, rtv := range ctx.renderTargets {
		if rtv != nil {
			bound[i] = rtv.Format()
		}
	}
	for len(bound) < len(g.RTVFormats) {
		bound = append(bound, gputypes.TextureFormatUndefined)
	}
	if !slices.Equal(bound[:len(g.RTVFormats)], g.RTVFormats) || slices.ContainsFunc(bound[len(g.RTVFormats):], isDefined) {
		ctx.log.Warn("render target formats do not match the pipeline", "pipeline", ctx.pipeline.Desc().Name, "bound", bound, "expected", g.RTVFormats)
	}
	dsv := gputypes.TextureFormatUndefined
	if ctx.depthStencil != nil {
		dsv = ctx.depthStencil.Format()
	}
	if dsv != g.DSVFormat {
		ctx.log.Warn("depth-stencil format does not match the pipeline", "pipeline", ctx.pipeline.Desc().Name, "bound", dsv, "expected", g.DSVFormat)
	}
}

func isDefined(f gputypes.TextureFormat) bool {
	return f != gputypes.TextureFormatUndefined
}
