package renderer

import (
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

type RendererType uint8

const (
	// Pure Go recording backend with Direct3D 11 device-context semantics.
	Recorder RendererType = iota
	Vulkan
)

func (t RendererType) String() string {
	switch t {
	case Recorder:
		return "recorder"
	case Vulkan:
		return "vulkan"
	}
	return "unknown"
}

// NativeContext is the set of primitives a backend provides to a device
// context. Setters follow Direct3D 11 semantics: they never fail, a null
// handle unbinds, and range setters bind len(handles) slots starting at start.
// Failures of the native API surface from the calls that return an error.
type NativeContext interface {
	Caps() metadata.BackendCaps

	SetConstantBuffers(stage metadata.ShaderType, start uint32, buffers []metadata.Handle)
	SetShaderResources(stage metadata.ShaderType, start uint32, views []metadata.Handle)
	SetSamplers(stage metadata.ShaderType, start uint32, samplers []metadata.Handle)
	SetUnorderedAccessViews(stage metadata.ShaderType, start uint32, views []metadata.Handle)
	SetShader(stage metadata.ShaderType, shader metadata.Handle)
	BindPipeline(pipeline metadata.Handle, isCompute bool)

	// SetVertexBuffers binds the whole array in one call.
	SetVertexBuffers(start uint32, buffers []metadata.Handle, strides, offsets []uint32)
	SetIndexBuffer(buffer metadata.Handle, format gputypes.IndexFormat, offset uint32)
	SetInputLayout(layout metadata.Handle)
	SetPrimitiveTopology(topology gputypes.PrimitiveTopology)

	SetRenderTargets(rtvs []metadata.Handle, dsv metadata.Handle)
	SetBlendState(state metadata.Handle, factors [4]float32, sampleMask uint32)
	SetRasterizerState(state metadata.Handle)
	SetDepthStencilState(state metadata.Handle, stencilRef uint32)
	SetViewports(viewports []metadata.Viewport)
	SetScissorRects(rects []metadata.Rect)

	ClearRenderTarget(rtv metadata.Handle, color [4]float32) error
	ClearDepthStencil(dsv metadata.Handle, flags metadata.ClearDepthStencilFlags, depth float32, stencil uint8) error

	Draw(vertexCount, instanceCount, startVertex, startInstance uint32) error
	DrawIndexed(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) error
	DrawIndirect(args metadata.Handle, offset uint32) error
	DrawIndexedIndirect(args metadata.Handle, offset uint32) error
	Dispatch(x, y, z uint32) error
	DispatchIndirect(args metadata.Handle, offset uint32) error

	// ClearState unbinds everything from the native context.
	ClearState()
	Flush() error
	// FinishCommandList closes the recording of a deferred context and
	// returns the backend's command list.
	FinishCommandList() (interface{}, error)
	ExecuteCommandList(list interface{}) error
}

// StateReader reads back what is bound to a native context. Backends that
// implement it get their committed-state cache verified by FullValidator.
type StateReader interface {
	// Slots returns the handles bound to count slots of a stage, from slot 0.
	Slots(stage metadata.ShaderType, category metadata.ResourceCategory, count int) []metadata.Handle
	Shader(stage metadata.ShaderType) metadata.Handle
	VertexBuffers(count int) (buffers []metadata.Handle, strides, offsets []uint32)
	IndexBuffer() (buffer metadata.Handle, format gputypes.IndexFormat, offset uint32)
	RenderTargets(count int) (rtvs []metadata.Handle, dsv metadata.Handle)
	InputLayout() metadata.Handle
	PrimitiveTopology() (gputypes.PrimitiveTopology, bool)
}

// setSlots dispatches a range call to the setter of a category.
func setSlots(native NativeContext, category metadata.ResourceCategory, stage metadata.ShaderType, start uint32, handles []metadata.Handle) {
	switch category {
	case metadata.CATEGORY_CONSTANT_BUFFER:
		native.SetConstantBuffers(stage, start, handles)
	case metadata.CATEGORY_SHADER_RESOURCE:
		native.SetShaderResources(stage, start, handles)
	case metadata.CATEGORY_SAMPLER:
		native.SetSamplers(stage, start, handles)
	case metadata.CATEGORY_UNORDERED_ACCESS:
		native.SetUnorderedAccessViews(stage, start, handles)
	}
}
