package metadata

import "github.com/gogpu/gputypes"

/**
 * @brief One entry of a pipeline's resource layout: a contiguous run of
 * Count slots starting at Slot, in the given stage and category.
 */
type ResourceBinding struct {
	Name     string
	Stage    ShaderType
	Category ResourceCategory
	Slot     uint32
	Count    uint32
	/** @brief Static bindings are resolved from the pipeline itself, not from a resource binding. */
	Static bool
}

type GraphicsPipelineDesc struct {
	/** @brief Shaders by stage. The compute slot must stay empty. */
	Shaders [NUM_SHADER_TYPES]Shader
	/** @brief The native input layout, NullHandle if the pipeline has no vertex input. */
	InputLayout Handle
	/** @brief Vertex stride per input slot. */
	VertexStrides     []uint32
	PrimitiveTopology gputypes.PrimitiveTopology

	BlendState        Handle
	RasterizerState   Handle
	DepthStencilState Handle
	SampleMask        uint32

	RTVFormats []gputypes.TextureFormat
	DSVFormat  gputypes.TextureFormat
}

type PipelineStateDesc struct {
	Name              string
	IsComputePipeline bool
	Graphics          GraphicsPipelineDesc
	ComputeShader     Shader
	/** @brief Ordered list of required bindings by stage, category and slot. */
	ResourceLayout []ResourceBinding
}

/**
 * @brief A pipeline state object. Construction and translation of its
 * descriptors into native objects is done by the resource layer.
 */
type PipelineState interface {
	DeviceObject
	Desc() *PipelineStateDesc
	/** @brief The shader bound to the given stage, or nil. */
	Shader(stage ShaderType) Shader
	/** @brief The object statically bound to a slot, or nil. */
	StaticResource(stage ShaderType, category ResourceCategory, slot uint32) DeviceObject
	/** @brief Whether resource bindings created for other can be committed with this pipeline. */
	IsCompatibleWith(other PipelineState) bool
}

/**
 * @brief A resolved table mapping a pipeline's resource layout to concrete
 * objects for one draw or dispatch.
 */
type ShaderResourceBinding interface {
	PipelineState() PipelineState
	/** @brief The object bound to a slot, or nil. */
	Resource(stage ShaderType, category ResourceCategory, slot uint32) DeviceObject
}
