package metadata

import (
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
)

type DeviceContextDesc struct {
	/** @brief The name of the context, used in logs and errors. */
	Name string
	/** @brief True for a deferred (command recording) context. */
	IsDeferred bool
	/** @brief Index of the context in the device, 0 is the immediate context. */
	ContextID uint8
}

/**
 * @brief Flags for SetVertexBuffers.
 */
type SetVertexBuffersFlags uint32

const (
	SET_VERTEX_BUFFERS_FLAG_NONE SetVertexBuffersFlags = 0x0
	/** @brief Unbind every vertex buffer slot not covered by the call. */
	SET_VERTEX_BUFFERS_FLAG_RESET SetVertexBuffersFlags = 0x1
)

/**
 * @brief Flags for CommitShaderResources and TransitionShaderResources.
 * Can be combined together.
 */
type CommitShaderResourcesFlags uint32

const (
	COMMIT_SHADER_RESOURCES_FLAG_NONE CommitShaderResourcesFlags = 0x0
	/** @brief Move every resource of the binding into the role the pipeline uses it in before committing. */
	COMMIT_SHADER_RESOURCES_FLAG_TRANSITION_RESOURCES CommitShaderResourcesFlags = 0x1
)

/**
 * @brief The types of clearing to be done on a depth-stencil view.
 * Can be combined together for multiple clearing functions.
 */
type ClearDepthStencilFlags uint32

const (
	CLEAR_DEPTH_STENCIL_NONE_FLAG ClearDepthStencilFlags = 0x0
	/** @brief Clear the depth buffer. */
	CLEAR_DEPTH_FLAG ClearDepthStencilFlags = 0x1
	/** @brief Clear the stencil buffer. */
	CLEAR_STENCIL_FLAG ClearDepthStencilFlags = 0x2
)

type Viewport struct {
	TopLeftX float32
	TopLeftY float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

type Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

/**
 * @brief Attributes of a draw command. When IndirectAttribs is set the
 * counts are read by the GPU from that buffer at IndirectAttribsOffset.
 */
type DrawAttribs struct {
	NumVertices uint32
	NumIndices  uint32
	IsIndexed   bool
	/** @brief Format of the indices, only Uint16 and Uint32 are valid. */
	IndexType gputypes.IndexFormat
	/** @brief Zero is treated as one instance. */
	NumInstances          uint32
	BaseVertex            int32
	StartVertexLocation   uint32
	FirstIndexLocation    uint32
	FirstInstanceLocation uint32

	IndirectAttribs       Buffer
	IndirectAttribsOffset uint32
}

type DispatchComputeAttribs struct {
	ThreadGroupCountX uint32
	ThreadGroupCountY uint32
	ThreadGroupCountZ uint32

	IndirectAttribs       Buffer
	IndirectAttribsOffset uint32
}

/**
 * @brief A recorded, replayable list of commands produced by a deferred
 * context. Ownership moves to the caller of FinishCommandList.
 */
type CommandList struct {
	ID uuid.UUID
	/** @brief Name of the context that recorded the list. */
	Context string
	/** @brief The backend's native command list. */
	Native interface{}
}

/**
 * @brief How a backend batches changed slots into native range calls.
 */
type CoalescePolicy uint8

const (
	/** @brief One call covering every slot from the first to the last changed one. */
	COALESCE_SPAN CoalescePolicy = iota
	/** @brief One call per contiguous run of changed slots. */
	COALESCE_RUNS
)

func (p CoalescePolicy) String() string {
	if p == COALESCE_RUNS {
		return "runs"
	}
	return "span"
}

/**
 * @brief What a native backend can do, queried once per context.
 */
type BackendCaps struct {
	Name string
	/** @brief The batching the native range calls are cheapest with. */
	Coalesce CoalescePolicy
	/** @brief Whether FinishCommandList/ExecuteCommandList are supported. */
	CommandLists bool
}
