package vulkan

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type Pipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	Layout    vk.PipelineLayout
	IsCompute bool
}

type GraphicsPipelineConfig struct {
	/** @brief SPIR-V code per stage, entry point "main". */
	Stages map[metadata.ShaderType][]byte
	/** @brief The stride of each vertex buffer slot the pipeline reads. */
	VertexStrides []uint32
	Attributes    []vk.VertexInputAttributeDescription
	Topology      gputypes.PrimitiveTopology
	/** @brief The formats of the render targets the pipeline draws into. */
	Targets     RenderpassFormats
	DepthTest   bool
	DepthWrite  bool
	IsWireframe bool
}

// spirvWords converts SPIR-V bytes to the words a shader module is created from.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V code size %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != 0x07230203 {
		return nil, fmt.Errorf("SPIR-V magic number %#x is wrong", words[0])
	}
	return words, nil
}

// shaderModuleInfo describes a shader module. CodeSize is in bytes.
func shaderModuleInfo(code []byte) (vk.ShaderModuleCreateInfo, error) {
	words, err := spirvWords(code)
	if err != nil {
		return vk.ShaderModuleCreateInfo{}, err
	}
	return vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}, nil
}

func newShaderModule(device *Device, code []byte) (vk.ShaderModule, error) {
	createInfo, err := shaderModuleInfo(code)
	if err != nil {
		return nil, err
	}
	var module vk.ShaderModule
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(device.LogicalDevice, &createInfo, device.Instance.Allocator, &module)); err != nil {
		return nil, err
	}
	return module, nil
}

func newPipelineLayout(device *Device, layouts *SetLayouts) (vk.PipelineLayout, error) {
	setLayouts := layouts.Layouts()
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	var layout vk.PipelineLayout
	if err := check("vkCreatePipelineLayout", vk.CreatePipelineLayout(device.LogicalDevice, &createInfo, device.Instance.Allocator, &layout)); err != nil {
		return nil, err
	}
	return layout, nil
}

// shaderStages creates a module per stage. The modules are destroyed once
// the pipeline exists.
func shaderStages(device *Device, stages map[metadata.ShaderType][]byte) ([]vk.PipelineShaderStageCreateInfo, []vk.ShaderModule, error) {
	var infos []vk.PipelineShaderStageCreateInfo
	var modules []vk.ShaderModule
	for stage := 0; stage < metadata.NUM_SHADER_TYPES; stage++ {
		code, ok := stages[metadata.ShaderType(stage)]
		if !ok {
			continue
		}
		module, err := newShaderModule(device, code)
		if err != nil {
			destroyModules(device, modules)
			return nil, nil, fmt.Errorf("%s: %w", metadata.ShaderType(stage), err)
		}
		modules = append(modules, module)
		infos = append(infos, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stageFlags[stage],
			Module: module,
			PName:  SafeString("main"),
		})
	}
	return infos, modules, nil
}

func destroyModules(device *Device, modules []vk.ShaderModule) {
	for _, m := range modules {
		vk.DestroyShaderModule(device.LogicalDevice, m, device.Instance.Allocator)
	}
}

func NewGraphicsPipeline(device *Device, layouts *SetLayouts, config *GraphicsPipelineConfig) (*Pipeline, error) {
	topology, ok := primitiveTopology(config.Topology)
	if !ok {
		return nil, fmt.Errorf("primitive topology %v is not supported", config.Topology)
	}
	stages, modules, err := shaderStages(device, config.Stages)
	if err != nil {
		return nil, err
	}
	defer destroyModules(device, modules)

	// Viewports and scissors are dynamic, only their count matters here.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:   vk.FrontFaceClockwise,
		LineWidth:   1.0,
	}
	if config.IsWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if config.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}
	if config.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, config.Targets.NumColor)
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.True,
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
			DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
				vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	// What the device context sets between draws.
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateBlendConstants,
		vk.DynamicStateStencilReference,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindings := make([]vk.VertexInputBindingDescription, len(config.VertexStrides))
	for i, stride := range config.VertexStrides {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   uint32(i),
			Stride:    stride,
			InputRate: vk.VertexInputRateVertex,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(config.Attributes)),
		PVertexAttributeDescriptions:    config.Attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: topology,
	}

	layout, err := newPipelineLayout(device, layouts)
	if err != nil {
		return nil, err
	}
	out := &Pipeline{Layout: layout}

	renderpass, err := RenderpassCreate(device, config.Targets)
	if err != nil {
		out.Destroy(device)
		return nil, err
	}
	// Any render pass with the same formats is compatible with the pipeline.
	defer renderpass.Destroy(device)

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout,
		RenderPass:          renderpass.Handle,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(device.LogicalDevice, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, device.Instance.Allocator, pipelines)); err != nil {
		core.LogError("%s", err)
		out.Destroy(device)
		return nil, err
	}
	out.Handle = pipelines[0]
	core.LogDebug("Graphics pipeline created!")
	return out, nil
}

func NewComputePipeline(device *Device, layouts *SetLayouts, code []byte) (*Pipeline, error) {
	stages, modules, err := shaderStages(device, map[metadata.ShaderType][]byte{metadata.SHADER_TYPE_COMPUTE: code})
	if err != nil {
		return nil, err
	}
	defer destroyModules(device, modules)

	layout, err := newPipelineLayout(device, layouts)
	if err != nil {
		return nil, err
	}
	out := &Pipeline{Layout: layout, IsCompute: true}
	createInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stages[0],
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := check("vkCreateComputePipelines", vk.CreateComputePipelines(device.LogicalDevice, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, device.Instance.Allocator, pipelines)); err != nil {
		core.LogError("%s", err)
		out.Destroy(device)
		return nil, err
	}
	out.Handle = pipelines[0]
	core.LogDebug("Compute pipeline created!")
	return out, nil
}

func (p *Pipeline) Destroy(device *Device) {
	if p.Handle != nil {
		vk.DestroyPipeline(device.LogicalDevice, p.Handle, device.Instance.Allocator)
		p.Handle = nil
	}
	if p.Layout != nil {
		vk.DestroyPipelineLayout(device.LogicalDevice, p.Layout, device.Instance.Allocator)
		p.Layout = nil
	}
}
