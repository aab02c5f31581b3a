package resources

import (
	"slices"

	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

type slotKey struct {
	stage    metadata.ShaderType
	category metadata.ResourceCategory
	slot     uint32
}

type PipelineState struct {
	deviceObject
	desc   metadata.PipelineStateDesc
	static map[slotKey]metadata.DeviceObject
}

var _ metadata.PipelineState = (*PipelineState)(nil)

// CreatePipelineState checks the descriptor against the shaders it names
// and allocates the native pipeline.
func (m *Manager) CreatePipelineState(desc metadata.PipelineStateDesc) (*PipelineState, error) {
	if desc.IsComputePipeline {
		if desc.ComputeShader == nil {
			return nil, core.ContractViolation("CreatePipelineState", "compute pipeline '%s' has no compute shader", desc.Name)
		}
		if desc.ComputeShader.ShaderType() != metadata.SHADER_TYPE_COMPUTE {
			return nil, core.ContractViolation("CreatePipelineState", "pipeline '%s': shader '%s' is not a compute shader", desc.Name, desc.ComputeShader.Name())
		}
	} else {
		if desc.Graphics.Shaders[metadata.SHADER_TYPE_VERTEX] == nil {
			return nil, core.ContractViolation("CreatePipelineState", "graphics pipeline '%s' has no vertex shader", desc.Name)
		}
		if desc.Graphics.Shaders[metadata.SHADER_TYPE_COMPUTE] != nil {
			return nil, core.ContractViolation("CreatePipelineState", "graphics pipeline '%s' has a compute shader", desc.Name)
		}
		for stage, s := range desc.Graphics.Shaders {
			if s != nil && s.ShaderType() != metadata.ShaderType(stage) {
				return nil, core.ContractViolation("CreatePipelineState", "pipeline '%s': shader '%s' is a %s shader, bound as %s",
					desc.Name, s.Name(), s.ShaderType(), metadata.ShaderType(stage))
			}
		}
	}
	for _, b := range desc.ResourceLayout {
		if !b.Stage.IsValid() || b.Count == 0 {
			return nil, core.ContractViolation("CreatePipelineState", "pipeline '%s': invalid binding '%s'", desc.Name, b.Name)
		}
		if desc.IsComputePipeline != (b.Stage == metadata.SHADER_TYPE_COMPUTE) {
			return nil, core.ContractViolation("CreatePipelineState", "pipeline '%s': binding '%s' targets stage %s", desc.Name, b.Name, b.Stage)
		}
	}

	h, err := m.allocate("PipelineState", desc.Name)
	if err != nil {
		return nil, err
	}
	pso := &PipelineState{
		desc:   desc,
		static: make(map[slotKey]metadata.DeviceObject),
	}
	pso.desc.ResourceLayout = slices.Clone(desc.ResourceLayout)
	pso.desc.Graphics.VertexStrides = slices.Clone(desc.Graphics.VertexStrides)
	pso.desc.Graphics.RTVFormats = slices.Clone(desc.Graphics.RTVFormats)
	pso.init(h, func() { pso.releaseStatic() })
	return pso, nil
}

func (p *PipelineState) Desc() *metadata.PipelineStateDesc {
	return &p.desc
}

func (p *PipelineState) Shader(stage metadata.ShaderType) metadata.Shader {
	if p.desc.IsComputePipeline {
		if stage == metadata.SHADER_TYPE_COMPUTE {
			return p.desc.ComputeShader
		}
		return nil
	}
	if !stage.IsValid() {
		return nil
	}
	return p.desc.Graphics.Shaders[stage]
}

// SetStaticResource binds obj to a slot the layout declares as static.
func (p *PipelineState) SetStaticResource(stage metadata.ShaderType, category metadata.ResourceCategory, slot uint32, obj metadata.DeviceObject) error {
	b, ok := p.find(stage, category, slot)
	if !ok || !b.Static {
		return core.ContractViolation("SetStaticResource", "pipeline '%s' has no static %s binding at slot %d", p.desc.Name, category, slot).At(stage, int(slot))
	}
	key := slotKey{stage, category, slot}
	if old := p.static[key]; old != nil {
		old.Release()
	}
	if obj == nil {
		delete(p.static, key)
		return nil
	}
	obj.AddRef()
	p.static[key] = obj
	return nil
}

func (p *PipelineState) StaticResource(stage metadata.ShaderType, category metadata.ResourceCategory, slot uint32) metadata.DeviceObject {
	return p.static[slotKey{stage, category, slot}]
}

// IsCompatibleWith reports whether both pipelines declare the same mutable
// bindings, so a resource binding created for one can serve the other.
func (p *PipelineState) IsCompatibleWith(other metadata.PipelineState) bool {
	if other == nil {
		return false
	}
	if other == metadata.PipelineState(p) {
		return true
	}
	return slices.Equal(mutableBindings(p.desc.ResourceLayout), mutableBindings(other.Desc().ResourceLayout))
}

func mutableBindings(layout []metadata.ResourceBinding) []metadata.ResourceBinding {
	out := make([]metadata.ResourceBinding, 0, len(layout))
	for _, b := range layout {
		if !b.Static {
			b.Name = ""
			out = append(out, b)
		}
	}
	return out
}

func (p *PipelineState) find(stage metadata.ShaderType, category metadata.ResourceCategory, slot uint32) (metadata.ResourceBinding, bool) {
	for _, b := range p.desc.ResourceLayout {
		if b.Stage == stage && b.Category == category && slot >= b.Slot && slot < b.Slot+b.Count {
			return b, true
		}
	}
	return metadata.ResourceBinding{}, false
}

func (p *PipelineState) releaseStatic() {
	for key, obj := range p.static {
		obj.Release()
		delete(p.static, key)
	}
}

// ShaderResourceBinding holds the objects bound to the mutable slots of a
// pipeline's layout.
type ShaderResourceBinding struct {
	pso       *PipelineState
	resources map[slotKey]metadata.DeviceObject
}

var _ metadata.ShaderResourceBinding = (*ShaderResourceBinding)(nil)

func (p *PipelineState) CreateShaderResourceBinding() *ShaderResourceBinding {
	p.AddRef()
	return &ShaderResourceBinding{
		pso:       p,
		resources: make(map[slotKey]metadata.DeviceObject),
	}
}

func (srb *ShaderResourceBinding) PipelineState() metadata.PipelineState {
	return srb.pso
}

func (srb *ShaderResourceBinding) Resource(stage metadata.ShaderType, category metadata.ResourceCategory, slot uint32) metadata.DeviceObject {
	return srb.resources[slotKey{stage, category, slot}]
}

// Set binds obj to a mutable slot of the pipeline's layout. A nil obj clears the slot.
func (srb *ShaderResourceBinding) Set(stage metadata.ShaderType, category metadata.ResourceCategory, slot uint32, obj metadata.DeviceObject) error {
	b, ok := srb.pso.find(stage, category, slot)
	if !ok {
		return core.ContractViolation("ShaderResourceBinding.Set", "pipeline '%s' declares no %s binding at slot %d", srb.pso.desc.Name, category, slot).At(stage, int(slot))
	}
	if b.Static {
		return core.ContractViolation("ShaderResourceBinding.Set", "binding '%s' is static, set it on the pipeline", b.Name).At(stage, int(slot))
	}
	key := slotKey{stage, category, slot}
	if old := srb.resources[key]; old != nil {
		old.Release()
	}
	if obj == nil {
		delete(srb.resources, key)
		return nil
	}
	obj.AddRef()
	srb.resources[key] = obj
	return nil
}

// SetByName binds obj to element index of the named binding.
func (srb *ShaderResourceBinding) SetByName(name string, index uint32, obj metadata.DeviceObject) error {
	for _, b := range srb.pso.desc.ResourceLayout {
		if b.Name != name {
			continue
		}
		if index >= b.Count {
			return core.ContractViolation("ShaderResourceBinding.SetByName", "index %d out of range for '%s' (%d elements)", index, name, b.Count)
		}
		return srb.Set(b.Stage, b.Category, b.Slot+index, obj)
	}
	return core.ContractViolation("ShaderResourceBinding.SetByName", "pipeline '%s' has no binding named '%s'", srb.pso.desc.Name, name)
}

// Release drops every held object and the pipeline reference.
func (srb *ShaderResourceBinding) Release() {
	for key, obj := range srb.resources {
		obj.Release()
		delete(srb.resources, key)
	}
	srb.pso.Release()
}
