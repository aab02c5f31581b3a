package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/rhi/engine/renderer/statecache"
)

/**
 * @brief Descriptor set n holds the slots of shader stage n. Within a set the
 * slots of a category occupy a contiguous range of bindings, in the order
 * below. Shader resources and unordered access views have two ranges: one
 * for texture views, one for buffer views.
 *
 *  CB: uniform buffers                SRV: sampled images, uniform texel buffers
 *  Sampler: samplers                  UAV: storage images, storage texel buffers
 */
type bindingRange struct {
	category metadata.ResourceCategory
	isBuffer bool
	kind     vk.DescriptorType
}

var bindingRanges = [...]bindingRange{
	{metadata.CATEGORY_CONSTANT_BUFFER, true, vk.DescriptorTypeUniformBuffer},
	{metadata.CATEGORY_SHADER_RESOURCE, false, vk.DescriptorTypeSampledImage},
	{metadata.CATEGORY_SHADER_RESOURCE, true, vk.DescriptorTypeUniformTexelBuffer},
	{metadata.CATEGORY_SAMPLER, false, vk.DescriptorTypeSampler},
	{metadata.CATEGORY_UNORDERED_ACCESS, false, vk.DescriptorTypeStorageImage},
	{metadata.CATEGORY_UNORDERED_ACCESS, true, vk.DescriptorTypeStorageTexelBuffer},
}

var bindingLimits = statecache.DefaultLimits()

// BindingIndex is the descriptor binding of a slot.
func BindingIndex(category metadata.ResourceCategory, slot uint32, isBuffer bool) uint32 {
	base := uint32(0)
	for _, r := range bindingRanges {
		if r.category == category && r.isBuffer == isBuffer {
			return base + slot
		}
		base += uint32(bindingLimits.Slots(r.category))
	}
	return base
}

// descriptorType returns the descriptor an object is written as when bound
// in category, and whether it goes to the buffer range of the category.
func descriptorType(category metadata.ResourceCategory, obj *Object) (vk.DescriptorType, bool, error) {
	switch {
	case category == metadata.CATEGORY_CONSTANT_BUFFER && obj.Kind == OBJECT_KIND_BUFFER:
		return vk.DescriptorTypeUniformBuffer, true, nil
	case category == metadata.CATEGORY_SHADER_RESOURCE && obj.Kind == OBJECT_KIND_TEXTURE_VIEW:
		return vk.DescriptorTypeSampledImage, false, nil
	case category == metadata.CATEGORY_SHADER_RESOURCE && obj.Kind == OBJECT_KIND_BUFFER_VIEW:
		return vk.DescriptorTypeUniformTexelBuffer, true, nil
	case category == metadata.CATEGORY_SAMPLER && obj.Kind == OBJECT_KIND_SAMPLER:
		return vk.DescriptorTypeSampler, false, nil
	case category == metadata.CATEGORY_UNORDERED_ACCESS && obj.Kind == OBJECT_KIND_TEXTURE_VIEW:
		return vk.DescriptorTypeStorageImage, false, nil
	case category == metadata.CATEGORY_UNORDERED_ACCESS && obj.Kind == OBJECT_KIND_BUFFER_VIEW:
		return vk.DescriptorTypeStorageTexelBuffer, true, nil
	}
	return 0, false, fmt.Errorf("'%s' cannot be bound as %s", obj.Name, category)
}

var stageFlags = [metadata.NUM_SHADER_TYPES]vk.ShaderStageFlagBits{
	vk.ShaderStageVertexBit,
	vk.ShaderStageFragmentBit,
	vk.ShaderStageGeometryBit,
	vk.ShaderStageTessellationControlBit,
	vk.ShaderStageTessellationEvaluationBit,
	vk.ShaderStageComputeBit,
}

// layoutBindings lists every binding of the set of stage.
func layoutBindings(stage metadata.ShaderType) []vk.DescriptorSetLayoutBinding {
	var out []vk.DescriptorSetLayoutBinding
	for _, r := range bindingRanges {
		for slot := 0; slot < bindingLimits.Slots(r.category); slot++ {
			out = append(out, vk.DescriptorSetLayoutBinding{
				Binding:         BindingIndex(r.category, uint32(slot), r.isBuffer),
				DescriptorType:  r.kind,
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(stageFlags[stage]),
			})
		}
	}
	return out
}

// descriptorWrite is one bound slot to write into a descriptor set.
type descriptorWrite struct {
	binding uint32
	kind    vk.DescriptorType
	object  Object
}

// slotWrites resolves the non-null slots of one category of a stage.
func slotWrites(reg *Registry, category metadata.ResourceCategory, slots []metadata.Handle) ([]descriptorWrite, error) {
	var out []descriptorWrite
	for slot, h := range slots {
		if h == metadata.NullHandle {
			continue
		}
		if slot >= bindingLimits.Slots(category) {
			return nil, fmt.Errorf("slot %d of %s is outside the descriptor layout", slot, category)
		}
		obj, ok := reg.Lookup(h)
		if !ok {
			return nil, fmt.Errorf("slot %d of %s holds unknown handle %d", slot, category, h)
		}
		kind, isBuffer, err := descriptorType(category, &obj)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", slot, err)
		}
		out = append(out, descriptorWrite{
			binding: BindingIndex(category, uint32(slot), isBuffer),
			kind:    kind,
			object:  obj,
		})
	}
	return out, nil
}

// groupRuns splits writes sorted by binding into runs of consecutive
// bindings of one descriptor type, each written with a single update.
func groupRuns(writes []descriptorWrite) [][]descriptorWrite {
	var runs [][]descriptorWrite
	start := 0
	for i := 1; i <= len(writes); i++ {
		if i < len(writes) && writes[i].kind == writes[i-1].kind && writes[i].binding == writes[i-1].binding+1 {
			continue
		}
		if i > start {
			runs = append(runs, writes[start:i])
		}
		start = i
	}
	return runs
}

func toWriteDescriptorSet(set vk.DescriptorSet, run []descriptorWrite) vk.WriteDescriptorSet {
	w := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      run[0].binding,
		DescriptorCount: uint32(len(run)),
		DescriptorType:  run[0].kind,
	}
	for _, d := range run {
		switch d.kind {
		case vk.DescriptorTypeUniformBuffer:
			w.PBufferInfo = append(w.PBufferInfo, vk.DescriptorBufferInfo{
				Buffer: d.object.Buffer,
				Range:  vk.DeviceSize(d.object.Size),
			})
		case vk.DescriptorTypeUniformTexelBuffer, vk.DescriptorTypeStorageTexelBuffer:
			w.PTexelBufferView = append(w.PTexelBufferView, d.object.TexelView)
		case vk.DescriptorTypeSampler:
			w.PImageInfo = append(w.PImageInfo, vk.DescriptorImageInfo{Sampler: d.object.Sampler})
		case vk.DescriptorTypeSampledImage:
			w.PImageInfo = append(w.PImageInfo, vk.DescriptorImageInfo{
				ImageView:   d.object.View,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			})
		case vk.DescriptorTypeStorageImage:
			w.PImageInfo = append(w.PImageInfo, vk.DescriptorImageInfo{
				ImageView:   d.object.View,
				ImageLayout: vk.ImageLayoutGeneral,
			})
		}
	}
	return w
}

// SetLayouts are the descriptor set layouts shared by every pipeline, set n
// is the set of shader stage n.
type SetLayouts struct {
	device  *Device
	layouts [metadata.NUM_SHADER_TYPES]vk.DescriptorSetLayout
}

func NewSetLayouts(device *Device) (*SetLayouts, error) {
	l := &SetLayouts{device: device}
	for stage := 0; stage < metadata.NUM_SHADER_TYPES; stage++ {
		bindings := layoutBindings(metadata.ShaderType(stage))
		info := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(device.LogicalDevice, &info, device.Instance.Allocator, &l.layouts[stage])); err != nil {
			core.LogError("%s", err)
			l.Destroy()
			return nil, err
		}
	}
	return l, nil
}

// Layouts are what a pipeline layout is created with, in set order.
func (l *SetLayouts) Layouts() []vk.DescriptorSetLayout {
	return append([]vk.DescriptorSetLayout(nil), l.layouts[:]...)
}

func (l *SetLayouts) Destroy() {
	for i := range l.layouts {
		if l.layouts[i] != nil {
			vk.DestroyDescriptorSetLayout(l.device.LogicalDevice, l.layouts[i], l.device.Instance.Allocator)
			l.layouts[i] = nil
		}
	}
}

// descriptorPool is where a command buffer's descriptor sets come from.
// Sets are never updated once bound, a stage whose slots changed gets a new
// set, and the pool is reset when the command buffer has completed.
type descriptorPool struct {
	layouts *SetLayouts
	pool    vk.DescriptorPool
}

func newDescriptorPool(layouts *SetLayouts, maxSets uint32) (*descriptorPool, error) {
	device := layouts.device
	var sizes []vk.DescriptorPoolSize
	for _, r := range bindingRanges {
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            r.kind,
			DescriptorCount: maxSets * uint32(bindingLimits.Slots(r.category)),
		})
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	p := &descriptorPool{layouts: layouts}
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(device.LogicalDevice, &info, device.Instance.Allocator, &p.pool)); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return p, nil
}

func (p *descriptorPool) allocate(stage metadata.ShaderType) (vk.DescriptorSet, error) {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.layouts.layouts[stage]},
	}
	var set vk.DescriptorSet
	if err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(p.layouts.device.LogicalDevice, &info, &set)); err != nil {
		return nil, err
	}
	return set, nil
}

func (p *descriptorPool) reset() error {
	return check("vkResetDescriptorPool", vk.ResetDescriptorPool(p.layouts.device.LogicalDevice, p.pool, 0))
}

func (p *descriptorPool) destroy() {
	if p.pool != nil {
		vk.DestroyDescriptorPool(p.layouts.device.LogicalDevice, p.pool, p.layouts.device.Instance.Allocator)
		p.pool = nil
	}
}
