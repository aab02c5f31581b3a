package statecache

import "github.com/spaghettifunk/rhi/engine/renderer/metadata"

// Limits are the capacities of the slot tables. They are hardware limits,
// not growth paths: a bind beyond a limit is a contract violation.
type Limits struct {
	ConstantBuffers int
	ShaderResources int
	Samplers        int
	UnorderedAccess int
	VertexBuffers   int
	RenderTargets   int
	Viewports       int
}

// DefaultLimits are the Direct3D 11 limits.
func DefaultLimits() Limits {
	return Limits{
		ConstantBuffers: 14,
		ShaderResources: 128,
		Samplers:        16,
		UnorderedAccess: 8,
		VertexBuffers:   32,
		RenderTargets:   8,
		Viewports:       16,
	}
}

// Slots returns the number of slots per stage for a category.
func (l Limits) Slots(category metadata.ResourceCategory) int {
	switch category {
	case metadata.CATEGORY_CONSTANT_BUFFER:
		return l.ConstantBuffers
	case metadata.CATEGORY_SHADER_RESOURCE:
		return l.ShaderResources
	case metadata.CATEGORY_SAMPLER:
		return l.Samplers
	case metadata.CATEGORY_UNORDERED_ACCESS:
		return l.UnorderedAccess
	}
	return 0
}
