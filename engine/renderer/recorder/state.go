package recorder

import (
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

// boundState is what a recorder has bound, updated by every setter the way
// a Direct3D 11 device context would be.
type boundState struct {
	slots [metadata.NUM_RESOURCE_CATEGORIES][metadata.NUM_SHADER_TYPES][]metadata.Handle

	shaders         [metadata.NUM_SHADER_TYPES]metadata.Handle
	graphicsPipe    metadata.Handle
	computePipe     metadata.Handle
	inputLayout     metadata.Handle
	topology        gputypes.PrimitiveTopology
	topologySet     bool
	vbBuffers       []metadata.Handle
	vbStrides       []uint32
	vbOffsets       []uint32
	ibBuffer        metadata.Handle
	ibFormat        gputypes.IndexFormat
	ibOffset        uint32
	rtvs            []metadata.Handle
	dsv             metadata.Handle
	blendState      metadata.Handle
	blendFactors    [4]float32
	sampleMask      uint32
	rasterizerState metadata.Handle
	dsState         metadata.Handle
	stencilRef      uint32
	viewports       []metadata.Viewport
	scissors        []metadata.Rect
}

func grow[T any](s []T, n int) []T {
	if len(s) < n {
		s = append(s, make([]T, n-len(s))...)
	}
	return s
}

func (s *boundState) setSlots(category metadata.ResourceCategory, stage metadata.ShaderType, start uint32, handles []metadata.Handle) {
	slots := grow(s.slots[category][stage], int(start)+len(handles))
	copy(slots[start:], handles)
	s.slots[category][stage] = slots
}

func (s *boundState) setVertexBuffers(start uint32, buffers []metadata.Handle, strides, offsets []uint32) {
	n := int(start) + len(buffers)
	s.vbBuffers = grow(s.vbBuffers, n)
	s.vbStrides = grow(s.vbStrides, n)
	s.vbOffsets = grow(s.vbOffsets, n)
	copy(s.vbBuffers[start:], buffers)
	copy(s.vbStrides[start:], strides)
	copy(s.vbOffsets[start:], offsets)
}

func (s *boundState) setRenderTargets(rtvs []metadata.Handle, dsv metadata.Handle) {
	s.rtvs = append(s.rtvs[:0], rtvs...)
	s.dsv = dsv
}

// read returns count entries of s from index 0, null past its end.
func read[T any](s []T, count int) []T {
	out := make([]T, count)
	copy(out, s)
	return out
}
