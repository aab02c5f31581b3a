// Package recorder is a native backend with Direct3D 11 device-context
// semantics that runs without a GPU. Every native call is recorded, the
// bound state can be read back, and deferred recorders produce command
// lists that an immediate recorder replays.
package recorder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

var ErrNotCommandList = errors.New("not a recorder command list")

// Call is one recorded native call.
type Call struct {
	Op       string
	// Stage and Category are set for per-stage calls.
	Stage    metadata.ShaderType
	Category metadata.ResourceCategory
	Start    uint32
	Handles  []metadata.Handle
	// Counts holds the integer arguments of draws and dispatches.
	Counts   []uint32

	apply func(s *boundState)
}

func (c Call) String() string {
	var sb strings.Builder
	sb.WriteString(c.Op)
	switch c.Op {
	case OpSetConstantBuffers, OpSetShaderResources, OpSetSamplers, OpSetUnorderedAccessViews:
		fmt.Fprintf(&sb, "(%s, %d..%d, %v)", c.Stage, c.Start, int(c.Start)+len(c.Handles)-1, c.Handles)
	case OpSetShader:
		fmt.Fprintf(&sb, "(%s, %v)", c.Stage, c.Handles)
	default:
		if len(c.Handles) > 0 || len(c.Counts) > 0 {
			fmt.Fprintf(&sb, "(%v %v)", c.Handles, c.Counts)
		}
	}
	return sb.String()
}

// CommandList is what a deferred recorder returns from FinishCommandList.
type CommandList struct {
	Calls []Call
}

const (
	OpSetConstantBuffers      = "SetConstantBuffers"
	OpSetShaderResources      = "SetShaderResources"
	OpSetSamplers             = "SetSamplers"
	OpSetUnorderedAccessViews = "SetUnorderedAccessViews"
	OpSetShader               = "SetShader"
	OpBindPipeline            = "BindPipeline"
	OpSetVertexBuffers        = "SetVertexBuffers"
	OpSetIndexBuffer          = "SetIndexBuffer"
	OpSetInputLayout          = "SetInputLayout"
	OpSetPrimitiveTopology    = "SetPrimitiveTopology"
	OpSetRenderTargets        = "SetRenderTargets"
	OpSetBlendState           = "SetBlendState"
	OpSetRasterizerState      = "SetRasterizerState"
	OpSetDepthStencilState    = "SetDepthStencilState"
	OpSetViewports            = "SetViewports"
	OpSetScissorRects         = "SetScissorRects"
	OpClearRenderTarget       = "ClearRenderTarget"
	OpClearDepthStencil       = "ClearDepthStencil"
	OpDraw                    = "Draw"
	OpDrawIndexed             = "DrawIndexed"
	OpDrawIndirect            = "DrawIndirect"
	OpDrawIndexedIndirect     = "DrawIndexedIndirect"
	OpDispatch                = "Dispatch"
	OpDispatchIndirect        = "DispatchIndirect"
	OpClearState              = "ClearState"
	OpFlush                   = "Flush"
	OpFinishCommandList       = "FinishCommandList"
	OpExecuteCommandList      = "ExecuteCommandList"
)

// Recorder implements renderer.NativeContext and renderer.StateReader.
// It is not safe for concurrent use, like the context that drives it.
type Recorder struct {
	name     string
	deferred bool
	caps     metadata.BackendCaps

	state    boundState
	log      []Call
	// calls recorded since the last FinishCommandList, deferred only
	pending  []Call
	failures map[string]error
}

type Option func(r *Recorder)

// WithCoalesce overrides the coalescing policy reported by Caps.
func WithCoalesce(p metadata.CoalescePolicy) Option {
	return func(r *Recorder) {
		r.caps.Coalesce = p
	}
}

// WithoutCommandLists makes the recorder report no command list support.
func WithoutCommandLists() Option {
	return func(r *Recorder) {
		r.caps.CommandLists = false
	}
}

func New(name string, deferred bool, opts ...Option) *Recorder {
	r := &Recorder{
		name:     name,
		deferred: deferred,
		caps: metadata.BackendCaps{
			Name:         "recorder",
			Coalesce:     metadata.COALESCE_SPAN,
			CommandLists: true,
		},
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Name() string {
	return r.name
}

func (r *Recorder) Caps() metadata.BackendCaps {
	return r.caps
}

// FailNext makes the next call of op return err. Only calls that return an
// error can fail.
func (r *Recorder) FailNext(op string, err error) {
	r.failures[op] = err
}

func (r *Recorder) failure(op string) error {
	if err, ok := r.failures[op]; ok {
		delete(r.failures, op)
		return err
	}
	return nil
}

func (r *Recorder) record(c Call) {
	if c.apply != nil {
		c.apply(&r.state)
	}
	r.log = append(r.log, c)
	if r.deferred {
		r.pending = append(r.pending, c)
	}
}

// Calls returns every call recorded since the last ResetLog.
func (r *Recorder) Calls() []Call {
	return append([]Call(nil), r.log...)
}

// CallsOf returns the recorded calls of op.
func (r *Recorder) CallsOf(op string) []Call {
	var out []Call
	for _, c := range r.log {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Count is the number of recorded calls of op.
func (r *Recorder) Count(op string) int {
	n := 0
	for _, c := range r.log {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (r *Recorder) ResetLog() {
	r.log = r.log[:0]
}

func clone[T any](s []T) []T {
	return append([]T(nil), s...)
}

func (r *Recorder) setSlots(op string, category metadata.ResourceCategory, stage metadata.ShaderType, start uint32, handles []metadata.Handle) {
	handles = clone(handles)
	r.record(Call{
		Op:       op,
		Stage:    stage,
		Category: category,
		Start:    start,
		Handles:  handles,
		apply: func(s *boundState) {
			s.setSlots(category, stage, start, handles)
		},
	})
}

func (r *Recorder) SetConstantBuffers(stage metadata.ShaderType, start uint32, buffers []metadata.Handle) {
	r.setSlots(OpSetConstantBuffers, metadata.CATEGORY_CONSTANT_BUFFER, stage, start, buffers)
}

func (r *Recorder) SetShaderResources(stage metadata.ShaderType, start uint32, views []metadata.Handle) {
	r.setSlots(OpSetShaderResources, metadata.CATEGORY_SHADER_RESOURCE, stage, start, views)
}

func (r *Recorder) SetSamplers(stage metadata.ShaderType, start uint32, samplers []metadata.Handle) {
	r.setSlots(OpSetSamplers, metadata.CATEGORY_SAMPLER, stage, start, samplers)
}

func (r *Recorder) SetUnorderedAccessViews(stage metadata.ShaderType, start uint32, views []metadata.Handle) {
	r.setSlots(OpSetUnorderedAccessViews, metadata.CATEGORY_UNORDERED_ACCESS, stage, start, views)
}

func (r *Recorder) SetShader(stage metadata.ShaderType, shader metadata.Handle) {
	r.record(Call{Op: OpSetShader, Stage: stage, Handles: []metadata.Handle{shader}, apply: func(s *boundState) {
		s.shaders[stage] = shader
	}})
}

func (r *Recorder) BindPipeline(pipeline metadata.Handle, isCompute bool) {
	r.record(Call{Op: OpBindPipeline, Handles: []metadata.Handle{pipeline}, apply: func(s *boundState) {
		if isCompute {
			s.computePipe = pipeline
		} else {
			s.graphicsPipe = pipeline
		}
	}})
}

func (r *Recorder) SetVertexBuffers(start uint32, buffers []metadata.Handle, strides, offsets []uint32) {
	buffers, strides, offsets = clone(buffers), clone(strides), clone(offsets)
	r.record(Call{Op: OpSetVertexBuffers, Start: start, Handles: buffers, Counts: strides, apply: func(s *boundState) {
		s.setVertexBuffers(start, buffers, strides, offsets)
	}})
}

func (r *Recorder) SetIndexBuffer(buffer metadata.Handle, format gputypes.IndexFormat, offset uint32) {
	r.record(Call{Op: OpSetIndexBuffer, Handles: []metadata.Handle{buffer}, Counts: []uint32{offset}, apply: func(s *boundState) {
		s.ibBuffer, s.ibFormat, s.ibOffset = buffer, format, offset
	}})
}

func (r *Recorder) SetInputLayout(layout metadata.Handle) {
	r.record(Call{Op: OpSetInputLayout, Handles: []metadata.Handle{layout}, apply: func(s *boundState) {
		s.inputLayout = layout
	}})
}

func (r *Recorder) SetPrimitiveTopology(topology gputypes.PrimitiveTopology) {
	r.record(Call{Op: OpSetPrimitiveTopology, Counts: []uint32{uint32(topology)}, apply: func(s *boundState) {
		s.topology, s.topologySet = topology, true
	}})
}

func (r *Recorder) SetRenderTargets(rtvs []metadata.Handle, dsv metadata.Handle) {
	rtvs = clone(rtvs)
	r.record(Call{Op: OpSetRenderTargets, Handles: append(clone(rtvs), dsv), apply: func(s *boundState) {
		s.setRenderTargets(rtvs, dsv)
	}})
}

func (r *Recorder) SetBlendState(state metadata.Handle, factors [4]float32, sampleMask uint32) {
	r.record(Call{Op: OpSetBlendState, Handles: []metadata.Handle{state}, Counts: []uint32{sampleMask}, apply: func(s *boundState) {
		s.blendState, s.blendFactors, s.sampleMask = state, factors, sampleMask
	}})
}

func (r *Recorder) SetRasterizerState(state metadata.Handle) {
	r.record(Call{Op: OpSetRasterizerState, Handles: []metadata.Handle{state}, apply: func(s *boundState) {
		s.rasterizerState = state
	}})
}

func (r *Recorder) SetDepthStencilState(state metadata.Handle, stencilRef uint32) {
	r.record(Call{Op: OpSetDepthStencilState, Handles: []metadata.Handle{state}, Counts: []uint32{stencilRef}, apply: func(s *boundState) {
		s.dsState, s.stencilRef = state, stencilRef
	}})
}

func (r *Recorder) SetViewports(viewports []metadata.Viewport) {
	viewports = clone(viewports)
	r.record(Call{Op: OpSetViewports, apply: func(s *boundState) {
		s.viewports = viewports
	}})
}

func (r *Recorder) SetScissorRects(rects []metadata.Rect) {
	rects = clone(rects)
	r.record(Call{Op: OpSetScissorRects, apply: func(s *boundState) {
		s.scissors = rects
	}})
}

func (r *Recorder) ClearRenderTarget(rtv metadata.Handle, color [4]float32) error {
	if err := r.failure(OpClearRenderTarget); err != nil {
		return err
	}
	r.record(Call{Op: OpClearRenderTarget, Handles: []metadata.Handle{rtv}})
	return nil
}

func (r *Recorder) ClearDepthStencil(dsv metadata.Handle, flags metadata.ClearDepthStencilFlags, depth float32, stencil uint8) error {
	if err := r.failure(OpClearDepthStencil); err != nil {
		return err
	}
	r.record(Call{Op: OpClearDepthStencil, Handles: []metadata.Handle{dsv}, Counts: []uint32{uint32(flags), uint32(stencil)}})
	return nil
}

func (r *Recorder) Draw(vertexCount, instanceCount, startVertex, startInstance uint32) error {
	if err := r.failure(OpDraw); err != nil {
		return err
	}
	r.record(Call{Op: OpDraw, Counts: []uint32{vertexCount, instanceCount, startVertex, startInstance}})
	return nil
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) error {
	if err := r.failure(OpDrawIndexed); err != nil {
		return err
	}
	r.record(Call{Op: OpDrawIndexed, Counts: []uint32{indexCount, instanceCount, startIndex, uint32(baseVertex), startInstance}})
	return nil
}

func (r *Recorder) DrawIndirect(args metadata.Handle, offset uint32) error {
	if err := r.failure(OpDrawIndirect); err != nil {
		return err
	}
	r.record(Call{Op: OpDrawIndirect, Handles: []metadata.Handle{args}, Counts: []uint32{offset}})
	return nil
}

func (r *Recorder) DrawIndexedIndirect(args metadata.Handle, offset uint32) error {
	if err := r.failure(OpDrawIndexedIndirect); err != nil {
		return err
	}
	r.record(Call{Op: OpDrawIndexedIndirect, Handles: []metadata.Handle{args}, Counts: []uint32{offset}})
	return nil
}

func (r *Recorder) Dispatch(x, y, z uint32) error {
	if err := r.failure(OpDispatch); err != nil {
		return err
	}
	r.record(Call{Op: OpDispatch, Counts: []uint32{x, y, z}})
	return nil
}

func (r *Recorder) DispatchIndirect(args metadata.Handle, offset uint32) error {
	if err := r.failure(OpDispatchIndirect); err != nil {
		return err
	}
	r.record(Call{Op: OpDispatchIndirect, Handles: []metadata.Handle{args}, Counts: []uint32{offset}})
	return nil
}

func (r *Recorder) ClearState() {
	r.record(Call{Op: OpClearState, apply: func(s *boundState) {
		*s = boundState{}
	}})
}

func (r *Recorder) Flush() error {
	if err := r.failure(OpFlush); err != nil {
		return err
	}
	if r.deferred {
		return fmt.Errorf("recorder %s: deferred contexts cannot flush", r.name)
	}
	r.record(Call{Op: OpFlush})
	return nil
}

// FinishCommandList returns the calls recorded since the previous list and
// clears the bound state.
func (r *Recorder) FinishCommandList() (interface{}, error) {
	if err := r.failure(OpFinishCommandList); err != nil {
		return nil, err
	}
	if !r.deferred {
		return nil, fmt.Errorf("recorder %s: only deferred contexts finish command lists", r.name)
	}
	list := &CommandList{Calls: r.pending}
	r.pending = nil
	r.state = boundState{}
	r.log = append(r.log, Call{Op: OpFinishCommandList, Counts: []uint32{uint32(len(list.Calls))}})
	return list, nil
}

// ExecuteCommandList replays the calls of a list produced by a deferred
// recorder. Each replayed call is recorded.
func (r *Recorder) ExecuteCommandList(list interface{}) error {
	if err := r.failure(OpExecuteCommandList); err != nil {
		return err
	}
	cl, ok := list.(*CommandList)
	if !ok {
		return ErrNotCommandList
	}
	if r.deferred {
		return fmt.Errorf("recorder %s: deferred contexts cannot execute command lists", r.name)
	}
	r.record(Call{Op: OpExecuteCommandList, Counts: []uint32{uint32(len(cl.Calls))}})
	for _, c := range cl.Calls {
		r.record(c)
	}
	return nil
}

// StateReader

func (r *Recorder) Slots(stage metadata.ShaderType, category metadata.ResourceCategory, count int) []metadata.Handle {
	return read(r.state.slots[category][stage], count)
}

func (r *Recorder) Shader(stage metadata.ShaderType) metadata.Handle {
	return r.state.shaders[stage]
}

func (r *Recorder) VertexBuffers(count int) ([]metadata.Handle, []uint32, []uint32) {
	return read(r.state.vbBuffers, count), read(r.state.vbStrides, count), read(r.state.vbOffsets, count)
}

func (r *Recorder) IndexBuffer() (metadata.Handle, gputypes.IndexFormat, uint32) {
	return r.state.ibBuffer, r.state.ibFormat, r.state.ibOffset
}

func (r *Recorder) RenderTargets(count int) ([]metadata.Handle, metadata.Handle) {
	return read(r.state.rtvs, count), r.state.dsv
}

func (r *Recorder) InputLayout() metadata.Handle {
	return r.state.inputLayout
}

func (r *Recorder) PrimitiveTopology() (gputypes.PrimitiveTopology, bool) {
	return r.state.topology, r.state.topologySet
}

// Pipeline returns the bound graphics or compute pipeline.
func (r *Recorder) Pipeline(isCompute bool) metadata.Handle {
	if isCompute {
		return r.state.computePipe
	}
	return r.state.graphicsPipe
}

func (r *Recorder) Viewports() []metadata.Viewport {
	return clone(r.state.viewports)
}

// Corrupt overwrites a bound slot without going through the log, the way a
// foreign writer to the native context would.
func (r *Recorder) Corrupt(category metadata.ResourceCategory, stage metadata.ShaderType, slot uint32, handle metadata.Handle) {
	r.state.setSlots(category, stage, slot, []metadata.Handle{handle})
}
