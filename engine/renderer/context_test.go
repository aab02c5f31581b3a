package renderer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/config"
	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/rhi/engine/renderer/recorder"
	"github.com/spaghettifunk/rhi/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

const (
	VS = metadata.SHADER_TYPE_VERTEX
	PS = metadata.SHADER_TYPE_PIXEL
	CS = metadata.SHADER_TYPE_COMPUTE

	CB  = metadata.CATEGORY_CONSTANT_BUFFER
	SRV = metadata.CATEGORY_SHADER_RESOURCE
	SMP = metadata.CATEGORY_SAMPLER
	UAV = metadata.CATEGORY_UNORDERED_ACCESS
)

type fixture struct {
	t   *testing.T
	dev *Device
	ctx *DeviceContext
	rec *recorder.Recorder
	res *resources.Manager

	vs *resources.Shader
	ps *resources.Shader
	cs *resources.Shader
}

func newFixture(t *testing.T, opts ...recorder.Option) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, config.Default(), opts...)
}

func newFixtureWithConfig(t *testing.T, cfg *config.Config, opts ...recorder.Option) *fixture {
	t.Helper()
	rec := recorder.New("immediate", false, opts...)
	factory := func(index int) (NativeContext, error) {
		return recorder.New(fmt.Sprintf("deferred-%d", index), true, opts...), nil
	}
	dev, err := NewDevice(cfg, rec, factory, nil)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Shutdown() })

	f := &fixture{t: t, dev: dev, ctx: dev.ImmediateContext(), rec: rec, res: dev.Resources()}
	f.vs, err = f.res.CreateShader("vs", VS)
	require.NoError(t, err)
	f.ps, err = f.res.CreateShader("ps", PS)
	require.NoError(t, err)
	f.cs, err = f.res.CreateShader("cs", CS)
	require.NoError(t, err)
	return f
}

func binding(name string, stage metadata.ShaderType, category metadata.ResourceCategory, slot, count uint32) metadata.ResourceBinding {
	return metadata.ResourceBinding{Name: name, Stage: stage, Category: category, Slot: slot, Count: count}
}

func (f *fixture) pipeline(name string, layout ...metadata.ResourceBinding) *resources.PipelineState {
	f.t.Helper()
	desc := metadata.PipelineStateDesc{Name: name, ResourceLayout: layout}
	desc.Graphics.Shaders[VS] = f.vs
	desc.Graphics.Shaders[PS] = f.ps
	desc.Graphics.VertexStrides = []uint32{16, 32, 16, 32}
	desc.Graphics.PrimitiveTopology = gputypes.PrimitiveTopologyTriangleList
	desc.Graphics.RTVFormats = []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}
	pso, err := f.res.CreatePipelineState(desc)
	require.NoError(f.t, err)
	return pso
}

func (f *fixture) computePipeline(name string, layout ...metadata.ResourceBinding) *resources.PipelineState {
	f.t.Helper()
	pso, err := f.res.CreatePipelineState(metadata.PipelineStateDesc{
		Name:              name,
		IsComputePipeline: true,
		ComputeShader:     f.cs,
		ResourceLayout:    layout,
	})
	require.NoError(f.t, err)
	return pso
}

func (f *fixture) texture(name string, flags metadata.BindFlags) *resources.Texture {
	f.t.Helper()
	tex, err := f.res.CreateTexture(resources.TextureDesc{
		Name:      name,
		Width:     256,
		Height:    256,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		BindFlags: flags,
	})
	require.NoError(f.t, err)
	return tex
}

func (f *fixture) view(tex *resources.Texture, viewType metadata.ViewType) *resources.TextureView {
	f.t.Helper()
	v, err := f.res.CreateTextureView(tex, viewType, gputypes.TextureFormatUndefined)
	require.NoError(f.t, err)
	return v
}

// srvs creates n textures with one shader resource view each.
func (f *fixture) srvs(n int) []*resources.TextureView {
	views := make([]*resources.TextureView, n)
	for i := range views {
		views[i] = f.view(f.texture(fmt.Sprintf("tex%d", i), metadata.BIND_SHADER_RESOURCE), metadata.VIEW_TYPE_SHADER_RESOURCE)
	}
	return views
}

func (f *fixture) buffer(name string, flags metadata.BindFlags) *resources.Buffer {
	f.t.Helper()
	b, err := f.res.CreateBuffer(resources.BufferDesc{Name: name, Size: 1024, BindFlags: flags})
	require.NoError(f.t, err)
	return b
}

func (f *fixture) bufferView(b *resources.Buffer, viewType metadata.ViewType) *resources.BufferView {
	f.t.Helper()
	v, err := f.res.CreateBufferView(b, viewType)
	require.NoError(f.t, err)
	return v
}

func (f *fixture) set(srb *resources.ShaderResourceBinding, stage metadata.ShaderType, category metadata.ResourceCategory, slot uint32, obj metadata.DeviceObject) {
	f.t.Helper()
	require.NoError(f.t, srb.Set(stage, category, slot, obj))
}

func handles(objs ...metadata.DeviceObject) []metadata.Handle {
	out := make([]metadata.Handle, len(objs))
	for i, obj := range objs {
		out[i] = handleOf(obj)
	}
	return out
}

func TestCommitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("idempotent",
		binding("g_Textures", PS, SRV, 0, 3),
		binding("g_Sampler", PS, SMP, 0, 1),
		binding("g_Constants", PS, CB, 0, 1),
	)
	views := f.srvs(3)
	sampler, err := f.res.CreateSampler("linear")
	require.NoError(t, err)
	cb := f.buffer("constants", metadata.BIND_UNIFORM_BUFFER)

	srb := pso.CreateShaderResourceBinding()
	for i, v := range views {
		f.set(srb, PS, SRV, uint32(i), v)
	}
	f.set(srb, PS, SMP, 0, sampler)
	f.set(srb, PS, CB, 0, cb)

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	assert.Equal(t, 1, f.rec.Count(recorder.OpSetShaderResources))
	assert.Equal(t, 1, f.rec.Count(recorder.OpSetSamplers))
	assert.Equal(t, 1, f.rec.Count(recorder.OpSetConstantBuffers))
	assert.Equal(t, StateResourcesBound, f.ctx.State())

	f.ctx.TakeStats()
	f.rec.ResetLog()
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	assert.Empty(t, f.rec.Calls())
	stats := f.ctx.TakeStats()
	assert.Zero(t, stats.NativeCalls)
	assert.Equal(t, uint64(5), stats.SkippedSlots)
}

func TestChangedSlotsAreCoalesced(t *testing.T) {
	tests := []struct {
		name   string
		policy metadata.CoalescePolicy
		starts []uint32
		sizes  []int
	}{
		{"span", metadata.COALESCE_SPAN, []uint32{2}, []int{4}},
		{"runs", metadata.COALESCE_RUNS, []uint32{2, 5}, []int{1, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, recorder.WithCoalesce(tc.policy))
			pso := f.pipeline("delta", binding("g_Textures", PS, SRV, 0, 8))
			views := f.srvs(10)
			srb := pso.CreateShaderResourceBinding()
			for i := 0; i < 8; i++ {
				f.set(srb, PS, SRV, uint32(i), views[i])
			}
			require.NoError(t, f.ctx.SetPipelineState(pso))
			require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))

			f.set(srb, PS, SRV, 2, views[8])
			f.set(srb, PS, SRV, 5, views[9])
			f.rec.ResetLog()
			require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))

			calls := f.rec.CallsOf(recorder.OpSetShaderResources)
			require.Len(t, calls, len(tc.starts))
			for i, call := range calls {
				assert.Equal(t, PS, call.Stage)
				assert.Equal(t, tc.starts[i], call.Start)
				assert.Len(t, call.Handles, tc.sizes[i])
			}
			want := handles(views[0], views[1], views[8], views[3], views[4], views[9], views[6], views[7])
			assert.Equal(t, want, f.rec.Slots(PS, SRV, 8))
		})
	}
}

func TestSlotsOutsideTheLayoutAreCleared(t *testing.T) {
	f := newFixture(t)
	views := f.srvs(4)
	wide := f.pipeline("wide", binding("g_Textures", PS, SRV, 0, 4))
	narrow := f.pipeline("narrow", binding("g_Textures", PS, SRV, 0, 2))

	wideSRB := wide.CreateShaderResourceBinding()
	for i, v := range views {
		f.set(wideSRB, PS, SRV, uint32(i), v)
	}
	narrowSRB := narrow.CreateShaderResourceBinding()
	f.set(narrowSRB, PS, SRV, 0, views[0])
	f.set(narrowSRB, PS, SRV, 1, views[1])

	require.NoError(t, f.ctx.SetPipelineState(wide))
	require.NoError(t, f.ctx.CommitShaderResources(wideSRB, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	require.NoError(t, f.ctx.SetPipelineState(narrow))

	f.rec.ResetLog()
	require.NoError(t, f.ctx.CommitShaderResources(narrowSRB, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	calls := f.rec.CallsOf(recorder.OpSetShaderResources)
	require.Len(t, calls, 1)
	assert.Equal(t, uint32(2), calls[0].Start)
	assert.Equal(t, []metadata.Handle{metadata.NullHandle, metadata.NullHandle}, calls[0].Handles)
	assert.Equal(t, 2, f.ctx.Cache().Table(SRV).NumCommitted(PS))
	assert.Equal(t, handles(views[0], views[1], nil, nil), f.rec.Slots(PS, SRV, 4))
}

func TestIncompatibleBindingIsRejected(t *testing.T) {
	f := newFixture(t)
	a := f.pipeline("a", binding("g_Textures", PS, SRV, 0, 2))
	b := f.pipeline("b", binding("g_Textures", PS, SRV, 0, 3))
	srb := a.CreateShaderResourceBinding()

	require.NoError(t, f.ctx.SetPipelineState(b))
	err := f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE)
	require.ErrorIs(t, err, core.ErrContractViolation)
	assert.Empty(t, f.rec.CallsOf(recorder.OpSetShaderResources))
}

func TestMissingResourceNamesTheSlot(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("missing", binding("g_Textures", PS, SRV, 0, 2))
	views := f.srvs(1)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, views[0])

	require.NoError(t, f.ctx.SetPipelineState(pso))
	err := f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE)
	require.ErrorIs(t, err, core.ErrContractViolation)
	var be *core.BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "PS", be.Stage)
	assert.Equal(t, 1, be.Slot)
	assert.Equal(t, "immediate", be.Context)
	assert.Empty(t, f.rec.CallsOf(recorder.OpSetShaderResources))
}

func TestDrawNeedsCommittedBinding(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}), core.ErrContractViolation)

	pso := f.pipeline("unbound", binding("g_Textures", PS, SRV, 0, 1))
	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.ErrorIs(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}), core.ErrContractViolation)
	require.ErrorIs(t, f.ctx.DispatchCompute(metadata.DispatchComputeAttribs{ThreadGroupCountX: 1}), core.ErrContractViolation)
	assert.Zero(t, f.rec.Count(recorder.OpDraw))
}

func TestDrawCommitsEverything(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("draw", binding("g_Textures", PS, SRV, 0, 1))
	views := f.srvs(1)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, views[0])
	vb := f.buffer("vertices", metadata.BIND_VERTEX_BUFFER)
	ib := f.buffer("indices", metadata.BIND_INDEX_BUFFER)

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	require.NoError(t, f.ctx.SetVertexBuffers(0, []metadata.Buffer{vb}, []uint32{64}, metadata.SET_VERTEX_BUFFERS_FLAG_RESET))
	require.NoError(t, f.ctx.SetIndexBuffer(ib, 12))
	require.NoError(t, f.ctx.Draw(metadata.DrawAttribs{IsIndexed: true, NumIndices: 6, IndexType: gputypes.IndexFormatUint16}))

	buffers, strides, offsets := f.rec.VertexBuffers(1)
	assert.Equal(t, handles(vb), buffers)
	assert.Equal(t, []uint32{16}, strides)
	assert.Equal(t, []uint32{64}, offsets)
	h, format, offset := f.rec.IndexBuffer()
	assert.Equal(t, ib.NativeHandle(), h)
	assert.Equal(t, gputypes.IndexFormatUint16, format)
	assert.Equal(t, uint32(12), offset)
	topology, ok := f.rec.PrimitiveTopology()
	assert.True(t, ok)
	assert.Equal(t, gputypes.PrimitiveTopologyTriangleList, topology)
	assert.Equal(t, pso.NativeHandle(), f.rec.Pipeline(false))

	draws := f.rec.CallsOf(recorder.OpDrawIndexed)
	require.Len(t, draws, 1)
	// zero instances draw one
	assert.Equal(t, uint32(1), draws[0].Counts[1])
	assert.Equal(t, StateDrawSubmitted, f.ctx.State())
	assert.True(t, vb.BoundRoles().Has(metadata.ROLE_VERTEX_BUFFER))
	assert.True(t, ib.BoundRoles().Has(metadata.ROLE_INDEX_BUFFER))

	f.rec.ResetLog()
	require.NoError(t, f.ctx.Draw(metadata.DrawAttribs{IsIndexed: true, NumIndices: 6, IndexType: gputypes.IndexFormatUint16}))
	assert.Equal(t, []string{recorder.OpDrawIndexed}, ops(f.rec.Calls()))

	require.ErrorIs(t, f.ctx.Draw(metadata.DrawAttribs{IsIndexed: true, NumIndices: 6, IndexType: gputypes.IndexFormatUndefined}), core.ErrContractViolation)
}

func TestIndexedDrawNeedsIndexBuffer(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("indexed")
	require.NoError(t, f.ctx.SetPipelineState(pso))

	err := f.ctx.Draw(metadata.DrawAttribs{IsIndexed: true, NumIndices: 3, IndexType: gputypes.IndexFormatUint32})
	require.ErrorIs(t, err, core.ErrContractViolation)
	var be *core.BindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "immediate", be.Context)
	assert.Contains(t, be.Msg, "without an index buffer")
	assert.Zero(t, f.rec.Count(recorder.OpDrawIndexed))
}

func ops(calls []recorder.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}

func TestVertexBufferRebind(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("streams")
	vbs := make([]metadata.Buffer, 4)
	for i := range vbs {
		vbs[i] = f.buffer(fmt.Sprintf("vb%d", i), metadata.BIND_VERTEX_BUFFER)
	}
	require.NoError(t, f.ctx.SetPipelineState(pso))
	draw := metadata.DrawAttribs{NumVertices: 3}

	require.NoError(t, f.ctx.SetVertexBuffers(0, vbs, nil, metadata.SET_VERTEX_BUFFERS_FLAG_RESET))
	require.NoError(t, f.ctx.Draw(draw))
	calls := f.rec.CallsOf(recorder.OpSetVertexBuffers)
	require.Len(t, calls, 1)
	assert.Equal(t, handles(vbs[0], vbs[1], vbs[2], vbs[3]), calls[0].Handles)

	// two streams replace four: the whole array is sent once, with the tail nulled
	f.rec.ResetLog()
	require.NoError(t, f.ctx.SetVertexBuffers(0, vbs[:2], nil, metadata.SET_VERTEX_BUFFERS_FLAG_RESET))
	require.NoError(t, f.ctx.Draw(draw))
	calls = f.rec.CallsOf(recorder.OpSetVertexBuffers)
	require.Len(t, calls, 1)
	assert.Equal(t, uint32(0), calls[0].Start)
	assert.Equal(t, handles(vbs[0], vbs[1], nil, nil), calls[0].Handles)
	assert.Equal(t, 2, f.ctx.Cache().NumVertexBuffers())
	buffers, _, _ := f.rec.VertexBuffers(4)
	assert.Equal(t, handles(vbs[0], vbs[1], nil, nil), buffers)

	f.rec.ResetLog()
	require.NoError(t, f.ctx.SetVertexBuffers(0, vbs[:2], nil, metadata.SET_VERTEX_BUFFERS_FLAG_RESET))
	require.NoError(t, f.ctx.Draw(draw))
	assert.Zero(t, f.rec.Count(recorder.OpSetVertexBuffers))
	assert.True(t, f.ctx.Cache().VertexBuffersUpToDate())
}

func TestSetVertexBuffersChecksArguments(t *testing.T) {
	f := newFixture(t)
	vb := f.buffer("vb", metadata.BIND_VERTEX_BUFFER)
	cb := f.buffer("cb", metadata.BIND_UNIFORM_BUFFER)

	err := f.ctx.SetVertexBuffers(31, []metadata.Buffer{vb, vb}, nil, metadata.SET_VERTEX_BUFFERS_FLAG_NONE)
	require.ErrorIs(t, err, core.ErrContractViolation)
	err = f.ctx.SetVertexBuffers(0, []metadata.Buffer{vb}, []uint32{0, 0}, metadata.SET_VERTEX_BUFFERS_FLAG_NONE)
	require.ErrorIs(t, err, core.ErrContractViolation)
	err = f.ctx.SetVertexBuffers(0, []metadata.Buffer{vb, cb}, nil, metadata.SET_VERTEX_BUFFERS_FLAG_NONE)
	require.ErrorIs(t, err, core.ErrContractViolation)
	var be *core.BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Slot)
	require.ErrorIs(t, f.ctx.SetIndexBuffer(vb, 0), core.ErrContractViolation)
	assert.Equal(t, int32(1), vb.RefCount())
}

func TestShaderResourceBecomesRenderTarget(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("sample", binding("g_Texture", PS, SRV, 0, 1))
	tex := f.texture("target", metadata.BIND_SHADER_RESOURCE|metadata.BIND_RENDER_TARGET)
	srv := f.view(tex, metadata.VIEW_TYPE_SHADER_RESOURCE)
	rtv := f.view(tex, metadata.VIEW_TYPE_RENDER_TARGET)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, srv)

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	assert.True(t, tex.BoundRoles().Has(metadata.ROLE_SHADER_RESOURCE))

	f.rec.ResetLog()
	require.NoError(t, f.ctx.SetRenderTargets([]metadata.TextureView{rtv}, nil))
	got := ops(f.rec.Calls())
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, []string{recorder.OpSetShaderResources, recorder.OpSetRenderTargets}, got[:2])
	assert.Equal(t, handles(nil), f.rec.Slots(PS, SRV, 1))
	rtvs, _ := f.rec.RenderTargets(1)
	assert.Equal(t, handles(rtv), rtvs)
	assert.Zero(t, f.ctx.Cache().Table(SRV).NumCommitted(PS))
	assert.False(t, tex.BoundRoles().Has(metadata.ROLE_SHADER_RESOURCE))
	assert.True(t, tex.BoundRoles().Has(metadata.ROLE_RENDER_TARGET))
	assert.Equal(t, []metadata.Viewport{{Width: 256, Height: 256, MaxDepth: 1}}, f.rec.Viewports())

	// the committed binding now reads a render target
	require.ErrorIs(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}), core.ErrContractViolation)
}

func TestRenderTargetTransitionsToShaderResource(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("sample", binding("g_Texture", PS, SRV, 0, 1))
	tex := f.texture("target", metadata.BIND_SHADER_RESOURCE|metadata.BIND_RENDER_TARGET)
	srv := f.view(tex, metadata.VIEW_TYPE_SHADER_RESOURCE)
	rtv := f.view(tex, metadata.VIEW_TYPE_RENDER_TARGET)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, srv)

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.SetRenderTargets([]metadata.TextureView{rtv}, nil))
	assert.Equal(t, int32(2), rtv.RefCount())

	err := f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE)
	require.ErrorIs(t, err, core.ErrContractViolation)
	assert.Equal(t, handles(nil), f.rec.Slots(PS, SRV, 1))

	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_TRANSITION_RESOURCES))
	rtvs, _ := f.rec.RenderTargets(1)
	assert.Equal(t, handles(nil), rtvs)
	assert.Zero(t, f.ctx.Cache().NumRenderTargets())
	assert.Equal(t, handles(srv), f.rec.Slots(PS, SRV, 1))
	assert.Equal(t, int32(1), rtv.RefCount())
	assert.Equal(t, metadata.ROLE_SHADER_RESOURCE, tex.BoundRoles())
	require.NoError(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}))
}

func TestTransitionWithoutCommit(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("sample", binding("g_Texture", PS, SRV, 0, 1))
	tex := f.texture("target", metadata.BIND_SHADER_RESOURCE|metadata.BIND_RENDER_TARGET)
	srv := f.view(tex, metadata.VIEW_TYPE_SHADER_RESOURCE)
	rtv := f.view(tex, metadata.VIEW_TYPE_RENDER_TARGET)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, srv)

	require.NoError(t, f.ctx.SetRenderTargets([]metadata.TextureView{rtv}, nil))
	require.NoError(t, f.ctx.TransitionShaderResources(pso, srb))
	assert.Zero(t, f.ctx.Cache().NumRenderTargets())
	assert.Zero(t, f.ctx.Cache().Table(SRV).NumCommitted(PS))
	assert.Empty(t, f.rec.CallsOf(recorder.OpSetShaderResources))
}

func TestUnorderedAccessBecomesRenderTarget(t *testing.T) {
	f := newFixture(t)
	pso := f.computePipeline("write", binding("g_Output", CS, UAV, 0, 1))
	tex := f.texture("target", metadata.BIND_UNORDERED_ACCESS|metadata.BIND_RENDER_TARGET)
	uav := f.view(tex, metadata.VIEW_TYPE_UNORDERED_ACCESS)
	rtv := f.view(tex, metadata.VIEW_TYPE_RENDER_TARGET)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, CS, UAV, 0, uav)

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	assert.Equal(t, handles(uav), f.rec.Slots(CS, UAV, 1))

	require.NoError(t, f.ctx.SetRenderTargets([]metadata.TextureView{rtv}, nil))
	assert.Equal(t, handles(nil), f.rec.Slots(CS, UAV, 1))
	assert.Equal(t, metadata.ROLE_RENDER_TARGET, tex.BoundRoles())
}

func TestDestroyedBufferIsUnboundEverywhere(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("everywhere",
		binding("g_Constants", VS, CB, 0, 1),
		binding("g_Data", PS, SRV, 1, 1),
	)
	buf := f.buffer("shared", metadata.BIND_VERTEX_BUFFER|metadata.BIND_UNIFORM_BUFFER|metadata.BIND_SHADER_RESOURCE)
	view := f.bufferView(buf, metadata.VIEW_TYPE_SHADER_RESOURCE)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, VS, CB, 0, buf)
	f.set(srb, PS, SRV, 1, view)

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	require.NoError(t, f.ctx.SetVertexBuffers(0, []metadata.Buffer{buf}, nil, metadata.SET_VERTEX_BUFFERS_FLAG_RESET))
	require.NoError(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}))
	assert.Equal(t, handles(buf), f.rec.Slots(VS, CB, 1))
	assert.Equal(t, handles(nil, view), f.rec.Slots(PS, SRV, 2))

	f.ctx.TakeStats()
	f.res.DestroyBuffer(buf)
	assert.Equal(t, handles(nil), f.rec.Slots(VS, CB, 1))
	assert.Equal(t, handles(nil, nil), f.rec.Slots(PS, SRV, 2))
	buffers, _, _ := f.rec.VertexBuffers(1)
	assert.Equal(t, handles(nil), buffers)
	assert.Zero(t, f.ctx.Cache().Table(CB).NumCommitted(VS))
	assert.Zero(t, f.ctx.Cache().Table(SRV).NumCommitted(PS))
	assert.Zero(t, f.ctx.Cache().NumVertexBuffers())
	assert.Equal(t, metadata.ROLE_NONE, buf.BoundRoles())
	assert.Equal(t, uint64(3), f.ctx.TakeStats().UnboundSlots)
	require.NoError(t, f.ctx.Cache().Check())
}

func TestDestroyWhileContextIsBusyIsQueued(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("busy", binding("g_Constants", VS, CB, 0, 1))
	buf := f.buffer("constants", metadata.BIND_UNIFORM_BUFFER)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, VS, CB, 0, buf)
	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))

	// an operation in flight on the goroutine that drives the context
	f.ctx.mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.res.DestroyBuffer(buf)
	}()
	<-done
	assert.True(t, f.ctx.hasDestroyed())
	assert.Equal(t, 1, f.ctx.Cache().Table(CB).NumCommitted(VS))
	assert.Equal(t, handles(buf), f.rec.Slots(VS, CB, 1))
	f.ctx.mu.Unlock()

	require.NoError(t, f.ctx.SetStencilRef(1))
	assert.False(t, f.ctx.hasDestroyed())
	assert.Zero(t, f.ctx.Cache().Table(CB).NumCommitted(VS))
	assert.Equal(t, handles(nil), f.rec.Slots(VS, CB, 1))
	assert.Equal(t, metadata.ROLE_NONE, buf.BoundRoles())
	require.NoError(t, f.ctx.Cache().Check())
}

func TestDestroyedIndexBufferFailsIndexedDraw(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("indexed")
	ib := f.buffer("indices", metadata.BIND_INDEX_BUFFER)
	draw := metadata.DrawAttribs{IsIndexed: true, NumIndices: 3, IndexType: gputypes.IndexFormatUint32}

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.SetIndexBuffer(ib, 0))
	require.NoError(t, f.ctx.Draw(draw))
	assert.Equal(t, int32(2), ib.RefCount())

	f.res.DestroyBuffer(ib)
	h, _, _ := f.rec.IndexBuffer()
	assert.Equal(t, metadata.NullHandle, h)
	assert.Equal(t, int32(1), ib.RefCount())

	f.rec.ResetLog()
	err := f.ctx.Draw(draw)
	require.ErrorIs(t, err, core.ErrContractViolation)
	assert.Contains(t, err.Error(), "without an index buffer")
	assert.Zero(t, f.rec.Count(recorder.OpDrawIndexed))
	require.NoError(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}))
}

func TestDestroyedTextureDropsRenderTargets(t *testing.T) {
	f := newFixture(t)
	color := f.texture("color", metadata.BIND_RENDER_TARGET)
	depth, err := f.res.CreateTexture(resources.TextureDesc{
		Name:      "depth",
		Width:     256,
		Height:    256,
		Format:    gputypes.TextureFormatDepth24PlusStencil8,
		BindFlags: metadata.BIND_DEPTH_STENCIL,
	})
	require.NoError(t, err)
	rtv := f.view(color, metadata.VIEW_TYPE_RENDER_TARGET)
	dsv := f.view(depth, metadata.VIEW_TYPE_DEPTH_STENCIL)

	require.NoError(t, f.ctx.SetRenderTargets([]metadata.TextureView{rtv}, dsv))
	rtvs, dsvHandle := f.rec.RenderTargets(1)
	assert.Equal(t, handles(rtv), rtvs)
	assert.Equal(t, dsv.NativeHandle(), dsvHandle)

	f.res.DestroyTexture(depth)
	rtvs, dsvHandle = f.rec.RenderTargets(1)
	assert.Equal(t, handles(rtv), rtvs)
	assert.Equal(t, metadata.NullHandle, dsvHandle)
	assert.Equal(t, int32(1), dsv.RefCount())

	f.res.DestroyTexture(color)
	rtvs, _ = f.rec.RenderTargets(1)
	assert.Equal(t, handles(nil), rtvs)
	assert.Zero(t, f.ctx.Cache().NumRenderTargets())
	assert.Equal(t, int32(1), rtv.RefCount())
}

func TestUnbindRejectsNil(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.ctx.UnbindBuffer(nil), core.ErrContractViolation)
	require.ErrorIs(t, f.ctx.UnbindTexture(nil), core.ErrContractViolation)
}

func TestUnbindTexture(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("sample", binding("g_Textures", PS, SRV, 0, 3))
	views := f.srvs(3)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, views[0])
	f.set(srb, PS, SRV, 1, views[1])
	f.set(srb, PS, SRV, 2, views[0])

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))

	f.rec.ResetLog()
	require.NoError(t, f.ctx.UnbindTexture(views[0].Texture()))
	// span keeps the view between the two matches bound
	calls := f.rec.CallsOf(recorder.OpSetShaderResources)
	require.Len(t, calls, 1)
	assert.Equal(t, handles(nil, views[1], nil), calls[0].Handles)
	assert.Equal(t, handles(nil, views[1], nil), f.rec.Slots(PS, SRV, 3))
	assert.Equal(t, 2, f.ctx.Cache().Table(SRV).NumCommitted(PS))
}

func TestInvalidateThenRebind(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("rebind", binding("g_Texture", PS, SRV, 0, 1))
	views := f.srvs(1)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, views[0])
	vb := f.buffer("vertices", metadata.BIND_VERTEX_BUFFER)
	rtv := f.view(f.texture("color", metadata.BIND_RENDER_TARGET), metadata.VIEW_TYPE_RENDER_TARGET)

	bind := func() {
		require.NoError(t, f.ctx.SetPipelineState(pso))
		require.NoError(t, f.ctx.SetRenderTargets([]metadata.TextureView{rtv}, nil))
		require.NoError(t, f.ctx.SetVertexBuffers(0, []metadata.Buffer{vb}, nil, metadata.SET_VERTEX_BUFFERS_FLAG_RESET))
		require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
		require.NoError(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}))
	}
	bind()

	require.NoError(t, f.ctx.InvalidateState())
	assert.True(t, f.ctx.Cache().IsEmpty())
	assert.Nil(t, f.ctx.PipelineState())
	assert.Equal(t, StateIdle, f.ctx.State())
	assert.Equal(t, handles(nil), f.rec.Slots(PS, SRV, 1))
	assert.Equal(t, metadata.NullHandle, f.rec.Shader(PS))
	// the binding keeps its own reference to the pipeline
	assert.Equal(t, int32(2), pso.RefCount())
	assert.Equal(t, int32(1), vb.RefCount())
	assert.Equal(t, int32(1), rtv.RefCount())
	assert.Equal(t, metadata.ROLE_NONE, vb.BoundRoles())

	f.rec.ResetLog()
	bind()
	assert.Equal(t, 1, f.rec.Count(recorder.OpBindPipeline))
	assert.Equal(t, 2, f.rec.Count(recorder.OpSetShader))
	assert.Equal(t, 1, f.rec.Count(recorder.OpSetRenderTargets))
	assert.Equal(t, 1, f.rec.Count(recorder.OpSetVertexBuffers))
	assert.Equal(t, 1, f.rec.Count(recorder.OpSetShaderResources))
	assert.Equal(t, 1, f.rec.Count(recorder.OpDraw))
}

func TestFinishFrameKeepsGeometry(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("frame", binding("g_Texture", PS, SRV, 0, 1))
	views := f.srvs(1)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, views[0])
	vb := f.buffer("vertices", metadata.BIND_VERTEX_BUFFER)
	ib := f.buffer("indices", metadata.BIND_INDEX_BUFFER)
	draw := metadata.DrawAttribs{IsIndexed: true, NumIndices: 3, IndexType: gputypes.IndexFormatUint16}

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.SetVertexBuffers(0, []metadata.Buffer{vb}, nil, metadata.SET_VERTEX_BUFFERS_FLAG_RESET))
	require.NoError(t, f.ctx.SetIndexBuffer(ib, 0))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	require.NoError(t, f.ctx.Draw(draw))

	require.NoError(t, f.ctx.FinishFrame())
	assert.Equal(t, handles(nil), f.rec.Slots(PS, SRV, 1))
	assert.Zero(t, f.ctx.Cache().Table(SRV).NumCommitted(PS))
	assert.False(t, views[0].Texture().BoundRoles().Has(metadata.ROLE_SHADER_RESOURCE))
	buffers, _, _ := f.rec.VertexBuffers(1)
	assert.Equal(t, handles(vb), buffers)
	h, _, _ := f.rec.IndexBuffer()
	assert.Equal(t, ib.NativeHandle(), h)
	assert.Equal(t, pso.NativeHandle(), f.rec.Pipeline(false))

	f.rec.ResetLog()
	require.NoError(t, f.ctx.Draw(draw))
	assert.Equal(t, []string{recorder.OpSetShaderResources, recorder.OpDrawIndexed}, ops(f.rec.Calls()))
}

func TestConcurrentUseIsDetected(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("busy")

	f.ctx.busy.Store(true)
	err := f.ctx.SetPipelineState(pso)
	require.ErrorIs(t, err, core.ErrContractViolation)
	assert.Contains(t, err.Error(), "another goroutine")
	require.ErrorIs(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}), core.ErrContractViolation)
	assert.Empty(t, f.rec.Calls())

	f.ctx.busy.Store(false)
	require.NoError(t, f.ctx.SetPipelineState(pso))
}

func TestStaleBindingIsDetected(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("stale", binding("g_Texture", PS, SRV, 0, 1))
	views := f.srvs(1)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, views[0])

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	require.NoError(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}))

	f.rec.Corrupt(SRV, PS, 0, metadata.Handle(9999))
	err := f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3})
	require.ErrorIs(t, err, core.ErrStaleBinding)
	var be *core.BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "PS", be.Stage)
	assert.Equal(t, 0, be.Slot)
	assert.Equal(t, 1, f.rec.Count(recorder.OpDraw))

	f.ctx.SetValidator(&FullValidator{HaltOnStale: true})
	assert.Panics(t, func() { f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}) })
	assert.False(t, f.ctx.busy.Load())

	f.ctx.SetValidator(NopValidator{})
	require.NoError(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}))
}

func TestIndirectArguments(t *testing.T) {
	f := newFixture(t)
	pso := f.computePipeline("indirect", binding("g_Args", CS, UAV, 0, 1))
	args := f.buffer("args", metadata.BIND_UNORDERED_ACCESS|metadata.BIND_INDIRECT_ARGS)
	uav := f.bufferView(args, metadata.VIEW_TYPE_UNORDERED_ACCESS)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, CS, UAV, 0, uav)

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	require.NoError(t, f.ctx.DispatchCompute(metadata.DispatchComputeAttribs{ThreadGroupCountX: 8, ThreadGroupCountY: 1, ThreadGroupCountZ: 1}))
	assert.Equal(t, handles(uav), f.rec.Slots(CS, UAV, 1))
	assert.Equal(t, pso.NativeHandle(), f.rec.Pipeline(true))
	assert.Equal(t, f.cs.NativeHandle(), f.rec.Shader(CS))

	require.NoError(t, f.ctx.DispatchCompute(metadata.DispatchComputeAttribs{IndirectAttribs: args}))
	// the arguments are not readable through a UAV during the indirect dispatch
	assert.Equal(t, handles(nil), f.rec.Slots(CS, UAV, 1))
	assert.Equal(t, 1, f.rec.Count(recorder.OpDispatchIndirect))
	stats := f.ctx.TakeStats()
	assert.Equal(t, uint64(2), stats.Dispatches)

	plain := f.buffer("plain", metadata.BIND_UNORDERED_ACCESS)
	err := f.ctx.DispatchCompute(metadata.DispatchComputeAttribs{IndirectAttribs: plain})
	require.ErrorIs(t, err, core.ErrContractViolation)
	require.ErrorIs(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}), core.ErrContractViolation)
}

func TestConflictingRoleNeedsTransition(t *testing.T) {
	f := newFixture(t)
	pso := f.computePipeline("rw",
		binding("g_Input", CS, SRV, 0, 1),
		binding("g_Output", CS, UAV, 0, 1),
	)
	tex := f.texture("rw", metadata.BIND_SHADER_RESOURCE|metadata.BIND_UNORDERED_ACCESS)
	srv := f.view(tex, metadata.VIEW_TYPE_SHADER_RESOURCE)
	uav := f.view(tex, metadata.VIEW_TYPE_UNORDERED_ACCESS)
	other := f.srvs(1)[0]

	first := pso.CreateShaderResourceBinding()
	f.set(first, CS, SRV, 0, srv)
	f.set(first, CS, UAV, 0, f.view(f.texture("out", metadata.BIND_UNORDERED_ACCESS), metadata.VIEW_TYPE_UNORDERED_ACCESS))
	second := pso.CreateShaderResourceBinding()
	f.set(second, CS, SRV, 0, other)
	f.set(second, CS, UAV, 0, uav)

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(first, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	err := f.ctx.CommitShaderResources(second, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE)
	require.ErrorIs(t, err, core.ErrContractViolation)
	var be *core.BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "CS", be.Stage)

	require.NoError(t, f.ctx.CommitShaderResources(second, metadata.COMMIT_SHADER_RESOURCES_FLAG_TRANSITION_RESOURCES))
	assert.Equal(t, handles(other), f.rec.Slots(CS, SRV, 1))
	assert.Equal(t, handles(uav), f.rec.Slots(CS, UAV, 1))
	assert.Equal(t, metadata.ROLE_UNORDERED_ACCESS, tex.BoundRoles())
	require.NoError(t, f.ctx.DispatchCompute(metadata.DispatchComputeAttribs{ThreadGroupCountX: 1, ThreadGroupCountY: 1, ThreadGroupCountZ: 1}))
}

func TestResolveChecksObjectTypes(t *testing.T) {
	f := newFixture(t)
	pso := f.pipeline("typed",
		binding("g_Constants", PS, CB, 0, 1),
		binding("g_Texture", PS, SRV, 0, 1),
	)
	views := f.srvs(1)
	vertexOnly := f.buffer("vertex-only", metadata.BIND_VERTEX_BUFFER)

	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, CB, 0, vertexOnly)
	f.set(srb, PS, SRV, 0, views[0])
	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.ErrorIs(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE), core.ErrContractViolation)

	f.set(srb, PS, CB, 0, f.buffer("constants", metadata.BIND_UNIFORM_BUFFER))
	f.set(srb, PS, SRV, 0, f.ps)
	require.ErrorIs(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE), core.ErrContractViolation)
	assert.Empty(t, f.rec.CallsOf(recorder.OpSetConstantBuffers))
}

func TestStaticBindingsComeFromThePipeline(t *testing.T) {
	f := newFixture(t)
	layout := []metadata.ResourceBinding{
		binding("g_Texture", PS, SRV, 0, 1),
		{Name: "g_Sampler", Stage: PS, Category: SMP, Slot: 2, Count: 1, Static: true},
	}
	pso := f.pipeline("static", layout...)
	sampler, err := f.res.CreateSampler("point")
	require.NoError(t, err)
	require.NoError(t, pso.SetStaticResource(PS, SMP, 2, sampler))
	views := f.srvs(1)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, views[0])

	require.NoError(t, f.ctx.SetPipelineState(pso))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	assert.Equal(t, handles(nil, nil, sampler), f.rec.Slots(PS, SMP, 3))
}

func TestPipelineChangeDropsIncompatibleBinding(t *testing.T) {
	f := newFixture(t)
	a := f.pipeline("a", binding("g_Texture", PS, SRV, 0, 1))
	b := f.pipeline("b", binding("g_Textures", PS, SRV, 0, 2))
	views := f.srvs(1)
	srb := a.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, views[0])

	refs := a.RefCount()
	require.NoError(t, f.ctx.SetPipelineState(a))
	require.NoError(t, f.ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE))
	assert.Equal(t, refs+1, a.RefCount())

	require.NoError(t, f.ctx.SetPipelineState(b))
	assert.Equal(t, refs, a.RefCount())
	require.ErrorIs(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}), core.ErrContractViolation)

	f.rec.ResetLog()
	require.NoError(t, f.ctx.SetPipelineState(b))
	assert.Empty(t, f.rec.Calls())
}

func TestNativeFailureIsWrapped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctx.SetPipelineState(f.pipeline("fail")))

	boom := errors.New("device removed")
	f.rec.FailNext(recorder.OpDraw, boom)
	err := f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3})
	require.ErrorIs(t, err, core.ErrNativeAPIFailure)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, f.ctx.Stats().Draws)

	require.NoError(t, f.ctx.Draw(metadata.DrawAttribs{NumVertices: 3}))
	assert.Equal(t, uint64(1), f.ctx.Stats().Draws)
}

func TestClearViewsValidateTheirType(t *testing.T) {
	f := newFixture(t)
	tex := f.texture("color", metadata.BIND_RENDER_TARGET|metadata.BIND_SHADER_RESOURCE)
	rtv := f.view(tex, metadata.VIEW_TYPE_RENDER_TARGET)
	srv := f.view(tex, metadata.VIEW_TYPE_SHADER_RESOURCE)

	require.NoError(t, f.ctx.ClearRenderTarget(rtv, [4]float32{0, 0, 0, 1}))
	assert.Equal(t, 1, f.rec.Count(recorder.OpClearRenderTarget))
	require.ErrorIs(t, f.ctx.ClearRenderTarget(srv, [4]float32{}), core.ErrContractViolation)
	require.ErrorIs(t, f.ctx.ClearDepthStencil(rtv, metadata.CLEAR_DEPTH_FLAG, 1, 0), core.ErrContractViolation)
	require.ErrorIs(t, f.ctx.SetRenderTargets([]metadata.TextureView{srv}, nil), core.ErrContractViolation)
}

func TestImmediateOnlyOperations(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctx.FinishCommandList()
	require.ErrorIs(t, err, core.ErrContractViolation)
	require.ErrorIs(t, f.ctx.ExecuteCommandList(nil), core.ErrContractViolation)
	require.NoError(t, f.ctx.Flush())
	assert.Equal(t, 1, f.rec.Count(recorder.OpFlush))
}
