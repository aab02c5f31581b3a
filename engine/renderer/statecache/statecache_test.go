package statecache

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuns(t *testing.T) {
	for _, tc := range []struct {
		name  string
		slots []int
		runs  []SlotRange[int]
		span  []SlotRange[int]
	}{
		{"empty", nil, nil, nil},
		{"single", []int{3}, []SlotRange[int]{NewRange(3, 3)}, []SlotRange[int]{NewRange(3, 3)}},
		{"contiguous", []int{1, 2, 3}, []SlotRange[int]{NewRange(1, 3)}, []SlotRange[int]{NewRange(1, 3)}},
		{"gap", []int{0, 1, 4, 6, 7}, []SlotRange[int]{NewRange(0, 1), NewRange(4, 4), NewRange(6, 7)}, []SlotRange[int]{NewRange(0, 7)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.runs, Runs(tc.slots))
			assert.Equal(t, tc.span, Span(tc.slots))
		})
	}
}

func TestSlotRange(t *testing.T) {
	r := EmptyRange[uint32]()
	assert.True(t, r.IsEmpty())
	assert.Equal(t, uint32(0), r.Len())
	assert.False(t, r.Contains(0))

	r.Add(5)
	r.Add(2)
	r.Add(4)
	assert.Equal(t, NewRange[uint32](2, 5), r)
	assert.Equal(t, uint32(4), r.Len())
	assert.True(t, r.Contains(3))
}

func TestSlotTableNumCommitted(t *testing.T) {
	tbl := NewSlotTable(metadata.CATEGORY_SHADER_RESOURCE, 8)
	ps := metadata.SHADER_TYPE_PIXEL

	tbl.Set(ps, 2, Binding{View: 10, Resource: 1})
	tbl.Set(ps, 5, Binding{View: 11, Resource: 2})
	assert.Equal(t, 6, tbl.NumCommitted(ps))
	assert.Equal(t, 0, tbl.NumCommitted(metadata.SHADER_TYPE_VERTEX))
	assert.True(t, tbl.IsBound(ps, 5, 11))

	tbl.Clear(ps, 5)
	assert.Equal(t, 6, tbl.NumCommitted(ps))
	tbl.TrimNumCommitted(ps)
	assert.Equal(t, 3, tbl.NumCommitted(ps))
	require.NoError(t, tbl.Check())

	tbl.ResetStage(ps)
	assert.Equal(t, 0, tbl.NumCommitted(ps))
	assert.True(t, tbl.Get(ps, 2).IsNull())
}

func TestSlotTableStagesAreIndependent(t *testing.T) {
	tbl := NewSlotTable(metadata.CATEGORY_CONSTANT_BUFFER, 4)
	tbl.Set(metadata.SHADER_TYPE_VERTEX, 3, Binding{View: 1, Resource: 1})
	assert.True(t, tbl.Get(metadata.SHADER_TYPE_PIXEL, 0).IsNull())
	assert.Len(t, tbl.Stage(metadata.SHADER_TYPE_VERTEX), 4)

	// a stage slice cannot be grown into the next stage
	s := tbl.Stage(metadata.SHADER_TYPE_VERTEX)
	_ = append(s, Binding{View: 9, Resource: 9})
	assert.True(t, tbl.Get(metadata.SHADER_TYPE_PIXEL, 0).IsNull())
}

func TestSlotTableFindResource(t *testing.T) {
	tbl := NewSlotTable(metadata.CATEGORY_SHADER_RESOURCE, 8)
	ps := metadata.SHADER_TYPE_PIXEL
	tbl.Set(ps, 0, Binding{View: 10, Resource: 1})
	tbl.Set(ps, 3, Binding{View: 11, Resource: 1})
	tbl.Set(ps, 4, Binding{View: 12, Resource: 2})

	var found []int
	tbl.FindResource(ps, 1, func(slot int) { found = append(found, slot) })
	assert.Equal(t, []int{0, 3}, found)

	found = nil
	tbl.FindResource(ps, metadata.NullHandle, func(slot int) { found = append(found, slot) })
	assert.Empty(t, found)
}

func TestSlotTableCheck(t *testing.T) {
	tbl := NewSlotTable(metadata.CATEGORY_UNORDERED_ACCESS, 4)
	tbl.Set(metadata.SHADER_TYPE_COMPUTE, 1, Binding{View: 3})
	require.Error(t, tbl.Check())

	tbl.Reset()
	require.NoError(t, tbl.Check())
	// write behind the bookkeeping's back
	tbl.slots[int(metadata.SHADER_TYPE_COMPUTE)*4+2] = Binding{View: 1, Resource: 1}
	require.Error(t, tbl.Check())
}

func TestCacheVertexBuffers(t *testing.T) {
	c := New(DefaultLimits())
	assert.False(t, c.VertexBuffersUpToDate())

	c.SetVertexBuffers([]VertexBufferSlot{{Buffer: 1, Stride: 16}, {Buffer: 2, Stride: 32, Offset: 8}, {}})
	assert.True(t, c.VertexBuffersUpToDate())
	assert.Equal(t, 2, c.NumVertexBuffers())
	assert.Equal(t, VertexBufferSlot{Buffer: 2, Stride: 32, Offset: 8}, c.VertexBuffer(1))

	var found []int
	c.FindVertexBuffer(2, func(slot int) { found = append(found, slot) })
	assert.Equal(t, []int{1}, found)

	c.ClearVertexBuffer(1)
	assert.Equal(t, 1, c.NumVertexBuffers())
	assert.False(t, c.VertexBuffersUpToDate())
	require.NoError(t, c.Check())
}

func TestCacheRenderTargets(t *testing.T) {
	c := New(DefaultLimits())
	rtvs := []Binding{{View: 10, Resource: 1}, {View: 11, Resource: 2}}
	dsv := Binding{View: 20, Resource: 3}
	c.SetRenderTargets(rtvs, dsv)

	assert.True(t, c.RenderTargetsMatch(rtvs, dsv))
	assert.False(t, c.RenderTargetsMatch(rtvs[:1], dsv))
	assert.False(t, c.RenderTargetsMatch(rtvs, Binding{}))

	var found []int
	c.FindRenderTarget(2, func(slot int) { found = append(found, slot) })
	assert.Equal(t, []int{1}, found)

	c.SetRenderTargets(nil, Binding{})
	assert.Equal(t, 0, c.NumRenderTargets())
	assert.True(t, c.RenderTarget(1).IsNull())
}

func TestCacheTopologyZeroValueIsTracked(t *testing.T) {
	c := New(DefaultLimits())
	_, ok := c.Topology()
	assert.False(t, ok)

	c.SetTopology(gputypes.PrimitiveTopologyTriangleList)
	topo, ok := c.Topology()
	assert.True(t, ok)
	assert.Equal(t, gputypes.PrimitiveTopologyTriangleList, topo)
}

func TestCacheFixedFunctionState(t *testing.T) {
	c := New(DefaultLimits())
	assert.False(t, c.BlendStateMatches(metadata.NullHandle, [4]float32{}, 0))
	c.SetBlendState(metadata.NullHandle, [4]float32{}, 0)
	assert.True(t, c.BlendStateMatches(metadata.NullHandle, [4]float32{}, 0))
	assert.False(t, c.BlendStateMatches(metadata.NullHandle, [4]float32{1, 1, 1, 1}, 0))

	vp := []metadata.Viewport{{Width: 640, Height: 480, MaxDepth: 1}}
	assert.False(t, c.ViewportsMatch(vp))
	c.SetViewports(vp)
	assert.True(t, c.ViewportsMatch(vp))
	vp[0].Width = 320
	assert.False(t, c.ViewportsMatch(vp))
}

func TestCacheReleaseShaderResourcesKeepsLongLivedBindings(t *testing.T) {
	c := New(DefaultLimits())
	c.Table(metadata.CATEGORY_SHADER_RESOURCE).Set(metadata.SHADER_TYPE_PIXEL, 0, Binding{View: 10, Resource: 1})
	c.Table(metadata.CATEGORY_SAMPLER).Set(metadata.SHADER_TYPE_PIXEL, 0, Binding{View: 5, Resource: 5})
	c.SetVertexBuffers([]VertexBufferSlot{{Buffer: 2, Stride: 12}})
	c.SetIndexBuffer(IndexBufferBinding{Buffer: 3, Format: gputypes.IndexFormatUint16})
	c.SetPipeline(7)

	c.ReleaseShaderResources()
	assert.Equal(t, 0, c.Table(metadata.CATEGORY_SHADER_RESOURCE).NumCommitted(metadata.SHADER_TYPE_PIXEL))
	assert.Equal(t, 0, c.Table(metadata.CATEGORY_SAMPLER).NumCommitted(metadata.SHADER_TYPE_PIXEL))
	assert.Equal(t, 1, c.NumVertexBuffers())
	assert.Equal(t, metadata.Handle(3), c.IndexBuffer().Buffer)
	assert.Equal(t, metadata.Handle(7), c.Pipeline())
}

func TestCacheReset(t *testing.T) {
	c := New(DefaultLimits())
	c.Table(metadata.CATEGORY_CONSTANT_BUFFER).Set(metadata.SHADER_TYPE_VERTEX, 1, Binding{View: 4, Resource: 4})
	c.SetVertexBuffers([]VertexBufferSlot{{Buffer: 2, Stride: 12}})
	c.SetIndexBuffer(IndexBufferBinding{Buffer: 3, Format: gputypes.IndexFormatUint32})
	c.SetRenderTargets([]Binding{{View: 10, Resource: 1}}, Binding{})
	c.SetShader(metadata.SHADER_TYPE_VERTEX, 8)
	c.SetTopology(gputypes.PrimitiveTopologyLineList)
	assert.False(t, c.IsEmpty())

	c.Reset()
	assert.True(t, c.IsEmpty())
	assert.False(t, c.VertexBuffersUpToDate())
	assert.False(t, c.IndexBufferUpToDate())
	require.NoError(t, c.Check())
}

func TestCacheCheckIndexFormatWithoutBuffer(t *testing.T) {
	c := New(DefaultLimits())
	c.SetIndexBuffer(IndexBufferBinding{Format: gputypes.IndexFormatUint16})
	require.Error(t, c.Check())
}
