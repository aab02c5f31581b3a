package renderer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/spaghettifunk/rhi/engine/core"
	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
	"github.com/spaghettifunk/rhi/engine/renderer/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingPoolRecordsInParallel(t *testing.T) {
	f := newFixture(t)
	pool, err := f.dev.NewRecordingPool(2)
	require.NoError(t, err)
	defer pool.Shutdown()
	assert.Len(t, f.dev.DeferredContexts(), 2)

	pso := f.pipeline("parallel", binding("g_Texture", PS, SRV, 0, 1))
	views := f.srvs(1)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, PS, SRV, 0, views[0])

	draw := func(ctx *DeviceContext) error {
		if err := ctx.SetPipelineState(pso); err != nil {
			return err
		}
		if err := ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE); err != nil {
			return err
		}
		return ctx.Draw(metadata.DrawAttribs{NumVertices: 3})
	}
	require.NoError(t, pool.Record(draw, draw, draw))
	assert.Equal(t, 3, f.dev.PendingCommandLists())

	n, err := f.dev.ExecutePending()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, f.rec.Count(recorder.OpDraw))
	for _, ctx := range f.dev.DeferredContexts() {
		assert.True(t, ctx.Cache().IsEmpty())
	}
}

func TestRecordingPoolReportsFailures(t *testing.T) {
	f := newFixture(t)
	pool, err := f.dev.NewRecordingPool(1)
	require.NoError(t, err)
	defer pool.Shutdown()

	boom := errors.New("boom")
	err = pool.Record(
		func(ctx *DeviceContext) error { return boom },
		func(ctx *DeviceContext) error {
			// no pipeline bound
			return ctx.Draw(metadata.DrawAttribs{NumVertices: 3})
		},
		func(ctx *DeviceContext) error { return nil },
	)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, core.ErrContractViolation)
	// every job closes a list
	assert.Equal(t, 3, f.dev.PendingCommandLists())
}

func TestRecordingPoolShutdown(t *testing.T) {
	f := newFixture(t)
	_, err := f.dev.NewRecordingPool(0)
	require.ErrorIs(t, err, ErrNoWorkers)
	assert.EqualError(t, err, "attempting to create a recording pool with less than 1 worker")
	// more workers than deferred contexts
	_, err = f.dev.NewRecordingPool(3)
	require.ErrorIs(t, err, core.ErrContractViolation)

	f = newFixture(t)
	pool, err := f.dev.NewRecordingPool(1)
	require.NoError(t, err)
	pool.Shutdown()
	pool.Shutdown()
	require.ErrorIs(t, pool.Record(func(*DeviceContext) error { return nil }), ErrPoolClosed)
}

func TestRecordingPoolWithConcurrentDestroys(t *testing.T) {
	f := newFixture(t)
	pool, err := f.dev.NewRecordingPool(1)
	require.NoError(t, err)
	defer pool.Shutdown()

	pso := f.pipeline("churn", binding("g_Constants", VS, CB, 0, 1))
	cb := f.buffer("constants", metadata.BIND_UNIFORM_BUFFER)
	vb := f.buffer("vertices", metadata.BIND_VERTEX_BUFFER)
	srb := pso.CreateShaderResourceBinding()
	f.set(srb, VS, CB, 0, cb)

	const iterations = 200
	recorded := make(chan error, 1)
	go func() {
		recorded <- pool.Record(func(ctx *DeviceContext) error {
			for i := 0; i < iterations; i++ {
				if err := ctx.SetPipelineState(pso); err != nil {
					return err
				}
				if err := ctx.SetVertexBuffers(0, []metadata.Buffer{vb}, nil, metadata.SET_VERTEX_BUFFERS_FLAG_RESET); err != nil {
					return err
				}
				if err := ctx.CommitShaderResources(srb, metadata.COMMIT_SHADER_RESOURCES_FLAG_NONE); err != nil {
					return err
				}
				if err := ctx.Draw(metadata.DrawAttribs{NumVertices: 3}); err != nil {
					return err
				}
				if err := ctx.InvalidateState(); err != nil {
					return err
				}
			}
			return nil
		})
	}()

	for i := 0; i < iterations; i++ {
		b := f.buffer(fmt.Sprintf("transient-%d", i), metadata.BIND_UNIFORM_BUFFER|metadata.BIND_VERTEX_BUFFER)
		b.Release()
	}
	require.NoError(t, <-recorded)

	n, err := f.dev.ExecutePending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, iterations, f.rec.Count(recorder.OpDraw))
	for _, ctx := range f.dev.DeferredContexts() {
		assert.False(t, ctx.hasDestroyed())
		assert.True(t, ctx.Cache().IsEmpty())
	}
}
