package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3)
	assert.True(t, rq.IsEmpty())
	assert.Equal(t, 3, rq.Cap())

	for i := 1; i <= 3; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.True(t, rq.IsFull())
	require.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// wraps around
	require.NoError(t, rq.Enqueue(4))
	assert.Equal(t, 3, rq.Len())
	for _, want := range []int{2, 3, 4} {
		v, err = rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, err = rq.Dequeue()
	require.ErrorIs(t, err, ErrQueueEmpty)
	_, err = rq.Peek()
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueReleasesDequeued(t *testing.T) {
	rq := NewRingQueue[*int](1)
	x := 7
	require.NoError(t, rq.Enqueue(&x))
	_, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, rq.data[0])
}
