package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPoolSerializesGroup(t *testing.T) {
	lp := NewLockPool()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lp.SafeCall(ResourceManagement, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)

	boom := errors.New("boom")
	require.ErrorIs(t, lp.SafeCall(ContextManagement, func() error { return boom }), boom)
}

func TestLockPoolQueueFamilies(t *testing.T) {
	lp := NewLockPool()
	err := lp.SafeQueueCall(0, func() error { return nil })
	require.ErrorIs(t, err, ErrContractViolation)

	lp.SetQueueFamily(0)
	ran := false
	require.NoError(t, lp.SafeQueueCall(0, func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}
