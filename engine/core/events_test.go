package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	var calls []string
	first, second := "first", "second"

	handler := func(handled bool) FnOnEvent {
		return func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool {
			calls = append(calls, listener.(string))
			return handled
		}
	}
	require.True(t, bus.Register(EVENT_CODE_BUFFER_DESTROYED, first, handler(false)))
	require.True(t, bus.Register(EVENT_CODE_BUFFER_DESTROYED, second, handler(true)))
	assert.False(t, bus.Register(EVENT_CODE_BUFFER_DESTROYED, first, handler(false)))

	assert.True(t, bus.Fire(EVENT_CODE_BUFFER_DESTROYED, nil, EventContext{}))
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.False(t, bus.Fire(EVENT_CODE_TEXTURE_DESTROYED, nil, EventContext{}))

	calls = nil
	require.True(t, bus.Unregister(EVENT_CODE_BUFFER_DESTROYED, second))
	assert.False(t, bus.Unregister(EVENT_CODE_BUFFER_DESTROYED, second))
	assert.False(t, bus.Fire(EVENT_CODE_BUFFER_DESTROYED, nil, EventContext{}))
	assert.Equal(t, []string{"first"}, calls)

	calls = nil
	bus.Shutdown()
	assert.False(t, bus.Fire(EVENT_CODE_BUFFER_DESTROYED, nil, EventContext{}))
	assert.Empty(t, calls)
}
