package core

import "sync"

// EventContext is the payload of a fired event.
type EventContext struct {
	// The object the event is about (a buffer, a texture, a context...).
	Object interface{}
	// Free-form values, interpretation depends on the code.
	U32 [4]uint32
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// A buffer is about to be destroyed.
	/* Context usage:
	 * metadata.Buffer buffer = data.Object;
	 */
	EVENT_CODE_BUFFER_DESTROYED SystemEventCode = 0x01

	// A texture is about to be destroyed.
	/* Context usage:
	 * metadata.Texture texture = data.Object;
	 */
	EVENT_CODE_TEXTURE_DESTROYED SystemEventCode = 0x02

	// A deferred context finished a command list.
	/* Context usage:
	 * metadata.CommandList list = data.Object;
	 */
	EVENT_CODE_COMMAND_LIST_FINISHED SystemEventCode = 0x03

	// The configuration was reloaded from disk.
	/* Context usage:
	 * *config.Config cfg = data.Object;
	 */
	EVENT_CODE_CONFIG_RELOADED SystemEventCode = 0x04

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled. A handled event is not passed to the
// listeners registered after this one.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener_inst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus routes events to registered listeners. One bus per device.
type EventBus struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listeners will not be registered again and will cause this to return false.
 * @param code The event code to listen for.
 * @param listener A listener instance. Can be nil.
 * @param onEvent The callback to be invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func (eb *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, e := range eb.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	eb.registered[code] = append(eb.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code.
 * @returns true if the listener was found and removed; otherwise false.
 */
func (eb *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	events := eb.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eb.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func (eb *EventBus) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	eb.mu.RLock()
	events := append([]*registeredEvent(nil), eb.registered[code]...)
	eb.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (eb *EventBus) Shutdown() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.registered = make(map[SystemEventCode][]*registeredEvent)
}
