package statecache

import (
	"fmt"

	"github.com/spaghettifunk/rhi/engine/renderer/metadata"
)

// Binding is what a slot holds: the native view bound to the context and the
// native resource it was created from. Both are null or neither is.
type Binding struct {
	View     metadata.Handle
	Resource metadata.Handle
}

func (b Binding) IsNull() bool {
	return b.View == metadata.NullHandle && b.Resource == metadata.NullHandle
}

// SlotTable records, for one resource category, what is bound to every slot
// of every shader stage. All stages share one fixed backing array.
type SlotTable struct {
	category metadata.ResourceCategory
	capacity int
	slots    []Binding
	// Per stage, one past the highest slot that may be non-null.
	numCommitted [metadata.NUM_SHADER_TYPES]int
}

func NewSlotTable(category metadata.ResourceCategory, capacity int) *SlotTable {
	return &SlotTable{
		category: category,
		capacity: capacity,
		slots:    make([]Binding, capacity*metadata.NUM_SHADER_TYPES),
	}
}

func (t *SlotTable) Category() metadata.ResourceCategory {
	return t.category
}

// Capacity is the number of slots per stage.
func (t *SlotTable) Capacity() int {
	return t.capacity
}

// Stage returns the slots of one stage. The slice aliases the table.
func (t *SlotTable) Stage(stage metadata.ShaderType) []Binding {
	base := int(stage) * t.capacity
	return t.slots[base : base+t.capacity : base+t.capacity]
}

func (t *SlotTable) Get(stage metadata.ShaderType, slot int) Binding {
	return t.slots[int(stage)*t.capacity+slot]
}

// IsBound reports whether view is what slot of stage holds.
func (t *SlotTable) IsBound(stage metadata.ShaderType, slot int, view metadata.Handle) bool {
	return t.Get(stage, slot).View == view
}

// Set records b in a slot. A null binding does not lower NumCommitted, call
// TrimNumCommitted once a batch of clears is done.
func (t *SlotTable) Set(stage metadata.ShaderType, slot int, b Binding) {
	t.slots[int(stage)*t.capacity+slot] = b
	if !b.IsNull() && slot >= t.numCommitted[stage] {
		t.numCommitted[stage] = slot + 1
	}
}

func (t *SlotTable) Clear(stage metadata.ShaderType, slot int) {
	t.Set(stage, slot, Binding{})
}

// NumCommitted is one past the highest slot of stage that may be bound.
func (t *SlotTable) NumCommitted(stage metadata.ShaderType) int {
	return t.numCommitted[stage]
}

// TrimNumCommitted lowers NumCommitted past trailing null slots.
func (t *SlotTable) TrimNumCommitted(stage metadata.ShaderType) {
	slots := t.Stage(stage)
	n := t.numCommitted[stage]
	for n > 0 && slots[n-1].IsNull() {
		n--
	}
	t.numCommitted[stage] = n
}

// FindResource calls fn for every slot of stage holding resource, in slot order.
func (t *SlotTable) FindResource(stage metadata.ShaderType, resource metadata.Handle, fn func(slot int)) {
	if resource == metadata.NullHandle {
		return
	}
	slots := t.Stage(stage)
	for slot := 0; slot < t.numCommitted[stage]; slot++ {
		if slots[slot].Resource == resource {
			fn(slot)
		}
	}
}

// ResetStage clears every slot of one stage.
func (t *SlotTable) ResetStage(stage metadata.ShaderType) {
	clear(t.Stage(stage))
	t.numCommitted[stage] = 0
}

func (t *SlotTable) Reset() {
	clear(t.slots)
	t.numCommitted = [metadata.NUM_SHADER_TYPES]int{}
}

// Check verifies the table invariants: views and resources are null
// together and nothing is bound at or past NumCommitted.
func (t *SlotTable) Check() error {
	for s := 0; s < metadata.NUM_SHADER_TYPES; s++ {
		stage := metadata.ShaderType(s)
		slots := t.Stage(stage)
		if t.numCommitted[stage] > t.capacity {
			return fmt.Errorf("%s %s: %d committed slots exceed capacity %d", stage, t.category, t.numCommitted[stage], t.capacity)
		}
		for slot, b := range slots {
			if (b.View == metadata.NullHandle) != (b.Resource == metadata.NullHandle) {
				return fmt.Errorf("%s %s slot %d: view %#x and resource %#x must be null together", stage, t.category, slot, b.View, b.Resource)
			}
			if slot >= t.numCommitted[stage] && !b.IsNull() {
				return fmt.Errorf("%s %s slot %d: bound past the %d committed slots", stage, t.category, slot, t.numCommitted[stage])
			}
		}
	}
	return nil
}
