package statecache

import "golang.org/x/exp/constraints"

// SlotRange is an inclusive range of slot indices. The zero value is not
// empty; use EmptyRange.
type SlotRange[T constraints.Integer] struct {
	Min T
	Max T
	set bool
}

func EmptyRange[T constraints.Integer]() SlotRange[T] {
	return SlotRange[T]{}
}

// NewRange returns [lo, hi]. hi must not be lower than lo.
func NewRange[T constraints.Integer](lo, hi T) SlotRange[T] {
	return SlotRange[T]{Min: lo, Max: hi, set: true}
}

func (r SlotRange[T]) IsEmpty() bool {
	return !r.set
}

// Add grows the range to include v.
func (r *SlotRange[T]) Add(v T) {
	if !r.set {
		r.Min, r.Max, r.set = v, v, true
		return
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// Len is the number of slots covered, 0 when empty.
func (r SlotRange[T]) Len() T {
	if !r.set {
		return 0
	}
	return r.Max - r.Min + 1
}

func (r SlotRange[T]) Contains(v T) bool {
	return r.set && v >= r.Min && v <= r.Max
}

// Runs splits ascending slot indices into maximal runs of consecutive slots.
func Runs[T constraints.Integer](sorted []T) []SlotRange[T] {
	var runs []SlotRange[T]
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1]+1 {
			runs[len(runs)-1].Max = v
			continue
		}
		runs = append(runs, NewRange(v, v))
	}
	return runs
}

// Span returns the single range covering every index.
func Span[T constraints.Integer](sorted []T) []SlotRange[T] {
	r := EmptyRange[T]()
	for _, v := range sorted {
		r.Add(v)
	}
	if r.IsEmpty() {
		return nil
	}
	return []SlotRange[T]{r}
}
