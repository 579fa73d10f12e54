package display

// Stack is the ordered set of display slots, one per nesting level.
// Level 0 always exists. Only the top slot may show anything.
type Stack struct {
	slots []*Slot
}

// NewStack creates a stack holding the root level.
func NewStack() *Stack {
	return &Stack{slots: []*Slot{NewSlot(0)}}
}

// Depth returns the number of levels, including the root.
func (s *Stack) Depth() int {
	return len(s.slots)
}

// Top returns the slot of the innermost level.
func (s *Stack) Top() *Slot {
	return s.slots[len(s.slots)-1]
}

// IsTop reports whether level is the innermost level.
func (s *Stack) IsTop(level int) bool {
	return level == len(s.slots)-1
}

// At returns the slot for level, or nil if no such level exists.
func (s *Stack) At(level int) *Slot {
	if level < 0 || level >= len(s.slots) {
		return nil
	}
	return s.slots[level]
}

// Push enters a new level. Whatever the previous top showed is cleared;
// it is routed again once the new level exits.
func (s *Stack) Push() *Slot {
	s.Top().Clear()
	slot := NewSlot(len(s.slots))
	s.slots = append(s.slots, slot)
	return slot
}

// Pop exits the innermost level and returns its slot. The root level
// cannot be popped.
func (s *Stack) Pop() (*Slot, bool) {
	if len(s.slots) <= 1 {
		return nil, false
	}
	top := s.Top()
	top.Clear()
	s.slots = s.slots[:len(s.slots)-1]
	return top, true
}

// States returns a snapshot of every slot, root first.
func (s *Stack) States() []State {
	states := make([]State, len(s.slots))
	for i, slot := range s.slots {
		states[i] = slot.State()
	}
	return states
}
