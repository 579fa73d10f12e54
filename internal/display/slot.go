// Package display implements the per-level display slots that decide when
// an arbitration winner may actually become visible.
package display

import (
	"github.com/jmylchreest/alertflow/internal/model"
)

// Status represents the state of a display slot.
type Status int

const (
	// StatusIdle means nothing is shown.
	StatusIdle Status = iota
	// StatusShowing means a request is rendered.
	StatusShowing
	// StatusExiting means the previous request is being removed and
	// nothing is guaranteed to be rendered.
	StatusExiting
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusShowing:
		return "showing"
	case StatusExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition is the outcome of a slot operation.
type Transition int

const (
	// TransitionNone means the slot did not change.
	TransitionNone Transition = iota
	// TransitionShown means a request became visible.
	TransitionShown
	// TransitionExiting means the slot started exiting; the owner must
	// schedule Expire for the slot's current generation.
	TransitionExiting
	// TransitionIdle means the slot became idle.
	TransitionIdle
)

// String returns the string representation of Transition.
func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionShown:
		return "shown"
	case TransitionExiting:
		return "exiting"
	case TransitionIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Slot is the display state machine of a single level.
//
// Slot is not safe for concurrent use; its owner serializes access.
type Slot struct {
	level      int
	status     Status
	pending    *model.Request // latest winner routed to this slot
	visible    *model.Request // what the collaborator should render
	generation uint64         // bumped whenever a scheduled expiry becomes stale
}

// NewSlot creates an idle slot for level.
func NewSlot(level int) *Slot {
	return &Slot{level: level}
}

// Level returns the nesting depth of the slot.
func (s *Slot) Level() int {
	return s.level
}

// Status returns the current state.
func (s *Slot) Status() Status {
	return s.status
}

// Pending returns the latest winner routed to the slot.
func (s *Slot) Pending() *model.Request {
	return s.pending
}

// Visible returns the request that is rendered right now, or nil.
func (s *Slot) Visible() *model.Request {
	return s.visible
}

// Generation returns the current timer generation.
func (s *Slot) Generation() uint64 {
	return s.generation
}

// Present routes the arbitration winner r (nil for none) to the slot.
//
//	Idle    + r         -> Showing(r), immediately
//	Showing(a) + a      -> no change
//	Showing(a) + other  -> Exiting; visible is cleared, the next winner
//	                       is shown when Expire fires
//	Exiting + anything  -> no change besides remembering r
func (s *Slot) Present(r *model.Request) Transition {
	s.pending = r

	switch s.status {
	case StatusIdle:
		if r == nil {
			return TransitionNone
		}
		s.status = StatusShowing
		s.visible = r
		return TransitionShown

	case StatusShowing:
		if r != nil && s.visible != nil && r.ID == s.visible.ID {
			return TransitionNone
		}
		s.status = StatusExiting
		s.visible = nil
		s.generation++
		return TransitionExiting
	}

	return TransitionNone
}

// Expire completes an exit started for generation gen. winner must be the
// arbitration winner read at expiry time, not the one known when the timer
// was scheduled. Stale generations are ignored.
func (s *Slot) Expire(gen uint64, winner *model.Request) Transition {
	if s.status != StatusExiting || gen != s.generation {
		return TransitionNone
	}

	s.pending = winner
	if winner == nil {
		s.status = StatusIdle
		return TransitionIdle
	}
	s.status = StatusShowing
	s.visible = winner
	return TransitionShown
}

// Dismiss acknowledges that the visible request with id finished. It is
// ignored unless id is the visible request. With linger set the slot goes
// through Exiting instead of straight to Idle, so the next winner waits for
// the disappearing delay as well.
func (s *Slot) Dismiss(id string, linger bool) (Transition, bool) {
	if s.status != StatusShowing || s.visible == nil || s.visible.ID != id {
		return TransitionNone, false
	}

	s.visible = nil
	s.pending = nil
	if linger {
		s.status = StatusExiting
		s.generation++
		return TransitionExiting, true
	}
	s.status = StatusIdle
	return TransitionIdle, true
}

// Clear empties the slot immediately and invalidates any scheduled expiry.
func (s *Slot) Clear() {
	s.status = StatusIdle
	s.visible = nil
	s.pending = nil
	s.generation++
}

// State is a read-only view of a slot.
type State struct {
	Level      int            `json:"level"`
	Status     Status         `json:"status"`
	Visible    *model.Request `json:"visible,omitempty"`
	Pending    *model.Request `json:"pending,omitempty"`
	Generation uint64         `json:"generation"`
}

// State returns a snapshot of the slot. Requests are callback-free copies.
func (s *Slot) State() State {
	return State{
		Level:      s.level,
		Status:     s.status,
		Visible:    s.visible.Snapshot(),
		Pending:    s.pending.Snapshot(),
		Generation: s.generation,
	}
}
