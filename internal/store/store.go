// Package store holds the pending presentation requests and interrupts of
// one arbitration scope and decides which request is the current winner.
package store

import (
	"sort"

	"github.com/jmylchreest/alertflow/internal/model"
	"github.com/jmylchreest/alertflow/internal/monitor"
)

// Store manages the requests and interrupts of a single scope.
//
// Store is not safe for concurrent use. It is owned by a flow.Scope which
// serializes every call. Events are written to the Sink given to New, and
// requests that must be cancelled are queued until TakeDiscarded is called,
// so that no user callback runs while the owner holds its lock.
type Store struct {
	scope string

	byID        map[string]*model.Request
	strongOrder []string // prepend on insert, winner is the last element
	normalOrder []string // append on insert, winner is the last element
	weakID      string
	interrupts  map[string]model.Interrupt

	sink      monitor.Sink
	discarded []*model.Request
}

// Snapshot is a read-only view of the store's bookkeeping.
type Snapshot struct {
	StrongOrder []string          `json:"strong_order"`
	NormalOrder []string          `json:"normal_order"`
	WeakID      string            `json:"weak_id,omitempty"`
	Interrupts  []model.Interrupt `json:"interrupts,omitempty"`
	Pending     int               `json:"pending"`
}

// New creates an empty Store. A nil sink discards events.
func New(scope string, sink monitor.Sink) *Store {
	if sink == nil {
		sink = &monitor.Buffer{}
	}
	return &Store{
		scope:      scope,
		byID:       make(map[string]*model.Request),
		interrupts: make(map[string]model.Interrupt),
		sink:       sink,
	}
}

// Submit inserts r according to its tier and reports whether it was
// accepted. Weak requests are rejected unless the store is completely
// empty; a rejected request is queued for cancellation. Submitting an id
// that is already pending is ignored.
func (s *Store) Submit(r *model.Request) bool {
	if r == nil || r.Validate() != nil {
		return false
	}
	if _, exists := s.byID[r.ID]; exists {
		return false
	}

	switch r.Tier {
	case model.TierStrong:
		s.supersedeWeak(r)
		s.byID[r.ID] = r
		// A new Strong request waits underneath the ones already pending.
		s.strongOrder = append([]string{r.ID}, s.strongOrder...)

	case model.TierNormal:
		s.supersedeWeak(r)
		s.byID[r.ID] = r
		s.normalOrder = append(s.normalOrder, r.ID)
		if len(s.interrupts) > 0 {
			// Still queued; it becomes eligible once the interrupts clear.
			s.record(monitor.KindRejectedByInterrupt, r, nil, true)
		}

	case model.TierWeak:
		if kind, blockers, ok := s.weakBlocker(); ok {
			s.record(kind, r, blockers, kind == monitor.KindRejectedByInterrupt)
			s.discard(r)
			return false
		}
		s.byID[r.ID] = r
		s.weakID = r.ID
	}

	return true
}

// weakBlocker returns why a Weak request cannot be accepted right now.
func (s *Store) weakBlocker() (monitor.Kind, []*model.Request, bool) {
	if blockers := s.live(s.strongOrder); len(blockers) > 0 {
		return monitor.KindRejectedByStrongExisting, blockers, true
	}
	if len(s.interrupts) > 0 {
		return monitor.KindRejectedByInterrupt, nil, true
	}
	if blockers := s.live(s.normalOrder); len(blockers) > 0 {
		return monitor.KindRejectedByNormalExisting, blockers, true
	}
	if s.weakID != "" {
		if weak, ok := s.byID[s.weakID]; ok {
			return monitor.KindRejectedByWeakExisting, []*model.Request{weak}, true
		}
		s.weakID = ""
	}
	return 0, nil, false
}

// supersedeWeak destroys the live Weak request, if any, because by arrived.
func (s *Store) supersedeWeak(by *model.Request) {
	if s.weakID == "" {
		return
	}
	weak, ok := s.byID[s.weakID]
	s.weakID = ""
	if !ok {
		return
	}
	delete(s.byID, weak.ID)
	s.record(monitor.KindSuperseded, weak, []*model.Request{by}, false)
	s.discard(weak)
}

// Withdraw removes the request with id and returns it, or nil if no such
// request is pending. Order lists are pruned lazily by Winner.
func (s *Store) Withdraw(id string) *model.Request {
	r, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	return r
}

// AddInterrupt registers in. It returns false if an interrupt with the
// same id was already active.
func (s *Store) AddInterrupt(in model.Interrupt) bool {
	if _, exists := s.interrupts[in.ID]; exists {
		return false
	}
	s.interrupts[in.ID] = in
	return true
}

// RemoveInterrupt removes the interrupt with id and reports whether it was
// active.
func (s *Store) RemoveInterrupt(id string) bool {
	if _, exists := s.interrupts[id]; !exists {
		return false
	}
	delete(s.interrupts, id)
	return true
}

// PopTop removes the current winner from the structure it was found in and
// returns it. It returns nil when there is no winner.
func (s *Store) PopTop() *model.Request {
	winner := s.Winner()
	if winner == nil {
		return nil
	}

	switch {
	case len(s.strongOrder) > 0:
		s.strongOrder = s.strongOrder[:len(s.strongOrder)-1]
	case len(s.normalOrder) > 0:
		s.normalOrder = s.normalOrder[:len(s.normalOrder)-1]
	default:
		s.weakID = ""
	}
	delete(s.byID, winner.ID)
	return winner
}

// Winner returns the request that should be visible right now, or nil.
//
// Resolution, first match wins: the oldest pending Strong request; nothing
// while any interrupt is active; the newest Normal request; the Weak
// request. Ids that no longer resolve to a pending request are dropped on
// the way.
func (s *Store) Winner() *model.Request {
	for len(s.strongOrder) > 0 {
		last := len(s.strongOrder) - 1
		if r, ok := s.byID[s.strongOrder[last]]; ok {
			return r
		}
		s.strongOrder = s.strongOrder[:last]
	}

	if len(s.interrupts) > 0 {
		return nil
	}

	for len(s.normalOrder) > 0 {
		last := len(s.normalOrder) - 1
		if r, ok := s.byID[s.normalOrder[last]]; ok {
			return r
		}
		s.normalOrder = s.normalOrder[:last]
	}

	if s.weakID != "" {
		if r, ok := s.byID[s.weakID]; ok {
			return r
		}
		s.weakID = ""
	}
	return nil
}

// Get returns the pending request with id, or nil.
func (s *Store) Get(id string) *model.Request {
	return s.byID[id]
}

// Len returns the number of pending requests.
func (s *Store) Len() int {
	return len(s.byID)
}

// HasInterrupts reports whether any interrupt is active.
func (s *Store) HasInterrupts() bool {
	return len(s.interrupts) > 0
}

// Interrupts returns the active interrupts ordered by the time they were
// added.
func (s *Store) Interrupts() []model.Interrupt {
	if len(s.interrupts) == 0 {
		return nil
	}
	out := make([]model.Interrupt, 0, len(s.interrupts))
	for _, in := range s.interrupts {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

// Snapshot returns a copy of the store's bookkeeping.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		StrongOrder: append([]string(nil), s.strongOrder...),
		NormalOrder: append([]string(nil), s.normalOrder...),
		WeakID:      s.weakID,
		Interrupts:  s.Interrupts(),
		Pending:     len(s.byID),
	}
}

// Drain removes every pending request and returns them. Interrupts are
// kept.
func (s *Store) Drain() []*model.Request {
	out := make([]*model.Request, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	s.byID = make(map[string]*model.Request)
	s.strongOrder = nil
	s.normalOrder = nil
	s.weakID = ""
	return out
}

// TakeDiscarded returns the requests rejected or superseded since the last
// call. Their OnCancel callbacks have not run yet.
func (s *Store) TakeDiscarded() []*model.Request {
	out := s.discarded
	s.discarded = nil
	return out
}

func (s *Store) discard(r *model.Request) {
	s.discarded = append(s.discarded, r)
}

// live resolves ids to pending requests, skipping dangling ids.
func (s *Store) live(ids []string) []*model.Request {
	var out []*model.Request
	for _, id := range ids {
		if r, ok := s.byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) record(kind monitor.Kind, r *model.Request, blockers []*model.Request, withInterrupts bool) {
	e := monitor.Event{
		Kind:     kind,
		Scope:    s.scope,
		Request:  r.Snapshot(),
		Blockers: monitor.Snapshots(blockers),
	}
	if withInterrupts {
		e.Interrupts = s.Interrupts()
	}
	s.sink.Record(e)
}
