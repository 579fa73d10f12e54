// Package flow ties the request store, the level stack and the event
// monitor of one arbitration scope together behind a single lock.
package flow

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/alertflow/internal/display"
	"github.com/jmylchreest/alertflow/internal/model"
	"github.com/jmylchreest/alertflow/internal/monitor"
	"github.com/jmylchreest/alertflow/internal/store"
)

// DefaultDisappearingDelay is the wait enforced before a slot may show a
// different request.
const DefaultDisappearingDelay = 300 * time.Millisecond

// Level is the handle of a nesting level. The root level is 0.
type Level int

// Options configures a Scope.
type Options struct {
	// Delay is the disappearing delay. Zero means DefaultDisappearingDelay;
	// use a negative value for no delay at all.
	Delay time.Duration
	// LingerOnDismiss applies the disappearing delay after a dismissal too,
	// not only when a visible request is replaced.
	LingerOnDismiss bool
	// FatalPolicy handles fatal inconsistencies nobody observes. The zero
	// value is monitor.FatalDefault, which follows the build.
	FatalPolicy monitor.FatalPolicy
	// Clock schedules the delay timers. Nil means display.SystemClock.
	Clock display.Clock
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) delay() time.Duration {
	switch {
	case o.Delay == 0:
		return DefaultDisappearingDelay
	case o.Delay < 0:
		return 0
	default:
		return o.Delay
	}
}

// Errors returned by TrySubmit.
var (
	ErrScopeClosed = flowError("scope is closed")
	ErrRejected    = flowError("request rejected")
	ErrDuplicate   = flowError("request already pending")
)

type flowError string

func (e flowError) Error() string {
	return string(e)
}

type resolution struct {
	request *model.Request
	key     string
}

// delivery is what one mutation hands to observers and callbacks.
type delivery struct {
	events      []monitor.Event
	cancels     []*model.Request
	resolutions []resolution
}

// Scope is one arbitration context. Every mutation runs under the scope's
// lock. Events, cancellations and action callbacks produced by a mutation
// are delivered after the lock is released, so they may call back into the
// scope. Deliveries keep the order of the mutations that produced them,
// even when several goroutines mutate the scope.
type Scope struct {
	name    string
	monitor *monitor.Monitor
	clock   display.Clock
	delay   time.Duration
	linger  bool
	logger  *slog.Logger

	mu          sync.Mutex
	store       *store.Store
	stack       *display.Stack
	timers      map[*display.Slot]display.Timer
	outbox      monitor.Buffer
	cancels     []*model.Request
	resolutions []resolution
	closed      bool

	// queued deliveries, drained by one goroutine at a time
	queue      []delivery
	delivering bool
}

// NewScope creates a scope called name with only the root level.
func NewScope(name string, opts Options) *Scope {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = display.SystemClock{}
	}

	s := &Scope{
		name:    name,
		monitor: monitor.New(opts.FatalPolicy, logger),
		clock:   clock,
		delay:   opts.delay(),
		linger:  opts.LingerOnDismiss,
		logger:  logger.With("scope", name),
		stack:   display.NewStack(),
		timers:  make(map[*display.Slot]display.Timer),
	}
	s.outbox.Now = clock.Now
	s.store = store.New(name, &s.outbox)
	return s
}

// Name returns the scope's name.
func (s *Scope) Name() string {
	return s.name
}

// Delay returns the disappearing delay in effect.
func (s *Scope) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// SetDelay changes the disappearing delay, with the same zero and negative
// conventions as Options.Delay. Timers already running keep their deadline.
func (s *Scope) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = Options{Delay: d}.delay()
}

// Subscribe attaches an observer to the scope's events. The returned
// function detaches it.
func (s *Scope) Subscribe(observerID string, o monitor.Observer) func() {
	return s.monitor.Subscribe(observerID, o)
}

// Submit hands r to the scope and returns its id. The id is empty and ok is
// false when the request was not accepted: a Weak request that lost to
// something already pending, an invalid or duplicate request, or a closed
// scope. Rejected requests are cancelled.
func (s *Scope) Submit(r *model.Request) (id string, ok bool) {
	id, err := s.TrySubmit(r)
	return id, err == nil
}

// TrySubmit is Submit with the reason for a rejection.
func (s *Scope) TrySubmit(r *model.Request) (string, error) {
	if r == nil {
		return "", model.ErrEmptyRequestID
	}
	if err := r.Validate(); err != nil {
		return "", err
	}

	var err error
	s.mutate(func() {
		if s.closed {
			s.cancels = append(s.cancels, r)
			err = ErrScopeClosed
			return
		}
		if s.store.Get(r.ID) != nil {
			err = ErrDuplicate
			return
		}
		if !s.store.Submit(r) {
			err = ErrRejected
			return
		}
		s.logger.Debug("request submitted", "id", r.ID, "tier", r.Tier, "title", r.Payload.Title)
		s.route()
	})
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// Withdraw removes a pending request. The request is cancelled. Unknown ids
// are ignored.
func (s *Scope) Withdraw(id string) {
	s.mutate(func() {
		r := s.store.Withdraw(id)
		if r == nil {
			return
		}
		s.logger.Debug("request withdrawn", "id", id)
		s.outbox.Record(monitor.Event{
			Kind:    monitor.KindCancelled,
			Scope:   s.name,
			Level:   s.stack.Depth() - 1,
			Request: r.Snapshot(),
		})
		s.cancels = append(s.cancels, r)
		s.route()
	})
}

// AddInterrupt raises the interrupt name for scopePath and returns its id.
// Raising the same pair again has no further effect.
func (s *Scope) AddInterrupt(scopePath, name string) string {
	in := model.NewInterrupt(scopePath, name)
	s.mutate(func() {
		if s.closed {
			return
		}
		if s.store.AddInterrupt(in) {
			s.logger.Debug("interrupt added", "id", in.ID, "source", in.Label())
			s.route()
		}
	})
	return in.ID
}

// RemoveInterrupt clears the interrupt with id. Unknown ids are ignored.
func (s *Scope) RemoveInterrupt(id string) {
	s.mutate(func() {
		if s.store.RemoveInterrupt(id) {
			s.logger.Debug("interrupt removed", "id", id)
			s.route()
		}
	})
}

// EnterLevel pushes a nesting level and returns its handle. Whatever the
// previous level showed is taken down and comes back when the new level
// exits.
func (s *Scope) EnterLevel() Level {
	var level Level
	s.mutate(func() {
		s.stopTimer(s.stack.Top())
		slot := s.stack.Push()
		level = Level(slot.Level())
		s.logger.Debug("level entered", "level", level)
		s.route()
	})
	return level
}

// ExitLevel pops level, which must be the innermost level. Exiting any
// other level, or the root, is a fatal inconsistency and changes nothing.
func (s *Scope) ExitLevel(level Level) {
	s.mutate(func() {
		top := s.stack.Depth() - 1
		if int(level) != top || level == 0 {
			s.fatal(fmt.Sprintf("exit level %d failed: not the top level %d", level, top))
			return
		}
		s.stopTimer(s.stack.Top())
		s.stack.Pop()
		s.logger.Debug("level exited", "level", level)
		s.route()
	})
}

// Depth returns the number of levels, including the root.
func (s *Scope) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Depth()
}

// CurrentVisible returns the payload rendered at level right now.
func (s *Scope) CurrentVisible(level Level) (model.Payload, bool) {
	r := s.VisibleRequest(level)
	if r == nil {
		return model.Payload{}, false
	}
	return r.Payload, true
}

// VisibleRequest returns a snapshot of the request rendered at level, or nil.
func (s *Scope) VisibleRequest(level Level) *model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.stack.At(int(level))
	if slot == nil {
		return nil
	}
	return slot.Visible().Snapshot()
}

// Dismiss acknowledges that the request id shown at level finished
// naturally. Dismissing at a level that is not the innermost one is a
// fatal inconsistency; dismissing an id that is no longer visible is
// ignored.
func (s *Scope) Dismiss(level Level, id string) {
	s.finish(level, id, model.ActionDismiss)
}

// Resolve reports that the user picked action key on the request id shown
// at level. The request's OnAction callback receives key, then the request
// is dismissed.
func (s *Scope) Resolve(level Level, id, key string) {
	s.finish(level, id, key)
}

func (s *Scope) finish(level Level, id, key string) {
	s.mutate(func() {
		if !s.stack.IsTop(int(level)) {
			s.fatal(fmt.Sprintf("dismiss at level %d failed: not the top level %d", level, s.stack.Depth()-1))
			return
		}

		slot := s.stack.Top()
		tr, ok := slot.Dismiss(id, s.linger)
		if !ok {
			s.logger.Debug("stale dismiss ignored", "id", id, "level", level)
			return
		}

		var r *model.Request
		if w := s.store.Winner(); w != nil && w.ID == id {
			r = s.store.PopTop()
		} else {
			r = s.store.Withdraw(id)
		}
		if r != nil {
			s.resolutions = append(s.resolutions, resolution{request: r, key: key})
		}
		s.logger.Debug("request finished", "id", id, "level", level, "action", key)

		if tr == display.TransitionExiting {
			s.scheduleExpire(slot)
		}
		s.route()
	})
}

// Status is a snapshot of a scope.
type Status struct {
	Name   string          `json:"name"`
	Depth  int             `json:"depth"`
	Levels []display.State `json:"levels"`
	Store  store.Snapshot  `json:"store"`
	Winner *model.Request  `json:"winner,omitempty"`
	Closed bool            `json:"closed"`
}

// Status returns a snapshot of the scope.
func (s *Scope) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Name:   s.name,
		Depth:  s.stack.Depth(),
		Levels: s.stack.States(),
		Store:  s.store.Snapshot(),
		Winner: s.store.Winner().Snapshot(),
		Closed: s.closed,
	}
}

// Close stops all timers and cancels every pending request. Later
// submissions are rejected with ErrScopeClosed.
func (s *Scope) Close() {
	s.mutate(func() {
		if s.closed {
			return
		}
		s.closed = true
		for slot, t := range s.timers {
			t.Stop()
			delete(s.timers, slot)
		}
		s.cancels = append(s.cancels, s.store.Drain()...)
		for level := s.stack.Depth() - 1; level >= 0; level-- {
			s.stack.At(level).Clear()
		}
		s.logger.Debug("scope closed")
	})
}

// mutate runs fn under the lock and then delivers what fn produced.
// If another call is already delivering, the batch is queued behind its
// work and that call delivers it. This includes a callback on this
// goroutine that mutates the scope again.
func (s *Scope) mutate(fn func()) {
	s.mu.Lock()
	fn()
	s.queue = append(s.queue, delivery{
		events:      s.outbox.Drain(),
		cancels:     append(s.cancels, s.store.TakeDiscarded()...),
		resolutions: s.resolutions,
	})
	s.cancels = nil
	s.resolutions = nil
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			// a panicking observer must not wedge later deliveries
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
		}
	}()
	s.drain()
	finished = true
}

// drain delivers queued batches in order until the queue is empty.
func (s *Scope) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.delivering = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.monitor.RecordAll(next.events)
		for _, r := range next.cancels {
			r.Cancel()
		}
		for _, res := range next.resolutions {
			res.request.Resolve(res.key)
		}
	}
}

// route hands the current winner to the innermost slot.
// Callers hold s.mu.
func (s *Scope) route() {
	slot := s.stack.Top()
	winner := s.store.Winner()

	switch slot.Present(winner) {
	case display.TransitionShown:
		s.shown(slot, winner)
	case display.TransitionExiting:
		s.logger.Debug("slot exiting", "level", slot.Level(), "next", winner)
		s.scheduleExpire(slot)
	}
}

// scheduleExpire arms the disappearing delay for slot's current
// generation. Callers hold s.mu.
func (s *Scope) scheduleExpire(slot *display.Slot) {
	s.stopTimer(slot)
	gen := slot.Generation()
	s.timers[slot] = s.clock.AfterFunc(s.delay, func() {
		s.expire(slot, gen)
	})
}

// expire runs when a disappearing delay elapsed. The winner is read again
// because it may have changed while the slot was exiting.
func (s *Scope) expire(slot *display.Slot, gen uint64) {
	s.mutate(func() {
		if slot.Generation() == gen {
			delete(s.timers, slot)
		}
		if s.closed || s.stack.At(slot.Level()) != slot || !s.stack.IsTop(slot.Level()) {
			return
		}

		winner := s.store.Winner()
		if slot.Expire(gen, winner) == display.TransitionShown {
			s.shown(slot, winner)
		}
	})
}

// stopTimer cancels the pending expiry of slot, if any. A timer that already
// fired is harmless because expire checks the generation.
func (s *Scope) stopTimer(slot *display.Slot) {
	if t, ok := s.timers[slot]; ok {
		t.Stop()
		delete(s.timers, slot)
	}
}

func (s *Scope) shown(slot *display.Slot, r *model.Request) {
	s.logger.Debug("request shown", "id", r.ID, "level", slot.Level(), "title", r.Payload.Title)
	s.outbox.Record(monitor.Event{
		Kind:    monitor.KindShown,
		Scope:   s.name,
		Level:   slot.Level(),
		Request: r.Snapshot(),
	})
}

func (s *Scope) fatal(message string) {
	s.logger.Debug("fatal inconsistency", "message", message)
	s.outbox.Record(monitor.Event{
		Kind:    monitor.KindFatalInconsistency,
		Scope:   s.name,
		Level:   s.stack.Depth() - 1,
		Message: message,
	})
}
