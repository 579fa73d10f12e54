package monitor

import (
	"log/slog"
	"sync"
	"time"
)

// Observer receives arbitration events.
// Observers are called synchronously and must not block or call back into
// the scope that produced the event on the same goroutine.
type Observer interface {
	ReceiveEvent(e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e Event)

// ReceiveEvent calls f(e).
func (f ObserverFunc) ReceiveEvent(e Event) {
	f(e)
}

// FatalPolicy decides what happens to a fatal inconsistency that no
// observer is listening for.
type FatalPolicy int

const (
	// FatalDefault resolves to DefaultFatalPolicy, which depends on the
	// build tags.
	FatalDefault FatalPolicy = iota
	// FatalIgnore logs the inconsistency and carries on.
	FatalIgnore
	// FatalPanic aborts via panic.
	FatalPanic
)

// String returns the string representation of the policy.
func (p FatalPolicy) String() string {
	switch p {
	case FatalDefault:
		return "default"
	case FatalIgnore:
		return "ignore"
	case FatalPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// FatalError is the panic value used by FatalPanic.
type FatalError struct {
	Scope   string
	Message string
}

func (e *FatalError) Error() string {
	if e.Scope == "" {
		return "alertflow: fatal inconsistency: " + e.Message
	}
	return "alertflow: fatal inconsistency in scope " + e.Scope + ": " + e.Message
}

type subscription struct {
	id       string
	seq      uint64
	observer Observer
}

// Monitor fans events out to subscribed observers.
type Monitor struct {
	mu        sync.RWMutex
	observers []subscription
	nextSeq   uint64

	policy FatalPolicy
	logger *slog.Logger
}

// New creates a Monitor. A nil logger uses slog.Default().
func New(policy FatalPolicy, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == FatalDefault {
		policy = DefaultFatalPolicy
	}
	return &Monitor{
		policy: policy,
		logger: logger,
	}
}

// Policy returns the fatal policy in effect.
func (m *Monitor) Policy() FatalPolicy {
	return m.policy
}

// Subscribe registers o under observerID and returns a function that
// removes it again. Subscribing an id that is already present replaces the
// previous observer. The returned function is safe to call more than once.
func (m *Monitor) Subscribe(observerID string, o Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	seq := m.nextSeq

	replaced := false
	for i := range m.observers {
		if m.observers[i].id == observerID {
			m.observers[i] = subscription{id: observerID, seq: seq, observer: o}
			replaced = true
			break
		}
	}
	if !replaced {
		m.observers = append(m.observers, subscription{id: observerID, seq: seq, observer: o})
	}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.observers {
			// Only remove the subscription this call created.
			if sub.seq == seq {
				m.observers = append(m.observers[:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// HasObservers reports whether at least one observer is subscribed.
func (m *Monitor) HasObservers() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers) > 0
}

// Count returns the number of subscribed observers.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers)
}

// Record delivers e to every observer in subscription order.
// A fatal inconsistency with no observer attached is handled by the
// monitor's FatalPolicy instead.
func (m *Monitor) Record(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	m.mu.RLock()
	observers := make([]Observer, len(m.observers))
	for i, sub := range m.observers {
		observers[i] = sub.observer
	}
	m.mu.RUnlock()

	if len(observers) == 0 {
		if e.Kind == KindFatalInconsistency {
			m.unobservedFatal(e)
		}
		return
	}

	for _, o := range observers {
		o.ReceiveEvent(e)
	}
}

// RecordAll delivers events in order.
func (m *Monitor) RecordAll(events []Event) {
	for _, e := range events {
		m.Record(e)
	}
}

// Fatal reports a fatal inconsistency for scope.
func (m *Monitor) Fatal(scope, message string) {
	m.Record(Event{
		Kind:    KindFatalInconsistency,
		Scope:   scope,
		Message: message,
	})
}

func (m *Monitor) unobservedFatal(e Event) {
	if m.policy == FatalPanic {
		panic(&FatalError{Scope: e.Scope, Message: e.Message})
	}
	m.logger.Error("fatal inconsistency ignored", "scope", e.Scope, "message", e.Message)
}
