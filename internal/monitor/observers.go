package monitor

import "sync"

// ChannelObserver forwards events to a buffered channel.
// Sends never block; events are dropped while the channel is full.
type ChannelObserver struct {
	ch chan Event
}

// NewChannelObserver creates a ChannelObserver with the given buffer size.
func NewChannelObserver(size int) *ChannelObserver {
	if size <= 0 {
		size = 10
	}
	return &ChannelObserver{ch: make(chan Event, size)}
}

// ReceiveEvent implements Observer.
func (c *ChannelObserver) ReceiveEvent(e Event) {
	select {
	case c.ch <- e:
	default:
		// Channel full, skip
	}
}

// Events returns the receive side of the channel.
func (c *ChannelObserver) Events() <-chan Event {
	return c.ch
}

// Recorder is an Observer that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// ReceiveEvent implements Observer.
func (r *Recorder) ReceiveEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// OfKind returns the recorded events of the given kind.
func (r *Recorder) OfKind(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
