// Package monitor broadcasts arbitration events to external observers.
package monitor

import (
	"fmt"
	"time"

	"github.com/jmylchreest/alertflow/internal/model"
)

// Kind identifies the type of an arbitration event.
type Kind int

const (
	// KindShown means a request became visible on a slot.
	KindShown Kind = iota
	// KindRejectedByInterrupt means a request was submitted while interrupts
	// were active. Normal requests are still queued, Weak ones are dropped.
	KindRejectedByInterrupt
	// KindRejectedByStrongExisting means a Weak request was dropped because
	// Strong requests are pending.
	KindRejectedByStrongExisting
	// KindRejectedByNormalExisting means a Weak request was dropped because
	// Normal requests are pending.
	KindRejectedByNormalExisting
	// KindRejectedByWeakExisting means a Weak request was dropped because
	// another Weak request is live.
	KindRejectedByWeakExisting
	// KindSuperseded means a live Weak request was destroyed by a higher
	// tier request.
	KindSuperseded
	// KindCancelled means a pending request was withdrawn before completion.
	KindCancelled
	// KindFatalInconsistency reports a misuse that correct callers never
	// trigger, such as exiting a level that is not on top.
	KindFatalInconsistency
)

var kindNames = map[Kind]string{
	KindShown:                    "shown",
	KindRejectedByInterrupt:      "rejected_by_interrupt",
	KindRejectedByStrongExisting: "rejected_by_strong_existing",
	KindRejectedByNormalExisting: "rejected_by_normal_existing",
	KindRejectedByWeakExisting:   "rejected_by_weak_existing",
	KindSuperseded:               "superseded",
	KindCancelled:                "cancelled",
	KindFatalInconsistency:       "fatal_inconsistency",
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// IsRejection reports whether the kind is one of the benign rejections.
func (k Kind) IsRejection() bool {
	switch k {
	case KindRejectedByInterrupt, KindRejectedByStrongExisting,
		KindRejectedByNormalExisting, KindRejectedByWeakExisting:
		return true
	}
	return false
}

// Event is a single arbitration event. Requests carried by an event are
// snapshots without callbacks.
type Event struct {
	Kind       Kind              `json:"kind"`
	Scope      string            `json:"scope,omitempty"`
	Level      int               `json:"level"`
	Request    *model.Request    `json:"request,omitempty"`
	Blockers   []*model.Request  `json:"blockers,omitempty"`
	Interrupts []model.Interrupt `json:"interrupts,omitempty"`
	Message    string            `json:"message,omitempty"`
	Time       time.Time         `json:"time"`
}

// String returns a compact description for logs.
func (e Event) String() string {
	switch {
	case e.Kind == KindFatalInconsistency:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Request != nil:
		return fmt.Sprintf("%s level=%d %s", e.Kind, e.Level, e.Request)
	default:
		return e.Kind.String()
	}
}

// Sink receives events. The request store records into a Sink that the
// owning scope flushes once its critical section is over.
type Sink interface {
	Record(e Event)
}

// Buffer is a Sink that keeps events until they are drained.
// It is not safe for concurrent use.
type Buffer struct {
	// Now stamps events recorded without a time. Defaults to time.Now.
	Now func() time.Time

	events []Event
}

// Record appends e to the buffer.
func (b *Buffer) Record(e Event) {
	if e.Time.IsZero() {
		if b.Now != nil {
			e.Time = b.Now()
		} else {
			e.Time = time.Now()
		}
	}
	b.events = append(b.events, e)
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	events := b.events
	b.events = nil
	return events
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Snapshots converts requests to callback-free snapshots.
func Snapshots(rs []*model.Request) []*model.Request {
	if len(rs) == 0 {
		return nil
	}
	out := make([]*model.Request, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Snapshot())
	}
	return out
}
