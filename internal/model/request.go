// Package model defines the core data structures for alertflow.
package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Tier is the priority class of a presentation request.
type Tier int

const (
	// TierStrong requests are must-complete interactions. They cannot be
	// interrupted and never preempt another Strong request.
	TierStrong Tier = iota
	// TierNormal requests are supersedable notices. The newest one wins.
	TierNormal
	// TierWeak requests are promotional. They are only accepted into an
	// empty scope and are destroyed rather than hidden when anything else
	// arrives.
	TierWeak
)

// Urgency levels matching the freedesktop notification spec.
const (
	UrgencyLow      = 0
	UrgencyNormal   = 1
	UrgencyCritical = 2
)

// ActionCancel is the action key reported when a request is discarded
// before the user picked an action.
const ActionCancel = "cancel"

// ActionDismiss is the action key reported when a visible request was
// dismissed without picking an action.
const ActionDismiss = "dismiss"

var tierNames = map[Tier]string{
	TierStrong: "strong",
	TierNormal: "normal",
	TierWeak:   "weak",
}

// String returns the string representation of the tier.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidTier
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier parses a tier name. Matching is case-insensitive.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strong":
		return TierStrong, nil
	case "normal", "":
		return TierNormal, nil
	case "weak":
		return TierWeak, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// TierFromUrgency maps a freedesktop urgency level to a tier.
// Unknown values map to TierNormal.
func TierFromUrgency(urgency int) Tier {
	switch urgency {
	case UrgencyCritical:
		return TierStrong
	case UrgencyLow:
		return TierWeak
	default:
		return TierNormal
	}
}

// Action is a choice offered to the user by a request.
type Action struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
	Role  string `json:"role,omitempty" yaml:"role,omitempty"` // "cancel", "destructive" or empty
}

// Input is a text field offered to the user by a request.
type Input struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Payload is the content descriptor of a request. The arbitration engine
// never looks inside it.
type Payload struct {
	Title   string   `json:"title"`
	Message string   `json:"message,omitempty"`
	Source  string   `json:"source,omitempty"`
	Actions []Action `json:"actions,omitempty"`
	Inputs  []Input  `json:"inputs,omitempty"`
}

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	clone := p
	if p.Actions != nil {
		clone.Actions = append([]Action(nil), p.Actions...)
	}
	if p.Inputs != nil {
		clone.Inputs = append([]Input(nil), p.Inputs...)
	}
	return clone
}

// Request is a single presentation request competing for the display.
type Request struct {
	ID        string    `json:"id"`
	Tier      Tier      `json:"tier"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`

	// OnCancel is invoked at most once when the request is discarded
	// without being shown to completion.
	OnCancel func() `json:"-"`
	// OnAction is invoked at most once with the key of the action the
	// user picked.
	OnAction func(key string) `json:"-"`

	cancelOnce  sync.Once
	resolveOnce sync.Once
}

// Validation errors.
var (
	ErrEmptyRequestID = errors.New("request id cannot be empty")
	ErrInvalidTier    = errors.New("tier must be strong, normal or weak")
)

// NewRequest creates a Request with a generated ULID.
func NewRequest(tier Tier, payload Payload) (*Request, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ULID: %w", err)
	}

	return &Request{
		ID:        id.String(),
		Tier:      tier,
		Payload:   payload,
		CreatedAt: time.Now(),
	}, nil
}

// MustRequest is like NewRequest but panics on id generation failure.
// Intended for tests and static setup.
func MustRequest(tier Tier, title string) *Request {
	r, err := NewRequest(tier, Payload{Title: title})
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks that the request has all required fields.
func (r *Request) Validate() error {
	if r.ID == "" {
		return ErrEmptyRequestID
	}
	if !r.Tier.Valid() {
		return ErrInvalidTier
	}
	return nil
}

// Cancel invokes OnCancel. Only the first call has an effect, and a
// request that has already been resolved is never cancelled.
func (r *Request) Cancel() {
	fired := false
	r.resolveOnce.Do(func() { fired = true })
	if !fired {
		return
	}
	r.cancelOnce.Do(func() {
		if r.OnCancel != nil {
			r.OnCancel()
		}
	})
}

// Resolve invokes OnAction with key. Only the first call has an effect,
// and a request that has already been cancelled is never resolved.
func (r *Request) Resolve(key string) {
	r.resolveOnce.Do(func() {
		r.cancelOnce.Do(func() {})
		if r.OnAction != nil {
			r.OnAction(key)
		}
	})
}

// Snapshot returns a copy of the request without its callbacks.
// Snapshots are what leaves the engine in events and status reports.
func (r *Request) Snapshot() *Request {
	if r == nil {
		return nil
	}
	return &Request{
		ID:        r.ID,
		Tier:      r.Tier,
		Payload:   r.Payload.Clone(),
		CreatedAt: r.CreatedAt,
	}
}

// String returns a short human readable description.
func (r *Request) String() string {
	if r == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s:%s(%q)", r.Tier, r.ID, r.Payload.Title)
}
