package model

import (
	"time"

	"github.com/google/uuid"
)

// interruptNamespace seeds the name-based interrupt ids.
var interruptNamespace = uuid.MustParse("5b0c7f64-43e4-4c1c-9d53-6a0f2f0e7a11")

// Interrupt is an active external condition that keeps Normal and Weak
// requests from becoming visible without discarding them.
type Interrupt struct {
	ID        string    `json:"id"`
	ScopePath string    `json:"scope_path"`
	Name      string    `json:"name,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// InterruptID derives the id for an interrupt raised by name at scopePath.
// The same pair always yields the same id, so registering twice from the
// same source is idempotent.
func InterruptID(scopePath, name string) string {
	return uuid.NewSHA1(interruptNamespace, []byte(scopePath+"\x00"+name)).String()
}

// NewInterrupt creates an Interrupt for the given source.
func NewInterrupt(scopePath, name string) Interrupt {
	return Interrupt{
		ID:        InterruptID(scopePath, name),
		ScopePath: scopePath,
		Name:      name,
		AddedAt:   time.Now(),
	}
}

// Label returns a human readable label for logs and events.
func (i Interrupt) Label() string {
	if i.Name == "" {
		return i.ScopePath
	}
	return i.ScopePath + "#" + i.Name
}
