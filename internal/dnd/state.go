// Package dnd keeps the Do Not Disturb switch in a small JSON state file
// and turns it into an interrupt on an arbitration scope.
package dnd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Trigger represents what triggered the DnD state change.
type Trigger string

const (
	// TriggerUser indicates a user-initiated DnD change (CLI, etc.)
	TriggerUser Trigger = "user"
	// TriggerSchedule indicates a scheduled DnD change
	TriggerSchedule Trigger = "schedule"
	// TriggerSystem indicates a system event triggered the change (e.g., a call)
	TriggerSystem Trigger = "system"
)

// Transition records details about a DnD state change.
type Transition struct {
	Trigger   Trigger `json:"trigger"`          // What type of event triggered the change
	Reason    string  `json:"reason"`           // Human-readable reason (e.g., "dnd on")
	Source    string  `json:"source,omitempty"` // Source identifier (e.g., "cli", "serve")
	Timestamp int64   `json:"timestamp"`        // When the transition occurred
}

// State is the persisted DnD switch.
type State struct {
	Enabled        bool        `json:"dnd_enabled"`
	EnabledAt      int64       `json:"dnd_enabled_at,omitempty"` // Unix timestamp
	LastTransition *Transition `json:"dnd_last_transition,omitempty"`

	// Version for compatibility
	SchemaVersion int `json:"schema_version"`
}

// CurrentSchemaVersion is the current version of the state schema.
const CurrentSchemaVersion = 1

// fileMutex protects concurrent access to state files from this process.
var fileMutex sync.RWMutex

// DefaultState returns a new State with DnD off.
func DefaultState() *State {
	return &State{SchemaVersion: CurrentSchemaVersion}
}

// Load reads the state at path.
// If the file doesn't exist or is corrupted, returns a default state.
func Load(path string) (*State, error) {
	fileMutex.RLock()
	defer fileMutex.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultState(), nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return DefaultState(), nil
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}
	return &state, nil
}

// Save writes state to path.
func Save(path string, state *State) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Set updates the switch and records the transition.
func (s *State) Set(enabled bool, trigger Trigger, reason, source string) {
	now := time.Now().Unix()
	s.Enabled = enabled
	if enabled {
		s.EnabledAt = now
	} else {
		s.EnabledAt = 0
	}
	s.LastTransition = &Transition{
		Trigger:   trigger,
		Reason:    reason,
		Source:    source,
		Timestamp: now,
	}
}

// Toggle flips the switch and returns the new value.
func (s *State) Toggle(trigger Trigger, reason, source string) bool {
	s.Set(!s.Enabled, trigger, reason, source)
	return s.Enabled
}
