// Package scenario replays scripted interactions against a scope on a
// manual clock. Scripts are YAML documents.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/alertflow/internal/config"
	"github.com/jmylchreest/alertflow/internal/model"
)

// Operations understood by Run.
const (
	OpSubmit    = "submit"
	OpWithdraw  = "withdraw"
	OpInterrupt = "interrupt"
	OpRelease   = "release"
	OpEnter     = "enter"
	OpExit      = "exit"
	OpDismiss   = "dismiss"
	OpResolve   = "resolve"
	OpAdvance   = "advance"
	OpExpect    = "expect"
)

var knownOps = map[string]bool{
	OpSubmit: true, OpWithdraw: true, OpInterrupt: true, OpRelease: true,
	OpEnter: true, OpExit: true, OpDismiss: true, OpResolve: true,
	OpAdvance: true, OpExpect: true,
}

// Errors returned while loading or running a scenario.
var (
	ErrUnknownOp         = errors.New("unknown op")
	ErrUnknownRef        = errors.New("unknown ref")
	ErrInvalidStep       = errors.New("invalid step")
	ErrExpectationFailed = errors.New("expectation failed")
)

// Scenario is a scripted sequence of scope operations.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Delay is the disappearing delay, e.g. "300ms" or 300. Empty uses the
	// default.
	Delay             string `yaml:"delay,omitempty"`
	DelayAfterDismiss bool   `yaml:"delay_after_dismiss,omitempty"`
	Steps             []Step `yaml:"steps"`
}

// Step is one operation.
//
// Requests, levels and interrupts are named with Ref so later steps can
// point back at them. At names the level a dismiss, resolve or expect
// applies to; empty means the innermost level and "root" means level 0.
type Step struct {
	Op string `yaml:"op"`
	// Ref names the request, level or interrupt the step creates or uses.
	Ref string `yaml:"ref,omitempty"`
	At  string `yaml:"at,omitempty"`

	// submit
	Tier    string         `yaml:"tier,omitempty"`
	Title   string         `yaml:"title,omitempty"`
	Message string         `yaml:"message,omitempty"`
	Actions []model.Action `yaml:"actions,omitempty"`

	// interrupt
	ScopePath string `yaml:"scope_path,omitempty"`
	Name      string `yaml:"name,omitempty"`

	// resolve
	Action string `yaml:"action,omitempty"`

	// advance
	Duration string `yaml:"duration,omitempty"`

	// expect
	Visible *string  `yaml:"visible,omitempty"` // title, or "" for nothing
	Kinds   []string `yaml:"kinds,omitempty"`   // event kinds since the previous expect
	Depth   int      `yaml:"depth,omitempty"`
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads and parses the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// DelayDuration returns the configured delay. Zero means the default.
func (sc *Scenario) DelayDuration() (time.Duration, error) {
	if sc.Delay == "" {
		return 0, nil
	}
	var d config.Duration
	if err := d.UnmarshalText([]byte(sc.Delay)); err != nil {
		return 0, err
	}
	return d.Duration(), nil
}

// scopeDelay converts the script's delay to flow.Options.Delay, where zero
// selects the default. An explicit zero in the script means no delay.
func (sc *Scenario) scopeDelay() time.Duration {
	d, err := sc.DelayDuration()
	switch {
	case err != nil || sc.Delay == "":
		return 0
	case d == 0:
		return -1
	default:
		return d
	}
}

// Validate checks the scenario for structural errors.
func (sc *Scenario) Validate() error {
	if _, err := sc.DelayDuration(); err != nil {
		return fmt.Errorf("%w: delay: %v", ErrInvalidStep, err)
	}
	for i, st := range sc.Steps {
		if err := st.validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, st.Op, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	if !knownOps[st.Op] {
		return fmt.Errorf("%w %q", ErrUnknownOp, st.Op)
	}

	switch st.Op {
	case OpSubmit:
		if _, err := model.ParseTier(st.Tier); err != nil {
			return err
		}
		if st.Title == "" && st.Ref == "" {
			return fmt.Errorf("%w: submit needs a title or ref", ErrInvalidStep)
		}
	case OpWithdraw, OpRelease, OpDismiss, OpResolve, OpExit:
		if st.Ref == "" {
			return fmt.Errorf("%w: %s needs a ref", ErrInvalidStep, st.Op)
		}
	case OpInterrupt:
		if st.ScopePath == "" {
			return fmt.Errorf("%w: interrupt needs a scope_path", ErrInvalidStep)
		}
	case OpAdvance:
		if _, err := time.ParseDuration(st.Duration); err != nil {
			return fmt.Errorf("%w: advance: %v", ErrInvalidStep, err)
		}
	case OpExpect:
		for _, k := range st.Kinds {
			if _, err := parseKind(k); err != nil {
				return err
			}
		}
	}

	if st.Op == OpResolve && st.Action == "" {
		return fmt.Errorf("%w: resolve needs an action", ErrInvalidStep)
	}
	return nil
}
