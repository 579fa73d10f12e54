package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmylchreest/alertflow/internal/display"
	"github.com/jmylchreest/alertflow/internal/flow"
	"github.com/jmylchreest/alertflow/internal/model"
	"github.com/jmylchreest/alertflow/internal/monitor"
)

// RootLevel is the At value naming level 0.
const RootLevel = "root"

// Options configures Run.
type Options struct {
	Logger *slog.Logger
	// Observers are subscribed to the scope next to the recorder.
	Observers map[string]monitor.Observer
	// Start is the manual clock's start time. Zero means the Unix epoch.
	Start time.Time
}

// StepResult describes the scope after a step ran.
type StepResult struct {
	Index    int           `json:"index"`
	Op       string        `json:"op"`
	Ref      string        `json:"ref,omitempty"`
	Offset   time.Duration `json:"offset"`
	Accepted *bool         `json:"accepted,omitempty"`
	Depth    int           `json:"depth"`
	Visible  string        `json:"visible,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	Name   string          `json:"name"`
	Start  time.Time       `json:"start"`
	Events []monitor.Event `json:"events"`
	Steps  []StepResult    `json:"steps"`
}

type runner struct {
	sc       *Scenario
	scope    *flow.Scope
	clock    *display.ManualClock
	recorder *monitor.Recorder
	start    time.Time

	requests   map[string]string
	levels     map[string]flow.Level
	interrupts map[string]string
	expected   int
}

// Run executes sc against a fresh scope. On failure the partial result is
// returned together with the error.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := opts.Start
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	delay := sc.scopeDelay()

	r := &runner{
		sc:         sc,
		clock:      display.NewManualClock(start),
		recorder:   &monitor.Recorder{},
		start:      start,
		requests:   make(map[string]string),
		levels:     make(map[string]flow.Level),
		interrupts: make(map[string]string),
	}
	r.scope = flow.NewScope(sc.Name, flow.Options{
		Delay:           delay,
		LingerOnDismiss: sc.DelayAfterDismiss,
		FatalPolicy:     monitor.FatalIgnore,
		Clock:           r.clock,
		Logger:          logger,
	})
	defer r.scope.Close()

	r.scope.Subscribe("scenario", r.recorder)
	for id, o := range opts.Observers {
		r.scope.Subscribe(id, o)
	}

	res := &Result{Name: sc.Name, Start: start}
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			res.Events = r.recorder.Events()
			return res, err
		}

		sr, err := r.step(i, st)
		res.Steps = append(res.Steps, sr)
		if err != nil {
			res.Events = r.recorder.Events()
			return res, fmt.Errorf("step %d (%s): %w", i, st.Op, err)
		}
		logger.Debug("scenario step", "index", i, "op", st.Op, "ref", st.Ref, "visible", sr.Visible)
	}

	res.Events = r.recorder.Events()
	return res, nil
}

func (r *runner) step(i int, st Step) (StepResult, error) {
	sr := StepResult{Index: i, Op: st.Op, Ref: st.Ref}
	err := r.apply(st, &sr)

	sr.Offset = r.clock.Now().Sub(r.start)
	sr.Depth = r.scope.Depth()
	if p, ok := r.scope.CurrentVisible(flow.Level(sr.Depth - 1)); ok {
		sr.Visible = p.Title
	}
	return sr, err
}

func (r *runner) apply(st Step, sr *StepResult) error {
	switch st.Op {
	case OpSubmit:
		tier, err := model.ParseTier(st.Tier)
		if err != nil {
			return err
		}
		req, err := model.NewRequest(tier, model.Payload{
			Title:   st.Title,
			Message: st.Message,
			Source:  r.sc.Name,
			Actions: st.Actions,
		})
		if err != nil {
			return err
		}
		_, ok := r.scope.Submit(req)
		sr.Accepted = &ok
		r.requests[refOr(st.Ref, st.Title)] = req.ID

	case OpWithdraw:
		id, err := lookup(r.requests, st.Ref)
		if err != nil {
			return err
		}
		r.scope.Withdraw(id)

	case OpInterrupt:
		id := r.scope.AddInterrupt(st.ScopePath, st.Name)
		r.interrupts[refOr(st.Ref, st.ScopePath+"#"+st.Name)] = id

	case OpRelease:
		id, err := lookup(r.interrupts, st.Ref)
		if err != nil {
			return err
		}
		r.scope.RemoveInterrupt(id)

	case OpEnter:
		level := r.scope.EnterLevel()
		if st.Ref != "" {
			r.levels[st.Ref] = level
		}

	case OpExit:
		level, err := r.level(st.Ref)
		if err != nil {
			return err
		}
		r.scope.ExitLevel(level)

	case OpDismiss, OpResolve:
		id, err := lookup(r.requests, st.Ref)
		if err != nil {
			return err
		}
		level, err := r.level(st.At)
		if err != nil {
			return err
		}
		if st.Op == OpDismiss {
			r.scope.Dismiss(level, id)
		} else {
			r.scope.Resolve(level, id, st.Action)
		}

	case OpAdvance:
		d, err := time.ParseDuration(st.Duration)
		if err != nil {
			return err
		}
		r.clock.Advance(d)

	case OpExpect:
		return r.expect(st)

	default:
		return fmt.Errorf("%w %q", ErrUnknownOp, st.Op)
	}
	return nil
}

func (r *runner) expect(st Step) error {
	level, err := r.level(st.At)
	if err != nil {
		return err
	}

	if st.Visible != nil {
		got := ""
		if p, ok := r.scope.CurrentVisible(level); ok {
			got = p.Title
		}
		if got != *st.Visible {
			return fmt.Errorf("%w: level %d shows %q, want %q", ErrExpectationFailed, level, got, *st.Visible)
		}
	}

	if st.Depth > 0 && r.scope.Depth() != st.Depth {
		return fmt.Errorf("%w: depth is %d, want %d", ErrExpectationFailed, r.scope.Depth(), st.Depth)
	}

	events := r.recorder.Events()
	since := events[r.expected:]
	r.expected = len(events)
	if st.Kinds != nil {
		got := make([]string, len(since))
		for i, e := range since {
			got[i] = e.Kind.String()
		}
		if !slices.Equal(got, st.Kinds) {
			return fmt.Errorf("%w: events %v, want %v", ErrExpectationFailed, got, st.Kinds)
		}
	}
	return nil
}

// level resolves an At or Ref value to a level handle.
func (r *runner) level(ref string) (flow.Level, error) {
	switch ref {
	case "":
		return flow.Level(r.scope.Depth() - 1), nil
	case RootLevel:
		return 0, nil
	}
	level, ok := r.levels[ref]
	if !ok {
		return 0, fmt.Errorf("%w: level %q", ErrUnknownRef, ref)
	}
	return level, nil
}

func lookup(refs map[string]string, ref string) (string, error) {
	id, ok := refs[ref]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownRef, ref)
	}
	return id, nil
}

func refOr(ref, fallback string) string {
	if ref != "" {
		return ref
	}
	return fallback
}

func parseKind(s string) (monitor.Kind, error) {
	var k monitor.Kind
	if err := k.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidStep, err)
	}
	return k, nil
}
