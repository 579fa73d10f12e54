package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/alertflow/internal/model"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusIdle, "idle"},
		{StatusShowing, "showing"},
		{StatusExiting, "exiting"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
	assert.Equal(t, "exiting", TransitionExiting.String())
}

func TestSlot_PresentFromIdle(t *testing.T) {
	s := NewSlot(0)
	a := model.MustRequest(model.TierNormal, "a")

	assert.Equal(t, TransitionNone, s.Present(nil))
	assert.Equal(t, StatusIdle, s.Status())

	assert.Equal(t, TransitionShown, s.Present(a))
	assert.Equal(t, StatusShowing, s.Status())
	assert.Same(t, a, s.Visible())
	assert.Same(t, a, s.Pending())
}

func TestSlot_PresentSameIsNoop(t *testing.T) {
	s := NewSlot(0)
	a := model.MustRequest(model.TierNormal, "a")
	s.Present(a)
	gen := s.Generation()

	assert.Equal(t, TransitionNone, s.Present(a))
	assert.Equal(t, StatusShowing, s.Status())
	assert.Equal(t, gen, s.Generation())
}

func TestSlot_SwapGoesThroughExiting(t *testing.T) {
	s := NewSlot(0)
	a := model.MustRequest(model.TierNormal, "a")
	b := model.MustRequest(model.TierNormal, "b")
	c := model.MustRequest(model.TierStrong, "c")
	s.Present(a)

	assert.Equal(t, TransitionExiting, s.Present(b))
	gen := s.Generation()
	assert.Equal(t, StatusExiting, s.Status())
	assert.Nil(t, s.Visible(), "b must not be visible before the delay")

	// Busy while exiting, but the latest winner is remembered.
	assert.Equal(t, TransitionNone, s.Present(c))
	assert.Same(t, c, s.Pending())
	assert.Nil(t, s.Visible())
	assert.Equal(t, gen, s.Generation())

	assert.Equal(t, TransitionShown, s.Expire(gen, c))
	assert.Same(t, c, s.Visible())
	assert.Equal(t, StatusShowing, s.Status())
}

func TestSlot_ExpireToIdle(t *testing.T) {
	s := NewSlot(0)
	a := model.MustRequest(model.TierNormal, "a")
	s.Present(a)

	assert.Equal(t, TransitionExiting, s.Present(nil))
	assert.Equal(t, TransitionIdle, s.Expire(s.Generation(), nil))
	assert.Equal(t, StatusIdle, s.Status())
	assert.Nil(t, s.Visible())
}

func TestSlot_StaleExpireIgnored(t *testing.T) {
	s := NewSlot(0)
	a := model.MustRequest(model.TierNormal, "a")
	b := model.MustRequest(model.TierNormal, "b")
	s.Present(a)
	s.Present(b)
	stale := s.Generation()

	s.Clear()
	assert.Equal(t, TransitionNone, s.Expire(stale, b))
	assert.Equal(t, StatusIdle, s.Status())

	// Expire on a slot that is not exiting is ignored too.
	s.Present(a)
	assert.Equal(t, TransitionNone, s.Expire(s.Generation(), b))
	assert.Same(t, a, s.Visible())
}

func TestSlot_Dismiss(t *testing.T) {
	t.Run("visible request goes idle", func(t *testing.T) {
		s := NewSlot(0)
		a := model.MustRequest(model.TierNormal, "a")
		s.Present(a)

		tr, ok := s.Dismiss(a.ID, false)
		assert.True(t, ok)
		assert.Equal(t, TransitionIdle, tr)
		assert.Equal(t, StatusIdle, s.Status())
		assert.Nil(t, s.Visible())
	})

	t.Run("stale id is ignored", func(t *testing.T) {
		s := NewSlot(0)
		a := model.MustRequest(model.TierNormal, "a")
		b := model.MustRequest(model.TierNormal, "b")
		s.Present(a)
		s.Present(b) // a is now exiting

		tr, ok := s.Dismiss(a.ID, false)
		assert.False(t, ok)
		assert.Equal(t, TransitionNone, tr)
		assert.Equal(t, StatusExiting, s.Status())
	})

	t.Run("linger goes through exiting", func(t *testing.T) {
		s := NewSlot(0)
		a := model.MustRequest(model.TierNormal, "a")
		s.Present(a)
		before := s.Generation()

		tr, ok := s.Dismiss(a.ID, true)
		assert.True(t, ok)
		assert.Equal(t, TransitionExiting, tr)
		assert.Equal(t, before+1, s.Generation())
		assert.Equal(t, StatusExiting, s.Status())
	})
}

func TestSlot_State(t *testing.T) {
	s := NewSlot(2)
	a := model.MustRequest(model.TierNormal, "a")
	a.OnCancel = func() {}
	s.Present(a)

	st := s.State()
	assert.Equal(t, 2, st.Level)
	assert.Equal(t, StatusShowing, st.Status)
	require.NotNil(t, st.Visible)
	assert.Equal(t, a.ID, st.Visible.ID)
	assert.Nil(t, st.Visible.OnCancel)
}

func TestStack_PushPop(t *testing.T) {
	st := NewStack()
	assert.Equal(t, 1, st.Depth())
	assert.True(t, st.IsTop(0))

	a := model.MustRequest(model.TierNormal, "a")
	st.Top().Present(a)

	top := st.Push()
	assert.Equal(t, 1, top.Level())
	assert.Equal(t, 2, st.Depth())
	assert.Nil(t, st.At(0).Visible(), "entering a level clears the previous top")
	assert.Equal(t, StatusIdle, st.At(0).Status())
	assert.False(t, st.IsTop(0))
	assert.Nil(t, st.At(5))
	assert.Nil(t, st.At(-1))

	popped, ok := st.Pop()
	assert.True(t, ok)
	assert.Same(t, top, popped)
	assert.Equal(t, 1, st.Depth())

	_, ok = st.Pop()
	assert.False(t, ok, "root level cannot be popped")
	assert.Len(t, st.States(), 1)
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	var order []string
	c.AfterFunc(300*time.Millisecond, func() { order = append(order, "b") })
	c.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "a")
		c.AfterFunc(50*time.Millisecond, func() { order = append(order, "a2") })
	})
	stopped := c.AfterFunc(200*time.Millisecond, func() { order = append(order, "never") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())
	assert.Equal(t, 2, c.Pending())

	c.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2"}, order)
	assert.Equal(t, start.Add(200*time.Millisecond), c.Now())

	c.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2", "b"}, order)
	assert.Equal(t, 0, c.Pending())
}
