package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/alertflow/internal/model"
	"github.com/jmylchreest/alertflow/internal/monitor"
)

func newTestStore() (*Store, *monitor.Buffer) {
	sink := &monitor.Buffer{}
	return New("test", sink), sink
}

func req(tier model.Tier, title string) *model.Request {
	return model.MustRequest(tier, title)
}

func winnerID(s *Store) string {
	if w := s.Winner(); w != nil {
		return w.ID
	}
	return ""
}

func kinds(events []monitor.Event) []monitor.Kind {
	out := make([]monitor.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestNew(t *testing.T) {
	s := New("main", nil)
	assert.NotNil(t, s)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Winner())
	assert.Nil(t, s.PopTop())
}

func TestStore_StrongEarliestWins(t *testing.T) {
	s, _ := newTestStore()
	s1 := req(model.TierStrong, "s1")
	s2 := req(model.TierStrong, "s2")

	require.True(t, s.Submit(s1))
	require.True(t, s.Submit(s2))
	assert.Equal(t, s1.ID, winnerID(s))
	assert.Equal(t, []string{s2.ID, s1.ID}, s.Snapshot().StrongOrder)

	s.Withdraw(s1.ID)
	assert.Equal(t, s2.ID, winnerID(s))
}

func TestStore_NormalNewestWins(t *testing.T) {
	s, _ := newTestStore()
	n1 := req(model.TierNormal, "n1")
	n2 := req(model.TierNormal, "n2")

	s.Submit(n1)
	s.Submit(n2)
	assert.Equal(t, n2.ID, winnerID(s))

	s.Withdraw(n2.ID)
	assert.Equal(t, n1.ID, winnerID(s))
}

func TestStore_StrongBeatsNormal(t *testing.T) {
	s, _ := newTestStore()
	n1 := req(model.TierNormal, "n1")
	s1 := req(model.TierStrong, "s1")

	s.Submit(n1)
	s.Submit(s1)
	assert.Equal(t, s1.ID, winnerID(s))

	s.Withdraw(s1.ID)
	assert.Equal(t, n1.ID, winnerID(s))
}

func TestStore_WeakAcceptance(t *testing.T) {
	t.Run("accepted into an empty store", func(t *testing.T) {
		s, sink := newTestStore()
		w1 := req(model.TierWeak, "w1")

		assert.True(t, s.Submit(w1))
		assert.Equal(t, w1.ID, winnerID(s))
		assert.Equal(t, 0, sink.Len())
	})

	t.Run("rejected while another weak is live", func(t *testing.T) {
		s, sink := newTestStore()
		w1 := req(model.TierWeak, "w1")
		w2 := req(model.TierWeak, "w2")

		s.Submit(w1)
		assert.False(t, s.Submit(w2))
		assert.Equal(t, w1.ID, winnerID(s))
		assert.Nil(t, s.Get(w2.ID))

		events := sink.Drain()
		require.Len(t, events, 1)
		assert.Equal(t, monitor.KindRejectedByWeakExisting, events[0].Kind)
		assert.Equal(t, w2.ID, events[0].Request.ID)
		require.Len(t, events[0].Blockers, 1)
		assert.Equal(t, w1.ID, events[0].Blockers[0].ID)

		discarded := s.TakeDiscarded()
		require.Len(t, discarded, 1)
		assert.Same(t, w2, discarded[0])
		assert.Empty(t, s.TakeDiscarded())
	})

	tests := []struct {
		name  string
		setup func(*Store)
		want  monitor.Kind
	}{
		{
			name:  "strong pending",
			setup: func(s *Store) { s.Submit(req(model.TierStrong, "s")) },
			want:  monitor.KindRejectedByStrongExisting,
		},
		{
			name:  "interrupt active",
			setup: func(s *Store) { s.AddInterrupt(model.NewInterrupt("root", "sheet")) },
			want:  monitor.KindRejectedByInterrupt,
		},
		{
			name:  "normal pending",
			setup: func(s *Store) { s.Submit(req(model.TierNormal, "n")) },
			want:  monitor.KindRejectedByNormalExisting,
		},
		{
			name: "strong takes precedence over interrupt",
			setup: func(s *Store) {
				s.AddInterrupt(model.NewInterrupt("root", "sheet"))
				s.Submit(req(model.TierStrong, "s"))
			},
			want: monitor.KindRejectedByStrongExisting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sink := newTestStore()
			tt.setup(s)
			sink.Drain()

			w := req(model.TierWeak, "w")
			assert.False(t, s.Submit(w))
			assert.Equal(t, []monitor.Kind{tt.want}, kinds(sink.Drain()))
			assert.Len(t, s.TakeDiscarded(), 1)
			assert.Empty(t, s.Snapshot().WeakID)
		})
	}
}

func TestStore_WeakAcceptedAfterDanglingBlockers(t *testing.T) {
	s, _ := newTestStore()
	n := req(model.TierNormal, "n")
	s.Submit(n)
	s.Withdraw(n.ID)

	// normalOrder still holds the withdrawn id; it no longer blocks.
	w := req(model.TierWeak, "w")
	assert.True(t, s.Submit(w))
	assert.Equal(t, w.ID, winnerID(s))
}

func TestStore_NormalSupersedesWeak(t *testing.T) {
	s, sink := newTestStore()
	w := req(model.TierWeak, "w")
	n := req(model.TierNormal, "n")

	s.Submit(w)
	assert.True(t, s.Submit(n))
	assert.Equal(t, n.ID, winnerID(s))
	assert.Nil(t, s.Get(w.ID))

	events := sink.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, monitor.KindSuperseded, events[0].Kind)
	assert.Equal(t, w.ID, events[0].Request.ID)

	discarded := s.TakeDiscarded()
	require.Len(t, discarded, 1)
	assert.Same(t, w, discarded[0])
}

func TestStore_StrongSupersedesWeak(t *testing.T) {
	s, _ := newTestStore()
	w := req(model.TierWeak, "w")
	st := req(model.TierStrong, "s")

	s.Submit(w)
	s.Submit(st)
	assert.Equal(t, st.ID, winnerID(s))
	assert.Len(t, s.TakeDiscarded(), 1)

	s.Withdraw(st.ID)
	assert.Nil(t, s.Winner(), "superseded weak request must not come back")
}

func TestStore_NormalDuringInterrupt(t *testing.T) {
	s, sink := newTestStore()
	in := model.NewInterrupt("root/editor", "sheet")
	s.AddInterrupt(in)

	n := req(model.TierNormal, "n")
	assert.True(t, s.Submit(n))
	assert.Nil(t, s.Winner())

	events := sink.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, monitor.KindRejectedByInterrupt, events[0].Kind)
	require.Len(t, events[0].Interrupts, 1)
	assert.Equal(t, in.ID, events[0].Interrupts[0].ID)
	assert.Empty(t, s.TakeDiscarded())

	assert.True(t, s.RemoveInterrupt(in.ID))
	assert.Equal(t, n.ID, winnerID(s))
}

func TestStore_InterruptHidesWeakWithoutDiscarding(t *testing.T) {
	s, _ := newTestStore()
	w := req(model.TierWeak, "w")
	s.Submit(w)

	in := model.NewInterrupt("root", "popover")
	assert.True(t, s.AddInterrupt(in))
	assert.False(t, s.AddInterrupt(in), "same source registers once")
	assert.Nil(t, s.Winner())

	assert.True(t, s.RemoveInterrupt(in.ID))
	assert.False(t, s.RemoveInterrupt(in.ID))
	assert.Equal(t, w.ID, winnerID(s))
	assert.Empty(t, s.TakeDiscarded())
}

func TestStore_InterruptDoesNotBlockStrong(t *testing.T) {
	s, _ := newTestStore()
	s.AddInterrupt(model.NewInterrupt("root", "sheet"))
	st := req(model.TierStrong, "s")
	s.Submit(st)
	assert.Equal(t, st.ID, winnerID(s))
}

func TestStore_InterruptsNeedAllRemoved(t *testing.T) {
	s, _ := newTestStore()
	n := req(model.TierNormal, "n")
	s.Submit(n)

	a := model.NewInterrupt("root", "a")
	b := model.NewInterrupt("root", "b")
	s.AddInterrupt(a)
	s.AddInterrupt(b)
	require.Len(t, s.Interrupts(), 2)

	s.RemoveInterrupt(a.ID)
	assert.Nil(t, s.Winner())
	s.RemoveInterrupt(b.ID)
	assert.Equal(t, n.ID, winnerID(s))
	assert.False(t, s.HasInterrupts())
}

func TestStore_Withdraw(t *testing.T) {
	s, _ := newTestStore()
	n := req(model.TierNormal, "n")
	s.Submit(n)

	assert.Same(t, n, s.Withdraw(n.ID))
	assert.Nil(t, s.Withdraw(n.ID), "second withdraw is a no-op")
	assert.Nil(t, s.Withdraw("missing"))
	assert.Equal(t, 0, s.Len())

	// Lazy pruning: the id is still listed until the winner is computed.
	assert.Equal(t, []string{n.ID}, s.Snapshot().NormalOrder)
	assert.Nil(t, s.Winner())
	assert.Empty(t, s.Snapshot().NormalOrder)
}

func TestStore_DanglingStrongIsSkipped(t *testing.T) {
	s, _ := newTestStore()
	s1 := req(model.TierStrong, "s1")
	s2 := req(model.TierStrong, "s2")
	s3 := req(model.TierStrong, "s3")
	s.Submit(s1)
	s.Submit(s2)
	s.Submit(s3)

	s.Withdraw(s1.ID)
	s.Withdraw(s2.ID)
	assert.Equal(t, s3.ID, winnerID(s))
	assert.Equal(t, []string{s3.ID}, s.Snapshot().StrongOrder)
}

func TestStore_PopTop(t *testing.T) {
	s, _ := newTestStore()
	n1 := req(model.TierNormal, "n1")
	n2 := req(model.TierNormal, "n2")
	st := req(model.TierStrong, "s")
	s.Submit(n1)
	s.Submit(n2)
	s.Submit(st)

	assert.Same(t, st, s.PopTop())
	assert.Same(t, n2, s.PopTop())
	assert.Same(t, n1, s.PopTop())
	assert.Nil(t, s.PopTop())
	assert.Equal(t, 0, s.Len())
}

func TestStore_PopTopWeak(t *testing.T) {
	s, _ := newTestStore()
	w := req(model.TierWeak, "w")
	s.Submit(w)

	assert.Same(t, w, s.PopTop())
	assert.Empty(t, s.Snapshot().WeakID)
	assert.Nil(t, s.Winner())
}

func TestStore_PopTopDuringInterrupt(t *testing.T) {
	s, _ := newTestStore()
	n := req(model.TierNormal, "n")
	s.Submit(n)
	s.AddInterrupt(model.NewInterrupt("root", "sheet"))

	// Nothing is the winner, so nothing is popped.
	assert.Nil(t, s.PopTop())
	assert.Equal(t, 1, s.Len())
}

func TestStore_SubmitInvalid(t *testing.T) {
	s, sink := newTestStore()
	assert.False(t, s.Submit(nil))

	bad := req(model.TierNormal, "bad")
	bad.ID = ""
	assert.False(t, s.Submit(bad))

	n := req(model.TierNormal, "n")
	assert.True(t, s.Submit(n))
	assert.False(t, s.Submit(n), "duplicate submission is ignored")
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, sink.Len())
}

func TestStore_Drain(t *testing.T) {
	s, _ := newTestStore()
	s.Submit(req(model.TierStrong, "s"))
	s.Submit(req(model.TierNormal, "n"))
	in := model.NewInterrupt("root", "sheet")
	s.AddInterrupt(in)

	drained := s.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Winner())

	snap := s.Snapshot()
	assert.Empty(t, snap.StrongOrder)
	assert.Empty(t, snap.NormalOrder)
	require.Len(t, snap.Interrupts, 1)
	assert.Equal(t, in.ID, snap.Interrupts[0].ID)
}
