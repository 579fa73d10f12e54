package dbus

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/alertflow/internal/display"
	"github.com/jmylchreest/alertflow/internal/flow"
)

const (
	closedSignal  = DBusInterface + ".NotificationClosed"
	invokedSignal = DBusInterface + ".ActionInvoked"
	shownSignal   = ControlInterface + ".Shown"
)

type emitted struct {
	name   string
	values []interface{}
}

type fakeEmitter struct {
	mu      sync.Mutex
	signals []emitted
}

func (f *fakeEmitter) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, emitted{name: name, values: values})
	return nil
}

func (f *fakeEmitter) all() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.signals...)
}

func (f *fakeEmitter) named(name string) []emitted {
	var out []emitted
	for _, s := range f.all() {
		if s.name == name {
			out = append(out, s)
		}
	}
	return out
}

func newTestServer(t *testing.T) (*NotificationServer, *flow.Scope, *display.ManualClock, *fakeEmitter) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := display.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	scope := flow.NewScope("test", flow.Options{
		Delay:  300 * time.Millisecond,
		Clock:  clock,
		Logger: logger,
	})
	t.Cleanup(scope.Close)

	srv := NewNotificationServer(scope, logger)
	fe := &fakeEmitter{}
	srv.emitter = fe
	scope.Subscribe("dbus", srv)
	return srv, scope, clock, fe
}

func notify(t *testing.T, srv *NotificationServer, replacesID uint32, summary string, urgency byte, actions ...string) uint32 {
	t.Helper()
	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)}
	id, derr := srv.Notify("test", replacesID, "", summary, summary+" body", actions, hints, -1)
	require.Nil(t, derr)
	return id
}

func TestNotify_ShowsAndSignals(t *testing.T) {
	srv, _, _, fe := newTestServer(t)

	id := notify(t, srv, 0, "hello", 1)
	assert.Equal(t, uint32(1), id)
	assert.True(t, srv.IsActive(id))

	shown := fe.named(shownSignal)
	require.Len(t, shown, 1)
	assert.Equal(t, []interface{}{uint32(1), "hello", "hello body"}, shown[0].values)

	visibleID, r, ok := srv.Visible()
	require.True(t, ok)
	assert.Equal(t, id, visibleID)
	assert.Equal(t, "hello", r.Payload.Title)

	cid, summary, body, derr := control{srv}.Visible()
	require.Nil(t, derr)
	assert.Equal(t, id, cid)
	assert.Equal(t, "hello", summary)
	assert.Equal(t, "hello body", body)
}

func TestNotify_IDsIncrease(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	a := notify(t, srv, 0, "a", 1)
	b := notify(t, srv, 0, "b", 1)
	assert.Equal(t, a+1, b)
}

func TestCloseNotification(t *testing.T) {
	srv, scope, _, fe := newTestServer(t)

	id := notify(t, srv, 0, "hello", 1)
	require.Nil(t, srv.CloseNotification(id))

	assert.False(t, srv.IsActive(id))
	closed := fe.named(closedSignal)
	require.Len(t, closed, 1)
	assert.Equal(t, []interface{}{id, uint32(CloseReasonClosed)}, closed[0].values)
	assert.Equal(t, 0, scope.Status().Store.Pending)

	// Unknown ids are ignored.
	assert.Nil(t, srv.CloseNotification(42))
	assert.Len(t, fe.named(closedSignal), 1)
}

func TestInvoke(t *testing.T) {
	srv, _, _, fe := newTestServer(t)

	id := notify(t, srv, 0, "mail", 1, "open", "Open")
	require.NoError(t, srv.Invoke(id, "open"))

	assert.False(t, srv.IsActive(id))
	invoked := fe.named(invokedSignal)
	require.Len(t, invoked, 1)
	assert.Equal(t, []interface{}{id, "open"}, invoked[0].values)

	closed := fe.named(closedSignal)
	require.Len(t, closed, 1)
	assert.Equal(t, []interface{}{id, uint32(CloseReasonDismissed)}, closed[0].values)

	_, _, ok := srv.Visible()
	assert.False(t, ok)
}

func TestDismiss(t *testing.T) {
	srv, _, _, fe := newTestServer(t)

	id := notify(t, srv, 0, "mail", 1)
	assert.Nil(t, control{srv}.Dismiss(id))

	assert.Empty(t, fe.named(invokedSignal), "dismiss is not an action")
	closed := fe.named(closedSignal)
	require.Len(t, closed, 1)
	assert.Equal(t, []interface{}{id, uint32(CloseReasonDismissed)}, closed[0].values)
}

func TestInvoke_NotVisible(t *testing.T) {
	srv, _, clock, fe := newTestServer(t)

	a := notify(t, srv, 0, "a", 1)
	b := notify(t, srv, 0, "b", 1)

	// a is leaving and b waits for the disappearing delay.
	assert.ErrorIs(t, srv.Invoke(a, "open"), ErrNotVisible)
	assert.ErrorIs(t, srv.Invoke(b, "open"), ErrNotVisible)
	assert.ErrorIs(t, srv.Invoke(99, "open"), ErrUnknownNotification)
	assert.NotNil(t, control{srv}.InvokeAction(99, "open"))

	clock.Advance(300 * time.Millisecond)
	shown := fe.named(shownSignal)
	require.Len(t, shown, 2)
	assert.Equal(t, b, shown[1].values[0])
	require.NoError(t, srv.Invoke(b, "open"))
}

func TestNotify_WeakRejected(t *testing.T) {
	srv, _, _, fe := newTestServer(t)

	notify(t, srv, 0, "normal", 1)
	weak := notify(t, srv, 0, "promo", 0)

	assert.NotZero(t, weak, "rejected notifications still get an id")
	assert.False(t, srv.IsActive(weak))
	closed := fe.named(closedSignal)
	require.Len(t, closed, 1)
	assert.Equal(t, []interface{}{weak, uint32(CloseReasonUndefined)}, closed[0].values)
}

func TestNotify_WeakSuperseded(t *testing.T) {
	srv, _, _, fe := newTestServer(t)

	weak := notify(t, srv, 0, "promo", 0)
	require.True(t, srv.IsActive(weak))
	notify(t, srv, 0, "urgent", 2)

	assert.False(t, srv.IsActive(weak))
	closed := fe.named(closedSignal)
	require.Len(t, closed, 1)
	assert.Equal(t, []interface{}{weak, uint32(CloseReasonUndefined)}, closed[0].values)
}

func TestNotify_Replace(t *testing.T) {
	srv, _, clock, fe := newTestServer(t)

	id := notify(t, srv, 0, "v1", 1)
	got := notify(t, srv, id, "v2", 1)
	assert.Equal(t, id, got)
	assert.True(t, srv.IsActive(id))
	assert.Empty(t, fe.named(closedSignal), "replacing is silent")

	clock.Advance(300 * time.Millisecond)
	shown := fe.named(shownSignal)
	require.Len(t, shown, 2)
	assert.Equal(t, []interface{}{id, "v2", "v2 body"}, shown[1].values)
}

func TestNotify_ClosedScope(t *testing.T) {
	srv, scope, _, fe := newTestServer(t)
	scope.Close()

	id, derr := srv.Notify("test", 0, "", "late", "", nil, nil, -1)
	assert.NotNil(t, derr)
	assert.Zero(t, id)
	assert.False(t, srv.IsActive(1))

	closed := fe.named(closedSignal)
	require.Len(t, closed, 1)
	assert.Equal(t, uint32(CloseReasonUndefined), closed[0].values[1])
}

func TestEmit_NotConnected(t *testing.T) {
	srv := NewNotificationServer(flow.NewScope("test", flow.Options{}), nil)
	assert.Error(t, srv.EmitNotificationClosed(1, CloseReasonClosed))
	assert.NoError(t, srv.Stop(), "stopping a server that never started is a no-op")
}

func TestServerInformation(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	caps, derr := srv.GetCapabilities()
	require.Nil(t, derr)
	assert.Equal(t, ServerCapabilities, caps)

	srv.SetServerInfo(ServerInfo{Name: "n", Vendor: "v", Version: "1", SpecVersion: "1.2"})
	name, vendor, version, spec, derr := srv.GetServerInformation()
	require.Nil(t, derr)
	assert.Equal(t, []string{"n", "v", "1", "1.2"}, []string{name, vendor, version, spec})
}

func TestPost(t *testing.T) {
	srv, _, _, fe := newTestServer(t)

	first := notify(t, srv, 0, "from dbus", 1)
	id, err := srv.Post(&DBusNotification{AppName: "alertflow", Summary: "internal"})
	require.NoError(t, err)
	assert.Equal(t, first+1, id)
	assert.True(t, srv.IsActive(id))
	assert.Len(t, fe.named(shownSignal), 1, "the newer notice waits for the delay")
}
