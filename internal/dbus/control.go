package dbus

import (
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// ControlInterface is the interface a renderer uses to follow the scope.
const ControlInterface = "io.github.jmylchreest.alertflow.Control"

// control is exported on ControlInterface. It is a separate type so the
// notification interface only carries the freedesktop methods.
type control struct {
	s *NotificationServer
}

// InvokeAction reports an action picked on the visible notification.
// D-Bus method: InvokeAction(us) -> nothing
func (c control) InvokeAction(id uint32, key string) *dbus.Error {
	if err := c.s.Invoke(id, key); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// Dismiss reports that the visible notification was dismissed.
// D-Bus method: Dismiss(u) -> nothing
func (c control) Dismiss(id uint32) *dbus.Error {
	if err := c.s.Dismiss(id); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// Visible returns the notification shown right now. The id is 0 when
// nothing is visible.
// D-Bus method: Visible() -> (uss)
func (c control) Visible() (uint32, string, string, *dbus.Error) {
	id, r, ok := c.s.Visible()
	if !ok {
		return 0, "", "", nil
	}
	return id, r.Payload.Title, r.Payload.Message, nil
}

func controlMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "InvokeAction",
			Args: []introspect.Arg{
				{Name: "id", Type: "u", Direction: "in"},
				{Name: "action_key", Type: "s", Direction: "in"},
			},
		},
		{
			Name: "Dismiss",
			Args: []introspect.Arg{
				{Name: "id", Type: "u", Direction: "in"},
			},
		},
		{
			Name: "Visible",
			Args: []introspect.Arg{
				{Name: "id", Type: "u", Direction: "out"},
				{Name: "summary", Type: "s", Direction: "out"},
				{Name: "body", Type: "s", Direction: "out"},
			},
		},
	}
}

func controlSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "Shown",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "summary", Type: "s"},
				{Name: "body", Type: "s"},
			},
		},
	}
}
