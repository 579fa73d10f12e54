package dbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/alertflow/internal/model"
)

func (s *NotificationServer) emit(name string, values ...interface{}) error {
	s.mu.RLock()
	emitter := s.emitter
	s.mu.RUnlock()

	if emitter == nil {
		return fmt.Errorf("not connected to D-Bus")
	}
	return emitter.Emit(dbus.ObjectPath(DBusPath), name, values...)
}

// EmitNotificationClosed emits the NotificationClosed signal.
// This signal is emitted when a notification is closed, either by user
// dismissal, an explicit close request, or because the scope discarded it.
func (s *NotificationServer) EmitNotificationClosed(id uint32, reason CloseReason) error {
	if err := s.emit(DBusInterface+".NotificationClosed", id, uint32(reason)); err != nil {
		return fmt.Errorf("failed to emit NotificationClosed signal: %w", err)
	}

	s.logger.Debug("emitted NotificationClosed signal", "id", id, "reason", reason.String())
	return nil
}

// EmitActionInvoked emits the ActionInvoked signal.
// This signal is emitted when the user invokes an action on a notification.
func (s *NotificationServer) EmitActionInvoked(id uint32, actionKey string) error {
	if err := s.emit(DBusInterface+".ActionInvoked", id, actionKey); err != nil {
		return fmt.Errorf("failed to emit ActionInvoked signal: %w", err)
	}

	s.logger.Debug("emitted ActionInvoked signal", "id", id, "action_key", actionKey)
	return nil
}

// EmitShown announces on the control interface that id became visible.
func (s *NotificationServer) EmitShown(id uint32, summary, body string) error {
	if err := s.emit(ControlInterface+".Shown", id, summary, body); err != nil {
		return fmt.Errorf("failed to emit Shown signal: %w", err)
	}

	s.logger.Debug("emitted Shown signal", "id", id)
	return nil
}

// InvokeAction emits the signals for a completed notification: ActionInvoked
// unless the notification was dismissed without an action, then
// NotificationClosed.
func (s *NotificationServer) InvokeAction(id uint32, actionKey string) error {
	if actionKey != model.ActionDismiss {
		if err := s.EmitActionInvoked(id, actionKey); err != nil {
			return err
		}
	}
	return s.EmitNotificationClosed(id, CloseReasonDismissed)
}
