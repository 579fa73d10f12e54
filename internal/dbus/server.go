package dbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/alertflow/internal/flow"
	"github.com/jmylchreest/alertflow/internal/model"
	"github.com/jmylchreest/alertflow/internal/monitor"
)

const (
	// DBusInterface is the notification interface name.
	DBusInterface = "org.freedesktop.Notifications"
	// DBusPath is the notification object path.
	DBusPath = "/org/freedesktop/Notifications"
	// DBusBusName is the bus name to claim.
	DBusBusName = "org.freedesktop.Notifications"
)

// Errors returned by Invoke and Dismiss.
var (
	ErrUnknownNotification = errors.New("unknown notification")
	ErrNotVisible          = errors.New("notification is not visible")
)

// signalEmitter is the part of *dbus.Conn used to send signals.
type signalEmitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

type entry struct {
	requestID      string
	closeRequested bool
}

// NotificationServer implements the org.freedesktop.Notifications D-Bus
// interface on top of a scope.
type NotificationServer struct {
	conn    *dbus.Conn
	emitter signalEmitter
	scope   *flow.Scope
	logger  *slog.Logger

	// ID generation
	nextID atomic.Uint32

	mu          sync.RWMutex
	active      map[uint32]*entry // D-Bus IDs currently pending in the scope
	byRequest   map[string]uint32
	serverInfo  ServerInfo
	running     bool
	unsubscribe func()
}

// NewNotificationServer creates a NotificationServer submitting to scope.
func NewNotificationServer(scope *flow.Scope, logger *slog.Logger) *NotificationServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationServer{
		scope:      scope,
		logger:     logger,
		active:     make(map[uint32]*entry),
		byRequest:  make(map[string]uint32),
		serverInfo: DefaultServerInfo(),
	}
}

// SetServerInfo sets the server information returned by GetServerInformation.
func (s *NotificationServer) SetServerInfo(info ServerInfo) {
	s.serverInfo = info
}

// Start connects to the session bus and exports the notification service.
func (s *NotificationServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.mu.Unlock()

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	s.conn = conn

	if err := conn.Export(s, DBusPath, DBusInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}
	if err := conn.Export(control{s}, DBusPath, ControlInterface); err != nil {
		return fmt.Errorf("failed to export control object: %w", err)
	}

	node := &introspect.Node{
		Name: DBusPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    DBusInterface,
				Methods: notificationMethods(),
				Signals: notificationSignals(),
			},
			{
				Name:    ControlInterface,
				Methods: controlMethods(),
				Signals: controlSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), DBusPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(DBusBusName, dbus.NameFlagDoNotQueue|dbus.NameFlagReplaceExisting)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", DBusBusName)
	}

	s.mu.Lock()
	s.emitter = conn
	s.running = true
	s.mu.Unlock()
	s.unsubscribe = s.scope.Subscribe("dbus", s)

	s.logger.Info("D-Bus notification server started", "interface", DBusInterface, "path", DBusPath)
	return nil
}

// Stop releases the bus name.
func (s *NotificationServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.conn != nil {
		if _, err := s.conn.ReleaseName(DBusBusName); err != nil {
			s.logger.Warn("failed to release bus name", "error", err)
		}
		// Don't close the connection as it's shared (SessionBus)
	}

	s.logger.Info("D-Bus notification server stopped")
	return nil
}

// GetCapabilities returns the list of capabilities supported by this server.
// D-Bus method: GetCapabilities() -> as
func (s *NotificationServer) GetCapabilities() ([]string, *dbus.Error) {
	s.logger.Debug("GetCapabilities called")
	return ServerCapabilities, nil
}

// GetServerInformation returns information about the notification server.
// D-Bus method: GetServerInformation() -> (ssss)
func (s *NotificationServer) GetServerInformation() (string, string, string, string, *dbus.Error) {
	s.logger.Debug("GetServerInformation called")
	return s.serverInfo.Name, s.serverInfo.Vendor, s.serverInfo.Version, s.serverInfo.SpecVersion, nil
}

// Notify submits a notification to the scope.
// D-Bus method: Notify(susssasa{sv}i) -> u
func (s *NotificationServer) Notify(
	appName string,
	replacesID uint32,
	appIcon string,
	summary string,
	body string,
	actions []string,
	hints map[string]dbus.Variant,
	expireTimeout int32,
) (uint32, *dbus.Error) {
	var id uint32
	if replacesID > 0 {
		id = replacesID
	} else {
		id = s.nextID.Add(1)
	}

	s.logger.Debug("Notify called",
		"app_name", appName,
		"replaces_id", replacesID,
		"summary", summary,
		"id", id,
	)

	n := &DBusNotification{
		AppName:       appName,
		ReplacesID:    replacesID,
		AppIcon:       appIcon,
		Summary:       summary,
		Body:          body,
		Actions:       actions,
		Hints:         hints,
		ExpireTimeout: expireTimeout,
	}

	if err := s.submit(n, id); err != nil {
		return 0, dbus.MakeFailedError(err)
	}
	return id, nil
}

// Post submits a notification raised by alertflow itself under a fresh id.
func (s *NotificationServer) Post(n *DBusNotification) (uint32, error) {
	id := s.nextID.Add(1)
	if err := s.submit(n, id); err != nil {
		return 0, err
	}
	return id, nil
}

// submit turns n into a request under the D-Bus id. A request already
// registered under id is replaced silently.
func (s *NotificationServer) submit(n *DBusNotification, id uint32) error {
	r, err := n.Request()
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.active[id]
	if old != nil {
		delete(s.byRequest, old.requestID)
	}
	s.active[id] = &entry{requestID: r.ID}
	s.byRequest[r.ID] = id
	s.mu.Unlock()

	if old != nil {
		s.scope.Withdraw(old.requestID)
	}

	r.OnCancel = func() { s.cancelled(id, r.ID) }
	r.OnAction = func(key string) { s.acted(id, r.ID, key) }

	if _, err := s.scope.TrySubmit(r); err != nil && !errors.Is(err, flow.ErrRejected) {
		s.forget(id, r.ID)
		return err
	}
	return nil
}

// CloseNotification withdraws a notification by ID.
// D-Bus method: CloseNotification(u) -> nothing
func (s *NotificationServer) CloseNotification(id uint32) *dbus.Error {
	s.logger.Debug("CloseNotification called", "id", id)

	s.mu.Lock()
	e, exists := s.active[id]
	if exists {
		e.closeRequested = true
	}
	s.mu.Unlock()

	if exists {
		s.scope.Withdraw(e.requestID)
	}
	return nil
}

// Invoke reports that the user picked action key on the visible
// notification id.
func (s *NotificationServer) Invoke(id uint32, key string) error {
	level, requestID, err := s.visible(id)
	if err != nil {
		return err
	}
	s.scope.Resolve(level, requestID, key)
	return nil
}

// Dismiss reports that the visible notification id was dismissed.
func (s *NotificationServer) Dismiss(id uint32) error {
	level, requestID, err := s.visible(id)
	if err != nil {
		return err
	}
	s.scope.Dismiss(level, requestID)
	return nil
}

// Visible returns the D-Bus id and request shown on the innermost level.
func (s *NotificationServer) Visible() (uint32, *model.Request, bool) {
	r := s.scope.VisibleRequest(flow.Level(s.scope.Depth() - 1))
	if r == nil {
		return 0, nil, false
	}

	s.mu.RLock()
	id, ok := s.byRequest[r.ID]
	s.mu.RUnlock()
	if !ok {
		return 0, nil, false
	}
	return id, r, true
}

// IsActive returns true if the notification ID is currently pending.
func (s *NotificationServer) IsActive(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[id]
	return ok
}

// ReceiveEvent implements monitor.Observer. Showing one of the bridge's
// requests is announced on the control interface.
func (s *NotificationServer) ReceiveEvent(e monitor.Event) {
	if e.Kind != monitor.KindShown || e.Request == nil {
		return
	}

	s.mu.RLock()
	id, ok := s.byRequest[e.Request.ID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	if err := s.EmitShown(id, e.Request.Payload.Title, e.Request.Payload.Message); err != nil {
		s.logger.Warn("failed to emit Shown signal", "id", id, "error", err)
	}
}

func (s *NotificationServer) visible(id uint32) (flow.Level, string, error) {
	s.mu.RLock()
	e, ok := s.active[id]
	s.mu.RUnlock()
	if !ok {
		return 0, "", fmt.Errorf("%w: %d", ErrUnknownNotification, id)
	}

	level := flow.Level(s.scope.Depth() - 1)
	r := s.scope.VisibleRequest(level)
	if r == nil || r.ID != e.requestID {
		return 0, "", fmt.Errorf("%w: %d", ErrNotVisible, id)
	}
	return level, e.requestID, nil
}

// forget drops the mapping for id if it still belongs to requestID.
func (s *NotificationServer) forget(id uint32, requestID string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.active[id]
	if !ok || e.requestID != requestID {
		return nil, false
	}
	delete(s.active, id)
	delete(s.byRequest, requestID)
	return e, true
}

func (s *NotificationServer) cancelled(id uint32, requestID string) {
	e, ok := s.forget(id, requestID)
	if !ok {
		return
	}

	reason := CloseReasonUndefined
	if e.closeRequested {
		reason = CloseReasonClosed
	}
	if err := s.EmitNotificationClosed(id, reason); err != nil {
		s.logger.Warn("failed to emit NotificationClosed signal", "id", id, "error", err)
	}
}

func (s *NotificationServer) acted(id uint32, requestID, key string) {
	if _, ok := s.forget(id, requestID); !ok {
		return
	}
	if err := s.InvokeAction(id, key); err != nil {
		s.logger.Warn("failed to emit action signals", "id", id, "error", err)
	}
}

// notificationMethods returns the D-Bus method introspection data.
func notificationMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "GetCapabilities",
			Args: []introspect.Arg{
				{Name: "capabilities", Type: "as", Direction: "out"},
			},
		},
		{
			Name: "GetServerInformation",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "out"},
				{Name: "vendor", Type: "s", Direction: "out"},
				{Name: "version", Type: "s", Direction: "out"},
				{Name: "spec_version", Type: "s", Direction: "out"},
			},
		},
		{
			Name: "Notify",
			Args: []introspect.Arg{
				{Name: "app_name", Type: "s", Direction: "in"},
				{Name: "replaces_id", Type: "u", Direction: "in"},
				{Name: "app_icon", Type: "s", Direction: "in"},
				{Name: "summary", Type: "s", Direction: "in"},
				{Name: "body", Type: "s", Direction: "in"},
				{Name: "actions", Type: "as", Direction: "in"},
				{Name: "hints", Type: "a{sv}", Direction: "in"},
				{Name: "expire_timeout", Type: "i", Direction: "in"},
				{Name: "id", Type: "u", Direction: "out"},
			},
		},
		{
			Name: "CloseNotification",
			Args: []introspect.Arg{
				{Name: "id", Type: "u", Direction: "in"},
			},
		},
	}
}

// notificationSignals returns the D-Bus signal introspection data.
func notificationSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "NotificationClosed",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "reason", Type: "u"},
			},
		},
		{
			Name: "ActionInvoked",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "action_key", Type: "s"},
			},
		},
	}
}
