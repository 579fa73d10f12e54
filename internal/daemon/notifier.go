package daemon

import (
	"log/slog"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/jmylchreest/alertflow/internal/dbus"
)

// NotificationLevel indicates the urgency/severity of an internal notification.
type NotificationLevel int

const (
	// NotificationLevelInfo is for informational messages (low urgency, Weak tier).
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning is for warning messages (normal urgency).
	NotificationLevelWarning
	// NotificationLevelError is for error messages (critical urgency, Strong tier).
	NotificationLevelError
)

// urgency maps the level to a D-Bus urgency byte.
func (l NotificationLevel) urgency() byte {
	switch l {
	case NotificationLevelInfo:
		return 0
	case NotificationLevelError:
		return 2
	default:
		return 1
	}
}

// InternalNotifier posts notices about alertflow's own state through the
// same path as D-Bus notifications, so they compete for the display like
// any other request. Identical notices are rate limited.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger

	// Handler for posting notifications
	notifyHandler func(notification *dbus.DBusNotification) (uint32, error)

	// Rate limiting
	lastNotifyTime map[string]time.Time // key -> last notification time
	minInterval    time.Duration        // minimum time between same notifications
	now            func() time.Time

	// Enabled flag
	enabled bool
}

// NewInternalNotifier creates a new InternalNotifier.
func NewInternalNotifier(logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalNotifier{
		logger:         logger,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    5 * time.Second, // Don't repeat same notification within 5 seconds
		now:            time.Now,
		enabled:        true,
	}
}

// SetNotifyHandler sets the function to call when posting a notification,
// normally (*dbus.NotificationServer).Post.
func (n *InternalNotifier) SetNotifyHandler(handler func(notification *dbus.DBusNotification) (uint32, error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifyHandler = handler
}

// SetEnabled enables or disables internal notifications.
func (n *InternalNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetMinInterval sets the minimum interval between duplicate notifications.
func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

// Notify posts an internal notification if not rate-limited.
// The key is used for rate limiting - same key won't notify again within minInterval.
func (n *InternalNotifier) Notify(key, summary, body string, level NotificationLevel) {
	n.mu.Lock()
	if !n.enabled {
		n.mu.Unlock()
		return
	}

	handler := n.notifyHandler
	if handler == nil {
		n.mu.Unlock()
		n.logger.Debug("internal notification skipped: no handler", "summary", summary)
		return
	}

	now := n.now()
	if lastTime, ok := n.lastNotifyTime[key]; ok && now.Sub(lastTime) < n.minInterval {
		n.mu.Unlock()
		n.logger.Debug("internal notification rate-limited", "key", key, "summary", summary)
		return
	}
	n.lastNotifyTime[key] = now
	n.mu.Unlock()

	notification := &dbus.DBusNotification{
		AppName: "alertflow",
		Summary: summary,
		Body:    body,
		Hints: map[string]godbus.Variant{
			"urgency":       godbus.MakeVariant(level.urgency()),
			"category":      godbus.MakeVariant("device"),
			"desktop-entry": godbus.MakeVariant("alertflow"),
		},
		ExpireTimeout: -1,
	}

	// Set icon based on level
	switch level {
	case NotificationLevelInfo:
		notification.AppIcon = "dialog-information"
	case NotificationLevelWarning:
		notification.AppIcon = "dialog-warning"
	case NotificationLevelError:
		notification.AppIcon = "dialog-error"
	}

	n.logger.Debug("sending internal notification", "key", key, "summary", summary, "level", level)

	if _, err := handler(notification); err != nil {
		n.logger.Warn("failed to post internal notification", "key", key, "error", err)
	}
}

// NotifyConfigReloaded sends a notification about config being reloaded.
func (n *InternalNotifier) NotifyConfigReloaded() {
	n.Notify(
		"config-reload",
		"Configuration Reloaded",
		"alertflow configuration has been successfully reloaded.",
		NotificationLevelInfo,
	)
}

// NotifyConfigError sends a notification about config validation error.
func (n *InternalNotifier) NotifyConfigError(err error) {
	n.Notify(
		"config-error",
		"Configuration Error",
		"Failed to reload configuration: "+err.Error(),
		NotificationLevelWarning,
	)
}

// NotifyDnDChanged sends a notification about DnD state change. While DnD
// is on the notice is Weak and the interrupt drops it.
func (n *InternalNotifier) NotifyDnDChanged(enabled bool) {
	summary := "Do Not Disturb Disabled"
	body := "Notifications will now be displayed."
	if enabled {
		summary = "Do Not Disturb Enabled"
		body = "Only critical notifications will be displayed."
	}
	n.Notify("dnd-change", summary, body, NotificationLevelInfo)
}

// NotifyStartup sends a notification that the daemon has started.
func (n *InternalNotifier) NotifyStartup(version string) {
	n.Notify(
		"startup",
		"alertflow Started",
		"alertflow "+version+" is now arbitrating notifications.",
		NotificationLevelInfo,
	)
}
