package dbus

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/alertflow/internal/model"
)

func TestCloseReasonString(t *testing.T) {
	tests := []struct {
		reason   CloseReason
		expected string
	}{
		{CloseReasonExpired, "expired"},
		{CloseReasonDismissed, "dismissed"},
		{CloseReasonClosed, "closed"},
		{CloseReasonUndefined, "undefined"},
		{CloseReason(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.reason.String())
		})
	}
}

func TestParsedActions(t *testing.T) {
	tests := []struct {
		name     string
		actions  []string
		expected []model.Action
	}{
		{
			name:     "empty",
			actions:  nil,
			expected: []model.Action{},
		},
		{
			name:     "single action",
			actions:  []string{"default", "Open"},
			expected: []model.Action{{Key: "default", Label: "Open"}},
		},
		{
			name:    "multiple actions",
			actions: []string{"default", "Open", "dismiss", "Dismiss", "reply", "Reply"},
			expected: []model.Action{
				{Key: "default", Label: "Open"},
				{Key: "dismiss", Label: "Dismiss"},
				{Key: "reply", Label: "Reply"},
			},
		},
		{
			name:     "odd number (incomplete pair ignored)",
			actions:  []string{"default", "Open", "orphan"},
			expected: []model.Action{{Key: "default", Label: "Open"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &DBusNotification{Actions: tt.actions}
			assert.Equal(t, tt.expected, n.ParsedActions())
		})
	}
}

func TestUrgency(t *testing.T) {
	tests := []struct {
		name     string
		hints    map[string]dbus.Variant
		expected int
	}{
		{
			name:     "no hint",
			hints:    nil,
			expected: model.UrgencyNormal,
		},
		{
			name:     "low urgency",
			hints:    map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(0))},
			expected: model.UrgencyLow,
		},
		{
			name:     "normal urgency",
			hints:    map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))},
			expected: model.UrgencyNormal,
		},
		{
			name:     "critical urgency",
			hints:    map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(2))},
			expected: model.UrgencyCritical,
		},
		{
			name:     "wrong type returns normal",
			hints:    map[string]dbus.Variant{"urgency": dbus.MakeVariant("high")},
			expected: model.UrgencyNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &DBusNotification{Hints: tt.hints}
			assert.Equal(t, tt.expected, n.Urgency())
		})
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		name     string
		hints    map[string]dbus.Variant
		expected string
	}{
		{
			name:     "no hint",
			hints:    nil,
			expected: "",
		},
		{
			name:     "email category",
			hints:    map[string]dbus.Variant{"category": dbus.MakeVariant("email.arrived")},
			expected: "email.arrived",
		},
		{
			name:     "wrong type",
			hints:    map[string]dbus.Variant{"category": dbus.MakeVariant(123)},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &DBusNotification{Hints: tt.hints}
			assert.Equal(t, tt.expected, n.Category())
		})
	}
}

func TestDesktopEntry(t *testing.T) {
	n := &DBusNotification{
		Hints: map[string]dbus.Variant{
			"desktop-entry": dbus.MakeVariant("firefox"),
		},
	}
	assert.Equal(t, "firefox", n.DesktopEntry())

	n.Hints = nil
	assert.Equal(t, "", n.DesktopEntry())
}

func TestSource(t *testing.T) {
	n := &DBusNotification{AppName: "Firefox"}
	assert.Equal(t, "Firefox", n.Source())

	n.Hints = map[string]dbus.Variant{"desktop-entry": dbus.MakeVariant("firefox")}
	assert.Equal(t, "firefox", n.Source())
}

func TestRequest(t *testing.T) {
	tests := []struct {
		name    string
		urgency byte
		want    model.Tier
	}{
		{"low is weak", 0, model.TierWeak},
		{"normal is normal", 1, model.TierNormal},
		{"critical is strong", 2, model.TierStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &DBusNotification{
				AppName: "mail",
				Summary: "New mail",
				Body:    "3 unread",
				Actions: []string{"open", "Open"},
				Hints:   map[string]dbus.Variant{"urgency": dbus.MakeVariant(tt.urgency)},
			}

			r, err := n.Request()
			require.NoError(t, err)
			assert.NotEmpty(t, r.ID)
			assert.Equal(t, tt.want, r.Tier)
			assert.Equal(t, "New mail", r.Payload.Title)
			assert.Equal(t, "3 unread", r.Payload.Message)
			assert.Equal(t, "mail", r.Payload.Source)
			assert.Equal(t, []model.Action{{Key: "open", Label: "Open"}}, r.Payload.Actions)
		})
	}
}

func TestDefaultServerInfo(t *testing.T) {
	info := DefaultServerInfo()
	assert.Equal(t, "alertflow", info.Name)
	assert.Equal(t, "jmylchreest", info.Vendor)
	assert.Equal(t, "1.2", info.SpecVersion)
	assert.NotEmpty(t, info.Version)
}

func TestServerCapabilities(t *testing.T) {
	assert.Contains(t, ServerCapabilities, "actions")
	assert.Contains(t, ServerCapabilities, "body")
	assert.NotContains(t, ServerCapabilities, "persistence")
}
