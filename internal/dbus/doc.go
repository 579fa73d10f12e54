// Package dbus bridges the org.freedesktop.Notifications D-Bus interface
// onto an arbitration scope. Every Notify call becomes a presentation
// request whose tier follows the urgency hint; a small control interface
// lets a renderer find out what is visible and report actions and
// dismissals back.
package dbus
