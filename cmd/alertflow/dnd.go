package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/alertflow/internal/dnd"
)

var dndOpts struct {
	quiet bool // Suppress output, return exit code only
}

// dndCmd represents the dnd command group.
var dndCmd = &cobra.Command{
	Use:   "dnd",
	Short: "Manage Do Not Disturb mode",
	Long: `Manage Do Not Disturb (DnD) mode.

While DnD is enabled, 'alertflow serve' holds an interrupt on its scope:
normal notifications queue up, weak ones are dropped and strong ones still
show.

Use 'alertflow dnd status' to check the current state.
Use 'alertflow dnd on' to enable DnD mode.
Use 'alertflow dnd off' to disable DnD mode.
Use 'alertflow dnd toggle' to toggle DnD mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to showing status
		return dndStatusRun(cmd, args)
	},
}

// dndOnCmd enables DnD mode.
var dndOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Enable Do Not Disturb mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dndUpdate(func(s *dnd.State) { s.Set(true, dnd.TriggerUser, "dnd on", "cli") })
	},
}

// dndOffCmd disables DnD mode.
var dndOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Disable Do Not Disturb mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dndUpdate(func(s *dnd.State) { s.Set(false, dnd.TriggerUser, "dnd off", "cli") })
	},
}

// dndToggleCmd toggles DnD mode.
var dndToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle Do Not Disturb mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dndUpdate(func(s *dnd.State) { s.Toggle(dnd.TriggerUser, "dnd toggle", "cli") })
	},
}

// dndStatusCmd shows DnD status.
var dndStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Do Not Disturb status",
	RunE:  dndStatusRun,
}

func init() {
	// Add subcommands
	dndCmd.AddCommand(dndOnCmd)
	dndCmd.AddCommand(dndOffCmd)
	dndCmd.AddCommand(dndToggleCmd)
	dndCmd.AddCommand(dndStatusCmd)

	// Add flags to all subcommands
	for _, cmd := range []*cobra.Command{dndCmd, dndOnCmd, dndOffCmd, dndToggleCmd, dndStatusCmd} {
		cmd.Flags().BoolVarP(&dndOpts.quiet, "quiet", "q", false,
			"Suppress output, return exit code only (0=off, 1=on)")
	}

	// Add to root
	rootCmd.AddCommand(dndCmd)
}

// dndUpdate loads the state file, applies fn and saves it back.
func dndUpdate(fn func(*dnd.State)) error {
	path := cfg.DnDStatePath()
	state, err := dnd.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	fn(state)
	if err := dnd.Save(path, state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	return dndReport(state)
}

func dndStatusRun(cmd *cobra.Command, args []string) error {
	state, err := dnd.Load(cfg.DnDStatePath())
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	return dndReport(state)
}

// dndReport prints the state and exits with 1 while DnD is on.
func dndReport(state *dnd.State) error {
	if !dndOpts.quiet {
		if state.Enabled {
			fmt.Println("Do Not Disturb: enabled")
		} else {
			fmt.Println("Do Not Disturb: disabled")
		}

		if t := state.LastTransition; t != nil {
			fmt.Printf("  Last change: %s\n", formatTransitionTime(t.Timestamp))
			fmt.Printf("  Trigger: %s\n", t.Trigger)
			if t.Reason != "" {
				fmt.Printf("  Reason: %s\n", t.Reason)
			}
			if t.Source != "" {
				fmt.Printf("  Source: %s\n", t.Source)
			}
		}
	}

	// Exit code: 0=off, 1=on
	if state.Enabled {
		os.Exit(1)
	}
	return nil
}

// formatTransitionTime formats a unix timestamp as a human-readable relative time.
func formatTransitionTime(timestamp int64) string {
	return humanize.Time(time.Unix(timestamp, 0))
}
