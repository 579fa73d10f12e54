package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/alertflow/internal/config"
	"github.com/jmylchreest/alertflow/internal/flow"
	"github.com/jmylchreest/alertflow/internal/monitor"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose    bool
		configPath string
	}
	logger   *slog.Logger
	logLevel = new(slog.LevelVar)
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "alertflow",
	Short: "Arbitration engine for alerts and notifications",
	Long: `alertflow decides which alert is visible at any moment.

Requests are ranked as strong, normal or weak. Strong requests are never
interrupted, the newest normal request wins, and weak requests only show
when nothing else is pending. A disappearing delay separates two different
requests on the same display slot.

Use 'alertflow simulate' to replay a scenario script, or 'alertflow serve'
to arbitrate desktop notifications received over D-Bus.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return setupLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/alertflow/config.toml)")
}

// setupLogger configures the global slog logger from the config's log
// level. --verbose always wins.
func setupLogger() error {
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	if globalOpts.verbose {
		level = slog.LevelDebug
	}
	logLevel.Set(level)

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
	return nil
}

// scopeOptions builds the scope options from the loaded config.
func scopeOptions() flow.Options {
	opts := flow.Options{
		Delay:           cfg.ScopeDelay(),
		LingerOnDismiss: cfg.Display.DelayAfterDismiss,
		Logger:          logger,
	}
	if cfg.Fatal.Strict {
		opts.FatalPolicy = monitor.FatalPanic
	}
	return opts
}
