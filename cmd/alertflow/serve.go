package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/alertflow/internal/config"
	"github.com/jmylchreest/alertflow/internal/daemon"
	"github.com/jmylchreest/alertflow/internal/dbus"
	"github.com/jmylchreest/alertflow/internal/dnd"
	"github.com/jmylchreest/alertflow/internal/flow"
	"github.com/jmylchreest/alertflow/internal/telemetry"
	"github.com/jmylchreest/alertflow/internal/trace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Arbitrate desktop notifications received over D-Bus",
	Long: `Claim org.freedesktop.Notifications on the session bus and submit every
notification to a scope. Urgency maps to tier: critical notifications are
strong, low urgency ones are weak.

The Do Not Disturb state file is watched; while DnD is on an interrupt is
held on the scope. A renderer follows the scope through the
io.github.jmylchreest.alertflow.Control interface.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("starting alertflow", "version", version, "scope", cfg.Display.Scope)

	registry := flow.NewRegistry(scopeOptions())
	defer registry.Close()

	if cfg.Telemetry.Enabled {
		provider := telemetry.NewProvider(logger)
		observer, err := telemetry.NewObserver(provider.Meter())
		if err != nil {
			return fmt.Errorf("failed to create telemetry observer: %w", err)
		}
		registry.OnCreate(func(s *flow.Scope) { s.Subscribe("telemetry", observer) })
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(ctx); err != nil {
				logger.Warn("failed to shut down telemetry", "error", err)
			}
		}()
	}

	if cfg.Trace.Path != "" {
		w, err := trace.NewFileWriter(cfg.Trace.Path, cfg.Display.Scope)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		w.SetLogger(logger)
		registry.OnCreate(func(s *flow.Scope) { s.Subscribe("trace", w) })
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("failed to close trace", "error", err)
			}
		}()
	}

	scope := registry.Scope(cfg.Display.Scope)

	server := dbus.NewNotificationServer(scope, logger)
	info := dbus.DefaultServerInfo()
	info.Version = version
	server.SetServerInfo(info)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start D-Bus server: %w", err)
	}
	defer func() {
		if err := server.Stop(); err != nil {
			logger.Warn("failed to stop D-Bus server", "error", err)
		}
	}()

	notifier := daemon.NewInternalNotifier(logger)
	notifier.SetNotifyHandler(server.Post)

	configWatcher, err := daemon.NewConfigWatcher(globalOpts.configPath, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if !globalOpts.verbose {
		configWatcher.SetLevelVar(logLevel)
	}
	configWatcher.SetDelaySetter(registry)
	configWatcher.SetReloadCallback(func(*config.Config) { notifier.NotifyConfigReloaded() })
	configWatcher.SetErrorCallback(notifier.NotifyConfigError)
	if err := configWatcher.Start(); err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	defer func() {
		if err := configWatcher.Stop(); err != nil {
			logger.Warn("failed to stop config watcher", "error", err)
		}
	}()

	watcher, err := dnd.NewWatcher(scope, cfg.DnDStatePath(), cfg.DnD.ScopePath, logger)
	if err != nil {
		return fmt.Errorf("failed to create DnD watcher: %w", err)
	}
	watcher.SetChangeCallback(notifier.NotifyDnDChanged)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start DnD watcher: %w", err)
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			logger.Warn("failed to stop DnD watcher", "error", err)
		}
	}()

	notifier.NotifyStartup(version)

	// SIGHUP reloads the config, the others shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				_ = configWatcher.Reload()
				continue
			}
			logger.Info("received signal, shutting down", "signal", sig)
		case <-cmd.Context().Done():
			logger.Info("context done, shutting down")
		}
		return nil
	}
}
