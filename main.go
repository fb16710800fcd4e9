// pulsebar is a status bar content generator for swaybar, i3bar and
// terminals.
//
// Each configured module owns one slot of the bar. Reactive modules follow
// D-Bus properties (iwd, BlueZ); timer-driven modules poll clocks, sysfs,
// host metrics, tailscaled and Kubernetes. Every change is rendered to
// stdout in the selected output format.
//
// Usage:
//
//	pulsebar [flags]
//
// Flags:
//
//	-config string    Path to configuration file (default: ~/.config/pulsebar/config.toml)
//	-format string    Output format override (auto|debug|swaybar|i3bar|term)
//	-status           Print the status of a running bar and exit
//	-verbose          Enable verbose logging
//	-version          Print version and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"gitlab.com/tinyland/lab/pulsebar/pkg/bar"
	"gitlab.com/tinyland/lab/pulsebar/pkg/config"
	"gitlab.com/tinyland/lab/pulsebar/pkg/daemon"
	"gitlab.com/tinyland/lab/pulsebar/pkg/format"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		formatName  = flag.String("format", "", "Output format override (auto|debug|swaybar|i3bar|term)")
		showStatus  = flag.Bool("status", false, "Print the status of a running bar and exit")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pulsebar %s (%s) built %s\n", version, commit, date)
		os.Exit(0)
	}

	cfg, source, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *formatName != "" {
		cfg.Format = *formatName
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if *showStatus {
		os.Exit(printStatus(cfg.Daemon.Socket))
	}

	// stdout carries the bar protocol; logs go to stderr and the log file.
	logOut := io.Writer(os.Stderr)
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
			os.Exit(1)
		}
		logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stderr, logFile)
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("pulsebar failed", "config", source, "err", err)
		os.Exit(1)
	}
}

// run owns the bar's lifetime: it returns when a shutdown signal arrives or
// every module stream has ended.
func run(cfg *config.Config, logger *slog.Logger) error {
	th, err := resolveTheme(cfg)
	if err != nil {
		return err
	}

	if cfg.Daemon.PIDFile != "" {
		if err := daemon.AcquirePID(cfg.Daemon.PIDFile); err != nil {
			return err
		}
		defer daemon.ReleasePID(cfg.Daemon.PIDFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := modules.NewTrigger()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, unix.SIGUSR1)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				if sig == unix.SIGUSR1 {
					logger.Debug("refresh requested")
					trigger.Fire()
					continue
				}
				logger.Info("received shutdown signal", "signal", sig)
				cancel()
				return
			}
		}
	}()

	b := newBuilder(th, logger, trigger)
	defer b.close()
	mods, err := b.build(cfg.Modules)
	if err != nil {
		return err
	}

	sink, closeSink, err := newSink(cfg, th, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	registry := modules.NewRegistry()
	if cfg.Daemon.Socket != "" {
		srv := daemon.NewIPCServer(cfg.Daemon.Socket, &daemon.StatusHandler{
			Registry: registry,
			Refresh:  trigger.Fire,
		}, logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()
	}

	logger.Info("starting pulsebar", "version", version, "format", cfg.Format, "modules", len(mods))
	return bar.New(sink, mods, bar.WithLogger(logger), bar.WithRegistry(registry)).Run(ctx)
}

// newSink builds the primary stdout sink, teed with the MQTT publisher when
// enabled.
func newSink(cfg *config.Config, th theme.Theme, logger *slog.Logger) (bar.Sink, func(), error) {
	primary, err := format.New(cfg.Format, os.Stdout, format.Options{
		Theme:    th,
		MaxWidth: cfg.Term.MaxWidth,
	})
	if err != nil {
		return nil, nil, err
	}
	if !cfg.MQTT.Enabled {
		return primary, func() {}, nil
	}

	pub := format.NewMQTT(format.MQTTConfig{
		Broker:   cfg.MQTT.Broker,
		Topic:    cfg.MQTT.Topic,
		ClientID: cfg.MQTT.ClientID,
		QoS:      byte(cfg.MQTT.QoS),
		Timeout:  cfg.MQTT.Timeout.Duration,
	}, logger)
	return format.Tee(primary, pub), pub.Close, nil
}

func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		return config.Load()
	}
	cfg, err := config.LoadFromFile(path)
	return cfg, path, err
}

func resolveTheme(cfg *config.Config) (theme.Theme, error) {
	if cfg.ThemeFile != "" {
		return theme.LoadFile(cfg.ThemeFile)
	}
	th, ok := theme.Lookup(cfg.Theme)
	if !ok {
		return theme.Theme{}, fmt.Errorf("unknown theme %q (available: %s)", cfg.Theme, strings.Join(theme.Names(), ", "))
	}
	return th, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// printStatus queries a running bar and prints its slots as JSON.
func printStatus(socket string) int {
	if socket == "" {
		fmt.Fprintln(os.Stderr, "no daemon.socket configured")
		return 1
	}
	statuses, err := daemon.NewIPCClient(socket).Status()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			fmt.Fprintln(os.Stderr, "pulsebar is not running")
		} else {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
		}
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(statuses); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	return 0
}
