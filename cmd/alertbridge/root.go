package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/opennms-forks/alertbridge/internal/bridge"
	"github.com/opennms-forks/alertbridge/internal/config"
)

var (
	configPath string
	verbose    bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "alertbridge",
	Short: "Forward OpenNMS alarms and node inventory to Alertmanager",
	Long: `alertbridge consumes an OpenNMS-style alarm stream and node-inventory
stream and forwards the current state of every active alarm to a
Prometheus Alertmanager v2 HTTP endpoint, re-sending on a fixed cadence
so Alertmanager's view survives restarts on either side.`,
	RunE: runBridge,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional config.yaml overlay")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")
}

func runBridge(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("alertbridge: loading config: %w", err)
	}
	logStartupConfig(log, cfg)

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("alertbridge: connecting to NATS at %s: %w", cfg.NATSURL, err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("alertbridge: acquiring JetStream context: %w", err)
	}

	b, err := bridge.New(cfg, js, log)
	if err != nil {
		return fmt.Errorf("alertbridge: constructing bridge: %w", err)
	}

	log.Info("alertbridge starting",
		"admin_addr", cfg.AdminAddr,
		"alertmanager_enabled", cfg.Alertmanager.Enabled,
		"resend_interval", cfg.Alert.ResendInterval)

	if err := b.Run(rootCtx); err != nil {
		return fmt.Errorf("alertbridge: %w", err)
	}
	log.Info("alertbridge stopped")
	return nil
}

// logStartupConfig logs the resolved configuration once at startup, with
// the Alertmanager URL's credentials (if embedded in the URL) elided.
func logStartupConfig(log *slog.Logger, cfg *config.Config) {
	log.Info("resolved configuration",
		"alertmanager_url", redactURL(cfg.Alertmanager.URL),
		"alertmanager_enabled", cfg.Alertmanager.Enabled,
		"topics_alarms", cfg.Topics.Alarms,
		"topics_nodes", cfg.Topics.Nodes,
		"alert_resend_interval", cfg.Alert.ResendInterval,
		"alert_resolved_retention", cfg.Alert.ResolvedRetention,
		"nats_url", redactURL(cfg.NATSURL),
		"admin_addr", cfg.AdminAddr,
	)
}

func redactURL(raw string) string {
	at := -1
	for i := 0; i < len(raw); i++ {
		if raw[i] == '@' {
			at = i
		}
	}
	if at == -1 {
		return raw
	}
	schemeEnd := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == '/' && i > 0 && raw[i-1] == '/' {
			schemeEnd = i + 1
			break
		}
	}
	return raw[:schemeEnd] + "***:***" + raw[at:]
}
