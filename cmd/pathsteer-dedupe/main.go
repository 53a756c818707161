// Command pathsteer-dedupe runs the Controller Dedup Engine: one UDP
// receiver per configured tunnel input, a shared flow table that collapses
// duplicate arrivals from bonded uplinks, and an HTTP surface for metrics
// and the Edge node's route-switch advisory (spec.md §4.10).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pathsteer/internal/config"
	"pathsteer/internal/dedupe"
	"pathsteer/internal/dedupeserver"
	"pathsteer/internal/logging"
	"pathsteer/internal/tunnel"

	"go.uber.org/zap"
)

func main() {
	fs := flag.NewFlagSet("pathsteer-dedupe", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	upstream := fs.String("upstream", "", "UDP address admitted packets are forwarded to")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	_ = fs.Parse(os.Args[1:])

	if *configPath == "" {
		fatal(errors.New("--config is required"))
	}
	if *upstream == "" {
		fatal(errors.New("--upstream is required"))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if cfg.Controller == nil {
		fatal(errors.New("config must contain a controller section"))
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	logger, err := logging.New(*logLevel, "dedupe")
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, *cfg.Controller, *upstream, logger); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func run(ctx context.Context, cfg config.ControllerConfig, upstream string, logger *zap.Logger) error {
	table := dedupe.NewTable(cfg.FlowTableCapacity, time.Duration(cfg.FlowTTLSec)*time.Second)

	forwarder, err := tunnel.NewUDPForwarder(upstream)
	if err != nil {
		return fmt.Errorf("dial upstream: %w", err)
	}
	defer forwarder.Close()

	sourcesPath := filepath.Join(cfg.DataDir, "sources.yaml")
	registry, err := dedupe.LoadSourceRegistry(sourcesPath)
	if err != nil {
		return fmt.Errorf("load source registry: %w", err)
	}

	inputs := cfg.TunnelInputs
	for _, src := range registry.Sources {
		if src.Enabled {
			inputs = append(inputs, src.Listen)
		}
	}
	if len(inputs) == 0 {
		return errors.New("no tunnel inputs configured")
	}

	receivers := make([]*tunnel.UDPReceiver, 0, len(inputs))
	for i, addr := range inputs {
		name := fmt.Sprintf("input-%d", i)
		r := tunnel.NewUDPReceiver(name, addr, table, forwarder, logger)
		if err := r.Start(); err != nil {
			for _, started := range receivers {
				started.Stop()
			}
			return fmt.Errorf("start receiver %s: %w", name, err)
		}
		receivers = append(receivers, r)
	}
	defer func() {
		for _, r := range receivers {
			r.Stop()
		}
	}()

	srv := dedupeserver.New(cfg.Listen, table, logger)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()
	metricsTick := time.NewTicker(10 * time.Second)
	defer metricsTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-serveErr:
			return fmt.Errorf("dedup server: %w", err)
		case now := <-sweep.C:
			table.Sweep(now)
		case <-metricsTick.C:
			s := table.Snapshot()
			logger.Info("dedup metrics",
				zap.Uint64("total", s.Total),
				zap.Uint64("forwarded", s.Forwarded),
				zap.Uint64("dropped", s.Dropped),
				zap.Uint64("active", s.Active))
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
