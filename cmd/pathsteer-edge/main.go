// Command pathsteer-edge runs the Edge Steering Engine: probes every bonded
// uplink, evaluates tripwire/arbitration, and drives the duplication and
// route actuators for one node, per spec.md §3-§5.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pathsteer/internal/config"
	"pathsteer/internal/engine"
	"pathsteer/internal/execx"
	"pathsteer/internal/logging"
)

func main() {
	fs := flag.NewFlagSet("pathsteer-edge", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	runID := fs.String("run-id", "", "identifier for this run's event log (default: derived from PID and start time)")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	_ = fs.Parse(os.Args[1:])

	if *configPath == "" {
		fatal(errors.New("--config is required"))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if cfg.Edge == nil {
		fatal(errors.New("config must contain an edge section"))
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	logger, err := logging.New(*logLevel, "edge")
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	id := *runID
	if id == "" {
		id = defaultRunID()
	}

	runner := execx.NewOSRunner(os.Stdout, os.Stderr)
	eng, err := engine.New(*cfg.Edge, runner, logger, id)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

// defaultRunID derives a run identifier from the process start time and PID
// when the operator doesn't supply one, so every invocation gets a distinct
// event log file without requiring external coordination.
func defaultRunID() string {
	return time.Now().UTC().Format("20060102T150405Z") + "-" + strconv.Itoa(os.Getpid())
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
