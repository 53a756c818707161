// Package routeactuator atomically moves service routing to a target uplink
// and verifies the swap by reading back routing state (spec.md §4.6),
// grounded in execute_switch in src/pathsteerd/pathsteerd.c.
package routeactuator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"pathsteer/internal/execx"
)

// Actuator replaces the default route inside a service-IP namespace.
type Actuator struct {
	r       execx.Runner
	ns      string
	timeout time.Duration
}

// NewActuator builds an Actuator operating inside the given namespace.
func NewActuator(r execx.Runner, ns string) *Actuator {
	if r == nil {
		r = execx.NewOSRunner(os.Stdout, os.Stderr)
	}
	return &Actuator{r: r, ns: ns, timeout: 2 * time.Second}
}

// Switch replaces the default route to egress via dev toward gw, then reads
// it back and compares. Returns verified=true only if the read-back exactly
// matches what was requested — per spec.md, the caller must not update
// active_uplink unless verified is true.
func (a *Actuator) Switch(ctx context.Context, dev, gw string) (verified bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.run(ctx, "route", "replace", "default", "via", gw, "dev", dev); err != nil {
		return false, fmt.Errorf("route replace: %w", err)
	}

	out, err := a.output(ctx, "route", "show", "default")
	if err != nil {
		return false, fmt.Errorf("route show: %w", err)
	}

	return routeMatches(out, dev, gw), nil
}

func routeMatches(out, dev, gw string) bool {
	fields := strings.Fields(out)
	var gotDev, gotGW string
	for i := 0; i+1 < len(fields); i++ {
		switch fields[i] {
		case "dev":
			gotDev = fields[i+1]
		case "via":
			gotGW = fields[i+1]
		}
	}
	return gotDev == dev && gotGW == gw
}

func (a *Actuator) run(ctx context.Context, args ...string) error {
	if a.ns != "" {
		nsArgs := append([]string{"netns", "exec", a.ns, "ip"}, args...)
		return a.r.RunContext(ctx, "ip", nsArgs...)
	}
	return a.r.RunContext(ctx, "ip", args...)
}

func (a *Actuator) output(ctx context.Context, args ...string) (string, error) {
	if a.ns != "" {
		nsArgs := append([]string{"netns", "exec", a.ns, "ip"}, args...)
		return a.r.OutputContext(ctx, "ip", nsArgs...)
	}
	return a.r.OutputContext(ctx, "ip", args...)
}
