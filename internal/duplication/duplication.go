// Package duplication installs and tears down the pre-tunnel packet mirror
// rule that bonds traffic from the active uplink's service-gateway veth onto
// the backup's, per spec.md §4.5. Idempotent ensure/run helpers wrapping
// execx.Runner, the same shape as the teacher's wireguard.Manager.
package duplication

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"pathsteer/internal/execx"
)

// Actuator installs/removes an nft mirror rule in the service-IP namespace.
type Actuator struct {
	r       execx.Runner
	ns      string
	timeout time.Duration

	mu      sync.Mutex
	enabled bool
	src     string
	dst     string
}

// NewActuator builds an Actuator operating inside the given service
// namespace. ns may be empty for the single-namespace demo.
func NewActuator(r execx.Runner, ns string) *Actuator {
	if r == nil {
		r = execx.NewOSRunner(os.Stdout, os.Stderr)
	}
	return &Actuator{r: r, ns: ns, timeout: 2 * time.Second}
}

const mirrorTableName = "pathsteer_mirror"

// Enable installs a post-routing mirror rule duplicating traffic from src's
// service veth onto dst's, so both copies reach the Controller bearing the
// same 5-tuple. Re-enabling with the same src/dst is a no-op. A failure is
// returned but never fatal to the caller — actuation proceeds unmirrored.
func (a *Actuator) Enable(ctx context.Context, src, dst string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.enabled && a.src == src && a.dst == dst {
		return nil
	}
	if a.enabled {
		if err := a.teardownLocked(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.ensureTable(ctx); err != nil {
		return err
	}
	if err := a.run(ctx, "add", "chain", "inet", mirrorTableName, "mirror",
		"{", "type", "filter", "hook", "postrouting", "priority", "0", ";", "}"); err != nil && !alreadyExists(err) {
		return err
	}
	if err := a.run(ctx, "add", "rule", "inet", mirrorTableName, "mirror",
		"oifname", src, "dup", "to", dst); err != nil {
		return fmt.Errorf("install mirror rule %s->%s: %w", src, dst, err)
	}

	a.enabled = true
	a.src = src
	a.dst = dst
	return nil
}

// Disable tears down the mirror rule. A no-op if not enabled.
func (a *Actuator) Disable(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.teardownLocked(ctx)
}

// Enabled reports whether a mirror rule is currently installed.
func (a *Actuator) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *Actuator) teardownLocked(ctx context.Context) error {
	err := a.run(ctx, "delete", "table", "inet", mirrorTableName)
	a.enabled = false
	a.src = ""
	a.dst = ""
	if err != nil && !strings.Contains(err.Error(), "No such file") {
		return err
	}
	return nil
}

func (a *Actuator) ensureTable(ctx context.Context) error {
	err := a.run(ctx, "add", "table", "inet", mirrorTableName)
	if err == nil || alreadyExists(err) {
		return nil
	}
	return err
}

func (a *Actuator) run(ctx context.Context, args ...string) error {
	if a.ns != "" {
		nsArgs := append([]string{"netns", "exec", a.ns, "nft"}, args...)
		return a.r.RunContext(ctx, "ip", nsArgs...)
	}
	return a.r.RunContext(ctx, "nft", args...)
}

func alreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "File exists")
}
