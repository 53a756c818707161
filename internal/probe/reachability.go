package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// Reachability performs a STUN binding request against target as a fast,
// connectionless check that the SAT/FIBER uplink's namespace can still reach
// a public resolver, adapted from the teacher's stunutil.probeServer. It
// reports RTT on success; the binding result itself is otherwise unused.
func Reachability(ctx context.Context, target string, timeout time.Duration) (time.Duration, error) {
	uriStr := strings.TrimSpace(target)
	if uriStr == "" {
		return 0, fmt.Errorf("empty reachability target")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return 0, err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return 0, err
	}
	defer client.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	done := make(chan error, 1)

	start := time.Now()
	err = client.Do(msg, func(res stun.Event) {
		done <- res.Error
	})
	if err != nil {
		return 0, err
	}

	select {
	case err := <-done:
		if err != nil {
			return 0, err
		}
		return time.Since(start), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// NamespaceRunner is the command runner NamespaceProbeDuration uses to run
// the reachability check "inside" an uplink's isolated network namespace by
// shelling out to ip netns exec, matching spec.md §4.1's description of
// SAT/FIBER probes executing in-namespace.
type NamespaceRunner interface {
	OutputContext(ctx context.Context, name string, args ...string) (string, error)
}

// NamespaceProbeDuration parses the stdout produced by the pathsteer-probe
// helper binary run under ip netns exec as a Go duration string (for example
// "12.5ms"); a bare number without a unit is rejected. Kept separate from
// Reachability so the direct (no-namespace) path never shells out.
func NamespaceProbeDuration(ctx context.Context, runner NamespaceRunner, ns, probeBin, target string, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := runner.OutputContext(ctx, "ip", "netns", "exec", ns, probeBin, "-target", target, "-timeout", timeout.String())
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse probe output %q: %w", out, err)
	}
	return d, nil
}
