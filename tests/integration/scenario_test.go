// Package integration drives the Edge Steering Engine's state machine,
// tripwire, arbiter, and actuators together through the same decide-then-act
// sequence internal/engine runs per tick (spec.md §5, §8), without needing a
// live network or root. Fake clock values are passed explicitly rather than
// read from time.Now, so each scenario is fully deterministic.
package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"pathsteer/internal/arbiter"
	"pathsteer/internal/duplication"
	"pathsteer/internal/execx"
	"pathsteer/internal/model"
	"pathsteer/internal/routeactuator"
	"pathsteer/internal/statemachine"
	"pathsteer/internal/tripwire"
)

// scriptedRunner answers "ip route show default" with a canned, possibly
// changing, sequence of outputs so a scenario can script one failed
// verification followed by a successful one. Every other command succeeds
// immediately, mirroring how freely route/nft commands succeed in the fake
// Runner used by internal/routeactuator and internal/duplication's own tests.
type scriptedRunner struct {
	routeShowOutputs []string
	callIdx          int
	cmds             []string
}

func (r *scriptedRunner) Run(name string, args ...string) error {
	r.cmds = append(r.cmds, name+" "+strings.Join(args, " "))
	return nil
}

func (r *scriptedRunner) Output(name string, args ...string) (string, error) {
	if name == "ip" && len(args) >= 2 && args[0] == "route" && args[1] == "show" {
		out := ""
		if r.callIdx < len(r.routeShowOutputs) {
			out = r.routeShowOutputs[r.callIdx]
		}
		r.callIdx++
		return out, nil
	}
	return "", nil
}

func (r *scriptedRunner) RunContext(_ context.Context, name string, args ...string) error {
	return r.Run(name, args...)
}

func (r *scriptedRunner) OutputContext(_ context.Context, name string, args ...string) (string, error) {
	return r.Output(name, args...)
}

var _ execx.Runner = (*scriptedRunner)(nil)

func thresholds() tripwire.Thresholds {
	return tripwire.Thresholds{
		RTTStepMs:      80,
		ProbeMissCount: 2,
		RSRPDropDBM:    -120,
		SINRDropDB:     -6,
	}
}

func smConfig() statemachine.Config {
	return statemachine.Config{
		PrerollMs:    500,
		DupSettleMs:  50,
		MinHoldSec:   3,
		CleanExitSec: 2,
	}
}

func freshUplinks() (cell, fiber *model.Uplink) {
	cell = &model.Uplink{
		Name: "cell_a", Kind: model.KindLTE, Enabled: true, Reachable: true,
		ServiceGatewayVeth: "svc-cell_a", ServiceGatewayIP: "10.90.0.1",
		RTTCurrentMs: 40, RTTBaselineMs: 40,
		Cellular: model.CellularMetrics{SignalPowerDBM: -80},
	}
	fiber = &model.Uplink{
		Name: "fiber_b", Kind: model.KindFiber, Enabled: true, Reachable: true,
		ServiceGatewayVeth: "svc-fiber_b", ServiceGatewayIP: "10.90.0.2",
		RTTCurrentMs: 15, RTTBaselineMs: 15,
	}
	return cell, fiber
}

// TestScenario_CleanCellularFailover drives S1: a cellular uplink's probe
// misses trip PROTECT, duplication engages onto the fiber backup, the
// preroll/settle gate clears, arbitration picks fiber, the route swap
// verifies, and HOLDING exits cleanly back to NORMAL once the new active
// uplink has stayed clean for min-hold + clean-exit.
func TestScenario_CleanCellularFailover(t *testing.T) {
	t.Parallel()

	cell, fiber := freshUplinks()
	sm := statemachine.New(smConfig())
	th := thresholds()

	st := &model.Status{State: model.StateNormal, ActiveUplink: cell.Name}
	cell.CurrentlyActive = true

	t0 := time.Unix(1_700_000_000, 0)

	cell.ConsecutiveFailures = th.ProbeMissCount
	if trig := tripwire.Check(cell, th); trig != model.TriggerProbeMiss {
		t.Fatalf("expected PROBE_MISS trigger, got %q", trig)
	}
	sm.OnTripwireFire(st, model.TriggerProbeMiss, "probe_miss", t0)
	if st.State != model.StateProtect {
		t.Fatalf("expected PROTECT, got %s", st.State)
	}

	runner := &scriptedRunner{routeShowOutputs: []string{"default via 10.90.0.2 dev svc-fiber_b"}}
	dup := duplication.NewActuator(runner, "")
	route := routeactuator.NewActuator(runner, "")
	ctx := context.Background()

	backup := arbiter.Select([]model.Uplink{*fiber})
	if backup != fiber.Name {
		t.Fatalf("expected fiber backup candidate, got %q", backup)
	}
	if err := dup.Enable(ctx, cell.ServiceGatewayVeth, fiber.ServiceGatewayVeth); err != nil {
		t.Fatalf("Enable duplication: %v", err)
	}
	st.DuplicationEnabled = true
	st.DuplicationEnabledAt = t0

	if sm.ReadyForSwitching(st, t0.Add(100*time.Millisecond)) {
		t.Fatalf("should not be ready before preroll elapses")
	}

	t1 := t0.Add(600 * time.Millisecond)
	if !sm.ReadyForSwitching(st, t1) {
		t.Fatalf("expected ready for switching once preroll+settle elapse")
	}
	sm.EnterSwitching(st)

	decision := arbiter.Decide([]model.Uplink{*cell, *fiber}, st.ActiveUplink, st.OperatorForceLocked, st.SwitchesInWindow)
	if !decision.Move || decision.Target != fiber.Name {
		t.Fatalf("expected move to fiber_b, got %+v", decision)
	}

	verified, err := route.Switch(ctx, fiber.ServiceGatewayVeth, fiber.ServiceGatewayIP)
	if err != nil || !verified {
		t.Fatalf("expected verified switch, got verified=%v err=%v", verified, err)
	}
	cell.CurrentlyActive = false
	fiber.CurrentlyActive = true
	st.ActiveUplink = fiber.Name
	st.SwitchesInWindow++
	sm.EnterHolding(st)
	if st.State != model.StateHolding {
		t.Fatalf("expected HOLDING, got %s", st.State)
	}

	fiber.ConsecutiveFailures = 0
	fiber.RTTCurrentMs = fiber.RTTBaselineMs
	fiber.LossFraction = 0

	t2 := t0.Add(1 * time.Second)
	if exited := sm.Tick(st, fiber, t2); exited {
		t.Fatalf("should not exit HOLDING before min-hold elapses")
	}

	t3 := t0.Add(4 * time.Second)
	if exited := sm.Tick(st, fiber, t3); exited {
		t.Fatalf("should not exit HOLDING the instant it first reads clean")
	}

	t4 := t3.Add(2100 * time.Millisecond)
	if exited := sm.Tick(st, fiber, t4); !exited {
		t.Fatalf("expected HOLDING to exit to NORMAL after clean-exit duration")
	}
	if st.State != model.StateNormal {
		t.Fatalf("expected NORMAL, got %s", st.State)
	}
	if st.DuplicationEnabled {
		t.Fatalf("expected duplication disabled on clean exit outside MIRROR mode")
	}
	if err := dup.Disable(ctx); err != nil {
		t.Fatalf("Disable duplication: %v", err)
	}
	if dup.Enabled() {
		t.Fatalf("expected mirror rule torn down")
	}
}

// TestScenario_SwitchVerificationFailureRetries drives S6: the first route
// swap's read-back doesn't match what was requested, so the switch isn't
// committed and the engine falls back to HOLDING on the still-degraded
// active uplink; tripwire fires again, PROTECT resets, and the retried
// switch verifies correctly.
func TestScenario_SwitchVerificationFailureRetries(t *testing.T) {
	t.Parallel()

	cell, fiber := freshUplinks()
	sm := statemachine.New(smConfig())
	th := thresholds()

	st := &model.Status{State: model.StateNormal, ActiveUplink: cell.Name}
	cell.CurrentlyActive = true
	cell.ConsecutiveFailures = th.ProbeMissCount

	runner := &scriptedRunner{routeShowOutputs: []string{
		"default via 10.0.0.1 dev stale0",           // first verification: mismatch
		"default via 10.90.0.2 dev svc-fiber_b",      // retry verification: matches
	}}
	route := routeactuator.NewActuator(runner, "")
	ctx := context.Background()

	t0 := time.Unix(1_700_000_000, 0)
	sm.OnTripwireFire(st, tripwire.Check(cell, th), "probe_miss", t0)
	if st.State != model.StateProtect {
		t.Fatalf("expected PROTECT, got %s", st.State)
	}

	t1 := t0.Add(600 * time.Millisecond)
	if !sm.ReadyForSwitching(st, t1) {
		t.Fatalf("expected ready for switching")
	}
	sm.EnterSwitching(st)

	decision := arbiter.Decide([]model.Uplink{*cell, *fiber}, st.ActiveUplink, st.OperatorForceLocked, st.SwitchesInWindow)
	if !decision.Move {
		t.Fatalf("expected move decision, got %+v", decision)
	}

	verified, err := route.Switch(ctx, fiber.ServiceGatewayVeth, fiber.ServiceGatewayIP)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if verified {
		t.Fatalf("expected first verification to fail")
	}
	sm.EnterHolding(st)
	if st.State != model.StateHolding {
		t.Fatalf("expected HOLDING after failed verification, got %s", st.State)
	}
	if st.ActiveUplink != cell.Name {
		t.Fatalf("active uplink must not change on a failed switch, got %q", st.ActiveUplink)
	}

	// cell_a is still degraded, so the next tick's tripwire check fires again
	// and re-enters PROTECT even though state is HOLDING, not NORMAL.
	t2 := t0.Add(1 * time.Second)
	sm.OnTripwireFire(st, tripwire.Check(cell, th), "probe_miss", t2)
	if st.State != model.StateProtect {
		t.Fatalf("expected retry to re-enter PROTECT, got %s", st.State)
	}
	if st.ProtectionEnteredAt != t2 {
		t.Fatalf("expected protection_entered_at reset on re-entry, got %v", st.ProtectionEnteredAt)
	}

	t3 := t2.Add(600 * time.Millisecond)
	if !sm.ReadyForSwitching(st, t3) {
		t.Fatalf("expected ready for retry switch")
	}
	sm.EnterSwitching(st)

	decision = arbiter.Decide([]model.Uplink{*cell, *fiber}, st.ActiveUplink, st.OperatorForceLocked, st.SwitchesInWindow)
	if !decision.Move {
		t.Fatalf("expected retry move decision, got %+v", decision)
	}

	verified, err = route.Switch(ctx, fiber.ServiceGatewayVeth, fiber.ServiceGatewayIP)
	if err != nil || !verified {
		t.Fatalf("expected retry to verify, got verified=%v err=%v", verified, err)
	}
	st.ActiveUplink = fiber.Name
	st.SwitchesInWindow++
	sm.EnterHolding(st)
	if st.State != model.StateHolding {
		t.Fatalf("expected HOLDING after successful retry, got %s", st.State)
	}
	if st.SwitchesInWindow != 1 {
		t.Fatalf("expected exactly one committed switch across both attempts, got %d", st.SwitchesInWindow)
	}
}
