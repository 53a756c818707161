// Package arbiter selects the best uplink and drives flap/force-lock policy
// (spec.md §4.6), grounded in select_best_uplink in
// src/pathsteerd/pathsteerd.c. Select is a pure function; actuation is the
// caller's responsibility (internal/routeactuator, internal/duplication).
package arbiter

import "pathsteer/internal/model"

// MaxSwitchesPerWindow is the flap-suppression cap (spec.md §4.6, §8 invariant 3).
const MaxSwitchesPerWindow = 3

// Score computes the selection score for u, per the formula in spec.md §4.6.
func Score(u *model.Uplink) float64 {
	score := 100 - u.RTTCurrentMs - 50*u.RiskNow - 10*u.LossPercent()

	if u.Kind == model.KindSAT && u.Satellite.Online && !u.Satellite.Obstructed {
		score += 20
	}
	if u.Kind == model.KindLTE && u.Cellular.SignalPowerDBM > -90 {
		score += 15
	}
	return score
}

// Select picks the best enabled+reachable uplink among uplinks (in stable
// index order, used for tie-breaking), returning its name. Returns "" if no
// candidate is eligible.
func Select(uplinks []model.Uplink) string {
	best := ""
	bestScore := 0.0
	first := true
	for _, u := range uplinks {
		if !u.Enabled || !u.Reachable {
			continue
		}
		s := Score(&u)
		if first || s > bestScore {
			best = u.Name
			bestScore = s
			first = false
		}
	}
	return best
}

// Decision is the outcome of one arbitration pass.
type Decision struct {
	Target         string
	Move           bool
	FlapSuppressed bool
}

// Decide applies force-lock and flap-suppression policy on top of Select,
// per spec.md §4.6: a force lock pins the target to active with no move; a
// switches-in-window count at or above MaxSwitchesPerWindow suppresses
// further moves without clearing the lock state.
func Decide(uplinks []model.Uplink, active string, forceLocked bool, switchesInWindow int) Decision {
	if forceLocked {
		return Decision{Target: active, Move: false}
	}

	target := Select(uplinks)
	if target == "" {
		return Decision{Target: active, Move: false}
	}

	if switchesInWindow >= MaxSwitchesPerWindow {
		return Decision{Target: active, Move: false, FlapSuppressed: true}
	}

	return Decision{Target: target, Move: target != active}
}
