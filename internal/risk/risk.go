// Package risk computes the per-uplink current-risk estimate every 250ms
// (spec.md §4.4): a pure feature blend, grounded in src/pathsteerd/pathsteerd.c's
// risk accumulation inside slowpath_arbitrate. The scorer never actuates.
package risk

import "pathsteer/internal/model"

// Score computes risk_now in [0,1] for u. Callers hold the Store lock around
// the call; Score itself is pure.
func Score(u *model.Uplink) float64 {
	var risk float64

	if u.RTTBaselineMs > 0 && u.RTTCurrentMs > 1.5*u.RTTBaselineMs {
		risk += 0.3
	}

	lossPct := u.LossPercent()
	switch {
	case lossPct > 50:
		risk += 0.5
	case lossPct > 20:
		risk += 0.4
	case lossPct > 5:
		risk += 0.3
	}

	failures := u.ConsecutiveFailures
	if failures > 5 {
		failures = 5
	}
	risk += 0.2 * float64(failures)

	if u.Kind == model.KindSAT {
		risk += 0.01 * u.Satellite.ObstructionFraction * 100
	}

	if u.Kind == model.KindLTE && u.Cellular.SignalPowerDBM < -110 {
		risk += 0.4
	}

	if risk > 1 {
		risk = 1
	}
	if risk < 0 {
		risk = 0
	}
	return risk
}

// Recommendation maps a global risk value to a recommended state, per
// spec.md §4.4's thresholds (≥0.7 PROTECT, ≥0.4 PREPARE, else NORMAL).
func Recommendation(globalRisk float64) model.State {
	switch {
	case globalRisk >= 0.7:
		return model.StateProtect
	case globalRisk >= 0.4:
		return model.StatePrepare
	default:
		return model.StateNormal
	}
}
