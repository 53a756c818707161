// Package tripwire implements the fast-path degradation detector (spec.md
// §4.3): a pure function over an uplink snapshot and config thresholds,
// grounded in tripwire_check in src/pathsteerd/pathsteerd.c.
package tripwire

import (
	"pathsteer/internal/aggregator"
	"pathsteer/internal/model"
)

// Thresholds holds the tripwire's configurable parameters.
type Thresholds struct {
	RTTStepMs      float64
	ProbeMissCount int
	RSRPDropDBM    float64
	SINRDropDB     float64
}

// Check evaluates every trigger against the active uplink in the fixed order
// of spec.md's table and returns the first one that fires, or TriggerNone.
// MANUAL is never returned here — it is synthesized directly by command
// ingress (spec.md §4.8 "trigger" command).
func Check(u *model.Uplink, th Thresholds) model.Trigger {
	if mean, ok := aggregator.RecentSuccessfulRTTMean(u.History, 3); ok {
		if mean-u.RTTBaselineMs >= th.RTTStepMs {
			return model.TriggerRTTStep
		}
	}

	if u.ConsecutiveFailures >= th.ProbeMissCount {
		return model.TriggerProbeMiss
	}

	if !u.Reachable {
		return model.TriggerLinkDown
	}

	if u.Kind == model.KindLTE && u.Cellular.SignalPowerDBM < th.RSRPDropDBM {
		return model.TriggerRSRPDrop
	}

	if u.Kind == model.KindSAT {
		if u.Satellite.Obstructed || (u.Satellite.PredictedObstructionETAS > 0 && u.Satellite.PredictedObstructionETAS < 5) {
			return model.TriggerSatObstructed
		}
	}

	return model.TriggerNone
}
