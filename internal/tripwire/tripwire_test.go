package tripwire

import (
	"testing"
	"time"

	"pathsteer/internal/aggregator"
	"pathsteer/internal/model"
)

func defaultThresholds() Thresholds {
	return Thresholds{RTTStepMs: 80, ProbeMissCount: 2, RSRPDropDBM: -120, SINRDropDB: -6}
}

func newActive(kind model.UplinkKind) *model.Uplink {
	return &model.Uplink{Name: "a", Kind: kind, Reachable: true, History: model.NewHistoryRing(50)}
}

func TestCheck_RTTStep(t *testing.T) {
	t.Parallel()

	u := newActive(model.KindFiber)
	for i := 0; i < 5; i++ {
		aggregator.Update(u, model.ProbeResult{Success: true, RTTMs: 80, At: time.Now()})
	}
	u.RTTBaselineMs = 80
	for i := 0; i < 3; i++ {
		aggregator.Update(u, model.ProbeResult{Success: true, RTTMs: 200, At: time.Now()})
	}
	u.RTTBaselineMs = 80 // hold baseline fixed to isolate the step check

	if got := Check(u, defaultThresholds()); got != model.TriggerRTTStep {
		t.Fatalf("trigger=%v want RTT_STEP", got)
	}
}

func TestCheck_ProbeMiss(t *testing.T) {
	t.Parallel()

	u := newActive(model.KindFiber)
	u.ConsecutiveFailures = 2
	if got := Check(u, defaultThresholds()); got != model.TriggerProbeMiss {
		t.Fatalf("trigger=%v want PROBE_MISS", got)
	}
}

func TestCheck_LinkDown(t *testing.T) {
	t.Parallel()

	u := newActive(model.KindFiber)
	u.Reachable = false
	if got := Check(u, defaultThresholds()); got != model.TriggerLinkDown {
		t.Fatalf("trigger=%v want LINK_DOWN", got)
	}
}

func TestCheck_RSRPDrop(t *testing.T) {
	t.Parallel()

	u := newActive(model.KindLTE)
	u.Cellular.SignalPowerDBM = -130
	if got := Check(u, defaultThresholds()); got != model.TriggerRSRPDrop {
		t.Fatalf("trigger=%v want RSRP_DROP", got)
	}
}

func TestCheck_SatObstruction(t *testing.T) {
	t.Parallel()

	u := newActive(model.KindSAT)
	u.Satellite.PredictedObstructionETAS = 3
	if got := Check(u, defaultThresholds()); got != model.TriggerSatObstructed {
		t.Fatalf("trigger=%v want SAT_OBSTRUCTION", got)
	}
}

func TestCheck_NoneWhenHealthy(t *testing.T) {
	t.Parallel()

	u := newActive(model.KindFiber)
	aggregator.Update(u, model.ProbeResult{Success: true, RTTMs: 50, At: time.Now()})
	if got := Check(u, defaultThresholds()); got != model.TriggerNone {
		t.Fatalf("trigger=%v want none", got)
	}
}
