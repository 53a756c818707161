package aggregator

import (
	"testing"
	"time"

	"pathsteer/internal/model"
)

func newUplink() *model.Uplink {
	return &model.Uplink{Name: "u0", History: model.NewHistoryRing(50)}
}

func TestUpdate_BaselineEMAOnlyOverSuccesses(t *testing.T) {
	t.Parallel()

	u := newUplink()
	Update(u, model.ProbeResult{Success: true, RTTMs: 100, At: time.Now()})
	if u.RTTBaselineMs != 100 {
		t.Fatalf("first success should seed baseline: got %v", u.RTTBaselineMs)
	}

	Update(u, model.ProbeResult{Success: false, At: time.Now()})
	if u.RTTBaselineMs != 100 {
		t.Fatalf("failure must not move baseline: got %v", u.RTTBaselineMs)
	}

	Update(u, model.ProbeResult{Success: true, RTTMs: 200, At: time.Now()})
	want := BaselineAlpha*200 + (1-BaselineAlpha)*100
	if u.RTTBaselineMs != want {
		t.Fatalf("baseline EMA mismatch: got %v want %v", u.RTTBaselineMs, want)
	}
}

func TestUpdate_UnreachableAfterThreshold(t *testing.T) {
	t.Parallel()

	u := newUplink()
	u.Reachable = true
	for i := 0; i < UnreachableAfter; i++ {
		Update(u, model.ProbeResult{Success: false, At: time.Now()})
		if !u.Reachable {
			t.Fatalf("should remain reachable at failure %d", i+1)
		}
	}
	Update(u, model.ProbeResult{Success: false, At: time.Now()})
	if u.Reachable {
		t.Fatalf("should be unreachable after %d consecutive failures", UnreachableAfter+1)
	}
}

func TestUpdate_SuccessClearsUnreachableUnlessForceFailed(t *testing.T) {
	t.Parallel()

	u := newUplink()
	u.Reachable = false
	u.OperatorForceFail = true
	Update(u, model.ProbeResult{Success: true, RTTMs: 50, At: time.Now()})
	if u.Reachable {
		t.Fatalf("force-failed uplink must stay unreachable on success (invariant I2)")
	}

	u.OperatorForceFail = false
	Update(u, model.ProbeResult{Success: true, RTTMs: 50, At: time.Now()})
	if !u.Reachable {
		t.Fatalf("success should clear unreachable once force-fail is released")
	}
}

func TestLossFraction_OverLast20(t *testing.T) {
	t.Parallel()

	u := newUplink()
	for i := 0; i < 10; i++ {
		Update(u, model.ProbeResult{Success: true, RTTMs: 10, At: time.Now()})
	}
	for i := 0; i < 10; i++ {
		Update(u, model.ProbeResult{Success: false, At: time.Now()})
	}
	if u.LossFraction != 0.5 {
		t.Fatalf("loss_fraction=%v want 0.5", u.LossFraction)
	}
}

func TestRecentSuccessfulRTTMean(t *testing.T) {
	t.Parallel()

	u := newUplink()
	Update(u, model.ProbeResult{Success: false, At: time.Now()})
	Update(u, model.ProbeResult{Success: true, RTTMs: 90, At: time.Now()})
	Update(u, model.ProbeResult{Success: true, RTTMs: 100, At: time.Now()})
	Update(u, model.ProbeResult{Success: true, RTTMs: 110, At: time.Now()})

	mean, ok := RecentSuccessfulRTTMean(u.History, 3)
	if !ok {
		t.Fatalf("expected enough successful samples")
	}
	if mean != 100 {
		t.Fatalf("mean=%v want 100", mean)
	}

	if _, ok := RecentSuccessfulRTTMean(u.History, 10); ok {
		t.Fatalf("expected insufficient samples for n=10")
	}
}
