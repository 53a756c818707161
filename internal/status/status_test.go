package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pathsteer/internal/model"
)

func TestWrite_AtomicRenameLeavesValidJSON(t *testing.T) {
	t.Parallel()

	runDir := t.TempDir()
	p := NewPublisher(runDir)

	snap := FromSnapshot(model.Snapshot{
		Status:  model.Status{Mode: model.ModeTripwire, State: model.StateNormal, ActiveUplink: "cell_a"},
		Uplinks: []model.Uplink{{Name: "cell_a", Kind: model.KindLTE, Enabled: true, Reachable: true}},
	}, time.Now())

	if err := p.Write(snap); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(runDir, "status.json"))
	if err != nil {
		t.Fatalf("read status.json: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ActiveUplink != "cell_a" || len(got.Uplinks) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.Uplinks[0].SignalPowerDBM == nil {
		t.Fatalf("expected LTE signal fields populated")
	}
}

func TestFromSnapshot_IncludesCountdownsAndActiveController(t *testing.T) {
	t.Parallel()

	snap := FromSnapshot(model.Snapshot{
		Status: model.Status{
			State:             model.StateHolding,
			ActiveController:  1,
			HoldRemainingSec:  2,
			CleanRemainingSec: 1,
		},
	}, time.Now())

	if snap.ActiveController != 1 || snap.HoldRemainingSec != 2 || snap.CleanRemainingSec != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestWrite_NoTempFilesLeftBehind(t *testing.T) {
	t.Parallel()

	runDir := t.TempDir()
	p := NewPublisher(runDir)
	if err := p.Write(FromSnapshot(model.Snapshot{}, time.Now())); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(runDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "status.json" {
		t.Fatalf("expected only status.json, got %v", entries)
	}
}
