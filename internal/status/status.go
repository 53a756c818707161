// Package status publishes the full system status snapshot atomically at
// 10Hz (spec.md §4.9), using the teacher's atomic-write pattern: write to a
// temp file in the same directory, fsync, chmod, then rename over the
// target.
package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"pathsteer/internal/model"
)

// UplinkView is one uplink's published fields.
type UplinkView struct {
	Name               string  `json:"name"`
	Kind               string  `json:"kind"`
	Enabled            bool    `json:"enabled"`
	Reachable          bool    `json:"reachable"`
	Active             bool    `json:"active"`
	RTTCurrentMs       float64 `json:"rtt_current_ms"`
	RTTBaselineMs      float64 `json:"rtt_baseline_ms"`
	LossPercent        float64 `json:"loss_percent"`
	RiskNow            float64 `json:"risk_now"`
	ConsecutiveFailures int    `json:"consecutive_failures"`

	SignalPowerDBM  *float64 `json:"signal_power_dbm,omitempty"`
	SignalToNoiseDB *float64 `json:"signal_to_noise_db,omitempty"`

	SatObstructed      *bool    `json:"sat_obstructed,omitempty"`
	ObstructionFraction *float64 `json:"obstruction_fraction,omitempty"`
}

// Snapshot is the full JSON document written to RUN_DIR/status.json.
type Snapshot struct {
	Mode          string `json:"mode"`
	State         string `json:"state"`
	ActiveUplink  string `json:"active_uplink"`
	LastTrigger   string `json:"last_trigger"`
	TriggerDetail string `json:"trigger_detail"`

	ActiveController int `json:"active_controller"`

	DuplicationEnabled bool `json:"duplication_enabled"`

	HoldRemainingSec  int `json:"hold_remaining"`
	CleanRemainingSec int `json:"clean_remaining"`

	SwitchesInWindow int  `json:"switches_in_window"`
	FlapSuppressed   bool `json:"flap_suppressed"`

	GlobalRisk     float64 `json:"global_risk"`
	Recommendation string  `json:"recommendation"`

	OperatorForceLocked bool `json:"operator_force_locked"`

	RunID string `json:"run_id"`

	LastCommand struct {
		LastCmdID string `json:"last_cmd_id"`
		Result    string `json:"result"`
		Detail    string `json:"detail"`
	} `json:"last_command"`

	GPS struct {
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
		SpeedMPH float64 `json:"speed_mph"`
		Heading  float64 `json:"heading"`
		Fix      bool    `json:"fix"`
	} `json:"gps"`

	Uplinks []UplinkView `json:"uplinks"`

	PublishedAt time.Time `json:"published_at"`
}

// Publisher writes status snapshots to RUN_DIR/status.json.
type Publisher struct {
	path string
}

// NewPublisher builds a Publisher writing under runDir.
func NewPublisher(runDir string) *Publisher {
	return &Publisher{path: filepath.Join(runDir, "status.json")}
}

// FromSnapshot converts a model.Snapshot into the wire Snapshot document.
func FromSnapshot(s model.Snapshot, now time.Time) Snapshot {
	out := Snapshot{
		Mode:                string(s.Status.Mode),
		State:                string(s.Status.State),
		ActiveUplink:         s.Status.ActiveUplink,
		LastTrigger:          string(s.Status.LastTrigger),
		TriggerDetail:        s.Status.TriggerDetail,
		ActiveController:     s.Status.ActiveController,
		DuplicationEnabled:   s.Status.DuplicationEnabled,
		HoldRemainingSec:     s.Status.HoldRemainingSec,
		CleanRemainingSec:    s.Status.CleanRemainingSec,
		SwitchesInWindow:     s.Status.SwitchesInWindow,
		FlapSuppressed:       s.Status.FlapSuppressed,
		GlobalRisk:           s.Status.GlobalRisk,
		Recommendation:       string(s.Status.Recommendation),
		OperatorForceLocked:  s.Status.OperatorForceLocked,
		RunID:                s.Status.RunID,
		PublishedAt:          now,
	}
	out.LastCommand.LastCmdID = s.Status.LastCommand.LastCmdID
	out.LastCommand.Result = s.Status.LastCommand.Result
	out.LastCommand.Detail = s.Status.LastCommand.Detail
	out.GPS.Lat = s.Status.GPS.Lat
	out.GPS.Lon = s.Status.GPS.Lon
	out.GPS.SpeedMPH = s.Status.GPS.SpeedMPH
	out.GPS.Heading = s.Status.GPS.Heading
	out.GPS.Fix = s.Status.GPS.Fix

	for _, u := range s.Uplinks {
		v := UplinkView{
			Name:                u.Name,
			Kind:                string(u.Kind),
			Enabled:             u.Enabled,
			Reachable:           u.Reachable,
			Active:              u.CurrentlyActive,
			RTTCurrentMs:        u.RTTCurrentMs,
			RTTBaselineMs:       u.RTTBaselineMs,
			LossPercent:         u.LossPercent(),
			RiskNow:             u.RiskNow,
			ConsecutiveFailures: u.ConsecutiveFailures,
		}
		if u.Kind == model.KindLTE {
			v.SignalPowerDBM = &u.Cellular.SignalPowerDBM
			v.SignalToNoiseDB = &u.Cellular.SignalToNoiseDB
		}
		if u.Kind == model.KindSAT {
			v.SatObstructed = &u.Satellite.Obstructed
			v.ObstructionFraction = &u.Satellite.ObstructionFraction
		}
		out.Uplinks = append(out.Uplinks, v)
	}
	return out
}

// Write publishes snap atomically: a temp file is created alongside the
// target, written, synced, chmod'd, then renamed over it, so readers always
// see either the previous or new snapshot, never a partial one.
func (p *Publisher) Write(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return atomicWriteFile(p.path, data, 0o644)
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
