// Package statemachine implements the 5-state Edge state machine and mode
// overrides (spec.md §4.7): NORMAL → PROTECT → SWITCHING → HOLDING → NORMAL,
// with PREPARE reserved pass-through (see DESIGN.md Open Question 3).
package statemachine

import (
	"time"

	"pathsteer/internal/model"
)

// Config holds the state machine's timing parameters.
type Config struct {
	PrerollMs    int
	DupSettleMs  int
	MinHoldSec   int
	CleanExitSec int
}

// Machine drives Status.State transitions. It holds no state itself beyond
// Config — all mutable state lives in model.Status, owned exclusively by the
// Arbiter per spec.md §3's ownership rule.
type Machine struct {
	cfg Config
}

// New builds a Machine with the given timing config.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// OnTripwireFire transitions st into PROTECT, idempotently: re-firing while
// already in PROTECT only refreshes last_trigger/detail, never resetting
// protection_entered_at or switches_in_window again (spec.md §4.3
// "Firing is idempotent while already in PROTECT").
func (m *Machine) OnTripwireFire(st *model.Status, trigger model.Trigger, detail string, now time.Time) {
	st.LastTrigger = trigger
	st.TriggerDetail = detail

	if st.State == model.StateProtect {
		return
	}

	st.ProtectionEnteredAt = now
	st.SwitchesInWindow = 0
	st.State = model.StateProtect
}

// ReadyForSwitching reports whether PROTECT's preroll has elapsed and
// duplication has settled, the gate before entering SWITCHING.
func (m *Machine) ReadyForSwitching(st *model.Status, now time.Time) bool {
	if st.State != model.StateProtect {
		return false
	}
	preroll := time.Duration(m.cfg.PrerollMs) * time.Millisecond
	if now.Sub(st.ProtectionEnteredAt) < preroll {
		return false
	}
	if st.DuplicationEnabled {
		settle := time.Duration(m.cfg.DupSettleMs) * time.Millisecond
		if now.Sub(st.DuplicationEnabledAt) < settle {
			return false
		}
	}
	return true
}

// EnterSwitching transitions PROTECT → SWITCHING.
func (m *Machine) EnterSwitching(st *model.Status) {
	st.State = model.StateSwitching
}

// EnterHolding transitions SWITCHING → HOLDING after a route swap (whether
// or not a move actually happened).
func (m *Machine) EnterHolding(st *model.Status) {
	st.State = model.StateHolding
}

// CleanNow evaluates the HOLDING-state "clean" predicate for an uplink.
func CleanNow(u *model.Uplink) bool {
	return u.ConsecutiveFailures == 0 &&
		u.RTTCurrentMs < u.RTTBaselineMs+30 &&
		u.LossPercent() < 2
}

// Tick runs one HOLDING-state protection tick: updates last_clean_at and the
// hold/clean countdown displays (spec.md §4.9, grounded on pathsteerd.c's
// protection_tick), and exits to NORMAL (disabling duplication unless
// mode=MIRROR) once the min-hold has elapsed and the uplink has then stayed
// clean for the clean-exit duration. The clean timer starts only after the
// min-hold has elapsed.
func (m *Machine) Tick(st *model.Status, active *model.Uplink, now time.Time) (exitedToNormal bool) {
	if st.State != model.StateHolding {
		return false
	}

	minHold := time.Duration(m.cfg.MinHoldSec) * time.Second
	cleanExit := time.Duration(m.cfg.CleanExitSec) * time.Second

	holdRemaining := minHold - now.Sub(st.ProtectionEnteredAt)
	if holdRemaining < 0 {
		holdRemaining = 0
	}
	st.HoldRemainingSec = int(holdRemaining / time.Second)

	holdElapsed := now.Sub(st.ProtectionEnteredAt) >= minHold
	if CleanNow(active) && holdElapsed {
		if st.LastCleanAt.IsZero() {
			st.LastCleanAt = now
		}
		cleanRemaining := cleanExit - now.Sub(st.LastCleanAt)
		if cleanRemaining < 0 {
			cleanRemaining = 0
		}
		st.CleanRemainingSec = int(cleanRemaining / time.Second)
	} else {
		st.LastCleanAt = time.Time{}
		st.CleanRemainingSec = int(cleanExit / time.Second)
	}

	if !holdElapsed {
		return false
	}
	if st.LastCleanAt.IsZero() || now.Sub(st.LastCleanAt) < cleanExit {
		return false
	}

	st.State = model.StateNormal
	if st.Mode != model.ModeMirror {
		st.DuplicationEnabled = false
	}
	return true
}
