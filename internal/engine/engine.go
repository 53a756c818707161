// Package engine wires the Probe Pool through the Status Publisher into the
// Edge Steering Engine's main loop (spec.md §5), adapted from the teacher's
// internal/agent.Run multi-ticker select pattern.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pathsteer/internal/aggregator"
	"pathsteer/internal/arbiter"
	"pathsteer/internal/chaosfeed"
	"pathsteer/internal/config"
	"pathsteer/internal/controllerclient"
	"pathsteer/internal/duplication"
	"pathsteer/internal/eventlog"
	"pathsteer/internal/execx"
	"pathsteer/internal/gpsfeed"
	"pathsteer/internal/ingress"
	"pathsteer/internal/model"
	"pathsteer/internal/probe"
	"pathsteer/internal/risk"
	"pathsteer/internal/routeactuator"
	"pathsteer/internal/statemachine"
	"pathsteer/internal/status"
	"pathsteer/internal/tripwire"
)

// uplinkRuntime bundles the long-lived, per-uplink collaborators that must
// never be recreated per poll: the uplink kind, the kind-specific slow-poll
// clients, and the channel the uplink's probe results arrive on (probe.Pool
// enforces its own in-flight guard per uplink name).
type uplinkRuntime struct {
	target model.UplinkKind
	modem  *probe.ModemClient
	dish   *probe.DishClient
	out    <-chan model.ProbeResult
}

// Engine runs one Edge node's full steering loop.
type Engine struct {
	cfg    config.EdgeConfig
	runID  string
	logger *zap.Logger

	store *model.Store

	pool          *probe.Pool
	dupActuator   *duplication.Actuator
	routeActuator *routeactuator.Actuator
	sm            *statemachine.Machine
	cmdQueue      *ingress.Queue
	statusPub     *status.Publisher
	gps           *gpsfeed.Reader
	chaos         *chaosfeed.Reader
	events        *eventlog.Logger
	ccClient      *controllerclient.Client

	thresholds tripwire.Thresholds
	runtimes   map[string]*uplinkRuntime
}

// New builds an Engine from cfg. runID identifies this process run for the
// event log and published status document.
func New(cfg config.EdgeConfig, runner execx.Runner, logger *zap.Logger, runID string) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		return nil, fmt.Errorf("engine: runner is required")
	}

	uplinks := make([]*model.Uplink, 0, len(cfg.Uplinks))
	runtimes := make(map[string]*uplinkRuntime, len(cfg.Uplinks))
	for _, uc := range cfg.Uplinks {
		u := &model.Uplink{
			Name:               uc.Name,
			Kind:               model.UplinkKind(uc.Kind),
			Interface:          uc.Interface,
			Namespace:          uc.Namespace,
			EgressVeth:         uc.EgressVeth,
			ServiceGatewayVeth: uc.ServiceGatewayVeth,
			ServiceGatewayIP:   uc.ServiceGatewayIP,
			Enabled:            uc.Enabled,
			History:            model.NewHistoryRing(cfg.HistorySize),
		}
		uplinks = append(uplinks, u)

		rt := &uplinkRuntime{target: u.Kind}
		switch u.Kind {
		case model.KindLTE:
			rt.modem = probe.NewModemClient(runner, cfg.ModemQueryBin, uc.Identifier, time.Duration(cfg.ModemPollSec)*time.Second)
		case model.KindSAT:
			rt.dish = probe.NewDishClient(uc.Identifier, time.Duration(cfg.DishPollSec)*time.Second)
		}
		runtimes[u.Name] = rt
	}

	store := model.NewStore(uplinks)
	events, err := eventlog.Open(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		runID:  runID,
		logger: logger,
		store:  store,

		pool:          probe.NewPool(runner, cfg.ControllerAddr, cfg.STUNTarget, cfg.ProbeBin, 2*time.Second),
		dupActuator:   duplication.NewActuator(runner, cfg.ServiceNamespace),
		routeActuator: routeactuator.NewActuator(runner, cfg.ServiceNamespace),
		sm: statemachine.New(statemachine.Config{
			PrerollMs:    cfg.PrerollMs,
			DupSettleMs:  cfg.DupSettleMs,
			MinHoldSec:   cfg.MinHoldSec,
			CleanExitSec: cfg.CleanExitSec,
		}),
		cmdQueue:  ingress.NewQueue(cfg.RunDir),
		statusPub: status.NewPublisher(cfg.RunDir),
		gps:       gpsfeed.NewReader(cfg.RunDir),
		chaos:     chaosfeed.NewReader(cfg.RunDir),
		events:    events,
		thresholds: tripwire.Thresholds{
			RTTStepMs:      cfg.RTTStepThresholdMs,
			ProbeMissCount: cfg.ProbeMissCount,
			RSRPDropDBM:    cfg.RSRPDropThresholdDBM,
			SINRDropDB:     cfg.SINRDropThresholdDB,
		},
		runtimes: runtimes,
	}
	if cfg.ControllerNotifyAddr != "" {
		e.ccClient = controllerclient.NewClient(cfg.ControllerNotifyAddr)
	}

	store.WithStatus(func(st *model.Status) {
		st.RunID = runID
		st.Mode = model.ModeTripwire
		st.State = model.StateNormal
	})
	if len(uplinks) > 0 {
		store.WithStatus(func(st *model.Status) { st.ActiveUplink = uplinks[0].Name })
		uplinks[0].CurrentlyActive = true
	}

	return e, nil
}

// Run drives the Edge loop until ctx is cancelled (SIGINT/SIGTERM, wired by
// the caller via a signal-derived context, matching the teacher's
// signalContext helper). Duplication is disabled and the event log flushed
// before returning.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		_ = e.dupActuator.Disable(context.Background())
		_ = e.events.Close()
	}()

	go e.sideTasks(ctx)

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			e.step(ctx)
		}
	}
}

// step runs exactly one pass of the fixed pipeline: probe-poll drain →
// metric update → tripwire → duplication → arbiter → route swap.
func (e *Engine) step(ctx context.Context) {
	e.dispatchProbes(ctx)
	e.drainProbes()
	e.processCommands(ctx)
	e.evaluateTripwireAndArbitrate(ctx)
}

func (e *Engine) dispatchProbes(ctx context.Context) {
	e.store.ForEachUplink(func(u *model.Uplink) {
		if !u.Enabled {
			return
		}
		rt := e.runtimes[u.Name]
		if rt.out != nil {
			return
		}
		ch := e.pool.TryProbe(ctx, probe.Target{Name: u.Name, Kind: u.Kind, Interface: u.Interface, Namespace: u.Namespace})
		if ch != nil {
			rt.out = ch
		}
	})
}

func (e *Engine) drainProbes() {
	perturbations, _ := e.chaos.Read()

	e.store.ForEachUplink(func(u *model.Uplink) {
		rt := e.runtimes[u.Name]
		if rt.out == nil {
			return
		}
		select {
		case res, ok := <-rt.out:
			rt.out = nil
			if !ok {
				return
			}
			if res.Success {
				rttMs, _, lossFrac := chaosfeed.Apply(perturbations, u.Name, res.RTTMs, 0, 0)
				res.RTTMs = rttMs
				if lossFrac > 0 {
					res.Success = false
				}
			}
			aggregator.Update(u, res)

			if u.Kind == model.KindLTE && rt.modem != nil {
				sig := rt.modem.Query(context.Background())
				u.Cellular.SignalPowerDBM = sig.SignalPowerDBM
				u.Cellular.SignalToNoiseDB = sig.SignalToNoiseDB
				u.Cellular.Carrier = sig.Carrier
				u.Cellular.CellID = sig.CellID
			}
			if u.Kind == model.KindSAT && rt.dish != nil {
				stats := rt.dish.Query(context.Background())
				u.Satellite.Online = stats.Online
				u.Satellite.Obstructed = stats.Obstructed
				u.Satellite.ObstructionFraction = stats.ObstructionFraction
				u.Satellite.DishLatencyMs = stats.LatencyMs
				u.Satellite.PredictedObstructionETAS = stats.ObstructionETASec
			}
		default:
		}
	})
}

func (e *Engine) processCommands(ctx context.Context) {
	cmds, err := e.cmdQueue.Drain()
	if err != nil {
		e.logger.Warn("command drain failed", zap.Error(err))
		return
	}
	if len(cmds) == 0 {
		return
	}

	uplinkByName := map[string]*model.Uplink{}
	e.store.ForEachUplink(func(u *model.Uplink) { uplinkByName[u.Name] = u })

	for _, cmd := range cmds {
		var ack model.CommandAck
		var dupRequest *bool
		var activeName string
		e.store.WithStatus(func(st *model.Status) {
			ack = ingress.Apply(cmd, st, uplinkByName, func() {
				e.fireManualTrigger(st)
			}, func() {
				// force:auto only resets the flap counter here; no
				// arbitration pass is run from this callback.
				st.SwitchesInWindow = 0
			}, func(enable bool) {
				dupRequest = &enable
				activeName = st.ActiveUplink
			})
			st.LastCommand = ack
		})
		_ = e.events.Emit("command", ack)

		if dupRequest != nil {
			e.actuateDuplicationCommand(ctx, *dupRequest, activeName)
		}
	}
}

// actuateDuplicationCommand installs or tears down the mirror rule requested
// by a mode:mirror/mode:training command, outside the store lock per
// spec.md §5, then commits the outcome — mirroring applyDuplicationPlan's
// decide-then-act split so a requested mode change always reflects in
// DuplicationEnabled only once the shell-out actually ran.
func (e *Engine) actuateDuplicationCommand(ctx context.Context, enable bool, activeName string) {
	if !enable {
		if err := e.dupActuator.Disable(ctx); err != nil {
			_ = e.events.Emit("duplication_failed", map[string]string{"error": err.Error()})
			return
		}
		e.store.WithStatus(func(st *model.Status) { st.DuplicationEnabled = false })
		_ = e.events.Emit("duplication_disabled", map[string]string{"reason": "mode_training"})
		return
	}

	snap := e.store.Snapshot()
	backupName := e.bestBackup(snap.Uplinks, activeName)
	if backupName == "" {
		_ = e.events.Emit("duplication_failed", map[string]string{"error": "no backup uplink available"})
		return
	}

	var activeVeth, backupVeth string
	for _, u := range snap.Uplinks {
		switch u.Name {
		case activeName:
			activeVeth = u.ServiceGatewayVeth
		case backupName:
			backupVeth = u.ServiceGatewayVeth
		}
	}

	if err := e.dupActuator.Enable(ctx, activeVeth, backupVeth); err != nil {
		_ = e.events.Emit("duplication_failed", map[string]string{"error": err.Error()})
		return
	}
	now := time.Now()
	e.store.WithStatus(func(st *model.Status) {
		st.DuplicationEnabled = true
		st.DuplicationEnabledAt = now
	})
	_ = e.events.Emit("duplication_enabled", map[string]string{"src": activeName, "dst": backupName})
}

func (e *Engine) fireManualTrigger(st *model.Status) {
	e.sm.OnTripwireFire(st, model.TriggerManual, "operator", time.Now())
}

// duplicationPlan and switchPlan carry decisions made under the store lock
// out to the shell-out phase, which must run lock-free per spec.md §5's
// "coarse mutex" resource model: long shell-outs never hold the store lock.
type duplicationPlan struct {
	srcName, srcVeth string
	dstName, dstVeth string
}

type switchPlan struct {
	move       bool
	targetName string
	targetVeth string
	targetGW   string
	targetKind model.UplinkKind
}

func (e *Engine) evaluateTripwireAndArbitrate(ctx context.Context) {
	now := time.Now()

	var dup *duplicationPlan
	var sw *switchPlan
	var holdingExited bool

	e.store.WithAll(func(st *model.Status, uplinks []*model.Uplink) {
		if st.Mode == model.ModeTraining {
			return
		}

		byName := make(map[string]*model.Uplink, len(uplinks))
		clones := make([]model.Uplink, 0, len(uplinks))
		for _, u := range uplinks {
			byName[u.Name] = u
			clones = append(clones, u.Clone())
		}
		active := byName[st.ActiveUplink]

		if active != nil {
			if trig := tripwire.Check(active, e.thresholds); trig != model.TriggerNone {
				e.sm.OnTripwireFire(st, trig, string(trig), now)
				_ = e.events.Emit("tripwire_fire", map[string]string{"trigger": string(trig), "uplink": active.Name})
			}
		}

		if st.State == model.StateProtect && !st.DuplicationEnabled && active != nil {
			backup := e.bestBackup(clones, active.Name)
			if backup != "" {
				if b, ok := byName[backup]; ok {
					dup = &duplicationPlan{srcName: active.Name, srcVeth: active.ServiceGatewayVeth, dstName: b.Name, dstVeth: b.ServiceGatewayVeth}
				}
			}
		}

		if e.sm.ReadyForSwitching(st, now) {
			e.sm.EnterSwitching(st)
			decision := arbiter.Decide(clones, st.ActiveUplink, st.OperatorForceLocked, st.SwitchesInWindow)
			st.FlapSuppressed = decision.FlapSuppressed
			if decision.Move {
				if target, ok := byName[decision.Target]; ok {
					sw = &switchPlan{move: true, targetName: target.Name, targetVeth: target.ServiceGatewayVeth, targetGW: target.ServiceGatewayIP, targetKind: target.Kind}
				}
			}
			if sw == nil {
				e.sm.EnterHolding(st)
			}
		}

		if st.State == model.StateHolding && active != nil {
			if e.sm.Tick(st, active, now) {
				_ = e.events.Emit("state_exit_normal", map[string]string{"uplink": st.ActiveUplink})
				holdingExited = !st.DuplicationEnabled
			}
		}
	})

	if dup != nil {
		e.applyDuplicationPlan(ctx, dup)
	}
	if sw != nil {
		e.applySwitchPlan(ctx, sw, now)
	}
	if holdingExited {
		_ = e.dupActuator.Disable(ctx)
	}
}

func (e *Engine) applyDuplicationPlan(ctx context.Context, dup *duplicationPlan) {
	err := e.dupActuator.Enable(ctx, dup.srcVeth, dup.dstVeth)
	e.store.WithStatus(func(st *model.Status) {
		if err != nil {
			_ = e.events.Emit("duplication_failed", map[string]string{"error": err.Error()})
			return
		}
		st.DuplicationEnabled = true
		st.DuplicationEnabledAt = time.Now()
	})
	if err == nil {
		_ = e.events.Emit("duplication_enabled", map[string]string{"src": dup.srcName, "dst": dup.dstName})
	}
}

func (e *Engine) applySwitchPlan(ctx context.Context, sw *switchPlan, now time.Time) {
	verified, err := e.routeActuator.Switch(ctx, sw.targetVeth, sw.targetGW)

	e.store.WithAll(func(st *model.Status, uplinks []*model.Uplink) {
		if err != nil || !verified {
			_ = e.events.Emit("switch_fail", map[string]string{"target": sw.targetName})
			e.sm.EnterHolding(st)
			return
		}

		for _, u := range uplinks {
			u.CurrentlyActive = u.Name == sw.targetName
		}
		st.ActiveUplink = sw.targetName
		st.SwitchesInWindow++
		e.sm.EnterHolding(st)
	})

	if err == nil && verified {
		_ = e.events.Emit("switch_ok", map[string]string{"target": sw.targetName})
		if e.ccClient != nil {
			e.ccClient.FireAndForget(controllerclient.SwitchNotification{
				ActiveUplink: sw.targetName,
				Kind:         string(sw.targetKind),
				SwitchedAt:   now.UnixMilli(),
			}, func(err error) {
				_ = e.events.Emit("controller_notify_failed", map[string]string{"error": err.Error()})
			})
		}
	}
}

func (e *Engine) bestBackup(uplinks []model.Uplink, exclude string) string {
	candidates := make([]model.Uplink, 0, len(uplinks))
	for _, u := range uplinks {
		if u.Name == exclude {
			continue
		}
		candidates = append(candidates, u)
	}
	return arbiter.Select(candidates)
}

// sideTasks runs the engine's slower periodic work (risk scoring, status
// publish, GPS read) on their own tickers in one select loop, the same
// shape as the teacher's internal/agent.Run.
func (e *Engine) sideTasks(ctx context.Context) {
	riskTicker := time.NewTicker(time.Duration(e.cfg.RiskIntervalMs) * time.Millisecond)
	defer riskTicker.Stop()
	statusTicker := time.NewTicker(time.Duration(e.cfg.StatusIntervalMs) * time.Millisecond)
	defer statusTicker.Stop()
	gpsTicker := time.NewTicker(time.Second)
	defer gpsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-riskTicker.C:
			e.scoreRisk()
		case <-statusTicker.C:
			e.publishStatus()
		case <-gpsTicker.C:
			if e.cfg.GPSEnabled {
				e.refreshGPS()
			}
		}
	}
}

// scoreRisk updates every uplink's risk_now, but global_risk only ever
// reflects the active uplink's — a degraded backup must never inflate the
// published recommendation while the active path is healthy (spec.md §4.4,
// grounded on pathsteerd.c's "if (u->is_active && ...) max_risk = ...").
func (e *Engine) scoreRisk() {
	e.store.WithAll(func(st *model.Status, uplinks []*model.Uplink) {
		var active float64
		for _, u := range uplinks {
			u.RiskNow = risk.Score(u)
			if u.Name == st.ActiveUplink {
				active = u.RiskNow
			}
		}
		st.GlobalRisk = active
		st.Recommendation = risk.Recommendation(active)
	})
}

func (e *Engine) publishStatus() {
	snap := e.store.Snapshot()
	doc := status.FromSnapshot(snap, time.Now())
	if err := e.statusPub.Write(doc); err != nil {
		e.logger.Warn("status publish failed", zap.Error(err))
	}
}

func (e *Engine) refreshGPS() {
	g, err := e.gps.Read()
	if err != nil {
		return
	}
	e.store.WithStatus(func(st *model.Status) { st.GPS = g })
}
