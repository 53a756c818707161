package probe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pathsteer/internal/execx"
	"pathsteer/internal/model"
)

// Target describes one uplink's probe configuration, independent of model.Uplink
// so the pool can be driven in tests without a full Store.
type Target struct {
	Name      string
	Kind      model.UplinkKind
	Interface string
	Namespace string
}

// Pool runs reachability probes for a set of uplinks, honoring "at most one
// outstanding probe per uplink at a time" (spec.md §5) via a per-uplink
// in-flight flag, the same shape as the teacher's per-modem persistent-client
// invariant.
type Pool struct {
	runner         execx.Runner
	controllerAddr string
	stunTarget     string
	probeBin       string
	timeout        time.Duration

	inFlight sync.Map // name -> *int32
}

// NewPool builds a Pool. controllerAddr is the LTE probe's dial target;
// stunTarget is the SAT/FIBER reachability target (a STUN server address).
func NewPool(runner execx.Runner, controllerAddr, stunTarget, probeBin string, timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Pool{
		runner:         runner,
		controllerAddr: controllerAddr,
		stunTarget:     stunTarget,
		probeBin:       probeBin,
		timeout:        timeout,
	}
}

// TryProbe launches a probe for t if none is already outstanding for that
// uplink, and delivers the result on the returned channel. Returns nil if a
// probe is already in flight for t.Name.
func (p *Pool) TryProbe(ctx context.Context, t Target) <-chan model.ProbeResult {
	flagAny, _ := p.inFlight.LoadOrStore(t.Name, new(int32))
	flag := flagAny.(*int32)
	if !atomic.CompareAndSwapInt32(flag, 0, 1) {
		return nil
	}

	out := make(chan model.ProbeResult, 1)
	go func() {
		defer atomic.StoreInt32(flag, 0)
		out <- p.run(ctx, t)
	}()
	return out
}

func (p *Pool) run(ctx context.Context, t Target) model.ProbeResult {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		rtt time.Duration
		err error
	)
	switch t.Kind {
	case model.KindLTE:
		rtt, err = LTEProbe(pctx, t.Interface, p.controllerAddr)
	default: // SAT, FIBER
		if t.Namespace != "" && p.runner != nil {
			rtt, err = NamespaceProbeDuration(pctx, p.runner, t.Namespace, p.probeBin, p.stunTarget, p.timeout)
		} else {
			rtt, err = Reachability(pctx, p.stunTarget, p.timeout)
		}
	}

	now := time.Now()
	if err != nil {
		return model.ProbeResult{Success: false, At: now}
	}
	return model.ProbeResult{Success: true, RTTMs: float64(rtt) / float64(time.Millisecond), At: now}
}
