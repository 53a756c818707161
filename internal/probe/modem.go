package probe

import (
	"context"
	"sync"
	"time"

	"pathsteer/internal/execx"
)

// ModemClient is a long-lived client for one cellular modem's signal query
// channel. It is created once per modem for the process lifetime and never
// recreated per poll — per the Design Notes' "Cellular CID exhaustion"
// warning against short-lived clients.
type ModemClient struct {
	runner    execx.Runner
	queryBin  string
	modemID   string
	minPeriod time.Duration

	mu      sync.Mutex
	lastAt  time.Time
	lastVal CellularSignal
}

// CellularSignal is the LTE signal snapshot returned by a modem query.
type CellularSignal struct {
	SignalPowerDBM  float64
	SignalToNoiseDB float64
	Carrier         string
	CellID          string
}

// NewModemClient builds a persistent client for the modem identified by
// modemID, rate-limited to minPeriod between real queries (spec.md §5: "rate
// limited to once per 5s per modem").
func NewModemClient(runner execx.Runner, queryBin, modemID string, minPeriod time.Duration) *ModemClient {
	if minPeriod <= 0 {
		minPeriod = 5 * time.Second
	}
	return &ModemClient{runner: runner, queryBin: queryBin, modemID: modemID, minPeriod: minPeriod}
}

// Query returns the last-known signal snapshot, refreshing it via a shell-out
// to queryBin only if minPeriod has elapsed since the last refresh. On query
// failure it returns the previous value unchanged (spec.md §7: "keep prior
// values; do not mark uplink unreachable on metadata failure alone").
func (c *ModemClient) Query(ctx context.Context) CellularSignal {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastAt.IsZero() && time.Since(c.lastAt) < c.minPeriod {
		return c.lastVal
	}

	out, err := c.runner.OutputContext(ctx, c.queryBin, "-modem", c.modemID)
	c.lastAt = time.Now()
	if err != nil {
		return c.lastVal
	}

	sig, perr := parseModemOutput(out)
	if perr != nil {
		return c.lastVal
	}
	c.lastVal = sig
	return c.lastVal
}
